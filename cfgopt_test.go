/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cfgopt

import (
    `errors`
    `math`
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/cfgopt/debug`
    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/internal/irtext`
    `github.com/cloudwego/cfgopt/internal/opts`
    `github.com/cloudwego/cfgopt/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

const program = `
struct Point { x: Signed, y: Signed }

graph norm1 -> Signed {
    start(a: Signed, b: Signed):
        p: *Point = malloc(%Point)
        s1: Void = setfield(p, %x, a)
        s2: Void = setfield(p, %y, b)
        x: Signed = getfield(p, %x)
        y: Signed = getfield(p, %y)
        ax: Signed = int_abs(x)
        ay: Signed = int_abs(y)
        r: Signed = int_add(ax, ay)
        goto return(r)
}

graph classify -> Signed {
    start(a: Signed):
        n: Signed = direct_call(%norm1, a, 3)
        c: Bool = int_eq(n, 3)
        if c then zero else one(n)
    one(n: Signed):
        d: Bool = int_eq(n, 4)
        if d then four else two(n)
    two(n: Signed):
        e: Bool = int_eq(n, 5)
        if e then five else return(n)
    zero():
        goto return(100)
    four():
        goto return(400)
    five():
        goto return(500)
}

graph constant -> Signed {
    start():
        v: Signed = int_add(2, 3)
        goto return(v)
}
`

func load(t *testing.T) *irtext.Module {
    mod, err := irtext.Parse("program.ir", program)
    require.NoError(t, err)
    return mod
}

func run(t *testing.T, g *ir.Graph, args ...interface{}) interface{} {
    rv, err := interp.New(nil).Call(g, args...)
    require.NoError(t, err)
    return rv
}

func TestOptimize(t *testing.T) {
    ref := load(t)
    mod := load(t)
    old := debug.GetStats()
    require.NoError(t, Optimize(mod.Graphs, WithCheckGraphs(true)))

    /* the whole program collapses into straight-line code and a switch */
    g := mod.Graph("classify")
    assert.Equal(t, 0, g.CountOps(ir.OpMalloc))
    assert.Equal(t, 0, g.CountOps(ir.OpDirectCall))
    assert.Equal(t, 0, g.CountOps("int_eq"))
    assert.Empty(t, mod.Graph("constant").StartBlock.Ops)

    /* with the same results */
    for _, a := range []int64 { 0, 1, -1, 2, -2, 7, int64(gofakeit.Number(-1000000, 1000000)) } {
        assert.Equal(t, run(t, ref.Graph("classify"), a), run(t, g, a), "classify(%d)", a)
    }
    assert.Equal(t, int64(5), run(t, mod.Graph("constant")))

    /* every pass reported its work */
    st := debug.GetStats()
    assert.Greater(t, st.Malloc.Count, old.Malloc.Count)
    assert.Greater(t, st.Inline.Count, old.Inline.Count)
    assert.Greater(t, st.Constant.Folded, old.Constant.Folded)
    assert.GreaterOrEqual(t, st.Chain.Count - old.Chain.Count, 3)
}

func TestOptimize_Workers(t *testing.T) {
    ref := load(t)
    mod := load(t)
    require.NoError(t, Optimize(mod.Graphs, WithWorkers(4)))
    for x := int64(-3); x <= 3; x++ {
        assert.Equal(t, run(t, ref.Graph("classify"), x), run(t, mod.Graph("classify"), x))
    }
}

func TestOptimize_Disabled(t *testing.T) {
    mod := load(t)
    require.NoError(t, Optimize(mod.Graphs,
        WithInlineThreshold(0),
        WithMallocRemoval(false),
        WithConstantFolding(false),
        WithMergeIfBlocks(false),
    ))
    assert.Equal(t, 1, mod.Graph("norm1").CountOps(ir.OpMalloc))
    assert.Equal(t, 1, mod.Graph("classify").CountOps(ir.OpDirectCall))
    assert.Equal(t, 3, mod.Graph("classify").CountOps("int_eq"))
    assert.Equal(t, 1, mod.Graph("constant").CountOps("int_add"))
}

type refusing struct{}

func (refusing) Evaluate(op string, _ []*ir.Constant, _ ir.Type) (*ir.Constant, error) {
    return nil, errors.New("cannot evaluate " + op)
}

func TestOptimizeWith(t *testing.T) {
    mod := load(t)
    require.NoError(t, OptimizeWith(mod.Graphs, refusing{}))
    assert.Equal(t, 1, mod.Graph("constant").CountOps("int_add"))
    assert.Equal(t, int64(5), run(t, mod.Graph("constant")))
}

func TestOptimize_Malformed(t *testing.T) {
    var perr *PassError
    var gerr *GraphError
    mod := load(t)

    /* the branch passes one argument too many */
    bb := mod.Graph("classify").StartBlock
    bb.Exits[0].Args = append(bb.Exits[0].Args, ir.Int(1))

    /* rejected as a whole */
    err := Optimize(mod.Graphs)
    require.ErrorAs(t, err, &perr)
    require.ErrorAs(t, err, &gerr)
    assert.Equal(t, "Graph Validation", perr.Pass)
    assert.Equal(t, "classify", perr.Graph)
    assert.Contains(t, gerr.Reason, "arguments")
    assert.Equal(t, 1, mod.Graph("norm1").CountOps(ir.OpMalloc))
}

func TestSetInlineThreshold(t *testing.T) {
    old := SetInlineThreshold(0)
    defer SetInlineThreshold(old)
    assert.Equal(t, float64(0), opts.InlineThreshold)

    /* nothing gets inlined from now on */
    mod := load(t)
    require.NoError(t, Optimize(mod.Graphs))
    assert.Equal(t, 1, mod.Graph("classify").CountOps(ir.OpDirectCall))

    /* unless asked for */
    mod = load(t)
    require.NoError(t, Optimize(mod.Graphs, WithInlineThreshold(old)))
    assert.Equal(t, 0, mod.Graph("classify").CountOps(ir.OpDirectCall))
}

func TestOptions(t *testing.T) {
    o := opts.GetDefaultOptions()
    for _, fn := range []Option {
        WithInlineThreshold(10),
        WithMallocRemoval(false),
        WithConstantFolding(false),
        WithMergeIfBlocks(false),
        WithFoldBudget(20),
        WithMaxIterations(3),
        WithCheckGraphs(true),
        WithWorkers(2),
    } {
        fn(&o)
    }
    assert.Equal(t, opts.Options {
        InlineThreshold    : 10,
        RunMallocRemoval   : false,
        RunConstantFolding : false,
        MergeIfBlocks      : false,
        FoldBudget         : 20,
        MaxIterations      : 3,
        CheckGraphs        : true,
        Workers            : 2,
    }, o)
}

func TestOptions_Invalid(t *testing.T) {
    assert.Panics(t, func() { WithInlineThreshold(-1) })
    assert.Panics(t, func() { WithInlineThreshold(math.NaN()) })
    assert.Panics(t, func() { WithFoldBudget(0) })
    assert.Panics(t, func() { WithMaxIterations(-2) })
    assert.Panics(t, func() { WithWorkers(0) })
    assert.Panics(t, func() { WithWorkers(_MaxWorkers + 1) })
    assert.NotPanics(t, func() { WithWorkers(_MaxWorkers) })
}
