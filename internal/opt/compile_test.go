/*
 * Copyright 2022 ByteDance Inc.
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

package opt

import (
    `testing`

    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/internal/opts`
    `github.com/cloudwego/cfgopt/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func program() []*ir.Graph {
    one := addOne()
    sq := square()
    chain, _ := ifChain()
    return []*ir.Graph {
        allocPair(),
        one,
        sq,
        callWith(one),
        callWith(sq),
        sumTo(),
        factorial(),
        chain,
    }
}

func samples(g *ir.Graph) [][]interface{} {
    if len(g.StartBlock.Inputs) == 0 {
        return [][]interface{} {{}}
    }
    ret := make([][]interface{}, 0, 10)
    for x := int64(-2); x <= 7; x++ {
        ret = append(ret, []interface{} { x })
    }
    return ret
}

func countOps(graphs []*ir.Graph, name string, op string) int {
    for _, g := range graphs {
        if g.Name == name {
            return g.CountOps(op)
        }
    }
    panic("no such graph: " + name)
}

func runProgram(t *testing.T, o opts.Options) []*ir.Graph {
    ref := program()
    out := program()
    require.NoError(t, Optimize(out, o, interp.Primitives{}))

    /* every graph is still well-formed, and computes the same things */
    for i, g := range out {
        require.NoError(t, ir.CheckGraph(g), g.Name)
        for _, args := range samples(g) {
            assert.Equal(t, outcome(ref[i], args...), outcome(g, args...), "%s%v", g.Name, args)
        }
    }
    return out
}

func TestOptimize_Default(t *testing.T) {
    o := opts.GetDefaultOptions()
    o.CheckGraphs = true
    out := runProgram(t, o)

    /* allocations and small calls are gone, recursion stays */
    assert.Equal(t, 0, countOps(out, "alloc_pair", ir.OpMalloc))
    assert.Equal(t, 0, countOps(out, "call_add_one", ir.OpDirectCall))
    assert.Equal(t, 0, countOps(out, "call_square", ir.OpDirectCall))
    assert.Equal(t, 1, countOps(out, "factorial", ir.OpDirectCall))

    /* the comparison chain became a switch */
    assert.Equal(t, 0, countOps(out, "if_chain", "int_eq"))
}

func TestOptimize_Parallel(t *testing.T) {
    o := opts.GetDefaultOptions()
    o.Workers = 4
    out := runProgram(t, o)
    assert.Equal(t, 0, countOps(out, "alloc_pair", ir.OpMalloc))
    assert.Equal(t, 0, countOps(out, "call_square", ir.OpDirectCall))
}

func TestOptimize_Disabled(t *testing.T) {
    o := opts.GetDefaultOptions()
    o.InlineThreshold = 0
    o.RunMallocRemoval = false
    o.RunConstantFolding = false
    o.MergeIfBlocks = false
    out := runProgram(t, o)
    assert.Equal(t, 1, countOps(out, "alloc_pair", ir.OpMalloc))
    assert.Equal(t, 1, countOps(out, "call_add_one", ir.OpDirectCall))
    assert.Equal(t, 3, countOps(out, "if_chain", "int_eq"))
}

func TestOptimize_Malformed(t *testing.T) {
    var perr *PassError
    var gerr *ir.GraphError

    /* a dangling block, without any exits */
    start := ir.NewBlock()
    broken := ir.NewGraph("broken", start, ir.Signed)
    graphs := append(program(), broken)

    /* the input is rejected before any pass runs */
    err := Optimize(graphs, opts.GetDefaultOptions(), interp.Primitives{})
    require.ErrorAs(t, err, &perr)
    require.ErrorAs(t, err, &gerr)
    assert.Equal(t, "Graph Validation", perr.Pass)
    assert.Equal(t, "broken", perr.Graph)
    assert.Equal(t, 0, gerr.Block)
    assert.Equal(t, 1, countOps(graphs, "alloc_pair", ir.OpMalloc))
}

func TestOptimize_MalformedParallel(t *testing.T) {
    var perr *PassError
    o := opts.GetDefaultOptions()
    o.Workers = 3

    /* same thing, found by a worker */
    graphs := append(program(), ir.NewGraph("broken", ir.NewBlock(), ir.Signed))
    require.ErrorAs(t, Optimize(graphs, o, interp.Primitives{}), &perr)
    assert.Equal(t, "broken", perr.Graph)
}

func TestOptimize_Empty(t *testing.T) {
    require.NoError(t, Optimize(nil, opts.GetDefaultOptions(), interp.Primitives{}))
}
