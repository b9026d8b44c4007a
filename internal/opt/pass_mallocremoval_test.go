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

    `github.com/cloudwego/cfgopt/ir`
    `github.com/davecgh/go-spew/spew`
    `github.com/google/go-cmp/cmp`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestMallocRemoval_AllocPair(t *testing.T) {
    g := allocPair()
    require.Equal(t, int64(3), call(t, g))
    require.Equal(t, 1, RemoveMallocs(g))
    require.NoError(t, ir.CheckGraph(g))
    assert.Equal(t, 0, g.CountOps(ir.OpMalloc))
    assert.Equal(t, 0, g.CountOps(ir.OpSetField))
    assert.Equal(t, 0, g.CountOps(ir.OpGetField))
    assert.Equal(t, int64(3), call(t, g))
}

func TestMallocRemoval_Idempotent(t *testing.T) {
    g := allocPair()
    RemoveMallocs(g)
    before := shape(g)
    assert.Equal(t, 0, RemoveMallocs(g))
    assert.False(t, MallocRemoval{}.Apply(g))
    if diff := cmp.Diff(before, shape(g)); diff != "" {
        t.Fatalf("second run changed the graph (-before +after):\n%s", diff)
    }
}

func TestMallocRemoval_AcrossBlocks(t *testing.T) {
    n := ir.NewVariable("n", ir.Signed)
    start := ir.NewBlock(n)
    loop := ir.NewBlock(ir.NewVariable("p", ir.PtrTo(Pair)))
    done := ir.NewBlock(ir.NewVariable("p", ir.PtrTo(Pair)))
    g := ir.NewGraph("across", start, ir.Signed)

    /* p.a = n; p.b = 0; while p.a > 0 { p.b += p.a; p.a -= 1 } */
    p := start.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair))
    start.Add(ir.OpSetField, ir.Void, p, ir.Symbol("a"), n)
    start.Add(ir.OpSetField, ir.Void, p, ir.Symbol("b"), ir.Int(0))
    start.Goto(loop, p)

    /* loop body */
    q := loop.Inputs[0]
    a := loop.Add(ir.OpGetField, ir.Signed, q, ir.Symbol("a"))
    b := loop.Add(ir.OpGetField, ir.Signed, q, ir.Symbol("b"))
    loop.Add(ir.OpSetField, ir.Void, q, ir.Symbol("b"), loop.Add("int_add", ir.Signed, a, b))
    loop.Add(ir.OpSetField, ir.Void, q, ir.Symbol("a"), loop.Add("int_sub", ir.Signed, a, ir.Int(1)))
    cv := loop.Add("int_gt", ir.Bool, a, ir.Int(1))
    loop.Branch(cv, ir.NewLink(done, q), ir.NewLink(loop, q))

    /* result */
    g.Return(done, done.Add(ir.OpGetField, ir.Signed, done.Inputs[0], ir.Symbol("b")))
    require.NoError(t, ir.CheckGraph(g))
    want := []interface{} { call(t, g, int64(1)), call(t, g, int64(5)), call(t, g, int64(10)) }

    /* the pointer is replaced by two scalars everywhere */
    require.Equal(t, 1, RemoveMallocs(g))
    require.NoError(t, ir.CheckGraph(g))
    assert.Equal(t, 0, g.CountOps(ir.OpMalloc))
    assert.Len(t, loop.Inputs, 2)
    assert.Equal(t, want, []interface{} { call(t, g, int64(1)), call(t, g, int64(5)), call(t, g, int64(10)) })
}

func TestMallocRemoval_Ineligible(t *testing.T) {
    tests := []struct {
        name  string
        build func() *ir.Graph
    }{
        {
            name: "finalizer",
            build: func() *ir.Graph {
                fin := &ir.Struct{Name: "Closable", Flds: []ir.Field {{ Name: "fd", T: ir.Signed }}, Finalizer: true}
                start := ir.NewBlock()
                g := ir.NewGraph("finalizer", start, ir.Signed)
                p := start.Add(ir.OpMalloc, ir.PtrTo(fin), ir.TypeToken(fin))
                g.Return(start, start.Add(ir.OpGetField, ir.Signed, p, ir.Symbol("fd")))
                return g
            },
        },
        {
            name: "returned",
            build: func() *ir.Graph {
                start := ir.NewBlock()
                g := ir.NewGraph("returned", start, ir.PtrTo(Pair))
                g.Return(start, start.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair)))
                return g
            },
        },
        {
            name: "passed to a call",
            build: func() *ir.Graph {
                start := ir.NewBlock()
                g := ir.NewGraph("passed", start, ir.Signed)
                p := start.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair))
                g.Return(start, start.Add(ir.OpDirectCall, ir.Signed, ir.FuncOf(addOne()), p))
                return g
            },
        },
        {
            name: "stored into another object",
            build: func() *ir.Graph {
                box := ir.NewStruct("Box", ir.Field{Name: "v", T: ir.PtrTo(Pair)})
                start := ir.NewBlock(ir.NewVariable("box", ir.PtrTo(box)))
                g := ir.NewGraph("stored", start, ir.Void)
                p := start.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair))
                start.Add(ir.OpSetField, ir.Void, start.Inputs[0], ir.Symbol("v"), p)
                g.Return(start, ir.Const(nil, ir.Void))
                return g
            },
        },
        {
            name: "mixed allocation types",
            build: func() *ir.Graph {
                other := ir.NewStruct("Other", ir.Field{Name: "a", T: ir.Signed})
                c := ir.NewVariable("c", ir.Bool)
                start := ir.NewBlock(c)
                left, right := ir.NewBlock(), ir.NewBlock()
                join := ir.NewBlock(ir.NewVariable("p", ir.PtrTo(Pair)))
                g := ir.NewGraph("mixed", start, ir.Signed)
                start.Branch(c, ir.NewLink(left), ir.NewLink(right))
                left.Goto(join, left.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair)))
                right.Goto(join, right.Add(ir.OpMalloc, ir.PtrTo(other), ir.TypeToken(other)))
                g.Return(join, join.Add(ir.OpGetField, ir.Signed, join.Inputs[0], ir.Symbol("a")))
                return g
            },
        },
        {
            name: "null pointer flowing in",
            build: func() *ir.Graph {
                c := ir.NewVariable("c", ir.Bool)
                start := ir.NewBlock(c)
                left := ir.NewBlock()
                join := ir.NewBlock(ir.NewVariable("p", ir.PtrTo(Pair)))
                g := ir.NewGraph("nullable", start, ir.Signed)
                start.Branch(c, ir.NewLink(left), ir.NewLink(join, ir.Const(nil, ir.PtrTo(Pair))))
                left.Goto(join, left.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair)))
                g.Return(join, join.Add(ir.OpGetField, ir.Signed, join.Inputs[0], ir.Symbol("a")))
                return g
            },
        },
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            g := tc.build()
            require.NoError(t, ir.CheckGraph(g))
            before := shape(g)
            if !assert.Equal(t, 0, RemoveMallocs(g)) {
                spew.Dump(shape(g))
            }
            assert.Empty(t, cmp.Diff(before, shape(g)))
        })
    }
}

func TestMallocRemoval_EquivalentSubstruct(t *testing.T) {
    inner := ir.NewStruct("Base", ir.Field{Name: "x", T: ir.Signed})
    outer := ir.NewStruct("Derived", ir.Field{Name: "base", T: inner}, ir.Field{Name: "y", T: ir.Signed})
    start := ir.NewBlock()
    g := ir.NewGraph("derived", start, ir.Signed)

    /* the base part is accessed through its own pointer */
    p := start.Add(ir.OpMalloc, ir.PtrTo(outer), ir.TypeToken(outer))
    q := start.Add(ir.OpGetSubstruct, ir.PtrTo(inner), p, ir.Symbol("base"))
    start.Add(ir.OpSetField, ir.Void, q, ir.Symbol("x"), ir.Int(1))
    start.Add(ir.OpSetField, ir.Void, p, ir.Symbol("y"), ir.Int(2))
    x := start.Add(ir.OpGetField, ir.Signed, q, ir.Symbol("x"))
    y := start.Add(ir.OpGetField, ir.Signed, p, ir.Symbol("y"))
    g.Return(start, start.Add("int_add", ir.Signed, x, y))

    /* both pointers are the same allocation */
    require.Equal(t, int64(3), call(t, g))
    require.Equal(t, 1, RemoveMallocs(g))
    require.NoError(t, ir.CheckGraph(g))
    assert.Equal(t, 0, g.CountOps(ir.OpMalloc))
    assert.Equal(t, 0, g.CountOps(ir.OpGetSubstruct))
    assert.Equal(t, int64(3), call(t, g))
}

func TestMallocRemoval_NestedWrapper(t *testing.T) {
    inner := ir.NewStruct("Inner", ir.Field{Name: "x", T: ir.Signed})
    outer := ir.NewStruct("Outer", ir.Field{Name: "k", T: ir.Signed}, ir.Field{Name: "in", T: inner})
    start := ir.NewBlock()
    g := ir.NewGraph("nested", start, ir.Signed)

    /* the address of the nested record is taken */
    p := start.Add(ir.OpMalloc, ir.PtrTo(outer), ir.TypeToken(outer))
    s := start.Add(ir.OpGetSubstruct, ir.PtrTo(inner), p, ir.Symbol("in"))
    start.Add(ir.OpSetField, ir.Void, s, ir.Symbol("x"), ir.Int(5))
    start.Add(ir.OpSetField, ir.Void, p, ir.Symbol("k"), ir.Int(1))
    k := start.Add(ir.OpGetField, ir.Signed, p, ir.Symbol("k"))
    x := start.Add(ir.OpGetField, ir.Signed, s, ir.Symbol("x"))
    g.Return(start, start.Add("int_add", ir.Signed, k, x))

    /* the outer record goes first, then the wrapper of the nested one */
    require.Equal(t, int64(6), call(t, g))
    require.Equal(t, 2, RemoveMallocs(g))
    require.NoError(t, ir.CheckGraph(g))
    assert.Equal(t, 0, g.CountOps(ir.OpMalloc))
    assert.Equal(t, int64(6), call(t, g))
}

func TestMallocRemoval_WrapperNames(t *testing.T) {
    w := wrapperOf(&ir.Array{Of: ir.Signed, Len: 4})
    assert.Equal(t, "wrapper__4_Signed", w.Name)
    assert.Same(t, w, wrapperOf(&ir.Array{Of: ir.Signed, Len: 4}))
    require.Len(t, w.Fields(), 1)
    assert.Equal(t, _WrapperField, w.Fields()[0].Name)
}
