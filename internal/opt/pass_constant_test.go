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

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestConstProp_SameConstant(t *testing.T) {
    c := ir.NewVariable("c", ir.Bool)
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(c, x)
    left := ir.NewBlock(ir.NewVariable("x", ir.Signed))
    right := ir.NewBlock(ir.NewVariable("x", ir.Signed))
    join := ir.NewBlock(ir.NewVariable("k", ir.Signed), ir.NewVariable("v", ir.Signed))
    g := ir.NewGraph("prop", start, ir.Signed)
    start.Branch(c, ir.NewLink(left, x), ir.NewLink(right, x))
    left.Goto(join, ir.Int(3), left.Add("int_add", ir.Signed, left.Inputs[0], ir.Int(1)))
    right.Goto(join, ir.Int(3), right.Add("int_sub", ir.Signed, right.Inputs[0], ir.Int(1)))
    g.Return(join, join.Add("int_mul", ir.Signed, join.Inputs[0], join.Inputs[1]))

    /* k is always 3 */
    require.True(t, ConstProp{}.Apply(g))
    require.NoError(t, ir.CheckGraph(g))
    require.Len(t, join.Inputs, 1)
    assert.Len(t, left.Exits[0].Args, 1)
    assert.Len(t, right.Exits[0].Args, 1)
    assert.Equal(t, ir.Int(3), join.Ops[0].Args[0])
    assert.Equal(t, int64(12), call(t, g, true, int64(5)))
    assert.Equal(t, int64(18), call(t, g, false, int64(5)))
    assert.False(t, ConstProp{}.Apply(g))
}

func TestConstProp_DifferentConstants(t *testing.T) {
    c := ir.NewVariable("c", ir.Bool)
    start := ir.NewBlock(c)
    left, right := ir.NewBlock(), ir.NewBlock()
    join := ir.NewBlock(ir.NewVariable("k", ir.Signed))
    g := ir.NewGraph("noprop", start, ir.Signed)
    start.Branch(c, ir.NewLink(left), ir.NewLink(right))
    left.Goto(join, ir.Int(1))
    right.Goto(join, ir.Const(uint64(1), ir.Unsigned))
    g.Return(join, join.Inputs[0])
    assert.False(t, ConstProp{}.Apply(g))
}

func TestConstProp_FoldsSwitch(t *testing.T) {
    c := ir.NewVariable("c", ir.Bool)
    start := ir.NewBlock(c)
    left, right := ir.NewBlock(), ir.NewBlock()
    join := ir.NewBlock(ir.NewVariable("flag", ir.Bool))
    g := ir.NewGraph("decided", start, ir.Signed)
    start.Branch(c, ir.NewLink(left), ir.NewLink(right))
    left.Goto(join, ir.Boolean(false))
    right.Goto(join, ir.Boolean(false))
    join.Branch(join.Inputs[0], ir.NewLink(g.ReturnBlock, ir.Int(7)), ir.NewLink(g.ReturnBlock, ir.Int(8)))

    /* the join always takes the false exit */
    require.True(t, ConstProp{}.Apply(g))
    require.NoError(t, ir.CheckGraph(g))
    assert.Nil(t, join.ExitSwitch)
    assert.Equal(t, int64(7), call(t, g, true))
}

func TestConstFold_Arithmetic(t *testing.T) {
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    g := ir.NewGraph("arith", start, ir.Signed)
    a := start.Add("int_add", ir.Signed, ir.Int(2), ir.Int(3))
    b := start.Add("int_mul", ir.Signed, a, ir.Int(4))
    g.Return(start, start.Add("int_add", ir.Signed, x, b))

    /* constants flow forward */
    require.True(t, ConstFold{}.Apply(g))
    require.NoError(t, ir.CheckGraph(g))
    require.Len(t, start.Ops, 1)
    assert.Equal(t, ir.Int(20), start.Ops[0].Args[1])
    assert.Equal(t, int64(21), call(t, g, int64(1)))
    assert.False(t, ConstFold{}.Apply(g))
}

func TestConstFold_Switch(t *testing.T) {
    start := ir.NewBlock()
    g := ir.NewGraph("branch", start, ir.Signed)
    cv := start.Add("int_lt", ir.Bool, ir.Int(1), ir.Int(2))
    start.Branch(cv, ir.NewLink(g.ReturnBlock, ir.Int(0)), ir.NewLink(g.ReturnBlock, ir.Int(1)))
    require.True(t, ConstFold{}.Apply(g))
    require.NoError(t, ir.CheckGraph(g))
    assert.Empty(t, start.Ops)
    assert.Nil(t, start.ExitSwitch)
    assert.Equal(t, ir.Int(1), start.Exits[0].Args[0])
}

func TestConstFold_Raising(t *testing.T) {
    start := ir.NewBlock()
    g := ir.NewGraph("raising", start, ir.Signed)
    rv := start.Add("int_floordiv", ir.Signed, ir.Int(1), ir.Int(0))
    h := ir.NewLink(g.ReturnBlock, ir.Int(-1))
    h.Catch(interp.ZeroDivisionError)
    start.Guard(ir.NewLink(g.ReturnBlock, rv), h)

    /* the division raises, so it stays with its handler */
    assert.False(t, ConstFold{}.Apply(g))
    assert.True(t, start.CanRaise())
    assert.Equal(t, int64(-1), call(t, g))
}

func TestConstFold_Unguard(t *testing.T) {
    start := ir.NewBlock()
    g := ir.NewGraph("safe", start, ir.Signed)
    rv := start.Add("int_floordiv", ir.Signed, ir.Int(10), ir.Int(2))
    h := ir.NewLink(g.ReturnBlock, ir.Int(-1))
    h.Catch(interp.ZeroDivisionError)
    start.Guard(ir.NewLink(g.ReturnBlock, rv), h)

    /* the division cannot raise after all */
    require.True(t, ConstFold{}.Apply(g))
    require.NoError(t, ir.CheckGraph(g))
    assert.False(t, start.CanRaise())
    assert.Len(t, start.Exits, 1)
    assert.Equal(t, ir.Int(5), start.Exits[0].Args[0])
}

func TestConstFold_ExcludedOperations(t *testing.T) {
    start := ir.NewBlock()
    g := ir.NewGraph("excluded", start, ir.Signed)
    p := start.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair))
    start.Add(ir.OpDebugPrint, ir.Void, ir.Int(1))
    g.Return(start, start.Add(ir.OpGetField, ir.Signed, p, ir.Symbol("a")))
    assert.False(t, ConstFold{}.Apply(g))
    assert.Len(t, start.Ops, 3)
}

func TestConstFold_PureCall(t *testing.T) {
    fn := square()
    start := ir.NewBlock()
    g := ir.NewGraph("pure_call", start, ir.Signed)
    g.Return(start, start.Add(ir.OpDirectCall, ir.Signed, ir.FuncOf(fn), ir.Int(7)))

    /* evaluated at compile time */
    require.True(t, ConstFold{}.Apply(g))
    assert.Empty(t, start.Ops)
    assert.Equal(t, ir.Int(49), start.Exits[0].Args[0])
}

func TestConstFold_ImpureCall(t *testing.T) {
    x := ir.NewVariable("x", ir.Signed)
    noisy := ir.NewBlock(x)
    fn := ir.NewGraph("noisy", noisy, ir.Signed)
    noisy.Add(ir.OpDebugPrint, ir.Void, x)
    fn.Return(noisy, x)

    /* debug_print is a side effect */
    start := ir.NewBlock()
    g := ir.NewGraph("impure_call", start, ir.Signed)
    g.Return(start, start.Add(ir.OpDirectCall, ir.Signed, ir.FuncOf(fn), ir.Int(7)))
    assert.False(t, ConstFold{}.Apply(g))
    assert.Equal(t, 1, g.CountOps(ir.OpDirectCall))
}

func TestConstFold_RecursiveCall(t *testing.T) {
    start := ir.NewBlock()
    g := ir.NewGraph("recursive_call", start, ir.Signed)
    g.Return(start, start.Add(ir.OpDirectCall, ir.Signed, ir.FuncOf(factorial()), ir.Int(5)))
    assert.False(t, ConstFold{}.Apply(g))
}

func TestConstFold_BudgetExceeded(t *testing.T) {
    start := ir.NewBlock()
    g := ir.NewGraph("long_call", start, ir.Signed)
    g.Return(start, start.Add(ir.OpDirectCall, ir.Signed, ir.FuncOf(sumTo()), ir.Int(10000)))

    /* the loop runs far longer than the budget */
    assert.False(t, ConstFold{Budget: 100}.Apply(g))
    assert.Equal(t, 1, g.CountOps(ir.OpDirectCall))

    /* a short run fits */
    g.StartBlock.Ops[0].Args[1] = ir.Int(10)
    require.True(t, ConstFold{Budget: 100}.Apply(g))
    assert.Equal(t, ir.Int(45), start.Exits[0].Args[0])
}

func TestConstFold_Soundness(t *testing.T) {
    ops := []string { "int_add", "int_sub", "int_mul", "int_and", "int_or", "int_xor", "int_floordiv", "int_mod", "int_lt", "int_eq" }
    for i := 0; i < 64; i++ {
        name := ops[gofakeit.Number(0, len(ops) - 1)]
        a, b := int64(gofakeit.Number(-100, 100)), int64(gofakeit.Number(-3, 3))

        /* build the same single-operation graph twice */
        build := func() *ir.Graph {
            start := ir.NewBlock()
            g := ir.NewGraph("sound", start, ir.Void)
            g.Return(start, start.Add(name, ir.Void, ir.Int(a), ir.Int(b)))
            return g
        }

        /* folding must agree with execution */
        folded := build()
        ConstFold{}.Apply(folded)
        assert.Equal(t, outcome(build()), outcome(folded), "%s(%d, %d)", name, a, b)
    }
}
