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
    `fmt`
    `testing`

    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/ir`
    `github.com/stretchr/testify/require`
)

var (
    ValueError = ir.NewExceptionClass("ValueError", nil)
    Pair       = ir.NewStruct("Pair", ir.Field{Name: "a", T: ir.Signed}, ir.Field{Name: "b", T: ir.Signed})
)

// shape renders every block of g as a list of operations, for comparing
// graphs before and after a pass.
func shape(g *ir.Graph) [][]string {
    var ret [][]string
    for _, bb := range g.Blocks() {
        var ops []string
        for _, op := range bb.Ops {
            ops = append(ops, op.Name)
        }
        ret = append(ret, append(ops, fmt.Sprintf("exits=%d", len(bb.Exits))))
    }
    return ret
}

func call(t *testing.T, g *ir.Graph, args ...interface{}) interface{} {
    rv, err := interp.New(nil).Call(g, args...)
    require.NoError(t, err)
    return rv
}

func outcome(g *ir.Graph, args ...interface{}) string {
    if rv, err := interp.New(nil).Call(g, args...); err != nil {
        return "error: " + err.Error()
    } else {
        return fmt.Sprint(rv)
    }
}

// allocPair() = { p = Pair{1, 2}; return p.a + p.b }
func allocPair() *ir.Graph {
    start := ir.NewBlock()
    g := ir.NewGraph("alloc_pair", start, ir.Signed)
    p := start.Add(ir.OpMalloc, ir.PtrTo(Pair), ir.TypeToken(Pair))
    start.Add(ir.OpSetField, ir.Void, p, ir.Symbol("a"), ir.Int(1))
    start.Add(ir.OpSetField, ir.Void, p, ir.Symbol("b"), ir.Int(2))
    a := start.Add(ir.OpGetField, ir.Signed, p, ir.Symbol("a"))
    b := start.Add(ir.OpGetField, ir.Signed, p, ir.Symbol("b"))
    g.Return(start, start.Add("int_add", ir.Signed, a, b))
    return g
}

// addOne(x) = x + 1
func addOne() *ir.Graph {
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    g := ir.NewGraph("add_one", start, ir.Signed)
    g.Return(start, start.Add("int_add", ir.Signed, x, ir.Int(1)))
    return g
}

// square(x) = x * x
func square() *ir.Graph {
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    g := ir.NewGraph("square", start, ir.Signed)
    g.Return(start, start.Add("int_mul", ir.Signed, x, x))
    return g
}

// callWith(y) = fn(y) * 2
func callWith(fn *ir.Graph) *ir.Graph {
    y := ir.NewVariable("y", ir.Signed)
    start := ir.NewBlock(y)
    g := ir.NewGraph("call_" + fn.Name, start, ir.Signed)
    rv := start.Add(ir.OpDirectCall, ir.Signed, ir.FuncOf(fn), y)
    g.Return(start, start.Add("int_mul", ir.Signed, rv, ir.Int(2)))
    return g
}

// sumTo(n) = 0 + 1 + ... + n-1
func sumTo() *ir.Graph {
    n := ir.NewVariable("n", ir.Signed)
    start := ir.NewBlock(n)
    head := ir.NewBlock(ir.NewVariable("i", ir.Signed), ir.NewVariable("acc", ir.Signed), ir.NewVariable("n", ir.Signed))
    body := ir.NewBlock(ir.NewVariable("i", ir.Signed), ir.NewVariable("acc", ir.Signed), ir.NewVariable("n", ir.Signed))
    g := ir.NewGraph("sum_to", start, ir.Signed)
    start.Goto(head, ir.Int(0), ir.Int(0), n)
    cond := head.Add("int_lt", ir.Bool, head.Inputs[0], head.Inputs[2])
    head.Branch(cond, ir.NewLink(g.ReturnBlock, head.Inputs[1]), ir.NewLink(body, head.Inputs[0], head.Inputs[1], head.Inputs[2]))
    acc := body.Add("int_add", ir.Signed, body.Inputs[1], body.Inputs[0])
    inc := body.Add("int_add", ir.Signed, body.Inputs[0], ir.Int(1))
    body.Goto(head, inc, acc, body.Inputs[2])
    return g
}

// factorial(n) = n <= 1 ? 1 : n * factorial(n - 1)
func factorial() *ir.Graph {
    n := ir.NewVariable("n", ir.Signed)
    start := ir.NewBlock(n)
    rec := ir.NewBlock(ir.NewVariable("n", ir.Signed))
    g := ir.NewGraph("factorial", start, ir.Signed)
    cond := start.Add("int_le", ir.Bool, n, ir.Int(1))
    start.Branch(cond, ir.NewLink(rec, n), ir.NewLink(g.ReturnBlock, ir.Int(1)))
    m := rec.Add("int_sub", ir.Signed, rec.Inputs[0], ir.Int(1))
    r := rec.Add(ir.OpDirectCall, ir.Signed, ir.FuncOf(g), m)
    g.Return(rec, rec.Add("int_mul", ir.Signed, rec.Inputs[0], r))
    return g
}

// ifChain(x) = x == 1 ? 10 : x == 2 ? 20 : x == 3 ? 30 : 0, every outcome
// in its own block.
func ifChain() (*ir.Graph, []*ir.Block) {
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    g := ir.NewGraph("if_chain", start, ir.Signed)
    tests := []*ir.Block { start, ir.NewBlock(ir.NewVariable("x", ir.Signed)), ir.NewBlock(ir.NewVariable("x", ir.Signed)) }
    targets := make([]*ir.Block, 4)

    /* one block per outcome */
    for i := range targets {
        targets[i] = ir.NewBlock()
        g.Return(targets[i], ir.Int(int64(i + 1) * 10))
    }

    /* the last one is the fallback */
    g.Return(targets[3], ir.Int(0))
    for i, bb := range tests {
        cv := bb.Add("int_eq", ir.Bool, bb.Inputs[0], ir.Int(int64(i + 1)))
        if i == len(tests) - 1 {
            bb.Branch(cv, ir.NewLink(targets[3]), ir.NewLink(targets[i]))
        } else {
            bb.Branch(cv, ir.NewLink(tests[i + 1], bb.Inputs[0]), ir.NewLink(targets[i]))
        }
    }
    return g, targets
}
