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
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func blockNames(bb *ir.Block) []string {
    var ret []string
    for _, v := range bb.Inputs {
        ret = append(ret, v.Name)
    }
    for _, op := range bb.Ops {
        ret = append(ret, op.Result.Name)
    }
    return ret
}

func TestSSARename_Loop(t *testing.T) {
    g := sumTo()
    bbs := g.Blocks()
    start, head, body := bbs[0], bbs[1], bbs[3]
    require.NoError(t, SSARename{}.Apply(g))

    /* the loop counter has one name across the loop */
    assert.Equal(t, head.Inputs[0].Name, body.Inputs[0].Name)
    assert.Equal(t, head.Inputs[1].Name, body.Inputs[1].Name)
    assert.Equal(t, head.Inputs[2].Name, body.Inputs[2].Name)

    /* the loop-carried bound is fed by two different families */
    assert.Equal(t, "n", start.Inputs[0].Name)
    assert.NotEqual(t, start.Inputs[0].Name, head.Inputs[2].Name)

    /* names are unique in every block */
    for _, bb := range bbs {
        names := blockNames(bb)
        seen := make(map[string]bool)
        for _, s := range names {
            assert.False(t, seen[s], "duplicated name %s", s)
            seen[s] = true
        }
    }
    assert.Equal(t, int64(45), call(t, g, int64(10)))
}

func TestSSARename_Straight(t *testing.T) {
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    next := ir.NewBlock(ir.NewVariable("y", ir.Signed))
    g := ir.NewGraph("straight", start, ir.Signed)
    start.Goto(next, x)
    g.Return(next, next.Inputs[0])

    /* x, y and the result are one family */
    require.NoError(t, SSARename{}.Apply(g))
    assert.Equal(t, "x", next.Inputs[0].Name)
    assert.Equal(t, "x", g.ReturnBlock.Inputs[0].Name)
}

func TestSSARename_NeverMergesTypes(t *testing.T) {
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    next := ir.NewBlock(ir.NewVariable("x", ir.Unsigned))
    g := ir.NewGraph("typed", start, ir.Unsigned)
    start.Goto(next, x)
    g.Return(next, next.Inputs[0])

    /* different types keep different names */
    require.NoError(t, SSARename{}.Apply(g))
    assert.NotEqual(t, start.Inputs[0].Name, next.Inputs[0].Name)
    assert.Equal(t, next.Inputs[0].Name, g.ReturnBlock.Inputs[0].Name)
}

func TestSSARename_SameBlockFamilies(t *testing.T) {
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    next := ir.NewBlock(ir.NewVariable("a", ir.Signed), ir.NewVariable("b", ir.Signed))
    g := ir.NewGraph("dups", start, ir.Signed)
    start.Goto(next, x, x)
    g.Return(next, next.Add("int_add", ir.Signed, next.Inputs[0], next.Inputs[1]))

    /* a and b cannot both be named after x */
    require.NoError(t, SSARename{}.Apply(g))
    assert.Equal(t, "x", next.Inputs[0].Name)
    assert.NotEqual(t, next.Inputs[0].Name, next.Inputs[1].Name)
}

func TestSSARename_Collisions(t *testing.T) {
    start := ir.NewBlock(ir.NewVariable("v", ir.Signed), ir.NewVariable("v", ir.Signed))
    g := ir.NewGraph("collide", start, ir.Signed)
    a := start.Add("int_add", ir.Signed, start.Inputs[0], start.Inputs[1])
    g.Return(start, a)

    /* every "v" gets its own name */
    require.NoError(t, SSARename{}.Apply(g))
    names := blockNames(start)
    assert.Len(t, names, 3)
    assert.NotEqual(t, names[0], names[1])
    assert.NotEqual(t, names[1], names[2])
    assert.NotEqual(t, names[0], names[2])
    assert.Equal(t, "v", names[0])
}

func TestCheckNames(t *testing.T) {
    var ge *ir.GraphError
    x := ir.NewVariable("x", ir.Signed)
    start := ir.NewBlock(x)
    g := ir.NewGraph("check", start, ir.Signed)
    y := start.Add("int_add", ir.Signed, x, ir.Int(1))
    g.Return(start, y)
    bbs := g.Blocks()

    /* duplicated names in a block */
    y.Name = "x"
    require.ErrorAs(t, checkNames(g, bbs, definitionsOf(bbs)), &ge)
    assert.Equal(t, 0, ge.Block)

    /* one name, two types */
    y.Name = "y"
    g.ReturnBlock.Inputs[0].Name = "x"
    g.ReturnBlock.Inputs[0].T = ir.Float
    require.ErrorAs(t, checkNames(g, bbs, definitionsOf(bbs)), &ge)
    assert.Equal(t, -1, ge.Block)
}
