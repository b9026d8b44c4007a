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
    `math`

    `github.com/cloudwego/cfgopt/ir`
    `gonum.org/v1/gonum/mat`
)

const (
    _MedianWeight       = 0.9999
    _SingleCallerFactor = 0.5
)

var _OpWeights = map[string]float64 {
    ir.OpSameAs      : 0,
    ir.OpCastPointer : 0,
    ir.OpKeepAlive   : 0,
    ir.OpMalloc      : 2,
    ir.OpYield       : math.Inf(1),
}

// BlockWeight is the estimated cost of executing bb once.
func BlockWeight(bb *ir.Block) float64 {
    ret := 0.0
    for _, op := range bb.Ops {
        switch op.Name {
            case ir.OpDirectCall   : ret += 1.5 + float64(len(op.Args)) / 2
            case ir.OpIndirectCall : ret += 2.0 + float64(len(op.Args)) / 2
        }

        /* fixed per-operation weight, defaults to 1 */
        if w, ok := _OpWeights[op.Name]; ok {
            ret += w
        } else {
            ret += 1
        }
    }

    /* a conditional exit costs one more */
    if bb.ExitSwitch != nil {
        ret += 1
    }

    /* all done */
    return ret
}

// StaticInstructionCount counts the operations and conditional exits of g.
func StaticInstructionCount(g *ir.Graph) int {
    ret := 0
    for _, bb := range g.Blocks() {
        if ret += len(bb.Ops); bb.ExitSwitch != nil {
            ret++
        }
    }
    return ret
}

// MedianExecutionCost estimates the cost of one call of g, assuming every
// exit of a block is taken with the same probability. The cost of a block
// is its own weight plus the average cost of its successors, which gives a
// linear system with one unknown per block. Degenerate systems, such as a
// cycle that can never exit, cost +Inf.
func MedianExecutionCost(g *ir.Graph) float64 {
    bbs := g.Blocks()
    idx := make(map[*ir.Block]int, len(bbs))

    /* index every block */
    for i, bb := range bbs {
        idx[bb] = i
    }

    /* build the linear system */
    nb := len(bbs)
    mm := mat.NewDense(nb, nb, nil)
    vv := mat.NewVecDense(nb, nil)

    /* one equation per block */
    for i, bb := range bbs {
        w := BlockWeight(bb)
        mm.Set(i, i, 1)

        /* infinitely expensive blocks make the graph infinitely expensive */
        if math.IsInf(w, 1) {
            return math.Inf(1)
        }

        /* uniform branch probability */
        vv.SetVec(i, w)
        for _, ln := range bb.Exits {
            j := idx[ln.Target]
            mm.Set(i, j, mm.At(i, j) - 1 / float64(len(bb.Exits)))
        }
    }

    /* solve the system */
    var ret mat.VecDense
    if err := ret.SolveVec(mm, vv); err != nil {
        return math.Inf(1)
    }

    /* NaN or Inf means the system is numerically degenerate */
    if v := ret.AtVec(0); math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
        return math.Inf(1)
    } else {
        return v
    }
}

// InliningHeuristic is the cost of inlining g, lower is better.
func InliningHeuristic(g *ir.Graph, ncallers int) float64 {
    ret := _MedianWeight * MedianExecutionCost(g) + float64(StaticInstructionCount(g))
    if ncallers == 1 {
        ret *= _SingleCallerFactor
    }
    return ret
}
