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
    `sync/atomic`

    `github.com/cloudwego/cfgopt/ir`
)

// PropCount is the total number of block inputs replaced by constants.
var PropCount int64

// ConstProp replaces block inputs that receive the same constant from every
// incoming link with the constant itself.
type ConstProp struct{}

func (ConstProp) Apply(g *ir.Graph) bool {
    nb := 0
    ent := g.EntryMap()

    /* only merge points, the start block inputs belong to the caller */
    for _, bb := range g.Blocks() {
        if bb != g.StartBlock && !bb.IsFinal() && len(ent[bb]) > 1 {
            nb += propagateInputs(bb, ent[bb])
        }
    }

    /* update the counter */
    atomic.AddInt64(&PropCount, int64(nb))
    return nb != 0
}

func sameConstant(entries []*ir.Link, i int) *ir.Constant {
    cc := ir.AsConst(entries[0].Args[i])
    if cc == nil {
        return nil
    }

    /* every link must agree */
    for _, ln := range entries[1:] {
        if p := ir.AsConst(ln.Args[i]); p == nil || !p.Same(cc) {
            return nil
        }
    }

    /* all done */
    return cc
}

func propagateInputs(bb *ir.Block, entries []*ir.Link) int {
    var keep []int
    var subst = make(map[*ir.Variable]ir.Value)

    /* find the constant positions */
    for i, v := range bb.Inputs {
        if cc := sameConstant(entries, i); cc != nil {
            subst[v] = cc
        } else {
            keep = append(keep, i)
        }
    }

    /* nothing to propagate */
    if len(subst) == 0 {
        return 0
    }

    /* substitute the uses */
    for _, op := range bb.Ops {
        op.Args = substArgs(op.Args, subst)
    }
    for _, ln := range bb.Exits {
        ln.Args = substArgs(ln.Args, subst)
    }

    /* drop the positions from the inputs and from every incoming link */
    bb.Inputs = pickVars(bb.Inputs, keep)
    for _, ln := range entries {
        ln.Args = pickValues(ln.Args, keep)
    }

    /* a switch on a propagated constant is decided */
    if bb.ExitSwitch = substValue(bb.ExitSwitch, subst); ir.AsConst(bb.ExitSwitch) != nil && !bb.CanRaise() {
        bb.FoldSwitch()
    }

    /* all done */
    return len(subst)
}

func pickVars(vv []*ir.Variable, idx []int) []*ir.Variable {
    ret := make([]*ir.Variable, len(idx))
    for i, p := range idx {
        ret[i] = vv[p]
    }
    return ret
}

func pickValues(vv []ir.Value, idx []int) []ir.Value {
    ret := make([]ir.Value, len(idx))
    for i, p := range idx {
        ret[i] = vv[p]
    }
    return ret
}
