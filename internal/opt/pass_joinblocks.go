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
    `github.com/cloudwego/cfgopt/ir`
)

// JoinBlocks merges redundant intermediate blocks (blocks with a single
// unconditional exit which goes to another block with a single incoming
// link).
type JoinBlocks struct{}

func (JoinBlocks) Apply(g *ir.Graph) bool {
    ret := false
    for {
        var rt bool
        var ln *ir.Link
        var to *ir.Block

        /* removed blocks in this round */
        entries := g.EntryMap()
        removed := make(map[*ir.Block]bool)

        /* check every block */
        for _, bb := range g.Blocks() {
            if removed[bb] || bb.ExitSwitch != nil || len(bb.Exits) != 1 {
                continue
            }

            /* the successor must be an ordinary block entered only from here */
            if ln, to = bb.Exits[0], bb.Exits[0].Target; to == bb || to == g.StartBlock || to.IsFinal() || len(entries[to]) != 1 {
                continue
            }

            /* inputs of the successor become the link arguments */
            subst := make(map[*ir.Variable]ir.Value, len(to.Inputs))
            for i, v := range to.Inputs {
                subst[v] = ln.Args[i]
            }

            /* move the operations */
            for _, op := range to.Ops {
                op.Args = substArgs(op.Args, subst)
                bb.AddOp(op)
            }

            /* move the exits */
            for _, p := range to.Exits {
                p.Args = substArgs(p.Args, subst)
            }

            /* the successor is now part of this block */
            rt = true
            removed[to] = true
            bb.ExitSwitch = substValue(to.ExitSwitch, subst)
            bb.CloseBlock(to.Exits...)

            /* a switch on a passed-in constant is decided already */
            if c := ir.AsConst(bb.ExitSwitch); c != nil && c != ir.LastException {
                bb.FoldSwitch()
            }
        }

        /* retry if needed */
        if !rt {
            break
        } else {
            ret = true
        }
    }
    return ret
}
