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
    `github.com/tliron/commonlog`
)

var chainLog = commonlog.GetLogger("cfgopt.chainmerge")

// ChainCount is the total number of comparison blocks merged into switches.
var ChainCount int64

var _EqualityOps = map[string]bool {
    "int_eq"     : true,
    "uint_eq"    : true,
    "char_eq"    : true,
    "unichar_eq" : true,
}

// ChainMerge turns chains of blocks comparing one variable against distinct
// constants into a single switch on that variable.
type ChainMerge struct{}

type _ChainLink struct {
    env     map[*ir.Variable]ir.Value
    iffalse *ir.Link
    iftrue  *ir.Link
    value   *ir.Constant
}

func (ChainMerge) Apply(g *ir.Graph) bool {
    nb := 0
    for {
        rt := false
        ent := g.EntryMap()

        /* try every block as the head of a chain */
        for _, bb := range g.Blocks() {
            if n := mergeChain(bb, ent); n != 0 {
                nb += n
                rt = true
                break
            }
        }

        /* no more chains */
        if !rt {
            break
        }
    }

    /* update the counter */
    if atomic.AddInt64(&ChainCount, int64(nb)); nb != 0 {
        chainLog.Infof("%s: merged %d comparison blocks into switches", g.Name, nb)
    }
    return nb != 0
}

// matchCompare checks bb ends with "r = eq(var, const)" switching on r, and
// returns the compare with the variable and the constant.
func matchCompare(bb *ir.Block) (*ir.Operation, *ir.Variable, *ir.Constant, *ir.Link, *ir.Link) {
    var iffalse *ir.Link
    var iftrue *ir.Link

    /* must be a two-way branch on the last operation */
    if len(bb.Ops) == 0 || len(bb.Exits) != 2 || bb.CanRaise() {
        return nil, nil, nil, nil, nil
    }

    /* the branch must be on the compare result */
    op := bb.Ops[len(bb.Ops) - 1]
    if !_EqualityOps[op.Name] || len(op.Args) != 2 || ir.AsVar(bb.ExitSwitch) != op.Result {
        return nil, nil, nil, nil, nil
    }

    /* find the two exits */
    for _, ln := range bb.Exits {
        switch ln.ExitCase {
            case false : iffalse = ln
            case true  : iftrue = ln
        }
    }

    /* the compare result must not escape through the links */
    if iffalse == nil || iftrue == nil || linkUses(iffalse, op.Result) || linkUses(iftrue, op.Result) {
        return nil, nil, nil, nil, nil
    }

    /* one variable and one constant, in either order */
    if v, c := ir.AsVar(op.Args[0]), ir.AsConst(op.Args[1]); v != nil && c != nil {
        return op, v, c, iffalse, iftrue
    } else if v, c = ir.AsVar(op.Args[1]), ir.AsConst(op.Args[0]); v != nil && c != nil {
        return op, v, c, iffalse, iftrue
    } else {
        return nil, nil, nil, nil, nil
    }
}

func linkUses(ln *ir.Link, v *ir.Variable) bool {
    for _, p := range ln.Args {
        if ir.AsVar(p) == v {
            return true
        }
    }
    return false
}

func resolve(env map[*ir.Variable]ir.Value, v ir.Value) ir.Value {
    if p := ir.AsVar(v); p == nil {
        return v
    } else if nv, ok := env[p]; ok {
        return nv
    } else {
        return v
    }
}

func resolveArgs(env map[*ir.Variable]ir.Value, args []ir.Value) []ir.Value {
    ret := make([]ir.Value, len(args))
    for i, v := range args {
        ret[i] = resolve(env, v)
    }
    return ret
}

func mergeChain(bb *ir.Block, ent map[*ir.Block][]*ir.Link) int {
    op, cv, cc, iffalse, iftrue := matchCompare(bb)
    if op == nil {
        return 0
    }

    /* the head of the chain */
    chain := []_ChainLink {{
        env     : map[*ir.Variable]ir.Value{},
        iffalse : iffalse,
        iftrue  : iftrue,
        value   : cc,
    }}

    /* follow the not-equal edges */
    for {
        prev := chain[len(chain) - 1]
        next := prev.iffalse.Target

        /* only blocks entered from the previous one, with just the compare */
        if next == bb || next.IsFinal() || len(ent[next]) != 1 || len(next.Ops) != 1 {
            break
        }

        /* must be the same kind of compare */
        nop, nv, nc, nf, nt := matchCompare(next)
        if nop == nil || nop.Name != op.Name {
            break
        }

        /* map the inputs back to the head block */
        env := make(map[*ir.Variable]ir.Value, len(next.Inputs))
        for i, v := range next.Inputs {
            env[v] = resolve(prev.env, prev.iffalse.Args[i])
        }

        /* must compare the same variable */
        if resolve(env, nv) != ir.Value(cv) {
            break
        }

        /* constants must be pairwise distinct */
        if chainHasValue(chain, nc) {
            break
        }

        /* add to the chain */
        chain = append(chain, _ChainLink {
            env     : env,
            iffalse : nf,
            iftrue  : nt,
            value   : nc,
        })
    }

    /* a single compare is not worth a switch */
    if len(chain) < 2 {
        return 0
    }

    /* one case per compare, in chain order */
    exits := make([]*ir.Link, 0, len(chain) + 1)
    for _, p := range chain {
        exits = append(exits, ir.NewLink(p.iftrue.Target, resolveArgs(p.env, p.iftrue.Args)...).WithCase(p.value.V))
    }

    /* the last not-equal edge is the default */
    last := chain[len(chain) - 1]
    exits = append(exits, ir.NewLink(last.iffalse.Target, resolveArgs(last.env, last.iffalse.Args)...).WithCase(ir.Default))

    /* replace the compare with the switch */
    bb.Ops = bb.Ops[:len(bb.Ops) - 1]
    bb.ExitSwitch = cv
    bb.CloseBlock(exits...)
    chainLog.Debugf("merged a chain of %d compares on %s", len(chain), cv)
    return len(chain)
}

func chainHasValue(chain []_ChainLink, cc *ir.Constant) bool {
    for _, p := range chain {
        if p.value.Same(cc) {
            return true
        }
    }
    return false
}
