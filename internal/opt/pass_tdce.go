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
    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/ir`
)

var _ImpureOps = map[string]bool {
    "int_floordiv"  : true,
    "int_mod"       : true,
    "uint_floordiv" : true,
    "uint_mod"      : true,
    "float_truediv" : true,
}

var _PureOps = map[string]bool {
    ir.OpCastPointer : true,
    ir.OpMalloc      : true,
}

/* loads raise on a null pointer, so they are only pure on a fresh allocation */
var _LoadOps = map[string]bool {
    ir.OpGetField     : true,
    ir.OpGetSubstruct : true,
    ir.OpGetArrayItem : true,
}

func isPure(op string) bool {
    return _PureOps[op] || (!_LoadOps[op] && !_ImpureOps[op] && interp.Primitives{}.Supports(op))
}

// freshPointers collects the variables known to hold a non-null pointer,
// which are the results of malloc and the pointers derived from them.
func freshPointers(bbs []*ir.Block) map[*ir.Variable]struct{} {
    ret := make(map[*ir.Variable]struct{})
    for _, bb := range bbs {
        for _, op := range bb.Ops {
            switch op.Name {
                case ir.OpMalloc: {
                    ret[op.Result] = struct{}{}
                }
                case ir.OpCastPointer, ir.OpGetSubstruct: {
                    if p := ir.AsVar(op.Args[0]); p != nil {
                        if _, ok := ret[p]; ok {
                            ret[op.Result] = struct{}{}
                        }
                    }
                }
            }
        }
    }
    return ret
}

func isRemovable(op *ir.Operation, fresh map[*ir.Variable]struct{}) bool {
    if !_LoadOps[op.Name] {
        return isPure(op.Name)
    } else if p := ir.AsVar(op.Args[0]); p == nil {
        return false
    } else {
        _, ok := fresh[p]
        return ok
    }
}

// TDCE removes trivial dead-code such as unused results of side-effect free
// operations.
type TDCE struct{}

func (TDCE) Apply(g *ir.Graph) bool {
    ret := false
    for {
        done := true
        used := make(map[*ir.Variable]struct{})
        bbs := g.Blocks()
        fresh := freshPointers(bbs)

        /* Phase 1: Find all variable usages */
        for _, bb := range bbs {
            for _, op := range bb.Ops {
                markUsed(used, op.Args)
            }

            /* the exits use variables too */
            markUsed(used, []ir.Value { bb.ExitSwitch })
            for _, ln := range bb.Exits {
                markUsed(used, ln.Args)
            }
        }

        /* Phase 2: Remove all unused pure operations */
        for _, bb := range bbs {
            ins := bb.Ops
            bb.Ops = bb.Ops[:0]

            /* the guarded operation is never removed */
            for i, op := range ins {
                if _, ok := used[op.Result]; ok || !isRemovable(op, fresh) || (bb.CanRaise() && i == len(ins) - 1) {
                    bb.Ops = append(bb.Ops, op)
                } else {
                    done = false
                }
            }
        }

        /* no more modifications */
        if done {
            break
        } else {
            ret = true
        }
    }
    return ret
}

func markUsed(used map[*ir.Variable]struct{}, vv []ir.Value) {
    for _, v := range vv {
        if p := ir.AsVar(v); p != nil {
            used[p] = struct{}{}
        }
    }
}
