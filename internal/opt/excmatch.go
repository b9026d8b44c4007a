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

// MatchRaise tries to find the exception class raised by ln, which must be
// a link to the except block. It recognizes a literal class, a class passed
// through same_as, and the usual instance construction sequence:
//
//     evalue = malloc(T)
//     setfield(evalue, typeptr, Class)
//     etype  = getfield(evalue, typeptr)
//
// It returns nil when the class cannot be determined statically.
func MatchRaise(ln *ir.Link) *ir.ExceptionClass {
    if len(ln.Args) != 2 {
        return nil
    }

    /* literal exception class */
    if cls := constClass(ln.Args[0]); cls != nil {
        return cls
    }

    /* must be a variable defined in this block */
    et := ir.AsVar(ln.Args[0])
    ev := ir.AsVar(ln.Args[1])
    if et == nil || ln.Prev == nil {
        return nil
    }

    /* find the definition of the class variable */
    bb := ln.Prev
    for i := len(bb.Ops) - 1; i >= 0; i-- {
        if op := bb.Ops[i]; op.Result == et {
            switch op.Name {
                case ir.OpSameAs   : return constClass(op.Args[0])
                case ir.OpGetField : return matchTypePtr(bb.Ops[:i], op, ev)
                default            : return nil
            }
        }
    }

    /* defined elsewhere */
    return nil
}

func constClass(v ir.Value) *ir.ExceptionClass {
    if c := ir.AsConst(v); c == nil {
        return nil
    } else if cls, ok := c.V.(*ir.ExceptionClass); ok {
        return cls
    } else {
        return nil
    }
}

func matchTypePtr(ops []*ir.Operation, load *ir.Operation, ev *ir.Variable) *ir.ExceptionClass {
    var cls *ir.ExceptionClass
    var obj = ir.AsVar(load.Args[0])

    /* must load the class pointer from the raised instance */
    if name, ok := load.FieldName(); !ok || name != ir.ExcTypeField || obj == nil || obj != ev {
        return nil
    }

    /* the latest store of the class pointer, after the allocation */
    for i := len(ops) - 1; i >= 0; i-- {
        op := ops[i]
        if op.Result == obj {
            if op.Name != ir.OpMalloc {
                return nil
            } else {
                return cls
            }
        }

        /* anything before the store is irrelevant */
        if cls != nil || !usesVar(op, obj) {
            continue
        }

        /* only plain field accesses may happen after the store */
        if (op.Name != ir.OpSetField && op.Name != ir.OpGetField) || ir.AsVar(op.Args[0]) != obj {
            return nil
        } else if op.Name == ir.OpSetField && ir.AsVar(op.Args[2]) == obj {
            return nil
        }

        /* the class pointer must be a constant */
        if name, ok := op.FieldName(); ok && name == ir.ExcTypeField && op.Name == ir.OpSetField {
            if cls = constClass(op.Args[2]); cls == nil {
                return nil
            }
        }
    }

    /* allocated elsewhere */
    return nil
}

func usesVar(op *ir.Operation, v *ir.Variable) bool {
    for _, p := range op.Args {
        if ir.AsVar(p) == v {
            return true
        }
    }
    return false
}
