/*
 * Copyright 2022 CloudWeGo Authors
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

package interp

import (
    `fmt`
    `strings`

    `github.com/cloudwego/cfgopt/ir`
)

// Interpreter executes graphs directly. It is the reference semantics the
// optimizer must preserve.
type Interpreter struct {
    Eval   ir.Evaluator
    Budget int
    Output []string
    steps  int
}

func New(eval ir.Evaluator) *Interpreter {
    if eval == nil {
        eval = Primitives{}
    }
    return &Interpreter{Eval: eval}
}

// Steps returns the number of operations and block transitions executed so far.
func (self *Interpreter) Steps() int {
    return self.steps
}

// Call runs g with args. An exception escaping g is returned as *Raised.
func (self *Interpreter) Call(g *ir.Graph, args ...interface{}) (interface{}, error) {
    if len(args) != len(g.StartBlock.Inputs) {
        return nil, eop(ir.OpDirectCall, "%s expects %d arguments, got %d", g.Name, len(g.StartBlock.Inputs), len(args))
    } else {
        return self.run(g, args)
    }
}

func (self *Interpreter) tick() error {
    if self.steps++; self.Budget > 0 && self.steps > self.Budget {
        return ErrBudgetExceeded
    } else {
        return nil
    }
}

func (self *Interpreter) run(g *ir.Graph, args []interface{}) (interface{}, error) {
    bb := g.StartBlock
    env := make(map[*ir.Variable]interface{}, len(args))

    /* bind the graph arguments */
    for i, v := range bb.Inputs {
        env[v] = args[i]
    }

    /* run until reaching one of the final blocks */
    for {
        var err error
        var exc *Raised

        /* normal return */
        if bb == g.ReturnBlock {
            return env[bb.Inputs[0]], nil
        }

        /* exception raised */
        if bb == g.ExceptBlock {
            if cls, ok := env[bb.Inputs[0]].(*ir.ExceptionClass); !ok {
                return nil, eop("raise", "%v is not an exception class", env[bb.Inputs[0]])
            } else {
                return nil, &Raised{Class: cls, Value: env[bb.Inputs[1]]}
            }
        }

        /* count the block transition */
        if err = self.tick(); err != nil {
            return nil, err
        }

        /* execute every operation */
        for i, op := range bb.Ops {
            var rv interface{}
            var ok bool

            /* count the operation */
            if err = self.tick(); err != nil {
                return nil, err
            }

            /* exceptions from the last operation are dispatched by the guard */
            if rv, err = self.exec(op, env); err != nil {
                if exc, ok = err.(*Raised); !ok || !bb.CanRaise() || i != len(bb.Ops) - 1 {
                    return nil, err
                }
            }

            /* save the result */
            env[op.Result] = rv
        }

        /* select the exit */
        ln, err := self.choose(bb, env, exc)
        if err != nil {
            return nil, err
        }

        /* evaluate the link arguments */
        next := make(map[*ir.Variable]interface{}, len(ln.Args))
        for i, v := range ln.Args {
            switch {
                case ln.IsExcVar(ir.AsVar(v)) && ir.AsVar(v) == ln.LastException : next[ln.Target.Inputs[i]] = exc.Class
                case ln.IsExcVar(ir.AsVar(v))                                   : next[ln.Target.Inputs[i]] = exc.Value
                default                                                          : next[ln.Target.Inputs[i]] = self.value(v, env)
            }
        }

        /* move to the next block */
        bb = ln.Target
        env = next
    }
}

func (self *Interpreter) choose(bb *ir.Block, env map[*ir.Variable]interface{}, exc *Raised) (*ir.Link, error) {
    switch sw := bb.ExitSwitch.(type) {
        case nil: {
            return bb.Exits[0], nil
        }

        /* exception guard */
        case *ir.Constant: {
            if sw != ir.LastException {
                return nil, eop("switch", "constant exit switch %s", sw)
            } else if exc == nil {
                return bb.Exits[0], nil
            }
            for _, ln := range bb.Exits[1:] {
                if exc.Class.IsSubclassOf(ln.ExitCase.(*ir.ExceptionClass)) {
                    return ln, nil
                }
            }
            return nil, exc
        }

        /* conditional switch */
        case *ir.Variable: {
            var dv *ir.Link
            var vv = env[sw]

            /* find the matching case */
            for _, ln := range bb.Exits {
                if ln.ExitCase == ir.Default {
                    dv = ln
                } else if ln.ExitCase == vv {
                    return ln, nil
                }
            }

            /* fallback to the default case */
            if dv == nil {
                return nil, eop("switch", "no exit matches %v", vv)
            } else {
                return dv, nil
            }
        }

        default: {
            return nil, eop("switch", "invalid exit switch")
        }
    }
}

func (self *Interpreter) value(v ir.Value, env map[*ir.Variable]interface{}) interface{} {
    if c := ir.AsConst(v); c != nil {
        return c.V
    } else {
        return env[v.(*ir.Variable)]
    }
}

func (self *Interpreter) exec(op *ir.Operation, env map[*ir.Variable]interface{}) (interface{}, error) {
    args := make([]interface{}, len(op.Args))
    for i, v := range op.Args {
        args[i] = self.value(v, env)
    }

    /* memory, call and debug operations are handled here */
    switch op.Name {
        case ir.OpMalloc       : return self.malloc(op, args)
        case ir.OpGetField     : return self.load(op, args)
        case ir.OpGetArrayItem : return self.load(op, args)
        case ir.OpGetSubstruct : return self.load(op, args)
        case ir.OpSetField     : return self.store(op, args)
        case ir.OpSetArrayItem : return self.store(op, args)
        case ir.OpCastPointer  : return self.cast(op, args)
        case ir.OpDirectCall   : return self.call(op, args[0], args[1:])
        case ir.OpIndirectCall : return self.call(op, args[0], args[1:len(args) - 1])
        case ir.OpKeepAlive    : return nil, nil
        case ir.OpDebugPrint   : return self.print(args)
    }

    /* everything else is a primitive */
    cc := make([]*ir.Constant, len(op.Args))
    for i, v := range args {
        cc[i] = ir.Const(v, op.Args[i].Type())
    }

    /* evaluate the primitive */
    if rv, err := self.Eval.Evaluate(op.Name, cc, op.Result.T); err != nil {
        return nil, err
    } else {
        return rv.V, nil
    }
}

func (self *Interpreter) malloc(op *ir.Operation, args []interface{}) (interface{}, error) {
    if t, ok := args[0].(ir.Type); !ok {
        return nil, eop(op.Name, "invalid type token %v", args[0])
    } else if !ir.IsAggregate(t) {
        return nil, eop(op.Name, "cannot allocate non-aggregate type %s", t)
    } else {
        return ir.NewObject(t), nil
    }
}

func (self *Interpreter) field(op *ir.Operation, args []interface{}) (*ir.Object, string, error) {
    var ok bool
    var key string
    var obj *ir.Object

    /* check for arguments */
    if len(args) < 2 {
        return nil, "", eop(op.Name, "missing field")
    }

    /* the field may be a name or an array index */
    switch v := args[1].(type) {
        case string : key = v
        case int64  : key = ir.ItemName(int(v))
        default     : return nil, "", eop(op.Name, "invalid field %v", args[1])
    }

    /* the object must not be null */
    if obj, ok = args[0].(*ir.Object); !ok || obj == nil {
        return nil, "", raise(NullPointerError, op.Name)
    }

    /* the field must exist */
    if _, ok = obj.Fields[key]; !ok {
        return nil, "", eop(op.Name, "%s has no field %s", obj.T, key)
    } else {
        return obj, key, nil
    }
}

func (self *Interpreter) load(op *ir.Operation, args []interface{}) (interface{}, error) {
    if obj, key, err := self.field(op, args); err != nil {
        return nil, err
    } else {
        return obj.Fields[key], nil
    }
}

func (self *Interpreter) store(op *ir.Operation, args []interface{}) (interface{}, error) {
    if len(args) != 3 {
        return nil, eop(op.Name, "expect 3 arguments, got %d", len(args))
    } else if obj, key, err := self.field(op, args); err != nil {
        return nil, err
    } else {
        obj.Fields[key] = args[2]
        return nil, nil
    }
}

func (self *Interpreter) cast(op *ir.Operation, args []interface{}) (interface{}, error) {
    obj, ok := args[0].(*ir.Object)
    if !ok || obj == nil || !op.Result.T.PointeeIsAggregate() {
        return args[0], nil
    }

    /* downcast along the first fields */
    to := op.Result.T.Pointee()
    for p := obj; p != nil; {
        if ir.TypesEqual(p.T, to) {
            return p, nil
        } else if fv := p.T.Fields(); len(fv) == 0 {
            break
        } else if p, ok = p.Fields[fv[0].Name].(*ir.Object); !ok {
            break
        }
    }

    /* upcast along the parents */
    for p := obj.Parent; p != nil; p = p.Parent {
        if ir.TypesEqual(p.T, to) {
            return p, nil
        }
    }

    /* opaque cast */
    return obj, nil
}

func (self *Interpreter) call(op *ir.Operation, fn interface{}, args []interface{}) (interface{}, error) {
    if g, ok := fn.(*ir.Graph); !ok || g == nil {
        return nil, eop(op.Name, "cannot call %v", fn)
    } else {
        return self.Call(g, args...)
    }
}

func (self *Interpreter) print(args []interface{}) (interface{}, error) {
    vv := make([]string, len(args))
    for i, v := range args {
        vv[i] = fmt.Sprint(v)
    }
    self.Output = append(self.Output, strings.Join(vv, " "))
    return nil, nil
}
