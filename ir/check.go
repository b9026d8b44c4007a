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

package ir

// CheckGraph validates the structural invariants of g. It never modifies
// the graph.
func CheckGraph(g *Graph) error {
    if g.StartBlock == nil {
        return EGraph(g, "missing start block")
    } else if g.ReturnBlock == nil || g.ExceptBlock == nil {
        return EGraph(g, "missing return or except block")
    } else if g.StartBlock == g.ReturnBlock || g.StartBlock == g.ExceptBlock {
        return EGraph(g, "start block is a final block")
    }

    /* final blocks have a fixed shape */
    if len(g.ReturnBlock.Inputs) != 1 || len(g.ReturnBlock.Ops) != 0 || len(g.ReturnBlock.Exits) != 0 {
        return EGraph(g, "return block must have exactly 1 input and no operations or exits")
    } else if len(g.ExceptBlock.Inputs) != 2 || len(g.ExceptBlock.Ops) != 0 || len(g.ExceptBlock.Exits) != 0 {
        return EGraph(g, "except block must have exactly 2 inputs and no operations or exits")
    }

    /* check every block */
    defs := make(map[*Variable]struct{})
    for i, bb := range g.Blocks() {
        if err := checkBlock(g, i, bb, defs); err != nil {
            return err
        }
    }

    /* all checked */
    return nil
}

// MustCheckGraph panics with a *GraphError if g is malformed.
func MustCheckGraph(g *Graph) {
    if err := CheckGraph(g); err != nil {
        panic(err)
    }
}

func checkBlock(g *Graph, id int, bb *Block, defs map[*Variable]struct{}) error {
    local := make(map[*Variable]struct{}, len(bb.Inputs) + len(bb.Ops))
    define := func(v *Variable) error {
        if v == nil {
            return EBlock(g, id, "nil variable definition")
        } else if _, ok := defs[v]; ok {
            return EBlock(g, id, "variable %s is defined more than once", v)
        } else {
            defs[v] = struct{}{}
            local[v] = struct{}{}
            return nil
        }
    }

    /* a block without exits must be one of the final blocks */
    if bb.IsFinal() && bb != g.ReturnBlock && bb != g.ExceptBlock {
        return EBlock(g, id, "block has no exits but is neither the return nor the except block")
    }

    /* define all the inputs */
    for _, v := range bb.Inputs {
        if err := define(v); err != nil {
            return err
        }
    }

    /* check every operation */
    for _, op := range bb.Ops {
        for _, v := range op.Args {
            if v == nil {
                return EBlock(g, id, "nil argument in operation %s", op.Name)
            } else if p := AsVar(v); p != nil {
                if _, ok := local[p]; !ok {
                    return EBlock(g, id, "variable %s used by %s before its definition", p, op.Name)
                }
            }
        }
        if err := define(op.Result); err != nil {
            return err
        }
    }

    /* check the exit switch */
    if err := checkSwitch(g, id, bb, local); err != nil {
        return err
    }

    /* check every exit */
    for _, ln := range bb.Exits {
        if ln.Prev != bb {
            return EBlock(g, id, "link does not originate from this block")
        } else if ln.Target == nil {
            return EBlock(g, id, "link has no target")
        } else if len(ln.Args) != len(ln.Target.Inputs) {
            return EBlock(g, id, "link passes %d arguments to a block with %d inputs", len(ln.Args), len(ln.Target.Inputs))
        }

        /* exception variables only exist on exception edges */
        if ln.LastException != nil || ln.LastExcValue != nil {
            if _, ok := ln.ExitCase.(*ExceptionClass); !ok || !bb.CanRaise() {
                return EBlock(g, id, "exception variables on a non-exception link")
            }
            for _, v := range []*Variable { ln.LastException, ln.LastExcValue } {
                if v != nil {
                    if _, ok := defs[v]; ok {
                        return EBlock(g, id, "exception variable %s is defined more than once", v)
                    }
                    defs[v] = struct{}{}
                }
            }
        }

        /* every argument must be visible here */
        for _, v := range ln.Args {
            if v == nil {
                return EBlock(g, id, "nil link argument")
            } else if p := AsVar(v); p != nil && !ln.IsExcVar(p) {
                if _, ok := local[p]; !ok {
                    return EBlock(g, id, "variable %s passed to a link but not defined in this block", p)
                }
            }
        }
    }

    /* all checked */
    return nil
}

func checkSwitch(g *Graph, id int, bb *Block, local map[*Variable]struct{}) error {
    if bb.IsFinal() {
        if bb.ExitSwitch != nil {
            return EBlock(g, id, "final block with an exit switch")
        } else {
            return nil
        }
    }

    /* check by switch kind */
    switch sw := bb.ExitSwitch.(type) {
        case nil: {
            if len(bb.Exits) != 1 || bb.Exits[0].ExitCase != nil {
                return EBlock(g, id, "unconditional block must have exactly one exit without a case")
            }
        }

        /* exception guard */
        case *Constant: {
            if sw != LastException {
                return EBlock(g, id, "constant exit switch %s", sw)
            } else if len(bb.Ops) == 0 {
                return EBlock(g, id, "exception guard without a guarded operation")
            } else if bb.Exits[0].ExitCase != nil {
                return EBlock(g, id, "first exit of an exception guard must be the normal exit")
            }
            for _, ln := range bb.Exits[1:] {
                if _, ok := ln.ExitCase.(*ExceptionClass); !ok {
                    return EBlock(g, id, "exception handler without an exception class")
                }
            }
        }

        /* conditional switch */
        case *Variable: {
            if _, ok := local[sw]; !ok {
                return EBlock(g, id, "exit switch %s is not defined in this block", sw)
            } else if len(bb.Exits) < 2 {
                return EBlock(g, id, "conditional switch with less than 2 exits")
            }
            for i, ln := range bb.Exits {
                if ln.ExitCase == nil {
                    return EBlock(g, id, "conditional exit without a case")
                } else if ln.ExitCase == Default && i != len(bb.Exits) - 1 {
                    return EBlock(g, id, "default exit must be the last one")
                }
                for _, p := range bb.Exits[:i] {
                    if valueEquals(p.ExitCase, ln.ExitCase) {
                        return EBlock(g, id, "duplicated exit case %v", ln.ExitCase)
                    }
                }
            }
        }

        default: {
            return EBlock(g, id, "invalid exit switch")
        }
    }

    /* all checked */
    return nil
}
