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

type CreationKind uint8

const (
    CreateInputArg CreationKind = iota
    CreateOp
    CreateConstant
    CreateLastException
    CreateLastExcValue
)

func (self CreationKind) String() string {
    switch self {
        case CreateInputArg      : return "inputargs"
        case CreateOp            : return "op"
        case CreateConstant      : return "constant"
        case CreateLastException : return "last_exception"
        case CreateLastExcValue  : return "last_exc_value"
        default                  : return "???"
    }
}

type UseKind uint8

const (
    UseOp UseKind = iota
    UseExitSwitch
    UseDup
    UseReturn
    UseExcept
)

func (self UseKind) String() string {
    switch self {
        case UseOp         : return "op"
        case UseExitSwitch : return "exitswitch"
        case UseDup        : return "dup"
        case UseReturn     : return "return"
        case UseExcept     : return "except"
        default            : return "???"
    }
}

// VarRef is a variable as seen from one block.
type VarRef struct {
    Block *ir.Block
    Var   *ir.Variable
}

type CreationPoint struct {
    Kind  CreationKind
    Block *ir.Block
    Op    *ir.Operation
    Const *ir.Constant
}

type UsePoint struct {
    Kind  UseKind
    Block *ir.Block
    Op    *ir.Operation
    Link  *ir.Link
    Index int
}

// LifeTime is a class of variables that may hold the same value along some
// run of the graph.
type LifeTime struct {
    Variables []VarRef
    Creations []CreationPoint
    Uses      []UsePoint
}

func newLifeTime(v VarRef) *LifeTime {
    return &LifeTime{Variables: []VarRef { v }}
}

func mergeLifeTime(a *LifeTime, b *LifeTime) *LifeTime {
    a.Variables = append(a.Variables, b.Variables...)
    a.Creations = append(a.Creations, b.Creations...)
    a.Uses = append(a.Uses, b.Uses...)
    return a
}

// Contains reports whether v is a member of the class.
func (self *LifeTime) Contains(v *ir.Variable) bool {
    for _, p := range self.Variables {
        if p.Var == v {
            return true
        }
    }
    return false
}

// IsEquivalentSubstruct reports whether the field of t starts at the same
// address as t itself and can be treated as an alias of it.
func IsEquivalentSubstruct(t ir.Type, field string) bool {
    var fv []ir.Field
    var st *ir.Struct
    var ok bool

    /* only records can have equivalent substructures */
    if st, ok = t.(*ir.Struct); !ok {
        return false
    } else if fv = st.Flds; len(fv) == 0 || fv[0].Name != field {
        return false
    }

    /* the first field must be a nested aggregate, or the only field */
    return ir.IsAggregate(fv[0].T) || len(fv) == 1
}

type _LifeTimeBuilder struct {
    uf *UnionFind[VarRef, *LifeTime]
}

func (self _LifeTimeBuilder) create(bb *ir.Block, v *ir.Variable, cp CreationPoint) {
    _, lt := self.uf.Find(VarRef{bb, v})
    lt.Creations = append(lt.Creations, cp)
}

func (self _LifeTimeBuilder) use(bb *ir.Block, v *ir.Variable, up UsePoint) {
    _, lt := self.uf.Find(VarRef{bb, v})
    lt.Uses = append(lt.Uses, up)
}

func (self _LifeTimeBuilder) union(b1 *ir.Block, v1 ir.Value, b2 *ir.Block, v2 *ir.Variable) {
    if p := ir.AsVar(v1); p != nil {
        self.uf.Union(VarRef{b1, p}, VarRef{b2, v2})
    } else {
        self.create(b2, v2, CreationPoint{Kind: CreateConstant, Block: b2, Const: v1.(*ir.Constant)})
    }
}

func (self _LifeTimeBuilder) visitBlock(bb *ir.Block) {
    for _, op := range bb.Ops {
        switch op.Name {
            case ir.OpSameAs, ir.OpCastPointer: {
                self.union(bb, op.Args[0], bb, op.Result)
                continue
            }

            /* equivalent substructures alias their container */
            case ir.OpGetSubstruct: {
                if name, ok := op.FieldName(); ok && op.Args[0].Type().IsPointer() && IsEquivalentSubstruct(op.Args[0].Type().Pointee(), name) {
                    self.union(bb, op.Args[0], bb, op.Result)
                    continue
                }
            }
        }

        /* every variable argument is a use */
        for i, v := range op.Args {
            if p := ir.AsVar(v); p != nil {
                self.use(bb, p, UsePoint{Kind: UseOp, Block: bb, Op: op, Index: i})
            }
        }

        /* the result is created here */
        self.create(bb, op.Result, CreationPoint{Kind: CreateOp, Block: bb, Op: op})
    }

    /* the exit switch is a use */
    if p := ir.AsVar(bb.ExitSwitch); p != nil {
        self.use(bb, p, UsePoint{Kind: UseExitSwitch, Block: bb})
    }
}

func (self _LifeTimeBuilder) visitLink(ln *ir.Link) {
    if ln.LastException != nil {
        self.create(ln.Prev, ln.LastException, CreationPoint{Kind: CreateLastException, Block: ln.Prev})
    }

    /* the exception value is created by the link too */
    if ln.LastExcValue != nil {
        self.create(ln.Prev, ln.LastExcValue, CreationPoint{Kind: CreateLastExcValue, Block: ln.Prev})
    }

    /* link arguments flow into the target inputs */
    dup := make(map[*ir.Variable]struct{}, len(ln.Args))
    for i, v := range ln.Args {
        self.union(ln.Prev, v, ln.Target, ln.Target.Inputs[i])

        /* the same variable passed twice cannot be disambiguated */
        if p := ir.AsVar(v); p != nil {
            if _, ok := dup[p]; ok {
                self.use(ln.Prev, p, UsePoint{Kind: UseDup, Block: ln.Prev, Link: ln, Index: i})
            } else {
                dup[p] = struct{}{}
            }
        }
    }
}

// ComputeLifetimes partitions the variables of g into life-time classes.
func ComputeLifetimes(g *ir.Graph) []*LifeTime {
    lb := _LifeTimeBuilder {
        uf: NewUnionFind[VarRef, *LifeTime](newLifeTime, mergeLifeTime),
    }

    /* graph arguments are created by the caller */
    for _, v := range g.StartBlock.Inputs {
        lb.create(g.StartBlock, v, CreationPoint{Kind: CreateInputArg, Block: g.StartBlock})
    }

    /* values reaching the final blocks escape */
    lb.use(g.ReturnBlock, g.ReturnBlock.Inputs[0], UsePoint{Kind: UseReturn, Block: g.ReturnBlock})
    lb.use(g.ExceptBlock, g.ExceptBlock.Inputs[0], UsePoint{Kind: UseExcept, Block: g.ExceptBlock})
    lb.use(g.ExceptBlock, g.ExceptBlock.Inputs[1], UsePoint{Kind: UseExcept, Block: g.ExceptBlock, Index: 1})

    /* visit every block and link */
    for _, bb := range g.Blocks() {
        lb.visitBlock(bb)
        for _, ln := range bb.Exits {
            lb.visitLink(ln)
        }
    }

    /* all done */
    return lb.uf.Infos()
}
