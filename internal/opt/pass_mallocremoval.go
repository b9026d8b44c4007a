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
    `strings`
    `sync`
    `sync/atomic`
    `unicode`

    `github.com/cloudwego/cfgopt/ir`
    `github.com/tliron/commonlog`
)

var mallocLog = commonlog.GetLogger("cfgopt.malloc")

// MallocCount is the total number of allocations removed.
var MallocCount int64

// wrapper records for sub-aggregates whose address escapes the flattening
var (
    _WrapperLock  sync.Mutex
    _WrapperTypes = map[ir.Type]*ir.Struct{}
)

const _WrapperField = "data"

func wrapperOf(t ir.Type) *ir.Struct {
    _WrapperLock.Lock()
    defer _WrapperLock.Unlock()

    /* check for cached wrappers */
    for k, v := range _WrapperTypes {
        if ir.TypesEqual(k, t) {
            return v
        }
    }

    /* create a new one */
    ret := ir.NewStruct("wrapper_" + strings.Map(identChar, t.String()), ir.Field{Name: _WrapperField, T: t})
    _WrapperTypes[t] = ret
    return ret
}

func identChar(r rune) rune {
    if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
        return r
    } else {
        return '_'
    }
}

type _FieldKey struct {
    T    ir.Type
    Name string
}

// _Flattening is the scalar layout of one eligible life-time class.
type _Flattening struct {
    names    []_FieldKey
    types    map[_FieldKey]ir.Type
    accessed map[_FieldKey]bool
    nested   []ir.Type
}

func equivalentChain(t ir.Type) []ir.Type {
    ret := []ir.Type { t }
    for fv := t.Fields(); len(fv) != 0 && ir.IsAggregate(fv[0].T) && IsEquivalentSubstruct(t, fv[0].Name); fv = t.Fields() {
        t = fv[0].T
        ret = append(ret, t)
    }
    return ret
}

func (self *_Flattening) canonical(t ir.Type) ir.Type {
    for _, p := range self.nested {
        if ir.TypesEqual(p, t) {
            return p
        }
    }
    return nil
}

func (self *_Flattening) key(ptr ir.Value, name string) (_FieldKey, bool) {
    if t := ptr.Type(); !t.PointeeIsAggregate() {
        return _FieldKey{}, false
    } else if ct := self.canonical(t.Pointee()); ct == nil {
        return _FieldKey{}, false
    } else {
        return _FieldKey{ct, name}, true
    }
}

func (self *_Flattening) flatten(t ir.Type) {
    fv := t.Fields()
    start := 0

    /* the first field aliases the container, flatten it in place */
    if len(fv) != 0 && ir.IsAggregate(fv[0].T) && IsEquivalentSubstruct(t, fv[0].Name) {
        self.flatten(fv[0].T)
        start = 1
    }

    /* the remaining fields */
    for _, f := range fv[start:] {
        key := _FieldKey{t, f.Name}

        /* sub-aggregates with taken address are moved into their own allocation */
        switch {
            case self.accessed[key]     : self.types[key] = ir.PtrTo(wrapperOf(f.T))
            case !ir.IsAggregate(f.T)   : self.types[key] = f.T
            default                     : continue
        }

        /* inline sub-aggregates that are never accessed are dropped */
        self.names = append(self.names, key)
    }
}

func (self *_Flattening) has(key _FieldKey) bool {
    _, ok := self.types[key]
    return ok
}

// MallocRemoval replaces non-escaping allocations by one scalar variable
// per field.
type MallocRemoval struct{}

func (MallocRemoval) Apply(g *ir.Graph) bool {
    return RemoveMallocs(g) != 0
}

// RemoveMallocs runs scalar replacement to a fixpoint, and returns the
// number of removed allocations.
func RemoveMallocs(g *ir.Graph) int {
    tot := 0
    for {
        if n := removeMallocsOnce(g); n != 0 {
            tot += n
        } else {
            break
        }
    }

    /* update the counter */
    atomic.AddInt64(&MallocCount, int64(tot))
    return tot
}

func removeMallocsOnce(g *ir.Graph) int {
    ret := 0
    for _, lt := range ComputeLifetimes(g) {
        if fl := checkMallocClass(lt); fl != nil {
            ret += rewriteMallocClass(g, lt, fl)
        }
    }
    return ret
}

func checkMallocClass(lt *LifeTime) *_Flattening {
    var mt ir.Type
    var fl *_Flattening

    /* every creation point must be an allocation of the same type */
    for _, cp := range lt.Creations {
        if cp.Kind != CreateOp || cp.Op.Name != ir.OpMalloc {
            return nil
        } else if t := cp.Op.MallocType(); t == nil || !ir.IsAggregate(t) {
            return nil
        } else if mt == nil {
            mt = t
        } else if !ir.TypesEqual(mt, t) {
            return nil
        }
    }

    /* no creation points at all, or the type has a finalizer */
    if mt == nil || mt.HasFinalizer() {
        return nil
    }

    /* create the flattening descriptor */
    fl = &_Flattening {
        types    : make(map[_FieldKey]ir.Type),
        nested   : equivalentChain(mt),
        accessed : make(map[_FieldKey]bool),
    }

    /* collect the accessed sub-aggregates first, they must not be flattened */
    for _, up := range lt.Uses {
        if up.Kind == UseOp && up.Index == 0 && up.Op.Name == ir.OpGetSubstruct {
            if name, ok := up.Op.FieldName(); ok {
                if key, ok := fl.key(up.Op.Args[0], name); ok {
                    fl.accessed[key] = true
                }
            }
        }
    }

    /* flatten the type */
    fl.flatten(mt)

    /* check every use point */
    for _, up := range lt.Uses {
        if !checkMallocUse(fl, up) {
            return nil
        }
    }

    /* the class must not appear twice in a block or a link */
    if !checkMallocAliases(lt) {
        return nil
    }

    /* all checked */
    return fl
}

func checkMallocUse(fl *_Flattening, up UsePoint) bool {
    if up.Kind != UseOp || up.Index != 0 {
        return false
    }

    /* check by operation kind */
    switch up.Op.Name {
        case ir.OpKeepAlive: {
            return true
        }

        /* field accesses */
        case ir.OpGetField, ir.OpSetField, ir.OpGetSubstruct, ir.OpGetArrayItem, ir.OpSetArrayItem: {
            name, ok := up.Op.FieldName()
            if !ok {
                return false
            }

            /* the field must be a flattened leaf */
            key, ok := fl.key(up.Op.Args[0], name)
            return ok && fl.has(key)
        }

        default: {
            return false
        }
    }
}

func checkMallocAliases(lt *LifeTime) bool {
    var ok bool
    var nb map[*ir.Block]int

    /* class members, indexed by block */
    nb = make(map[*ir.Block]int)
    vs := make(map[*ir.Variable]struct{}, len(lt.Variables))

    /* collect the variables */
    for _, v := range lt.Variables {
        vs[v.Var] = struct{}{}
    }

    /* at most one input of every block */
    for _, v := range lt.Variables {
        for _, p := range v.Block.Inputs {
            if p == v.Var {
                if nb[v.Block]++; nb[v.Block] > 1 {
                    return false
                }
            }
        }
    }

    /* at most one argument of every link */
    for _, v := range lt.Variables {
        for _, ln := range v.Block.Exits {
            n := 0
            for _, a := range ln.Args {
                if _, ok = vs[ir.AsVar(a)]; ok {
                    n++
                }
            }
            if n > 1 {
                return false
            }
        }
    }

    /* all checked */
    return true
}

type _FieldState map[_FieldKey]ir.Value

func rewriteMallocClass(g *ir.Graph, lt *LifeTime, fl *_Flattening) int {
    ret := 0
    vars := make(map[*ir.Block]map[*ir.Variable]bool)

    /* group the variables by block */
    for _, v := range lt.Variables {
        if vars[v.Block] == nil {
            vars[v.Block] = make(map[*ir.Variable]bool)
        }
        vars[v.Block][v.Var] = true
    }

    /* rewrite every block in a stable order */
    for _, bb := range g.Blocks() {
        if vs, ok := vars[bb]; ok {
            ret += flowin(bb, vs, fl)
        }
    }

    /* log the removed class */
    if ret != 0 {
        mallocLog.Debugf("%s: removed %d allocation(s) of %s", g.Name, ret, fl.nested[0])
    }

    /* all done */
    return ret
}

func flowin(bb *ir.Block, vars map[*ir.Variable]bool, fl *_Flattening) int {
    var ret int
    var last bool
    var ins []*ir.Variable
    var ops []*ir.Operation

    /* field states of every variable in the class */
    state := make(map[*ir.Variable]_FieldState)
    isvar := func(v ir.Value) bool {
        p := ir.AsVar(v)
        return p != nil && vars[p]
    }

    /* widen the block inputs */
    for _, v := range bb.Inputs {
        if !vars[v] {
            ins = append(ins, v)
            continue
        }

        /* one fresh input per field */
        fs := make(_FieldState, len(fl.names))
        for _, k := range fl.names {
            nv := ir.NewVariable(k.Name, fl.types[k])
            fs[k] = nv
            ins = append(ins, nv)
        }

        /* save the field state */
        state[v] = fs
    }

    /* rewrite the operations */
    for i, op := range bb.Ops {
        last = i == len(bb.Ops) - 1

        /* allocation of this class */
        if op.Name == ir.OpMalloc && vars[op.Result] {
            fs := make(_FieldState, len(fl.names))
            for _, k := range fl.names {
                if !fl.accessed[k] {
                    fs[k] = defaultOf(fl.types[k])
                } else {
                    nv := ir.NewVariable(k.Name, fl.types[k])
                    ops = append(ops, ir.NewOperation(ir.OpMalloc, nv, ir.TypeToken(fl.types[k].Pointee())))
                    fs[k] = nv
                }
            }
            ret++
            state[op.Result] = fs
            continue
        }

        /* operations not involving this class */
        if len(op.Args) == 0 || !isvar(op.Args[0]) {
            ops = append(ops, op)
            last = false
            continue
        }

        /* get the field state */
        fs, ok := state[op.Args[0].(*ir.Variable)]
        if !ok {
            panic("mallocremoval: variable used before its field state is known: " + op.Args[0].String())
        }

        /* rewrite the operation */
        switch op.Name {
            case ir.OpSameAs, ir.OpCastPointer: {
                state[op.Result] = fs
            }

            /* keepalive has no runtime effect */
            case ir.OpKeepAlive: {
                break
            }

            /* reads are forwarded from the current field value */
            case ir.OpGetField, ir.OpGetArrayItem: {
                ops = append(ops, ir.NewOperation(ir.OpSameAs, op.Result, fs[mustKey(fl, op)]))
            }

            /* writes rebind the field */
            case ir.OpSetField, ir.OpSetArrayItem: {
                fs[mustKey(fl, op)] = op.Args[2]
            }

            /* substructures are either aliases, or wrapped into their own allocation */
            case ir.OpGetSubstruct: {
                if vars[op.Result] {
                    state[op.Result] = fs
                } else {
                    ops = append(ops, ir.NewOperation(ir.OpGetSubstruct, op.Result, fs[mustKey(fl, op)], ir.Symbol(_WrapperField)))
                }
            }

            default: {
                panic("mallocremoval: unexpected operation on a removed allocation: " + op.Name)
            }
        }
    }

    /* the guarded operation is gone, so are the exception edges */
    if bb.Ops = ops; last && bb.CanRaise() {
        bb.Unguard()
    }

    /* widen the link arguments */
    for _, ln := range bb.Exits {
        var args []ir.Value
        for _, v := range ln.Args {
            if !isvar(v) {
                args = append(args, v)
            } else if fs, ok := state[v.(*ir.Variable)]; !ok {
                panic("mallocremoval: variable passed before its field state is known: " + v.String())
            } else {
                for _, k := range fl.names {
                    args = append(args, fs[k])
                }
            }
        }
        ln.Args = args
    }

    /* all done */
    bb.Inputs = ins
    return ret
}

func mustKey(fl *_Flattening, op *ir.Operation) _FieldKey {
    if name, ok := op.FieldName(); !ok {
        panic("mallocremoval: missing field name in " + op.Name)
    } else if key, ok := fl.key(op.Args[0], name); !ok || !fl.has(key) {
        panic("mallocremoval: unknown field " + name)
    } else {
        return key
    }
}

func defaultOf(t ir.Type) *ir.Constant {
    if c := t.Default(); c != nil {
        return c
    } else {
        return ir.Const(nil, t)
    }
}
