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
    `strconv`

    `github.com/cloudwego/cfgopt/ir`
    `github.com/tliron/commonlog`
)

var ssaLog = commonlog.GetLogger("cfgopt.ssa")

type _Family struct {
    rep  *ir.Variable
    t    ir.Type
    defs map[*ir.Block]struct{}
}

func mergeFamily(a *_Family, b *_Family) *_Family {
    if len(a.defs) < len(b.defs) {
        a, b = b, a
    }

    /* the earliest variable names the family */
    if b.rep.Id < a.rep.Id {
        a.rep = b.rep
    }

    /* all the defining blocks */
    for bb := range b.defs {
        a.defs[bb] = struct{}{}
    }
    return a
}

func (self *_Family) disjoint(other *_Family) bool {
    for bb := range self.defs {
        if _, ok := other.defs[bb]; ok {
            return false
        }
    }
    return true
}

type _Definitions struct {
    vars  []*ir.Variable
    block map[*ir.Variable]*ir.Block
}

func (self *_Definitions) add(v *ir.Variable, bb *ir.Block) {
    if _, ok := self.block[v]; !ok && v != nil {
        self.vars = append(self.vars, v)
        self.block[v] = bb
    }
}

func definitionsOf(bbs []*ir.Block) *_Definitions {
    ret := &_Definitions {
        block: make(map[*ir.Variable]*ir.Block),
    }

    /* inputs, results and exception variables of every block */
    for _, bb := range bbs {
        for _, v := range bb.Inputs {
            ret.add(v, bb)
        }
        for _, op := range bb.Ops {
            ret.add(op.Result, bb)
        }
        for _, ln := range bb.Exits {
            ret.add(ln.LastException, bb)
            ret.add(ln.LastExcValue, bb)
        }
    }

    /* all done */
    return ret
}

// SSARename gives one name to every family of variables that are always fed
// from each other through links, then checks the naming is consistent.
type SSARename struct{}

func (SSARename) Apply(g *ir.Graph) error {
    bbs := g.Blocks()
    def := definitionsOf(bbs)
    ent := g.EntryMap()

    /* one family per variable */
    uf := NewUnionFind[*ir.Variable, *_Family](
        func(v *ir.Variable) *_Family {
            return &_Family {
                rep  : v,
                t    : v.T,
                defs : map[*ir.Block]struct{} { def.block[v]: {} },
            }
        },
        mergeFamily,
    )

    /* register in definition order */
    for _, v := range def.vars {
        uf.Find(v)
    }

    /* merge to a fixpoint */
    nm := 0
    for {
        rt := false
        for _, bb := range bbs {
            if bb != g.StartBlock && len(ent[bb]) != 0 {
                for i, v := range bb.Inputs {
                    if unifyInput(uf, v, ent[bb], i) {
                        nm++
                        rt = true
                    }
                }
            }
        }

        /* no more merges */
        if !rt {
            break
        }
    }

    /* rename every variable */
    names := familyNames(uf)
    for _, v := range def.vars {
        _, f := uf.Find(v)
        v.Name = names[f]
    }

    /* verify the result */
    ssaLog.Debugf("%s: merged %d variable families", g.Name, nm)
    return checkNames(g, bbs, def)
}

func unifyInput(uf *UnionFind[*ir.Variable, *_Family], v *ir.Variable, entries []*ir.Link, i int) bool {
    var rv *ir.Variable
    var fa *_Family

    /* every link must pass a variable, all from the same family */
    for _, ln := range entries {
        if p := ir.AsVar(ln.Args[i]); p == nil {
            return false
        } else if r, f := uf.Find(p); rv == nil {
            rv, fa = r, f
        } else if r != rv {
            return false
        }
    }

    /* already merged */
    ri, fi := uf.Find(v)
    if ri == rv {
        return false
    }

    /* never merge different types, or families defined in the same block */
    if !ir.TypesEqual(fi.t, fa.t) || !fi.disjoint(fa) {
        return false
    }

    /* merge the two families */
    _, ok := uf.Union(ri, rv)
    return ok
}

func familyNames(uf *UnionFind[*ir.Variable, *_Family]) map[*_Family]string {
    ret := make(map[*_Family]string)
    use := make(map[string]struct{})

    /* first come, first served */
    for _, f := range uf.Infos() {
        name := f.rep.Name
        base := f.rep.Hint + "_" + strconv.FormatInt(f.rep.Id, 10)

        /* disambiguate by variable id */
        for k := 0; ; k++ {
            if _, ok := use[name]; !ok {
                break
            } else if name = base; k != 0 {
                name += "_" + strconv.Itoa(k)
            }
        }

        /* reserve the name */
        ret[f] = name
        use[name] = struct{}{}
    }

    /* all done */
    return ret
}

func checkNames(g *ir.Graph, bbs []*ir.Block, def *_Definitions) error {
    types := make(map[string]ir.Type)

    /* names must be unique within a block */
    for i, bb := range bbs {
        seen := make(map[string]struct{})
        check := func(v *ir.Variable) error {
            if _, ok := seen[v.Name]; ok {
                return ir.EBlock(g, i, "variable name %s is defined twice after renaming", v.Name)
            } else {
                seen[v.Name] = struct{}{}
                return nil
            }
        }

        /* check inputs and results */
        for _, v := range bb.Inputs {
            if err := check(v); err != nil {
                return err
            }
        }
        for _, op := range bb.Ops {
            if err := check(op.Result); err != nil {
                return err
            }
        }
    }

    /* same name, same type */
    for _, v := range def.vars {
        if t, ok := types[v.Name]; !ok {
            types[v.Name] = v.T
        } else if !ir.TypesEqual(t, v.T) {
            return ir.EGraph(g, "variable name %s has types %s and %s after renaming", v.Name, t, v.T)
        }
    }

    /* all done */
    return nil
}
