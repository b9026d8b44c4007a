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
    `github.com/oleiade/lane`
    `golang.org/x/exp/slices`
)

// CallGraph indexes the call edges between a set of graphs. It must be
// invalidated for every graph whose operations changed.
type CallGraph struct {
    graphs  []*ir.Graph
    known   map[*ir.Graph]struct{}
    callees map[*ir.Graph][]*ir.Graph
    callers map[*ir.Graph][]*ir.Graph
}

func NewCallGraph(graphs []*ir.Graph) *CallGraph {
    ret := &CallGraph {
        graphs  : graphs,
        known   : make(map[*ir.Graph]struct{}, len(graphs)),
        callees : make(map[*ir.Graph][]*ir.Graph, len(graphs)),
        callers : make(map[*ir.Graph][]*ir.Graph, len(graphs)),
    }

    /* register all the graphs */
    for _, g := range graphs {
        ret.known[g] = struct{}{}
    }

    /* scan all the graphs */
    for _, g := range graphs {
        ret.scan(g)
    }

    /* all done */
    return ret
}

// Graphs returns every graph in the index.
func (self *CallGraph) Graphs() []*ir.Graph {
    return self.graphs
}

// Callees returns the graphs called by g, in the order of first call.
func (self *CallGraph) Callees(g *ir.Graph) []*ir.Graph {
    return self.callees[g]
}

// Callers returns the graphs calling g.
func (self *CallGraph) Callers(g *ir.Graph) []*ir.Graph {
    return self.callers[g]
}

// Calls reports whether caller calls callee directly.
func (self *CallGraph) Calls(caller *ir.Graph, callee *ir.Graph) bool {
    return slices.Contains(self.callees[caller], callee)
}

// Invalidate rescans g after its operations changed.
func (self *CallGraph) Invalidate(g *ir.Graph) {
    for _, p := range self.callees[g] {
        if i := slices.Index(self.callers[p], g); i >= 0 {
            self.callers[p] = slices.Delete(self.callers[p], i, i + 1)
        }
    }

    /* rebuild the edges */
    delete(self.callees, g)
    self.scan(g)
}

// Reaches reports whether dst can be reached from src by following at
// least one call edge.
func (self *CallGraph) Reaches(src *ir.Graph, dst *ir.Graph) bool {
    q := lane.NewQueue()
    vis := make(map[*ir.Graph]struct{})

    /* start with the direct callees */
    for _, p := range self.callees[src] {
        q.Enqueue(p)
    }

    /* breadth-first search */
    for !q.Empty() {
        g := q.Dequeue().(*ir.Graph)

        /* found the destination */
        if g == dst {
            return true
        }

        /* skip visited graphs */
        if _, ok := vis[g]; ok {
            continue
        }

        /* add all the callees */
        vis[g] = struct{}{}
        for _, p := range self.callees[g] {
            q.Enqueue(p)
        }
    }

    /* not reachable */
    return false
}

func (self *CallGraph) scan(g *ir.Graph) {
    for _, op := range g.Operations() {
        switch op.Name {
            case ir.OpDirectCall: {
                self.link(g, op.Callee())
            }

            /* every candidate of an indirect call is a callee */
            case ir.OpIndirectCall: {
                for _, p := range op.Candidates() {
                    self.link(g, p)
                }
            }
        }
    }
}

func (self *CallGraph) link(caller *ir.Graph, callee *ir.Graph) {
    if callee == nil {
        return
    }

    /* only graphs in this call graph */
    if _, ok := self.known[callee]; !ok {
        return
    }

    /* add the edges */
    if !slices.Contains(self.callees[caller], callee) {
        self.callees[caller] = append(self.callees[caller], callee)
        self.callers[callee] = append(self.callers[callee], caller)
    }
}
