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

import (
    `github.com/oleiade/lane`
)

// Graph is the control flow graph of one function.
type Graph struct {
    Name        string
    StartBlock  *Block
    ReturnBlock *Block
    ExceptBlock *Block
}

// NewGraph creates a graph with fresh return and except blocks.
func NewGraph(name string, start *Block, ret Type) *Graph {
    return &Graph {
        Name        : name,
        StartBlock  : start,
        ReturnBlock : NewBlock(NewVariable("result", ret)),
        ExceptBlock : NewBlock(NewVariable("etype", ExcType), NewVariable("evalue", ExcValue)),
    }
}

func (self *Graph) String() string {
    return self.Name
}

// Raise links bb to the except block of the graph.
func (self *Graph) Raise(bb *Block, etype Value, evalue Value) *Link {
    return bb.Goto(self.ExceptBlock, etype, evalue)
}

// Return links bb to the return block of the graph.
func (self *Graph) Return(bb *Block, v Value) *Link {
    return bb.Goto(self.ReturnBlock, v)
}

// Blocks lists every block reachable from the start block, in depth-first
// pre-order. The order is stable as long as the graph does not change.
func (self *Graph) Blocks() []*Block {
    st := lane.NewStack()
    st.Push(self.StartBlock)

    /* visited blocks */
    ret := make([]*Block, 0, 16)
    vis := map[*Block]struct{}{}

    /* depth-first traversal, first exit visited first */
    for !st.Empty() {
        bb := st.Pop().(*Block)

        /* skip visited blocks */
        if _, ok := vis[bb]; ok {
            continue
        }

        /* add to result */
        vis[bb] = struct{}{}
        ret = append(ret, bb)

        /* push all the successors in reverse order */
        for i := len(bb.Exits) - 1; i >= 0; i-- {
            if _, ok := vis[bb.Exits[i].Target]; !ok {
                st.Push(bb.Exits[i].Target)
            }
        }
    }

    /* all done */
    return ret
}

// Links lists every exit of every reachable block.
func (self *Graph) Links() []*Link {
    var ret []*Link
    for _, bb := range self.Blocks() {
        ret = append(ret, bb.Exits...)
    }
    return ret
}

// Operations lists every operation of every reachable block.
func (self *Graph) Operations() []*Operation {
    var ret []*Operation
    for _, bb := range self.Blocks() {
        ret = append(ret, bb.Ops...)
    }
    return ret
}

// EntryMap maps every reachable block to its incoming links. The start
// block is always present, possibly with no links.
func (self *Graph) EntryMap() map[*Block][]*Link {
    ret := map[*Block][]*Link { self.StartBlock: nil }
    for _, bb := range self.Blocks() {
        for _, ln := range bb.Exits {
            ret[ln.Target] = append(ret[ln.Target], ln)
        }
    }
    return ret
}

// CountOps counts the operations named op.
func (self *Graph) CountOps(op string) int {
    ret := 0
    for _, p := range self.Operations() {
        if p.Name == op {
            ret++
        }
    }
    return ret
}
