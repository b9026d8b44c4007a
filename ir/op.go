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
    `strings`
)

const (
    OpSameAs         = "same_as"
    OpCastPointer    = "cast_pointer"
    OpMalloc         = "malloc"
    OpGetField       = "getfield"
    OpSetField       = "setfield"
    OpGetSubstruct   = "getsubstruct"
    OpGetArrayItem   = "getarrayitem"
    OpSetArrayItem   = "setarrayitem"
    OpKeepAlive      = "keepalive"
    OpDirectCall     = "direct_call"
    OpIndirectCall   = "indirect_call"
    OpExceptionMatch = "exception_match"
    OpDebugPrint     = "debug_print"
    OpYield          = "yield_current_frame_to_caller"
)

// Operation computes Result from Args. Argument 0 of a call is the callee,
// memory operations take the pointer first and a symbol naming the field.
type Operation struct {
    Name   string
    Args   []Value
    Result *Variable
}

func NewOperation(name string, result *Variable, args ...Value) *Operation {
    return &Operation {
        Name   : name,
        Args   : args,
        Result : result,
    }
}

// FieldName returns the field symbol of a memory operation.
func (self *Operation) FieldName() (string, bool) {
    if len(self.Args) < 2 {
        return "", false
    }

    /* field symbol is always the second argument */
    if c := AsConst(self.Args[1]); c == nil {
        return "", false
    } else if s, ok := c.V.(string); ok {
        return s, true
    } else if i, ok := c.V.(int64); ok && (self.Name == OpGetArrayItem || self.Name == OpSetArrayItem) {
        return ItemName(int(i)), true
    } else {
        return "", false
    }
}

// Callee returns the graph targeted by a direct call, if it is known.
func (self *Operation) Callee() *Graph {
    if self.Name != OpDirectCall || len(self.Args) == 0 {
        return nil
    } else if c := AsConst(self.Args[0]); c == nil {
        return nil
    } else if g, ok := c.V.(*Graph); ok {
        return g
    } else {
        return nil
    }
}

// Candidates returns the graphs an indirect call may reach, the candidate
// list is carried as the last argument.
func (self *Operation) Candidates() []*Graph {
    if self.Name != OpIndirectCall || len(self.Args) < 2 {
        return nil
    } else if c := AsConst(self.Args[len(self.Args) - 1]); c == nil {
        return nil
    } else if gs, ok := c.V.([]*Graph); ok {
        return gs
    } else {
        return nil
    }
}

// MallocType returns the type allocated by a malloc operation.
func (self *Operation) MallocType() Type {
    if self.Name != OpMalloc || len(self.Args) == 0 {
        return nil
    } else if c := AsConst(self.Args[0]); c == nil {
        return nil
    } else if t, ok := c.V.(Type); ok {
        return t
    } else {
        return nil
    }
}

func (self *Operation) String() string {
    var sb strings.Builder
    sb.WriteString(self.Result.Name)
    sb.WriteString(": ")
    sb.WriteString(self.Result.T.String())
    sb.WriteString(" = ")
    sb.WriteString(self.Name)
    sb.WriteByte('(')

    /* dump the arguments */
    for i, v := range self.Args {
        if i != 0 {
            sb.WriteString(", ")
        }
        sb.WriteString(v.String())
    }

    /* all done */
    sb.WriteByte(')')
    return sb.String()
}
