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

type (
    _LastException struct{}
    _DefaultCase   struct{}
)

func (_LastException) String() string { return "last_exception" }
func (_DefaultCase) String() string   { return "default" }

var (
    // LastException is the exit switch of a block whose last operation is
    // guarded by exception handlers.
    LastException = Const(_LastException{}, Void)

    // Default is the exit case of the fallback link of a switch.
    Default interface{} = _DefaultCase{}
)

// Link passes Args to the inputs of Target.
type Link struct {
    Args          []Value
    Prev          *Block
    Target        *Block
    ExitCase      interface{}
    LastException *Variable
    LastExcValue  *Variable
}

func NewLink(target *Block, args ...Value) *Link {
    return &Link{Args: args, Target: target}
}

// WithCase sets the exit case of the link.
func (self *Link) WithCase(v interface{}) *Link {
    self.ExitCase = v
    return self
}

// Catch turns the link into an exception edge for cls, binding the raised
// class and value to fresh link-local variables.
func (self *Link) Catch(cls *ExceptionClass) (*Variable, *Variable) {
    self.ExitCase = cls
    self.LastException = NewVariable("etype", ExcType)
    self.LastExcValue = NewVariable("evalue", ExcValue)
    return self.LastException, self.LastExcValue
}

// IsExcVar reports whether v is bound by the link itself.
func (self *Link) IsExcVar(v *Variable) bool {
    return v != nil && (v == self.LastException || v == self.LastExcValue)
}

// Block is a basic block with explicit input variables. Every variable used
// in a block is defined in the same block.
type Block struct {
    Inputs     []*Variable
    Ops        []*Operation
    ExitSwitch Value
    Exits      []*Link
}

func NewBlock(inputs ...*Variable) *Block {
    return &Block{Inputs: inputs}
}

// Add appends a new operation and returns its result.
func (self *Block) Add(name string, t Type, args ...Value) *Variable {
    ret := NewVariable("v", t)
    self.Ops = append(self.Ops, NewOperation(name, ret, args...))
    return ret
}

// AddOp appends an existing operation.
func (self *Block) AddOp(op *Operation) {
    self.Ops = append(self.Ops, op)
}

// CloseBlock replaces the exits of the block.
func (self *Block) CloseBlock(links ...*Link) {
    for _, ln := range links {
        ln.Prev = self
    }
    self.Exits = links
}

// Goto terminates the block with one unconditional link.
func (self *Block) Goto(target *Block, args ...Value) *Link {
    ln := NewLink(target, args...)
    self.ExitSwitch = nil
    self.CloseBlock(ln)
    return ln
}

// Branch terminates the block with a two-way branch on cond.
func (self *Block) Branch(cond Value, iffalse *Link, iftrue *Link) {
    self.ExitSwitch = cond
    self.CloseBlock(iffalse.WithCase(false), iftrue.WithCase(true))
}

// Guard terminates the block with the normal link followed by exception
// handlers for its last operation.
func (self *Block) Guard(normal *Link, handlers ...*Link) {
    self.ExitSwitch = LastException
    self.CloseBlock(append([]*Link { normal }, handlers...)...)
}

// CanRaise reports whether the last operation is guarded by handlers.
func (self *Block) CanRaise() bool {
    return self.ExitSwitch == Value(LastException)
}

// IsFinal reports whether the block is a return or except block.
func (self *Block) IsFinal() bool {
    return len(self.Exits) == 0
}

// Unguard drops every exception handler of the block, leaving the normal
// exit as the only one.
func (self *Block) Unguard() {
    if self.CanRaise() {
        self.ExitSwitch = nil
        self.Exits = self.Exits[:1]
    }
}

// Defines reports whether v is an input or an operation result of the block.
func (self *Block) Defines(v *Variable) bool {
    for _, p := range self.Inputs {
        if p == v {
            return true
        }
    }
    for _, op := range self.Ops {
        if op.Result == v {
            return true
        }
    }
    return false
}

// FoldSwitch collapses a block whose exit switch is a constant into an
// unconditional jump to the matching exit. Returns false if the switch is
// not a constant.
func (self *Block) FoldSwitch() bool {
    var ok bool
    var cc *Constant
    var ln *Link

    /* must be a constant switch */
    if cc, ok = self.ExitSwitch.(*Constant); !ok || cc == LastException {
        return false
    }

    /* find the matching exit */
    for _, p := range self.Exits {
        if p.ExitCase == Default {
            if ln == nil {
                ln = p
            }
        } else if valueEquals(p.ExitCase, cc.V) {
            ln = p
            break
        }
    }

    /* there must be one */
    if ln == nil {
        panic("foldswitch: no exit matches constant " + cc.String())
    }

    /* make it unconditional */
    ln.ExitCase = nil
    self.ExitSwitch = nil
    self.Exits = []*Link { ln }
    return true
}
