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
    `fmt`
    `reflect`
    `strconv`
    `sync/atomic`
)

// Value is either a *Variable or a *Constant.
type Value interface {
    fmt.Stringer
    Type() Type
    irvalue()
}

var _VarId int64

// Variable is defined exactly once, either as a block input or as the
// result of an operation. Identity is the pointer, names may repeat.
type Variable struct {
    Id   int64
    Name string
    Hint string
    T    Type
}

func NewVariable(name string, t Type) *Variable {
    return &Variable {
        Id   : atomic.AddInt64(&_VarId, 1),
        Name : name,
        Hint : name,
        T    : t,
    }
}

// Copy creates a fresh variable with the same hint and type.
func (self *Variable) Copy() *Variable {
    id := atomic.AddInt64(&_VarId, 1)
    return &Variable {
        Id   : id,
        Name : self.Hint + "_" + strconv.FormatInt(id, 10),
        Hint : self.Hint,
        T    : self.T,
    }
}

func (self *Variable) irvalue()       {}
func (self *Variable) Type() Type     { return self.T }
func (self *Variable) String() string { return self.Name }

// Constant is an immutable literal tagged with its type.
type Constant struct {
    V interface{}
    T Type
}

func Const(v interface{}, t Type) *Constant {
    return &Constant{V: v, T: t}
}

func Int(v int64) *Constant       { return Const(v, Signed) }
func Boolean(v bool) *Constant    { return Const(v, Bool) }
func Symbol(v string) *Constant   { return Const(v, Void) }
func TypeToken(t Type) *Constant  { return Const(t, Void) }
func FuncOf(g *Graph) *Constant   { return Const(g, FuncRef) }

func ClassOf(cls *ExceptionClass) *Constant {
    return Const(cls, ExcType)
}

func (self *Constant) irvalue()   {}
func (self *Constant) Type() Type { return self.T }

// Same reports whether two constants are interchangeable. Prebuilt mutable
// objects are only interchangeable with themselves.
func (self *Constant) Same(other *Constant) bool {
    if self == other {
        return true
    } else if !TypesEqual(self.T, other.T) {
        return false
    } else {
        return valueEquals(self.V, other.V)
    }
}

func valueEquals(a interface{}, b interface{}) bool {
    if a == nil || b == nil {
        return a == nil && b == nil
    }

    /* mutable objects compare by identity */
    if x, ok := a.(*Object); ok {
        y, ok := b.(*Object)
        return ok && x == y
    }

    /* only comparable values can be equal */
    if t := reflect.TypeOf(a); t != reflect.TypeOf(b) || !t.Comparable() {
        return false
    } else {
        return a == b
    }
}

func (self *Constant) String() string {
    switch v := self.V.(type) {
        case nil             : return "%null"
        case string          : if self.T == Void { return "%" + v } else { return strconv.Quote(v) }
        case int64           : return strconv.FormatInt(v, 10)
        case uint64          : return strconv.FormatUint(v, 10)
        case bool            : return strconv.FormatBool(v)
        case rune            : return strconv.FormatInt(int64(v), 10)
        case float64         : return strconv.FormatFloat(v, 'g', -1, 64)
        case Type            : return "%" + v.String()
        case *Graph          : return "%" + v.Name
        case *ExceptionClass : return "%" + v.Name
        default              : return fmt.Sprintf("%%<%v>", v)
    }
}

// AsVar returns v as a variable, or nil if it is a constant.
func AsVar(v Value) *Variable {
    if p, ok := v.(*Variable); ok {
        return p
    } else {
        return nil
    }
}

// AsConst returns v as a constant, or nil if it is a variable.
func AsConst(v Value) *Constant {
    if p, ok := v.(*Constant); ok {
        return p
    } else {
        return nil
    }
}
