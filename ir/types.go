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
    `strings`
)

// Type is the opaque representation of a value's layout. Passes only ever
// query the properties below, they never inspect sizes or offsets.
type Type interface {
    fmt.Stringer
    IsVoid() bool
    IsPointer() bool
    PointeeIsAggregate() bool
    Pointee() Type
    Fields() []Field
    HasFinalizer() bool
    Default() *Constant
}

// Field is a named member of an aggregate.
type Field struct {
    Name string
    T    Type
}

type Primitive uint8

const (
    Void Primitive = iota
    Bool
    Signed
    Unsigned
    Float
    Char
    FuncRef
    ExcType
    ExcValue
)

var _PrimitiveNames = [...]string {
    Void     : "Void",
    Bool     : "Bool",
    Signed   : "Signed",
    Unsigned : "Unsigned",
    Float    : "Float",
    Char     : "Char",
    FuncRef  : "FuncRef",
    ExcType  : "ExcType",
    ExcValue : "ExcValue",
}

// PrimitiveByName resolves the textual name of a primitive type.
func PrimitiveByName(name string) (Primitive, bool) {
    for i, v := range _PrimitiveNames {
        if v == name {
            return Primitive(i), true
        }
    }
    return 0, false
}

func (self Primitive) String() string {
    if int(self) < len(_PrimitiveNames) {
        return _PrimitiveNames[self]
    } else {
        return fmt.Sprintf("Primitive(%d)", uint8(self))
    }
}

func (self Primitive) IsVoid() bool             { return self == Void }
func (self Primitive) IsPointer() bool          { return false }
func (self Primitive) PointeeIsAggregate() bool { return false }
func (self Primitive) Pointee() Type            { return nil }
func (self Primitive) Fields() []Field          { return nil }
func (self Primitive) HasFinalizer() bool       { return false }

func (self Primitive) Default() *Constant {
    switch self {
        case Bool     : return Const(false, self)
        case Signed   : return Const(int64(0), self)
        case Unsigned : return Const(uint64(0), self)
        case Float    : return Const(0.0, self)
        case Char     : return Const(rune(0), self)
        default       : return Const(nil, self)
    }
}

// Struct is a record layout. Fields may themselves be aggregates, in which
// case they are stored inline.
type Struct struct {
    Name      string
    Flds      []Field
    Finalizer bool
}

func NewStruct(name string, fields ...Field) *Struct {
    return &Struct{Name: name, Flds: fields}
}

func (self *Struct) String() string             { return self.Name }
func (self *Struct) IsVoid() bool               { return false }
func (self *Struct) IsPointer() bool            { return false }
func (self *Struct) PointeeIsAggregate() bool   { return false }
func (self *Struct) Pointee() Type              { return nil }
func (self *Struct) Fields() []Field            { return self.Flds }
func (self *Struct) HasFinalizer() bool         { return self.Finalizer }
func (self *Struct) Default() *Constant         { return Const(nil, self) }

// Field returns the named field, if any.
func (self *Struct) Field(name string) (Field, bool) {
    for _, f := range self.Flds {
        if f.Name == name {
            return f, true
        }
    }
    return Field{}, false
}

// Array is a fixed-length aggregate, its items are named "item0", "item1", ...
type Array struct {
    Of  Type
    Len int
}

func ItemName(i int) string {
    return fmt.Sprintf("item%d", i)
}

func (self *Array) String() string {
    return fmt.Sprintf("[%d]%s", self.Len, self.Of)
}

func (self *Array) IsVoid() bool             { return false }
func (self *Array) IsPointer() bool          { return false }
func (self *Array) PointeeIsAggregate() bool { return false }
func (self *Array) Pointee() Type            { return nil }
func (self *Array) HasFinalizer() bool       { return false }
func (self *Array) Default() *Constant       { return Const(nil, self) }

func (self *Array) Fields() []Field {
    ret := make([]Field, self.Len)
    for i := range ret {
        ret[i] = Field{Name: ItemName(i), T: self.Of}
    }
    return ret
}

// Ptr is a pointer to a value of type To.
type Ptr struct {
    To Type
}

func PtrTo(t Type) *Ptr {
    return &Ptr{To: t}
}

func (self *Ptr) String() string             { return "*" + self.To.String() }
func (self *Ptr) IsVoid() bool               { return false }
func (self *Ptr) IsPointer() bool            { return true }
func (self *Ptr) PointeeIsAggregate() bool   { return IsAggregate(self.To) }
func (self *Ptr) Pointee() Type              { return self.To }
func (self *Ptr) Fields() []Field            { return nil }
func (self *Ptr) HasFinalizer() bool         { return false }
func (self *Ptr) Default() *Constant         { return Const(nil, self) }

// IsAggregate reports whether values of t have fields.
func IsAggregate(t Type) bool {
    switch t.(type) {
        case *Struct : return true
        case *Array  : return true
        default      : return false
    }
}

// TypesEqual compares pointers and arrays structurally, and everything
// else by identity.
func TypesEqual(a Type, b Type) bool {
    if a == b {
        return true
    }

    /* structural types */
    switch x := a.(type) {
        case *Ptr: {
            y, ok := b.(*Ptr)
            return ok && TypesEqual(x.To, y.To)
        }
        case *Array: {
            y, ok := b.(*Array)
            return ok && x.Len == y.Len && TypesEqual(x.Of, y.Of)
        }
        default: {
            return false
        }
    }
}

// ExceptionClass is a node in the exception class hierarchy.
type ExceptionClass struct {
    Name string
    Base *ExceptionClass
}

// Exception is the root of every exception class hierarchy.
var Exception = &ExceptionClass{Name: "Exception"}

func NewExceptionClass(name string, base *ExceptionClass) *ExceptionClass {
    if base == nil {
        base = Exception
    }
    return &ExceptionClass{Name: name, Base: base}
}

func (self *ExceptionClass) String() string {
    return self.Name
}

func (self *ExceptionClass) IsSubclassOf(cls *ExceptionClass) bool {
    for p := self; p != nil; p = p.Base {
        if p == cls {
            return true
        }
    }
    return false
}

// ExcTypeField is the field of an exception instance that holds its class.
const ExcTypeField = "typeptr"

// Object is a heap allocated aggregate, either prebuilt and referenced by a
// Constant, or created by the interpreter.
type Object struct {
    T      Type
    Parent *Object
    Fields map[string]interface{}
}

// NewObject creates a zero-initialized object, nested aggregates are
// allocated inline as child objects.
func NewObject(t Type) *Object {
    ret := &Object {
        T      : t,
        Fields : make(map[string]interface{}, len(t.Fields())),
    }

    /* initialize every field */
    for _, f := range t.Fields() {
        if IsAggregate(f.T) {
            sub := NewObject(f.T)
            sub.Parent = ret
            ret.Fields[f.Name] = sub
        } else {
            ret.Fields[f.Name] = f.T.Default().V
        }
    }

    /* all done */
    return ret
}

func (self *Object) String() string {
    var sb strings.Builder
    sb.WriteString(self.T.String())
    sb.WriteByte('{')

    /* dump fields in declaration order */
    for i, f := range self.T.Fields() {
        if i != 0 {
            sb.WriteString(", ")
        }
        fmt.Fprintf(&sb, "%s: %v", f.Name, self.Fields[f.Name])
    }

    /* all done */
    sb.WriteByte('}')
    return sb.String()
}
