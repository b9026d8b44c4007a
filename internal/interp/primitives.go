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

package interp

import (
    `github.com/cloudwego/cfgopt/ir`
)

type _Primitive func(op string, args []interface{}) (interface{}, error)

type _Scalar interface {
    ~int64 | ~uint64 | ~float64 | ~rune | ~bool
}

type _Number interface {
    ~int64 | ~uint64 | ~float64
}

func unary[T _Scalar, R any](fn func(T) R) _Primitive {
    return func(op string, args []interface{}) (interface{}, error) {
        if len(args) != 1 {
            return nil, eop(op, "expect 1 argument, got %d", len(args))
        } else if x, ok := args[0].(T); !ok {
            return nil, eop(op, "invalid operand %#v", args[0])
        } else {
            return fn(x), nil
        }
    }
}

func binary[T _Scalar, R any](fn func(T, T) R) _Primitive {
    return func(op string, args []interface{}) (interface{}, error) {
        if len(args) != 2 {
            return nil, eop(op, "expect 2 arguments, got %d", len(args))
        }

        /* both operands must have the same kind */
        x, ok1 := args[0].(T)
        y, ok2 := args[1].(T)

        /* check for operands */
        if !ok1 || !ok2 {
            return nil, eop(op, "invalid operands %#v and %#v", args[0], args[1])
        } else {
            return fn(x, y), nil
        }
    }
}

func divide[T _Number](fn func(T, T) T) _Primitive {
    return func(op string, args []interface{}) (interface{}, error) {
        if len(args) != 2 {
            return nil, eop(op, "expect 2 arguments, got %d", len(args))
        }

        /* both operands must have the same kind */
        x, ok1 := args[0].(T)
        y, ok2 := args[1].(T)

        /* check for operands and divisor */
        if !ok1 || !ok2 {
            return nil, eop(op, "invalid operands %#v and %#v", args[0], args[1])
        } else if y == 0 {
            return nil, raise(ZeroDivisionError, op)
        } else {
            return fn(x, y), nil
        }
    }
}

func comparisons[T int64 | uint64 | float64 | rune](prefix string, tab map[string]_Primitive) {
    tab[prefix + "_eq"] = binary(func(a T, b T) bool { return a == b })
    tab[prefix + "_ne"] = binary(func(a T, b T) bool { return a != b })
    tab[prefix + "_lt"] = binary(func(a T, b T) bool { return a < b })
    tab[prefix + "_le"] = binary(func(a T, b T) bool { return a <= b })
    tab[prefix + "_gt"] = binary(func(a T, b T) bool { return a > b })
    tab[prefix + "_ge"] = binary(func(a T, b T) bool { return a >= b })
}

func arithmetics[T int64 | uint64 | float64](prefix string, tab map[string]_Primitive) {
    tab[prefix + "_add"] = binary(func(a T, b T) T { return a + b })
    tab[prefix + "_sub"] = binary(func(a T, b T) T { return a - b })
    tab[prefix + "_mul"] = binary(func(a T, b T) T { return a * b })
}

func pointers(op string, args []interface{}) (interface{}, error) {
    switch op {
        case "ptr_iszero"  : return len(args) == 1 && isNull(args[0]), nil
        case "ptr_nonzero" : return len(args) == 1 && !isNull(args[0]), nil
    }

    /* binary pointer comparisons */
    if len(args) != 2 {
        return nil, eop(op, "expect 2 arguments, got %d", len(args))
    } else if eq := isNull(args[0]) && isNull(args[1]) || args[0] == args[1]; op == "ptr_eq" {
        return eq, nil
    } else {
        return !eq, nil
    }
}

func isNull(v interface{}) bool {
    if v == nil {
        return true
    } else if p, ok := v.(*ir.Object); ok && p == nil {
        return true
    } else {
        return false
    }
}

func exceptionMatch(op string, args []interface{}) (interface{}, error) {
    if len(args) != 2 {
        return nil, eop(op, "expect 2 arguments, got %d", len(args))
    }

    /* both must be exception classes */
    x, ok1 := args[0].(*ir.ExceptionClass)
    y, ok2 := args[1].(*ir.ExceptionClass)

    /* check the class hierarchy */
    if !ok1 || !ok2 {
        return nil, eop(op, "invalid operands %#v and %#v", args[0], args[1])
    } else {
        return x.IsSubclassOf(y), nil
    }
}

func identity(op string, args []interface{}) (interface{}, error) {
    if len(args) != 1 {
        return nil, eop(op, "expect 1 argument, got %d", len(args))
    } else {
        return args[0], nil
    }
}

var _PrimitiveTab = func() map[string]_Primitive {
    ret := map[string]_Primitive {
        ir.OpSameAs         : identity,
        ir.OpExceptionMatch : exceptionMatch,
        "ptr_eq"            : pointers,
        "ptr_ne"            : pointers,
        "ptr_iszero"        : pointers,
        "ptr_nonzero"       : pointers,
        "bool_not"          : unary(func(v bool) bool { return !v }),
        "int_neg"           : unary(func(v int64) int64 { return -v }),
        "int_invert"        : unary(func(v int64) int64 { return ^v }),
        "int_is_true"       : unary(func(v int64) bool { return v != 0 }),
        "uint_is_true"      : unary(func(v uint64) bool { return v != 0 }),
        "float_neg"         : unary(func(v float64) float64 { return -v }),
        "float_is_true"     : unary(func(v float64) bool { return v != 0 }),
        "int_and"           : binary(func(a int64, b int64) int64 { return a & b }),
        "int_or"            : binary(func(a int64, b int64) int64 { return a | b }),
        "int_xor"           : binary(func(a int64, b int64) int64 { return a ^ b }),
        "int_lshift"        : binary(func(a int64, b int64) int64 { return a << uint64(b & 63) }),
        "int_rshift"        : binary(func(a int64, b int64) int64 { return a >> uint64(b & 63) }),
        "int_floordiv"      : divide(func(a int64, b int64) int64 { return a / b }),
        "int_mod"           : divide(func(a int64, b int64) int64 { return a % b }),
        "uint_floordiv"     : divide(func(a uint64, b uint64) uint64 { return a / b }),
        "uint_mod"          : divide(func(a uint64, b uint64) uint64 { return a % b }),
        "float_truediv"     : divide(func(a float64, b float64) float64 { return a / b }),
        "int_abs"           : unary(func(v int64) int64 { if v < 0 { return -v } else { return v } }),
        "cast_bool_to_int"  : unary(func(v bool) int64 { if v { return 1 } else { return 0 } }),
        "cast_int_to_float" : unary(func(v int64) float64 { return float64(v) }),
        "cast_float_to_int" : unary(func(v float64) int64 { return int64(v) }),
        "cast_int_to_uint"  : unary(func(v int64) uint64 { return uint64(v) }),
        "cast_uint_to_int"  : unary(func(v uint64) int64 { return int64(v) }),
        "cast_char_to_int"  : unary(func(v rune) int64 { return int64(v) }),
        "cast_int_to_char"  : unary(func(v int64) rune { return rune(v) }),
    }

    /* typed comparison families */
    comparisons[int64]("int", ret)
    comparisons[uint64]("uint", ret)
    comparisons[float64]("float", ret)
    comparisons[rune]("char", ret)
    comparisons[rune]("unichar", ret)

    /* typed arithmetic families */
    arithmetics[int64]("int", ret)
    arithmetics[uint64]("uint", ret)
    arithmetics[float64]("float", ret)
    return ret
}()

// Primitives evaluates side-effect-free operations on constants.
type Primitives struct{}

// Supports reports whether op is in the primitive table.
func (Primitives) Supports(op string) bool {
    _, ok := _PrimitiveTab[op]
    return ok
}

func (Primitives) Evaluate(op string, args []*ir.Constant, result ir.Type) (*ir.Constant, error) {
    var ok bool
    var fn _Primitive

    /* lookup the primitive */
    if fn, ok = _PrimitiveTab[op]; !ok {
        return nil, eop(op, "not a primitive operation")
    }

    /* unpack the constants */
    vals := make([]interface{}, len(args))
    for i, c := range args {
        vals[i] = c.V
    }

    /* evaluate the operation */
    if ret, err := fn(op, vals); err != nil {
        return nil, err
    } else {
        return ir.Const(ret, result), nil
    }
}
