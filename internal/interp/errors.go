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
    `errors`
    `fmt`

    `github.com/cloudwego/cfgopt/ir`
)

var (
    ErrBudgetExceeded = errors.New("interp: operation budget exceeded")
)

var (
    ZeroDivisionError = ir.NewExceptionClass("ZeroDivisionError", nil)
    NullPointerError  = ir.NewExceptionClass("NullPointerError", nil)
)

// Raised is an exception that escaped an operation or a graph.
type Raised struct {
    Class *ir.ExceptionClass
    Value interface{}
}

func (self *Raised) Error() string {
    if self.Value == nil {
        return fmt.Sprintf("raised %s", self.Class)
    } else {
        return fmt.Sprintf("raised %s: %v", self.Class, self.Value)
    }
}

func raise(cls *ir.ExceptionClass, msg string) *Raised {
    return &Raised {
        Class: cls,
        Value: msg,
    }
}

// OpError occures when the interpreter cannot execute an operation at all.
type OpError struct {
    Op     string
    Reason string
}

func (self *OpError) Error() string {
    return fmt.Sprintf("OpError(%s): %s", self.Op, self.Reason)
}

func eop(op string, reason string, args ...interface{}) *OpError {
    return &OpError {
        Op     : op,
        Reason : fmt.Sprintf(reason, args...),
    }
}
