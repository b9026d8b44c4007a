/*
 * Copyright 2021 ByteDance Inc.
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

package cfgopt

import (
    `github.com/cloudwego/cfgopt/internal/opt`
    `github.com/cloudwego/cfgopt/ir`
)

// PassError occures when a pass finds, or leaves, a graph violating a
// structural invariant. Err is always a *GraphError.
type PassError = opt.PassError

// GraphError describes the violated invariant.
type GraphError = ir.GraphError
