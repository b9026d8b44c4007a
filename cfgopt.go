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

package cfgopt

import (
    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/internal/opt`
    `github.com/cloudwego/cfgopt/internal/opts`
    `github.com/cloudwego/cfgopt/ir`
)

// Optimize rewrites graphs in place: scalar replacement of allocations and
// greedy inlining to a fixpoint, SSA renaming, constant folding and
// propagation, and merging of comparison chains.
//
// The graphs must be well-formed. Only structural invariant violations are
// returned as errors (always a *PassError), every other failure is local to
// the pass that found it and leaves that part of the graph unchanged.
func Optimize(graphs []*ir.Graph, options ...Option) error {
    return OptimizeWith(graphs, interp.Primitives{}, options...)
}

// OptimizeWith is like Optimize, but evaluates constant operations with eval.
func OptimizeWith(graphs []*ir.Graph, eval ir.Evaluator, options ...Option) error {
    o := opts.GetDefaultOptions()
    for _, fn := range options {
        fn(&o)
    }
    return opt.Optimize(graphs, o, eval)
}
