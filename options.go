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
	"fmt"
	"math"

	"github.com/cloudwego/cfgopt/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

const (
	_MaxWorkers = 256
)

// WithInlineThreshold sets the cost above which a graph is never inlined.
//
// Increasing of this option makes the inliner more aggressive, which removes
// more calls at the cost of larger graphs, and vice versa.
//
// Set this option to "0" disables inlining entirely.
//
// The default value of this option is "32.4".
func WithInlineThreshold(threshold float64) Option {
	if threshold < 0 || math.IsNaN(threshold) {
		panic(fmt.Sprintf("cfgopt: invalid inline threshold: %g", threshold))
	} else {
		return func(o *opts.Options) { o.InlineThreshold = threshold }
	}
}

// WithMallocRemoval enables or disables scalar replacement of allocations.
func WithMallocRemoval(enable bool) Option {
	return func(o *opts.Options) { o.RunMallocRemoval = enable }
}

// WithConstantFolding enables or disables constant folding and propagation.
func WithConstantFolding(enable bool) Option {
	return func(o *opts.Options) { o.RunConstantFolding = enable }
}

// WithMergeIfBlocks enables or disables merging chains of equality tests
// into switches.
func WithMergeIfBlocks(enable bool) Option {
	return func(o *opts.Options) { o.MergeIfBlocks = enable }
}

// WithFoldBudget sets the maximum number of operations executed when a call
// to a side-effect free graph is evaluated at compile time.
//
// The default value of this option is "1000".
func WithFoldBudget(budget int) Option {
	if budget <= 0 {
		panic(fmt.Sprintf("cfgopt: invalid fold budget: %d", budget))
	} else {
		return func(o *opts.Options) { o.FoldBudget = budget }
	}
}

// WithMaxIterations caps the number of malloc removal and inlining rounds.
//
// The default value of this option is "8".
func WithMaxIterations(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("cfgopt: invalid iteration count: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxIterations = n }
	}
}

// WithCheckGraphs validates every graph after every pass.
//
// This value can also be configured with the `CFGOPT_CHECK_GRAPHS`
// environment variable.
func WithCheckGraphs(enable bool) Option {
	return func(o *opts.Options) { o.CheckGraphs = enable }
}

// WithWorkers sets the number of goroutines used by per-graph passes.
//
// The default value "1" runs everything on the calling goroutine.
func WithWorkers(n int) Option {
	if n <= 0 || n > _MaxWorkers {
		panic(fmt.Sprintf("cfgopt: invalid worker count: %d", n))
	} else {
		return func(o *opts.Options) { o.Workers = n }
	}
}

// SetInlineThreshold sets the default inline threshold for all pipeline runs
// from now on.
//
// This value can also be configured with the `CFGOPT_INLINE_THRESHOLD`
// environment variable.
//
// Returns the old opts.InlineThreshold value.
func SetInlineThreshold(threshold float64) float64 {
	threshold, opts.InlineThreshold = opts.InlineThreshold, threshold
	return threshold
}
