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

package opts

// Options is the configuration record of one pipeline run.
type Options struct {
	InlineThreshold    float64
	RunMallocRemoval   bool
	RunConstantFolding bool
	MergeIfBlocks      bool
	FoldBudget         int
	MaxIterations      int
	CheckGraphs        bool
	Workers            int
}

// CanInline reports whether the inliner runs at all.
func (self *Options) CanInline() bool {
	return self.InlineThreshold > 0
}

// Parallel reports whether per-graph passes are dispatched to a worker pool.
func (self *Options) Parallel() bool {
	return self.Workers > 1
}

func GetDefaultOptions() Options {
	return Options{
		InlineThreshold:    InlineThreshold,
		RunMallocRemoval:   true,
		RunConstantFolding: true,
		MergeIfBlocks:      true,
		FoldBudget:         FoldBudget,
		MaxIterations:      MaxIterations,
		CheckGraphs:        CheckGraphs,
		Workers:            Workers,
	}
}
