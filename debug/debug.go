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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/cfgopt/internal/opt"
)

// A Stats records cumulative statistics about the optimizer, across every
// pipeline run in this process.
type Stats struct {
	Malloc   PassStats
	Inline   PassStats
	Constant ConstStats
	Chain    PassStats
}

// A PassStats records how many rewrites a pass performed.
type PassStats struct {
	Count int
}

// A ConstStats records statistics about constant folding and propagation.
type ConstStats struct {
	Folded     int
	Propagated int
}

// GetStats returns statistics of the optimizer.
func GetStats() Stats {
	return Stats{
		Malloc: PassStats{
			Count: int(atomic.LoadInt64(&opt.MallocCount)),
		},
		Inline: PassStats{
			Count: int(atomic.LoadInt64(&opt.InlineCount)),
		},
		Constant: ConstStats{
			Folded:     int(atomic.LoadInt64(&opt.FoldCount)),
			Propagated: int(atomic.LoadInt64(&opt.PropCount)),
		},
		Chain: PassStats{
			Count: int(atomic.LoadInt64(&opt.ChainCount)),
		},
	}
}
