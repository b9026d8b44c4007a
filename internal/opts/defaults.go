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

import (
	"os"
	"strconv"
)

const (
	_DefaultInlineThreshold = 32.4 // greedy inlining stops above this cost
	_DefaultFoldBudget      = 1000 // operations per whole-function evaluation
	_DefaultMaxIterations   = 8    // malloc removal / inlining rounds
	_DefaultWorkers         = 1
)

var (
	InlineThreshold = parseFloatOrDefault("CFGOPT_INLINE_THRESHOLD", _DefaultInlineThreshold, 0)
	FoldBudget      = parseOrDefault("CFGOPT_FOLD_BUDGET", _DefaultFoldBudget, 1)
	MaxIterations   = parseOrDefault("CFGOPT_MAX_ITERATIONS", _DefaultMaxIterations, 1)
	Workers         = parseOrDefault("CFGOPT_WORKERS", _DefaultWorkers, 1)
	CheckGraphs     = parseBoolOrDefault("CFGOPT_CHECK_GRAPHS", false)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("cfgopt: invalid value for " + key)
	} else if ret := int(val); ret < min {
		panic("cfgopt: value too small for " + key)
	} else {
		return ret
	}
}

func parseFloatOrDefault(key string, def float64, min float64) float64 {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseFloat(env, 64); err != nil {
		panic("cfgopt: invalid value for " + key)
	} else if val < min {
		panic("cfgopt: value too small for " + key)
	} else {
		return val
	}
}

func parseBoolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("cfgopt: invalid value for " + key)
	} else {
		return val
	}
}
