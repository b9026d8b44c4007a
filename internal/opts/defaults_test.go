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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrDefault(t *testing.T) {
	t.Setenv("CFGOPT_TEST_INT", "")
	assert.Equal(t, 7, parseOrDefault("CFGOPT_TEST_INT", 7, 1))
	t.Setenv("CFGOPT_TEST_INT", "0x10")
	assert.Equal(t, 16, parseOrDefault("CFGOPT_TEST_INT", 7, 1))
	t.Setenv("CFGOPT_TEST_INT", "0")
	assert.Panics(t, func() { parseOrDefault("CFGOPT_TEST_INT", 7, 1) })
	t.Setenv("CFGOPT_TEST_INT", "many")
	assert.Panics(t, func() { parseOrDefault("CFGOPT_TEST_INT", 7, 1) })
}

func TestParseFloatOrDefault(t *testing.T) {
	t.Setenv("CFGOPT_TEST_FLOAT", "12.5")
	assert.Equal(t, 12.5, parseFloatOrDefault("CFGOPT_TEST_FLOAT", 1, 0))
	t.Setenv("CFGOPT_TEST_FLOAT", "-1")
	assert.Panics(t, func() { parseFloatOrDefault("CFGOPT_TEST_FLOAT", 1, 0) })
}

func TestParseBoolOrDefault(t *testing.T) {
	t.Setenv("CFGOPT_TEST_BOOL", "true")
	assert.True(t, parseBoolOrDefault("CFGOPT_TEST_BOOL", false))
	t.Setenv("CFGOPT_TEST_BOOL", "maybe")
	assert.Panics(t, func() { parseBoolOrDefault("CFGOPT_TEST_BOOL", false) })
}

func TestGetDefaultOptions(t *testing.T) {
	o := GetDefaultOptions()
	require.True(t, o.RunMallocRemoval)
	require.True(t, o.RunConstantFolding)
	require.True(t, o.MergeIfBlocks)
	assert.Equal(t, InlineThreshold, o.InlineThreshold)
	assert.Equal(t, o.InlineThreshold > 0, o.CanInline())
	o.InlineThreshold = 0
	assert.False(t, o.CanInline())
	o.Workers = 4
	assert.True(t, o.Parallel())
}
