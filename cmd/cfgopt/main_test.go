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

package main

import (
	"errors"
	"testing"

	"github.com/cloudwego/cfgopt/internal/interp"
	"github.com/cloudwego/cfgopt/internal/irtext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRun(t *testing.T) {
	name, args, err := parseRun("fib:10, 0x10,2.5,true")
	require.NoError(t, err)
	assert.Equal(t, "fib", name)
	assert.Equal(t, []interface{}{int64(10), int64(16), 2.5, true}, args)

	/* no arguments */
	name, args, err = parseRun("main")
	require.NoError(t, err)
	assert.Equal(t, "main", name)
	assert.Empty(t, args)

	/* garbage */
	_, _, err = parseRun("main:1,two")
	assert.EqualError(t, err, `invalid argument "two"`)
}

func TestResult(t *testing.T) {
	assert.Equal(t, "42", result(int64(42), nil))
	assert.Equal(t, "raised ZeroDivisionError", result(nil, &interp.Raised{Class: interp.ZeroDivisionError}))
	assert.Equal(t, "error: boom", result(nil, errors.New("boom")))
}

func TestFormatError(t *testing.T) {
	source := "graph f -> Signed {\n    start(): goto nowhere\n}\n"
	_, err := irtext.Parse("f.ir", source)
	require.Error(t, err)

	/* the caret points into the offending line */
	msg := formatError("f.ir", source, err)
	assert.Contains(t, msg, "undefined block label nowhere")
	assert.Contains(t, msg, "f.ir:2:")
	assert.Contains(t, msg, "start(): goto nowhere")

	/* grammar errors too */
	_, err = irtext.Parse("g.ir", "graph g -> {")
	require.Error(t, err)
	assert.Contains(t, formatError("g.ir", "graph g -> {", err), "g.ir:1:")

	/* anything else is printed as is */
	assert.Contains(t, formatError("h.ir", "", errors.New("oops")), "oops")
}
