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
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/cloudwego/cfgopt"
	"github.com/cloudwego/cfgopt/debug"
	"github.com/cloudwego/cfgopt/internal/interp"
	"github.com/cloudwego/cfgopt/internal/irtext"
	"github.com/cloudwego/cfgopt/internal/opts"
	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var (
	threshold  = flag.Float64("threshold", opts.InlineThreshold, "inline threshold, 0 disables inlining")
	noMalloc   = flag.Bool("no-malloc", false, "disable malloc removal")
	noFold     = flag.Bool("no-fold", false, "disable constant folding and propagation")
	noMerge    = flag.Bool("no-merge", false, "disable merging of comparison chains")
	budget     = flag.Int("budget", opts.FoldBudget, "operation budget of compile-time calls")
	iterations = flag.Int("iterations", opts.MaxIterations, "maximum malloc removal / inlining rounds")
	check      = flag.Bool("check", opts.CheckGraphs, "validate every graph after every pass")
	workers    = flag.Int("workers", opts.Workers, "worker goroutines for per-graph passes")
	verbose    = flag.Int("v", 0, "log verbosity")
	output     = flag.String("o", "", "output file (default: stdout)")
	run        = flag.String("run", "", "run a graph before and after optimizing, as name:arg,arg,...")
	stats      = flag.Bool("stats", false, "print optimizer statistics")
)

var (
	done   = color.New(color.FgGreen)
	failed = color.New(color.FgRed)
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cfgopt [flags] <file.ir>")
		flag.PrintDefaults()
	}

	/* exactly one input file */
	if flag.Parse(); flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	/* configure the logging backend */
	path := flag.Arg(0)
	commonlog.Configure(*verbose, nil)

	/* read the source */
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
		os.Exit(1)
	}

	/* parse the graphs */
	mod, err := irtext.Parse(path, string(source))
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(path, string(source), err))
		os.Exit(1)
	}

	/* optimize them */
	startTime := time.Now()
	if err = cfgopt.Optimize(mod.Graphs, options()...); err != nil {
		failed.Fprintf(os.Stderr, "Optimization failed: %s\n", err)
		os.Exit(1)
	}

	/* write the result */
	text := irtext.Format(mod.Graphs)
	if *output == "" {
		fmt.Print(text)
	} else if err = os.WriteFile(*output, []byte(text), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write file: %v\n", err)
		os.Exit(1)
	}

	/* compare against the original graphs if requested */
	if *run != "" && !compare(path, string(source), mod) {
		os.Exit(1)
	}

	/* dump the statistics */
	if *stats {
		st := debug.GetStats()
		fmt.Fprintf(os.Stderr, "mallocs removed: %d\n", st.Malloc.Count)
		fmt.Fprintf(os.Stderr, "calls inlined:   %d\n", st.Inline.Count)
		fmt.Fprintf(os.Stderr, "ops folded:      %d\n", st.Constant.Folded)
		fmt.Fprintf(os.Stderr, "inputs replaced: %d\n", st.Constant.Propagated)
		fmt.Fprintf(os.Stderr, "chains merged:   %d\n", st.Chain.Count)
	}

	/* all done */
	done.Fprintf(os.Stderr, "Optimized %s in %s\n", path, time.Since(startTime))
}

func options() []cfgopt.Option {
	return []cfgopt.Option{
		cfgopt.WithInlineThreshold(*threshold),
		cfgopt.WithMallocRemoval(!*noMalloc),
		cfgopt.WithConstantFolding(!*noFold),
		cfgopt.WithMergeIfBlocks(!*noMerge),
		cfgopt.WithFoldBudget(*budget),
		cfgopt.WithMaxIterations(*iterations),
		cfgopt.WithCheckGraphs(*check),
		cfgopt.WithWorkers(*workers),
	}
}

func compare(path string, source string, mod *irtext.Module) bool {
	name, args, err := parseRun(*run)
	if err != nil {
		failed.Fprintf(os.Stderr, "Invalid -run value: %s\n", err)
		return false
	}

	/* the original graphs */
	orig, err := irtext.Parse(path, source)
	if err != nil {
		failed.Fprintf(os.Stderr, "Cannot reload %s: %s\n", path, err)
		return false
	} else if orig.Graph(name) == nil {
		failed.Fprintf(os.Stderr, "No such graph: %s\n", name)
		return false
	}

	/* run both versions */
	want, werr := interp.New(nil).Call(orig.Graph(name), args...)
	got, gerr := interp.New(nil).Call(mod.Graph(name), args...)
	fmt.Fprintf(os.Stderr, "%s%v = %s\n", name, args, result(got, gerr))

	/* they must agree */
	if result(want, werr) != result(got, gerr) {
		failed.Fprintf(os.Stderr, "Mismatch: %s before optimizing\n", result(want, werr))
		return false
	} else {
		return true
	}
}

func result(v interface{}, err error) string {
	var exc *interp.Raised
	if errors.As(err, &exc) {
		return "raised " + exc.Class.Name
	} else if err != nil {
		return "error: " + err.Error()
	} else {
		return fmt.Sprint(v)
	}
}

func parseRun(spec string) (string, []interface{}, error) {
	var args []interface{}
	name, list, _ := strings.Cut(spec, ":")

	/* no arguments */
	if list == "" {
		return name, nil, nil
	}

	/* integers, floats or booleans */
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			args = append(args, v)
		} else if v, err := strconv.ParseFloat(s, 64); err == nil {
			args = append(args, v)
		} else if v, err := strconv.ParseBool(s); err == nil {
			args = append(args, v)
		} else {
			return "", nil, fmt.Errorf("invalid argument %q", s)
		}
	}

	/* all done */
	return name, args, nil
}

func formatError(path string, source string, err error) string {
	var pe participle.Error
	var se *irtext.SyntaxError

	/* find the position */
	var msg string
	var line, column int
	if errors.As(err, &se) {
		msg, line, column = se.Reason, se.Pos.Line, se.Pos.Column
	} else if errors.As(err, &pe) {
		msg, line, column = pe.Message(), pe.Position().Line, pe.Position().Column
	} else {
		return color.RedString("error") + ": " + err.Error() + "\n"
	}

	/* the offending line */
	var lineContent string
	if lines := strings.Split(source, "\n"); line-1 < len(lines) && line-1 >= 0 {
		lineContent = lines[line-1]
	}

	// Prepare the underline
	marker := strings.Repeat(" ", max(0, column-1)) + "^"
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	return fmt.Sprintf(
		"%s: %s\n   ┌─ %s:%d:%d\n   │\n%3d│%s\n   │%s\n\n",
		red("error"),
		msg,
		path, line, column,
		line, lineContent,
		bold(marker),
	)
}
