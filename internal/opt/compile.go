/*
 * Copyright 2022 ByteDance Inc.
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

package opt

import (
    `fmt`
    `sync`

    `github.com/bytedance/gopkg/util/gopool`
    `github.com/cloudwego/cfgopt/internal/opts`
    `github.com/cloudwego/cfgopt/ir`
    `github.com/tliron/commonlog`
)

var pipeLog = commonlog.GetLogger("cfgopt.pipeline")

// PassError occures when a pass leaves a graph in a malformed state, or
// finds it malformed. It wraps the *ir.GraphError.
type PassError struct {
    Pass  string
    Graph string
    Err   error
}

func (self *PassError) Error() string {
    return fmt.Sprintf("PassError(%s, %s): %s", self.Pass, self.Graph, self.Err)
}

func (self *PassError) Unwrap() error {
    return self.Err
}

// Pass rewrites one graph in place, and reports whether it changed.
type Pass interface {
    Apply(*ir.Graph) bool
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

var Cleanups = [...]PassDescriptor {
    { Name: "Intermediate Block Joining"    , Pass: new(JoinBlocks) },
    { Name: "Trivial Dead Code Elimination" , Pass: new(TDCE) },
}

type _Pipeline struct {
    opts   opts.Options
    eval   ir.Evaluator
    graphs []*ir.Graph
}

// Optimize runs the whole pipeline over graphs. Only structural violations
// are reported, every other failure is local to its pass.
func Optimize(graphs []*ir.Graph, o opts.Options, eval ir.Evaluator) error {
    p := &_Pipeline {
        opts   : o,
        eval   : eval,
        graphs : graphs,
    }
    return p.run()
}

func (self *_Pipeline) run() error {
    var err error
    var rt bool

    /* the input must be well-formed */
    if err = self.each("Graph Validation", func(g *ir.Graph) bool { ir.MustCheckGraph(g); return false }); err != nil {
        return err
    }

    /* malloc removal and inlining expose opportunities for each other */
    for i := 0; i < self.opts.MaxIterations; i++ {
        if rt, err = self.iterate(); err != nil {
            return err
        } else if !rt {
            break
        }
    }

    /* clean up after inlining */
    for _, p := range Cleanups {
        if err = self.each(p.Name, p.Pass.Apply); err != nil {
            return err
        }
    }

    /* unify the variable names */
    if err = self.renameVariables(); err != nil {
        return err
    }

    /* fold and propagate constants, then merge the comparison chains */
    if err = self.foldConstants(); err != nil {
        return err
    }
    if err = self.mergeChains(); err != nil {
        return err
    }

    /* final cleanup */
    for _, p := range Cleanups {
        if err = self.each(p.Name, p.Pass.Apply); err != nil {
            return err
        }
    }

    /* all done */
    return nil
}

func (self *_Pipeline) iterate() (bool, error) {
    var n int
    var rt bool
    var mu sync.Mutex

    /* scalar replacement, graph by graph */
    if self.opts.RunMallocRemoval {
        err := self.each("Malloc Removal", func(g *ir.Graph) bool {
            if nb := RemoveMallocs(g); nb == 0 {
                return false
            } else {
                mu.Lock()
                rt = true
                mu.Unlock()
                return true
            }
        })

        /* check for errors */
        if err != nil {
            return false, err
        }
    }

    /* greedy inlining over the whole program */
    if self.opts.CanInline() {
        err := self.serial("Inlining", nil, func() {
            n = Inliner {
                Threshold : self.opts.InlineThreshold,
                Check     : self.opts.CheckGraphs,
            }.Apply(self.graphs)
        })

        /* check for errors */
        if err != nil {
            return false, err
        }
    }

    /* inlining made progress */
    if n != 0 {
        rt = true
        pipeLog.Infof("inlined %d call sites", n)
    }

    /* all done */
    return rt, nil
}

func (self *_Pipeline) renameVariables() error {
    return self.each("SSA Renaming", func(g *ir.Graph) bool {
        if err := (SSARename{}).Apply(g); err != nil {
            panic(err)
        } else {
            return true
        }
    })
}

func (self *_Pipeline) foldConstants() error {
    if !self.opts.RunConstantFolding {
        return nil
    }

    /* folding reads callee bodies, so it never runs in parallel */
    cf := ConstFold {
        Eval   : self.eval,
        Budget : self.opts.FoldBudget,
    }

    /* fold and propagate to a fixpoint */
    for _, g := range self.graphs {
        err := self.serial("Constant Folding", g, func() {
            for cf.Apply(g) || (ConstProp{}).Apply(g) {
                self.validate(g)
            }
        })

        /* check for errors */
        if err != nil {
            return err
        }
    }

    /* all done */
    return nil
}

func (self *_Pipeline) mergeChains() error {
    if !self.opts.MergeIfBlocks {
        return nil
    } else {
        return self.each("Chain Merging", (ChainMerge{}).Apply)
    }
}

func (self *_Pipeline) validate(g *ir.Graph) {
    if self.opts.CheckGraphs {
        ir.MustCheckGraph(g)
    }
}

// guard runs fn, turning a *ir.GraphError panic into a *PassError. Any other
// panic is returned as is, to be raised again by the caller.
func (self *_Pipeline) guard(name string, g *ir.Graph, fn func()) (pv interface{}, err error) {
    defer func() {
        if v := recover(); v != nil {
            if e, ok := v.(*ir.GraphError); !ok {
                pv = v
            } else if g == nil {
                err = &PassError{Pass: name, Graph: e.Graph, Err: e}
            } else {
                err = &PassError{Pass: name, Graph: g.Name, Err: e}
            }
        }
    }()
    fn()
    return nil, nil
}

func (self *_Pipeline) serial(name string, g *ir.Graph, fn func()) error {
    pv, err := self.guard(name, g, fn)
    if pv != nil {
        panic(pv)
    }
    return err
}

// each applies a per-graph pass to every graph, on a worker pool if needed.
func (self *_Pipeline) each(name string, fn func(*ir.Graph) bool) error {
    var wg sync.WaitGroup
    var pv = make([]interface{}, len(self.graphs))
    var errs = make([]error, len(self.graphs))

    /* the pass body, with validation */
    body := func(g *ir.Graph) func() {
        return func() {
            if fn(g) {
                self.validate(g)
            }
        }
    }

    /* run serially if possible */
    if !self.opts.Parallel() || len(self.graphs) < 2 {
        for _, g := range self.graphs {
            if err := self.serial(name, g, body(g)); err != nil {
                return err
            }
        }
        return nil
    }

    /* dispatch to the worker pool */
    pool := gopool.NewPool("cfgopt", int32(self.opts.Workers), gopool.NewConfig())
    for i, g := range self.graphs {
        wg.Add(1)
        pool.Go(func() {
            defer wg.Done()
            pv[i], errs[i] = self.guard(name, g, body(g))
        })
    }

    /* wait for all the graphs */
    wg.Wait()
    for i := range self.graphs {
        if pv[i] != nil {
            panic(pv[i])
        } else if errs[i] != nil {
            return errs[i]
        }
    }

    /* all done */
    return nil
}
