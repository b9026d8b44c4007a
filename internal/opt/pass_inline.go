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
    `math`
    `sync/atomic`

    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/ir`
    `github.com/oleiade/lane`
    `github.com/tliron/commonlog`
)

var inlineLog = commonlog.GetLogger("cfgopt.inline")

/* operations that may raise, and the class they raise */
var _RaisingOps = map[string]*ir.ExceptionClass {
    "int_floordiv"    : interp.ZeroDivisionError,
    "int_mod"         : interp.ZeroDivisionError,
    "uint_floordiv"   : interp.ZeroDivisionError,
    "uint_mod"        : interp.ZeroDivisionError,
    "float_truediv"   : interp.ZeroDivisionError,
    ir.OpGetField     : interp.NullPointerError,
    ir.OpSetField     : interp.NullPointerError,
    ir.OpGetSubstruct : interp.NullPointerError,
    ir.OpGetArrayItem : interp.NullPointerError,
    ir.OpSetArrayItem : interp.NullPointerError,
    ir.OpDirectCall   : ir.Exception,
    ir.OpIndirectCall : ir.Exception,
}

// InlineCount is the total number of inlined call sites.
var InlineCount int64

// RecursionError occures when a graph can reach itself through the call
// graph. Such graphs are never inlined.
type RecursionError struct {
    Graph string
}

func (self *RecursionError) Error() string {
    return fmt.Sprintf("RecursionError(%s): graph is recursive", self.Graph)
}

// CannotInline occures when a call site cannot be substituted.
type CannotInline struct {
    Caller string
    Callee string
    Reason string
}

func (self *CannotInline) Error() string {
    return fmt.Sprintf("CannotInline(%s into %s): %s", self.Callee, self.Caller, self.Reason)
}

// Inliner greedily inlines the cheapest graphs into all of their callers,
// until the cheapest remaining graph costs more than Threshold.
type Inliner struct {
    Threshold float64
    Check     bool
}

type _InlineState struct {
    cg      *CallGraph
    pq      *lane.PQueue
    cost    map[*ir.Graph]float64
    valid   map[*ir.Graph]bool
    queued  map[*ir.Graph]bool
}

func priorityOf(cost float64) int {
    if math.IsInf(cost, 1) || cost > 1e12 {
        return math.MaxInt
    } else {
        return int(cost * 1000)
    }
}

func (self *_InlineState) push(g *ir.Graph) {
    if !self.valid[g] {
        self.valid[g] = true
        self.cost[g] = InliningHeuristic(g, len(self.cg.Callers(g)))
    }
    self.pq.Push(g, priorityOf(self.cost[g]))
    self.queued[g] = true
}

func (self *_InlineState) pop() *ir.Graph {
    v, _ := self.pq.Pop()
    g := v.(*ir.Graph)
    delete(self.queued, g)
    return g
}

// refresh recomputes every stale cost in the queue, and reports whether any
// of them dropped below the threshold.
func (self *_InlineState) refresh(threshold float64) bool {
    var ret bool
    var buf []*ir.Graph

    /* drain the queue */
    for !self.pq.Empty() {
        buf = append(buf, self.pop())
    }

    /* recompute and push back */
    for _, g := range buf {
        stale := !self.valid[g]
        self.push(g)
        ret = ret || (stale && self.cost[g] < threshold)
    }

    /* all done */
    return ret
}

// Apply runs the greedy inlining loop over graphs, and returns the number of
// inlined call sites.
func (self Inliner) Apply(graphs []*ir.Graph) int {
    ret := 0
    st := &_InlineState {
        cg     : NewCallGraph(graphs),
        pq     : lane.NewPQueue(lane.MINPQ),
        cost   : make(map[*ir.Graph]float64),
        valid  : make(map[*ir.Graph]bool),
        queued : make(map[*ir.Graph]bool),
    }

    /* every graph with callers is a candidate, with a lazily computed cost */
    for _, g := range graphs {
        if len(st.cg.Callers(g)) != 0 {
            st.pq.Push(g, 0)
            st.queued[g] = true
        }
    }

    /* greedy loop */
    for !st.pq.Empty() {
        v, _ := st.pq.Head()
        g := v.(*ir.Graph)

        /* recompute stale costs before trusting them */
        if !st.valid[g] {
            st.push(st.pop())
            continue
        }

        /* the cheapest candidate is too expensive, unless some stale cost dropped */
        if st.cost[g] >= self.Threshold {
            if st.refresh(self.Threshold) {
                continue
            } else {
                break
            }
        }

        /* recursive graphs are never inlined */
        if st.pop(); st.cg.Reaches(g, g) {
            inlineLog.Debugf("%s", &RecursionError{Graph: g.Name})
            continue
        }

        /* inline into every caller */
        inlineLog.Infof("inlining %s (cost %.2f) into %d caller(s)", g.Name, st.cost[g], len(st.cg.Callers(g)))
        for _, caller := range append([]*ir.Graph(nil), st.cg.Callers(g)...) {
            n, err := InlineFunction(g, caller)

            /* the graph is changed even if only some of the call sites are inlined */
            if n != 0 {
                ret += n
                self.update(st, caller)
            }

            /* inlining failures are local */
            if err != nil {
                inlineLog.Debugf("%s", err)
            }
        }
    }

    /* all done */
    return ret
}

func (self Inliner) update(st *_InlineState, caller *ir.Graph) {
    JoinBlocks{}.Apply(caller)
    st.cg.Invalidate(caller)

    /* the cost of the caller is stale */
    st.valid[caller] = false

    /* so are the costs of its callees, their caller count may have changed */
    for _, p := range st.cg.Callees(caller) {
        st.valid[p] = false
    }

    /* validate the rewritten graph */
    if self.Check {
        ir.MustCheckGraph(caller)
    }
}

// InlineFunction inlines every direct call of callee in caller, and returns
// the number of inlined call sites.
func InlineFunction(callee *ir.Graph, caller *ir.Graph) (int, error) {
    if callee == caller {
        return 0, &RecursionError{Graph: callee.Name}
    }

    /* directly recursive graphs would never finish inlining */
    for _, op := range callee.Operations() {
        if op.Callee() == callee {
            return 0, &RecursionError{Graph: callee.Name}
        }
    }

    /* inline every call site */
    n := 0
    for {
        bb, i := findCallSite(caller, callee)
        if bb == nil {
            break
        }

        /* substitute the call */
        if err := inlineCallSite(caller, bb, i, callee); err != nil {
            return n, err
        } else {
            n++
        }
    }

    /* update the counter */
    atomic.AddInt64(&InlineCount, int64(n))
    return n, nil
}

func findCallSite(caller *ir.Graph, callee *ir.Graph) (*ir.Block, int) {
    for _, bb := range caller.Blocks() {
        for i, op := range bb.Ops {
            if op.Callee() == callee {
                return bb, i
            }
        }
    }
    return nil, -1
}

// liveAfter lists the variables defined in bb before the operation at
// index and used after it.
func liveAfter(bb *ir.Block, index int) []*ir.Variable {
    return liveBetween(bb, index, index)
}

// liveBetween lists the variables defined by the inputs of bb and its first
// n operations, and used by the operations after the one at index.
func liveBetween(bb *ir.Block, n int, index int) []*ir.Variable {
    var ret []*ir.Variable
    var def = make(map[*ir.Variable]bool)
    var vis = make(map[*ir.Variable]bool)

    /* variables defined so far */
    for _, v := range bb.Inputs {
        def[v] = true
    }
    for _, op := range bb.Ops[:n] {
        def[op.Result] = true
    }

    /* visit a single value */
    use := func(v ir.Value) {
        if p := ir.AsVar(v); p != nil && def[p] && !vis[p] {
            vis[p] = true
            ret = append(ret, p)
        }
    }

    /* used by the remaining operations */
    for _, op := range bb.Ops[index + 1:] {
        for _, v := range op.Args {
            use(v)
        }
    }

    /* used by the exits */
    use(bb.ExitSwitch)
    for _, ln := range bb.Exits {
        for _, v := range ln.Args {
            use(v)
        }
    }

    /* all done */
    return ret
}

func substValue(v ir.Value, subst map[*ir.Variable]ir.Value) ir.Value {
    if p := ir.AsVar(v); p == nil {
        return v
    } else if nv, ok := subst[p]; ok {
        return nv
    } else {
        return v
    }
}

func substArgs(args []ir.Value, subst map[*ir.Variable]ir.Value) []ir.Value {
    ret := make([]ir.Value, len(args))
    for i, v := range args {
        ret[i] = substValue(v, subst)
    }
    return ret
}

type _Inlining struct {
    caller   *ir.Graph
    callee   *ir.Graph
    after    *ir.Block
    live     []*ir.Variable
    index    map[*ir.Variable]int
    guarded  bool
    handlers []*ir.Link
    cascade  *ir.Block
    vars     map[*ir.Variable]*ir.Variable
    blocks   map[*ir.Block]*ir.Block
    passon   map[*ir.Block][]*ir.Variable
}

func inlineCallSite(caller *ir.Graph, bb *ir.Block, index int, callee *ir.Graph) error {
    op := bb.Ops[index]
    args := op.Args[1:]

    /* check the arity */
    if len(args) != len(callee.StartBlock.Inputs) {
        return &CannotInline {
            Caller: caller.Name,
            Callee: callee.Name,
            Reason: fmt.Sprintf("passing %d arguments to a graph with %d parameters", len(args), len(callee.StartBlock.Inputs)),
        }
    }

    /* create the inlining context */
    cx := &_Inlining {
        caller  : caller,
        callee  : callee,
        live    : liveAfter(bb, index),
        index   : make(map[*ir.Variable]int),
        guarded : bb.CanRaise() && index == len(bb.Ops) - 1,
        vars    : make(map[*ir.Variable]*ir.Variable),
        blocks  : make(map[*ir.Block]*ir.Block),
        passon  : make(map[*ir.Block][]*ir.Variable),
    }

    /* exception handlers of the call site */
    if cx.guarded {
        cx.handlers = bb.Exits[1:]
    }

    /* index the live variables */
    for i, v := range cx.live {
        cx.index[v] = i
    }

    /* split the block after the call, copy the callee, and jump into the copy */
    cx.split(bb, index)
    cx.copyGraph()
    bb.Ops = bb.Ops[:index]
    bb.ExitSwitch = nil
    bb.CloseBlock(ir.NewLink(cx.blocks[callee.StartBlock], append(append([]ir.Value(nil), args...), vars(cx.live)...)...))
    return nil
}

func vars(vv []*ir.Variable) []ir.Value {
    ret := make([]ir.Value, len(vv))
    for i, v := range vv {
        ret[i] = v
    }
    return ret
}

func (self *_Inlining) split(bb *ir.Block, index int) {
    op := bb.Ops[index]
    rv := op.Result.Copy()

    /* the continuation receives the return value and the live variables */
    subst := map[*ir.Variable]ir.Value { op.Result: rv }
    self.after = ir.NewBlock(rv)

    /* copy the live variables */
    for _, v := range self.live {
        nv := v.Copy()
        subst[v] = nv
        self.after.Inputs = append(self.after.Inputs, nv)
    }

    /* move the remaining operations */
    for _, p := range bb.Ops[index + 1:] {
        p.Args = substArgs(p.Args, subst)
        self.after.AddOp(p)
    }

    /* a guarded call continues with the normal exit only */
    if self.guarded {
        self.after.CloseBlock(ir.NewLink(bb.Exits[0].Target, substArgs(bb.Exits[0].Args, subst)...))
        return
    }

    /* move all the exits */
    for _, ln := range bb.Exits {
        ln.Args = substArgs(ln.Args, subst)
    }

    /* the exit switch moves with them */
    self.after.ExitSwitch = substValue(bb.ExitSwitch, subst)
    self.after.CloseBlock(bb.Exits...)
}

func (self *_Inlining) copyVar(v *ir.Variable) *ir.Variable {
    if v == nil {
        return nil
    } else if nv, ok := self.vars[v]; ok {
        return nv
    } else {
        nv = v.Copy()
        self.vars[v] = nv
        return nv
    }
}

func (self *_Inlining) copyValue(v ir.Value) ir.Value {
    if p := ir.AsVar(v); p != nil {
        return self.copyVar(p)
    } else {
        return v
    }
}

func (self *_Inlining) copyArgs(args []ir.Value) []ir.Value {
    ret := make([]ir.Value, len(args))
    for i, v := range args {
        ret[i] = self.copyValue(v)
    }
    return ret
}

func (self *_Inlining) copyPassOn() []*ir.Variable {
    ret := make([]*ir.Variable, len(self.live))
    for i, v := range self.live {
        ret[i] = v.Copy()
    }
    return ret
}

func (self *_Inlining) copyGraph() {
    bbs := self.callee.Blocks()

    /* create all the blocks first, every block also passes on the live variables */
    for _, bb := range bbs {
        if bb != self.callee.ReturnBlock && bb != self.callee.ExceptBlock {
            nb := ir.NewBlock()
            pv := self.copyPassOn()

            /* copy the inputs */
            for _, v := range bb.Inputs {
                nb.Inputs = append(nb.Inputs, self.copyVar(v))
            }

            /* append the pass-on variables */
            nb.Inputs = append(nb.Inputs, pv...)
            self.blocks[bb] = nb
            self.passon[nb] = pv
        }
    }

    /* copy the operations and exits */
    for _, bb := range bbs {
        if nb, ok := self.blocks[bb]; ok {
            self.copyBlock(bb, nb)
        }
    }
}

// catching reports whether exceptions raised inside the callee must be
// routed to the handlers of the call site.
func (self *_Inlining) catching() bool {
    return self.guarded && len(self.handlers) != 0
}

func (self *_Inlining) copyBlock(bb *ir.Block, nb *ir.Block) {
    cur := nb
    subst := make(map[*ir.Variable]ir.Value)

    /* copy the operations, splitting after every one that may raise */
    for i, op := range bb.Ops {
        cls, raising := _RaisingOps[op.Name]
        cur.AddOp(ir.NewOperation(op.Name, self.copyVar(op.Result), substArgs(self.copyArgs(op.Args), subst)...))

        /* the guarded operation keeps the handlers of the callee */
        if raising && self.catching() && !(bb.CanRaise() && i == len(bb.Ops) - 1) {
            cur = self.guardRaising(cur, cls, liveBetween(bb, i + 1, i), subst)
        }
    }

    /* copy the exits */
    exits := make([]*ir.Link, 0, len(bb.Exits) + 1)
    for _, ln := range bb.Exits {
        ln = self.copyLink(bb, cur, ln)
        ln.Args = substArgs(ln.Args, subst)
        exits = append(exits, ln)
    }

    /* exceptions not handled by the callee reach the call site */
    if bb.CanRaise() && self.catching() && !catchesAll(bb) {
        exits = append(exits, self.dispatch(cur, ir.Exception))
    }

    /* close the block */
    cur.ExitSwitch = substValue(self.copyValue(bb.ExitSwitch), subst)
    cur.CloseBlock(exits...)
}

// guardRaising terminates cur after its last operation with a guard that
// routes exceptions to the call site, and returns the block that continues
// with the remaining operations.
func (self *_Inlining) guardRaising(cur *ir.Block, cls *ir.ExceptionClass, live []*ir.Variable, subst map[*ir.Variable]ir.Value) *ir.Block {
    pv := self.copyPassOn()
    next := ir.NewBlock()
    args := make([]ir.Value, 0, len(live) + len(pv))

    /* the variables still used are passed to the continuation */
    for _, v := range live {
        nv := self.copyVar(v)
        iv := nv.Copy()
        args = append(args, substValue(nv, subst))
        subst[nv] = iv
        next.Inputs = append(next.Inputs, iv)
    }

    /* so are the pass-on variables */
    args = append(args, vars(self.passon[cur])...)
    next.Inputs = append(next.Inputs, pv...)
    self.passon[next] = pv

    /* guard the raising operation */
    cur.Guard(ir.NewLink(next, args...), self.dispatch(cur, cls))
    return next
}

// dispatch creates an exception edge from bb catching cls, which selects the
// handler of the call site statically when the class is exact, and through
// the cascade otherwise.
func (self *_Inlining) dispatch(bb *ir.Block, cls *ir.ExceptionClass) *ir.Link {
    var ret = ir.NewLink(nil)
    var etype, evalue = ret.Catch(cls)

    /* select the target */
    if cls == ir.Exception {
        self.toCascade(ret, etype, evalue, self.passon[bb])
    } else if h := self.handlerOf(cls); h == nil {
        ret.Target, ret.Args = self.caller.ExceptBlock, []ir.Value { etype, evalue }
    } else {
        hl := self.handlerLink(h, etype, evalue, self.passon[bb])
        ret.Target, ret.Args = hl.Target, hl.Args
    }

    /* all done */
    return ret
}

func catchesAll(bb *ir.Block) bool {
    for _, ln := range bb.Exits[1:] {
        if cls, ok := ln.ExitCase.(*ir.ExceptionClass); ok && cls == ir.Exception {
            return true
        }
    }
    return false
}

func (self *_Inlining) handlerOf(cls *ir.ExceptionClass) *ir.Link {
    for _, h := range self.handlers {
        if cls.IsSubclassOf(h.ExitCase.(*ir.ExceptionClass)) {
            return h
        }
    }
    return nil
}

func (self *_Inlining) toCascade(ln *ir.Link, etype ir.Value, evalue ir.Value, pv []*ir.Variable) {
    if self.cascade == nil {
        self.cascade = self.buildCascade()
    }
    ln.Target = self.cascade
    ln.Args = append([]ir.Value { etype, evalue }, vars(pv)...)
}

func (self *_Inlining) copyLink(bb *ir.Block, nb *ir.Block, ln *ir.Link) *ir.Link {
    var ret *ir.Link
    var pv = vars(self.passon[nb])

    /* redirect by target */
    switch ln.Target {
        case self.callee.ReturnBlock : ret = ir.NewLink(self.after, append(self.copyArgs(ln.Args), pv...)...)
        case self.callee.ExceptBlock : ret = self.raiseLink(nb, ln)
        default                      : ret = ir.NewLink(self.blocks[ln.Target], append(self.copyArgs(ln.Args), pv...)...)
    }

    /* copy the exit case and exception variables */
    ret.ExitCase = ln.ExitCase
    ret.LastException = self.copyVar(ln.LastException)
    ret.LastExcValue = self.copyVar(ln.LastExcValue)
    return ret
}

func (self *_Inlining) raiseLink(nb *ir.Block, ln *ir.Link) *ir.Link {
    etype := self.copyValue(ln.Args[0])
    evalue := self.copyValue(ln.Args[1])

    /* not guarded, or nothing to match against, propagates to the caller */
    if !self.catching() {
        return ir.NewLink(self.caller.ExceptBlock, etype, evalue)
    }

    /* static exception class, select the handler directly */
    if cls := MatchRaise(ln); cls != nil {
        if h := self.handlerOf(cls); h != nil {
            return self.handlerLink(h, ir.ClassOf(cls), evalue, self.passon[nb])
        } else {
            return ir.NewLink(self.caller.ExceptBlock, etype, evalue)
        }
    }

    /* unknown class, dispatch dynamically */
    ret := ir.NewLink(nil)
    self.toCascade(ret, etype, evalue, self.passon[nb])
    return ret
}

func (self *_Inlining) handlerLink(h *ir.Link, etype ir.Value, evalue ir.Value, pv []*ir.Variable) *ir.Link {
    args := make([]ir.Value, len(h.Args))
    for i, v := range h.Args {
        p := ir.AsVar(v)

        /* bind the handler arguments */
        switch {
            case p == nil              : args[i] = v
            case p == h.LastException  : args[i] = etype
            case p == h.LastExcValue   : args[i] = evalue
            default                    : args[i] = pv[self.livePos(p)]
        }
    }

    /* build the new link */
    return ir.NewLink(h.Target, args...)
}

func (self *_Inlining) livePos(v *ir.Variable) int {
    if i, ok := self.index[v]; !ok {
        panic("inline: handler argument is not live across the call: " + v.String())
    } else {
        return i
    }
}

// buildCascade creates one exception_match block per handler, tried in
// order. The last one re-raises to the caller.
func (self *_Inlining) buildCascade() *ir.Block {
    nh := len(self.handlers)
    bbs := make([]*ir.Block, nh)
    cvs := make([]*ir.Variable, nh)

    /* create all the blocks */
    for i, h := range self.handlers {
        et := ir.NewVariable("etype", ir.ExcType)
        ev := ir.NewVariable("evalue", ir.ExcValue)
        bbs[i] = ir.NewBlock(append([]*ir.Variable { et, ev }, self.copyPassOn()...)...)
        cvs[i] = bbs[i].Add(ir.OpExceptionMatch, ir.Bool, et, ir.ClassOf(h.ExitCase.(*ir.ExceptionClass)))
    }

    /* link the blocks */
    for i, h := range self.handlers {
        var bb = bbs[i]
        var et = bb.Inputs[0]
        var ev = bb.Inputs[1]
        var pv = bb.Inputs[2:]
        var next *ir.Link

        /* try the next handler, or re-raise */
        if i == nh - 1 {
            next = ir.NewLink(self.caller.ExceptBlock, et, ev)
        } else {
            next = ir.NewLink(bbs[i + 1], append([]ir.Value { et, ev }, vars(pv)...)...)
        }

        /* branch on the match result */
        bb.Branch(cvs[i], next, self.handlerLink(h, et, ev, pv))
    }

    /* all done */
    return bbs[0]
}
