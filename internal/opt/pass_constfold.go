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
    `errors`
    `sync/atomic`

    `github.com/cloudwego/cfgopt/internal/interp`
    `github.com/cloudwego/cfgopt/ir`
    `github.com/tliron/commonlog`
)

var foldLog = commonlog.GetLogger("cfgopt.constfold")

// FoldCount is the total number of folded operations.
var FoldCount int64

// DefaultFoldBudget bounds the whole-function evaluation of pure calls.
const DefaultFoldBudget = 1000

var _FoldExcluded = map[string]bool {
    ir.OpMalloc       : true,
    ir.OpSetField     : true,
    ir.OpGetField     : true,
    ir.OpGetSubstruct : true,
    ir.OpGetArrayItem : true,
    ir.OpSetArrayItem : true,
    ir.OpKeepAlive    : true,
    ir.OpDirectCall   : true,
    ir.OpIndirectCall : true,
    ir.OpDebugPrint   : true,
    ir.OpCastPointer  : true,
    ir.OpYield        : true,
    "resume_point"    : true,
}

// ConstFold evaluates operations whose arguments are all constants, and
// direct calls to side-effect free graphs with constant arguments.
type ConstFold struct {
    Eval   ir.Evaluator
    Budget int
}

type _Folder struct {
    eval   ir.Evaluator
    budget int
    pure   map[*ir.Graph]bool
}

func (self ConstFold) Apply(g *ir.Graph) bool {
    fd := &_Folder {
        eval   : self.Eval,
        budget : self.Budget,
        pure   : make(map[*ir.Graph]bool),
    }

    /* default evaluator and budget */
    if fd.eval == nil {
        fd.eval = interp.Primitives{}
    }
    if fd.budget <= 0 {
        fd.budget = DefaultFoldBudget
    }

    /* fold every block */
    nb := 0
    for _, bb := range g.Blocks() {
        nb += fd.foldBlock(bb)
    }

    /* update the counter */
    if atomic.AddInt64(&FoldCount, int64(nb)); nb != 0 {
        foldLog.Debugf("%s: folded %d operations", g.Name, nb)
    }
    return nb != 0
}

func (self *_Folder) foldBlock(bb *ir.Block) int {
    nb := 0
    ins := bb.Ops
    subst := make(map[*ir.Variable]ir.Value)

    /* fold operations in order, so constants flow forward */
    bb.Ops = make([]*ir.Operation, 0, len(ins))
    for i, op := range ins {
        op.Args = substArgs(op.Args, subst)

        /* keep the operations that cannot be folded */
        cc := self.fold(op)
        if cc == nil {
            bb.AddOp(op)
            continue
        }

        /* the guarded operation could not raise after all */
        if nb++; i == len(ins) - 1 && bb.CanRaise() {
            bb.Unguard()
        }

        /* replace with the constant */
        subst[op.Result] = cc
    }

    /* nothing changed */
    if nb == 0 {
        return 0
    }

    /* substitute into the exits */
    for _, ln := range bb.Exits {
        ln.Args = substArgs(ln.Args, subst)
    }

    /* constant switch selects one exit */
    if bb.ExitSwitch = substValue(bb.ExitSwitch, subst); ir.AsConst(bb.ExitSwitch) != nil && !bb.CanRaise() {
        bb.FoldSwitch()
    }

    /* all done */
    return nb
}

func constArgs(args []ir.Value) ([]*ir.Constant, bool) {
    ret := make([]*ir.Constant, len(args))
    for i, v := range args {
        if ret[i] = ir.AsConst(v); ret[i] == nil {
            return nil, false
        }
    }
    return ret, true
}

func (self *_Folder) fold(op *ir.Operation) *ir.Constant {
    cc, ok := constArgs(op.Args)
    if !ok {
        return nil
    }

    /* calls to pure graphs are evaluated entirely */
    if op.Name == ir.OpDirectCall {
        return self.call(op, cc)
    } else if _FoldExcluded[op.Name] {
        return nil
    }

    /* evaluation errors leave the operation unchanged */
    ret, err := self.eval.Evaluate(op.Name, cc, op.Result.T)
    if err != nil {
        foldLog.Debugf("cannot fold %s: %s", op, err)
        return nil
    }

    /* all done */
    return ret
}

func (self *_Folder) call(op *ir.Operation, args []*ir.Constant) *ir.Constant {
    fn := op.Callee()
    if fn == nil || !self.isPure(fn) {
        return nil
    }

    /* unpack the arguments */
    vals := make([]interface{}, len(args) - 1)
    for i, c := range args[1:] {
        vals[i] = c.V
    }

    /* evaluate under the budget */
    it := interp.New(self.eval)
    it.Budget = self.budget
    ret, err := it.Call(fn, vals...)

    /* raising or long-running calls are not folded */
    if err != nil {
        if errors.Is(err, interp.ErrBudgetExceeded) {
            foldLog.Debugf("cannot fold %s: budget of %d operations exceeded", op, self.budget)
        }
        return nil
    }

    /* all done */
    return ir.Const(ret, op.Result.T)
}

// isPure reports whether every operation of g can be folded, or is a direct
// call to such a graph. Recursive graphs are never pure.
func (self *_Folder) isPure(g *ir.Graph) bool {
    if v, ok := self.pure[g]; ok {
        return v
    }

    /* assume impure while checking */
    self.pure[g] = false
    for _, op := range g.Operations() {
        if op.Name == ir.OpDirectCall {
            if fn := op.Callee(); fn == nil || !self.isPure(fn) {
                return false
            }
        } else if _FoldExcluded[op.Name] {
            return false
        }
    }

    /* all operations are side-effect free */
    self.pure[g] = true
    return true
}
