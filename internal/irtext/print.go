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

package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/cfgopt/internal/interp"
	"github.com/cloudwego/cfgopt/ir"
)

var _Keywords = map[string]bool{
	"struct": true, "exception": true, "finalizer": true, "graph": true,
	"goto": true, "if": true, "then": true, "else": true, "switch": true,
	"case": true, "default": true, "try": true, "ok": true, "catch": true,
	"as": true, "true": true, "false": true, "return": true, "except": true,
}

// Format renders graphs as IR text, preceded by the declarations of every
// struct and exception class they refer to. Prebuilt objects referenced by
// constants cannot be rendered.
func Format(graphs []*ir.Graph) string {
	var sb strings.Builder
	var dc = newDeclarations()

	/* collect the declarations */
	for _, g := range graphs {
		dc.graph(g)
	}

	/* structs first */
	for _, st := range dc.structs {
		sb.WriteString("struct ")
		sb.WriteString(st.Name)
		if st.Finalizer {
			sb.WriteString(" finalizer")
		}
		sb.WriteString(" {")
		for i, f := range st.Flds {
			if i != 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " %s: %s", f.Name, f.T)
		}
		sb.WriteString(" }\n")
	}

	/* then the exception classes */
	for _, cls := range dc.classes {
		if cls.Base == nil || cls.Base == ir.Exception {
			fmt.Fprintf(&sb, "exception %s\n", cls.Name)
		} else {
			fmt.Fprintf(&sb, "exception %s(%s)\n", cls.Name, cls.Base.Name)
		}
	}

	/* and all the graphs */
	for _, g := range graphs {
		if sb.Len() != 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(FormatGraph(g))
	}

	/* all done */
	return sb.String()
}

type _Declarations struct {
	structs []*ir.Struct
	classes []*ir.ExceptionClass
	seen    map[interface{}]bool
}

func newDeclarations() *_Declarations {
	ret := &_Declarations{seen: make(map[interface{}]bool)}
	for _, cls := range []*ir.ExceptionClass{ir.Exception, interp.ZeroDivisionError, interp.NullPointerError} {
		ret.seen[cls] = true
	}
	return ret
}

func (self *_Declarations) graph(g *ir.Graph) {
	for _, bb := range g.Blocks() {
		for _, v := range bb.Inputs {
			self.typ(v.T)
		}
		for _, op := range bb.Ops {
			self.typ(op.Result.T)
			for _, v := range op.Args {
				self.value(v)
			}
		}
		self.value(bb.ExitSwitch)
		for _, ln := range bb.Exits {
			if cls, ok := ln.ExitCase.(*ir.ExceptionClass); ok {
				self.class(cls)
			}
			for _, v := range ln.Args {
				self.value(v)
			}
		}
	}
}

func (self *_Declarations) value(v ir.Value) {
	if c := ir.AsConst(v); c != nil {
		switch x := c.V.(type) {
		case ir.Type:
			self.typ(x)
		case *ir.ExceptionClass:
			self.class(x)
		}
	}
}

func (self *_Declarations) typ(t ir.Type) {
	switch x := t.(type) {
	case *ir.Ptr:
		self.typ(x.To)
	case *ir.Array:
		self.typ(x.Of)
	case *ir.Struct:
		if !self.seen[x] {
			self.seen[x] = true
			self.structs = append(self.structs, x)
			for _, f := range x.Flds {
				self.typ(f.T)
			}
		}
	}
}

func (self *_Declarations) class(cls *ir.ExceptionClass) {
	if !self.seen[cls] {
		self.seen[cls] = true
		if cls.Base != nil {
			self.class(cls.Base)
		}
		self.classes = append(self.classes, cls)
	}
}

type _Printer struct {
	sb     strings.Builder
	names  map[*ir.Variable]string
	labels map[*ir.Block]string
}

// FormatGraph renders a single graph. Blocks are labelled in depth-first
// order, variable names are made unique within each block.
func FormatGraph(g *ir.Graph) string {
	p := &_Printer{
		names:  make(map[*ir.Variable]string),
		labels: make(map[*ir.Block]string),
	}

	/* label all the blocks */
	bbs := g.Blocks()
	for i, bb := range bbs {
		p.labels[bb] = fmt.Sprintf("bb%d", i)
	}

	/* final blocks have fixed labels */
	p.labels[g.ReturnBlock] = "return"
	p.labels[g.ExceptBlock] = "except"

	/* dump every block */
	fmt.Fprintf(&p.sb, "graph %s -> %s {\n", g.Name, g.ReturnBlock.Inputs[0].T)
	for _, bb := range bbs {
		if bb != g.ReturnBlock && bb != g.ExceptBlock {
			p.block(bb)
		}
	}

	/* all done */
	p.sb.WriteString("}\n")
	return p.sb.String()
}

func (self *_Printer) name(bb map[string]bool, v *ir.Variable) {
	name := v.Name
	if name == "" || _Keywords[name] || bb[name] {
		name = fmt.Sprintf("%s_%d", v.Hint, v.Id)
	}
	if v.Hint == "" || _Keywords[v.Hint] {
		name = fmt.Sprintf("v_%d", v.Id)
	}
	bb[name] = true
	self.names[v] = name
}

func (self *_Printer) block(bb *ir.Block) {
	used := make(map[string]bool)
	for _, v := range bb.Inputs {
		self.name(used, v)
	}
	for _, op := range bb.Ops {
		self.name(used, op.Result)
	}
	for _, ln := range bb.Exits {
		if ln.LastException != nil {
			self.name(used, ln.LastException)
			self.name(used, ln.LastExcValue)
		}
	}

	/* block header */
	fmt.Fprintf(&self.sb, "    %s(", self.labels[bb])
	for i, v := range bb.Inputs {
		if i != 0 {
			self.sb.WriteString(", ")
		}
		fmt.Fprintf(&self.sb, "%s: %s", self.names[v], v.T)
	}

	/* operations */
	self.sb.WriteString("):\n")
	for _, op := range bb.Ops {
		fmt.Fprintf(&self.sb, "        %s: %s = %s(%s)\n", self.names[op.Result], op.Result.T, op.Name, self.args(op.Args))
	}

	/* the exit */
	self.exit(bb)
}

func (self *_Printer) exit(bb *ir.Block) {
	switch {
	case bb.CanRaise():
		fmt.Fprintf(&self.sb, "        try {\n            ok: %s\n", self.target(bb.Exits[0]))
		for _, ln := range bb.Exits[1:] {
			cls := ln.ExitCase.(*ir.ExceptionClass)
			if ln.LastException == nil {
				fmt.Fprintf(&self.sb, "            catch %s: %s\n", cls.Name, self.target(ln))
			} else {
				fmt.Fprintf(&self.sb, "            catch %s as (%s, %s): %s\n", cls.Name, self.names[ln.LastException], self.names[ln.LastExcValue], self.target(ln))
			}
		}
		self.sb.WriteString("        }\n")

	case bb.ExitSwitch == nil:
		fmt.Fprintf(&self.sb, "        goto %s\n", self.target(bb.Exits[0]))

	case isBranch(bb):
		iffalse, iftrue := bb.Exits[0], bb.Exits[1]
		if iffalse.ExitCase == true {
			iffalse, iftrue = iftrue, iffalse
		}
		fmt.Fprintf(&self.sb, "        if %s then %s else %s\n", self.value(bb.ExitSwitch), self.target(iftrue), self.target(iffalse))

	default:
		fmt.Fprintf(&self.sb, "        switch %s {\n", self.value(bb.ExitSwitch))
		for _, ln := range bb.Exits {
			if ln.ExitCase == ir.Default {
				fmt.Fprintf(&self.sb, "            default: %s\n", self.target(ln))
			} else {
				fmt.Fprintf(&self.sb, "            case %s: %s\n", formatLiteral(ln.ExitCase), self.target(ln))
			}
		}
		self.sb.WriteString("        }\n")
	}
}

func isBranch(bb *ir.Block) bool {
	if len(bb.Exits) != 2 {
		return false
	}
	a, ok1 := bb.Exits[0].ExitCase.(bool)
	b, ok2 := bb.Exits[1].ExitCase.(bool)
	return ok1 && ok2 && a != b
}

func (self *_Printer) target(ln *ir.Link) string {
	if len(ln.Args) == 0 {
		return self.labels[ln.Target]
	} else {
		return self.labels[ln.Target] + "(" + self.args(ln.Args) + ")"
	}
}

func (self *_Printer) args(vv []ir.Value) string {
	ss := make([]string, len(vv))
	for i, v := range vv {
		ss[i] = self.value(v)
	}
	return strings.Join(ss, ", ")
}

func (self *_Printer) value(v ir.Value) string {
	if p := ir.AsVar(v); p == nil {
		return formatConstant(v.(*ir.Constant))
	} else if name, ok := self.names[p]; ok {
		return name
	} else {
		return p.Name
	}
}

func formatConstant(c *ir.Constant) string {
	switch v := c.V.(type) {
	case string:
		return "%" + v
	case ir.Type:
		return "%" + v.String()
	case []*ir.Graph:
		ss := make([]string, len(v))
		for i, g := range v {
			ss[i] = "%" + g.Name
		}
		return "[" + strings.Join(ss, ", ") + "]"
	default:
		return formatLiteral(c.V)
	}
}

func formatLiteral(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "%null"
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10) + "u"
	case bool:
		return strconv.FormatBool(x)
	case rune:
		return strconv.QuoteRune(x)
	case float64:
		if s := strconv.FormatFloat(x, 'f', -1, 64); strings.ContainsAny(s, ".eEnN") {
			return s
		} else {
			return s + ".0"
		}
	case *ir.Graph:
		return "%" + x.Name
	case *ir.ExceptionClass:
		return "%" + x.Name
	default:
		return fmt.Sprintf("%%<%v>", x)
	}
}
