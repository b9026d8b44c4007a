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
	"os"
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/cloudwego/cfgopt/internal/interp"
	"github.com/cloudwego/cfgopt/ir"
)

// Module is the result of reading one IR text file.
type Module struct {
	Graphs  []*ir.Graph
	Structs []*ir.Struct
	Classes []*ir.ExceptionClass
}

// Graph returns the named graph, or nil.
func (self *Module) Graph(name string) *ir.Graph {
	for _, g := range self.Graphs {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// SyntaxError occures when the text is malformed, or refers to undefined
// names.
type SyntaxError struct {
	Pos    lexer.Position
	Reason string
}

func (self *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", self.Pos, self.Reason)
}

func esyntax(pos lexer.Position, reason string, args ...interface{}) *SyntaxError {
	return &SyntaxError{
		Pos:    pos,
		Reason: fmt.Sprintf(reason, args...),
	}
}

// ParseFile reads the IR text at path.
func ParseFile(path string) (*Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(path, string(source))
}

// Parse reads IR text. Names are resolved after the whole file is read, so
// declarations may appear in any order.
func Parse(name string, source string) (*Module, error) {
	ast, err := parser.ParseString(name, source)
	if err != nil {
		return nil, err
	}

	/* resolve all the names */
	rs := newResolver()
	if err = rs.declare(ast); err != nil {
		return nil, err
	} else if err = rs.define(ast); err != nil {
		return nil, err
	} else {
		return rs.mod, nil
	}
}

type _Resolver struct {
	mod     *Module
	types   map[string]ir.Type
	graphs  map[string]*ir.Graph
	classes map[string]*ir.ExceptionClass
}

func newResolver() *_Resolver {
	ret := &_Resolver{
		mod:     new(Module),
		types:   make(map[string]ir.Type),
		graphs:  make(map[string]*ir.Graph),
		classes: make(map[string]*ir.ExceptionClass),
	}

	/* builtin exception classes */
	for _, cls := range []*ir.ExceptionClass{ir.Exception, interp.ZeroDivisionError, interp.NullPointerError} {
		ret.classes[cls.Name] = cls
	}

	/* all done */
	return ret
}

// declare creates every named entity, without resolving references.
func (self *_Resolver) declare(file *File) error {
	for _, d := range file.Decls {
		switch {
		case d.Struct != nil:
			if err := self.declareName(d.Struct.Pos, d.Struct.Name); err != nil {
				return err
			}
			st := &ir.Struct{Name: d.Struct.Name, Finalizer: d.Struct.Finalizer}
			self.types[st.Name] = st
			self.mod.Structs = append(self.mod.Structs, st)

		case d.Exception != nil:
			if err := self.declareName(d.Exception.Pos, d.Exception.Name); err != nil {
				return err
			}
			cls := &ir.ExceptionClass{Name: d.Exception.Name}
			self.classes[cls.Name] = cls
			self.mod.Classes = append(self.mod.Classes, cls)

		case d.Graph != nil:
			if err := self.declareName(d.Graph.Pos, d.Graph.Name); err != nil {
				return err
			}
			g := &ir.Graph{Name: d.Graph.Name}
			self.graphs[g.Name] = g
			self.mod.Graphs = append(self.mod.Graphs, g)
		}
	}
	return nil
}

func (self *_Resolver) declareName(pos lexer.Position, name string) error {
	if _, ok := ir.PrimitiveByName(name); ok {
		return esyntax(pos, "%s is a primitive type", name)
	} else if _, ok = self.types[name]; ok {
		return esyntax(pos, "duplicated declaration of %s", name)
	} else if _, ok = self.graphs[name]; ok {
		return esyntax(pos, "duplicated declaration of %s", name)
	} else if _, ok = self.classes[name]; ok {
		return esyntax(pos, "duplicated declaration of %s", name)
	} else {
		return nil
	}
}

// define fills in every declared entity.
func (self *_Resolver) define(file *File) error {
	for _, d := range file.Decls {
		var err error
		switch {
		case d.Struct != nil:
			err = self.defineStruct(d.Struct)
		case d.Exception != nil:
			err = self.defineException(d.Exception)
		}
		if err != nil {
			return err
		}
	}

	/* graphs refer to types and classes */
	for _, d := range file.Decls {
		if d.Graph != nil {
			if err := self.defineGraph(d.Graph); err != nil {
				return err
			}
		}
	}
	return nil
}

func (self *_Resolver) defineStruct(decl *StructDecl) error {
	st := self.types[decl.Name].(*ir.Struct)
	for _, f := range decl.Fields {
		if t, err := self.resolveType(f.Type); err != nil {
			return err
		} else if _, ok := st.Field(f.Name); ok {
			return esyntax(f.Pos, "duplicated field %s in struct %s", f.Name, st.Name)
		} else {
			st.Flds = append(st.Flds, ir.Field{Name: f.Name, T: t})
		}
	}
	return nil
}

func (self *_Resolver) defineException(decl *ExceptionDecl) error {
	cls := self.classes[decl.Name]
	if decl.Base == "" {
		cls.Base = ir.Exception
	} else if base, ok := self.classes[decl.Base]; !ok {
		return esyntax(decl.Pos, "undefined exception class %s", decl.Base)
	} else if base.IsSubclassOf(cls) {
		return esyntax(decl.Pos, "exception class %s inherits from itself", decl.Name)
	} else {
		cls.Base = base
	}
	return nil
}

func (self *_Resolver) resolveType(ref *TypeRef) (ir.Type, error) {
	switch {
	case ref.Pointer != nil:
		if t, err := self.resolveType(ref.Pointer); err != nil {
			return nil, err
		} else {
			return ir.PtrTo(t), nil
		}

	case ref.Array != nil:
		if n, err := strconv.Atoi(ref.Array.Len); err != nil || n < 0 {
			return nil, esyntax(ref.Pos, "invalid array length %s", ref.Array.Len)
		} else if t, err := self.resolveType(ref.Array.Of); err != nil {
			return nil, err
		} else {
			return &ir.Array{Of: t, Len: n}, nil
		}

	default:
		if t, ok := ir.PrimitiveByName(ref.Name); ok {
			return t, nil
		} else if t, ok := self.types[ref.Name]; ok {
			return t, nil
		} else {
			return nil, esyntax(ref.Pos, "undefined type %s", ref.Name)
		}
	}
}

type _Scope map[string]*ir.Variable

func (self _Scope) define(pos lexer.Position, name string, v *ir.Variable) error {
	if _, ok := self[name]; ok {
		return esyntax(pos, "variable %s is defined twice in the same block", name)
	} else {
		self[name] = v
		return nil
	}
}

func (self _Scope) clone() _Scope {
	ret := make(_Scope, len(self)+2)
	for k, v := range self {
		ret[k] = v
	}
	return ret
}

type _GraphResolver struct {
	*_Resolver
	g      *ir.Graph
	labels map[string]*ir.Block
}

func (self *_Resolver) defineGraph(decl *GraphDecl) error {
	rt, err := self.resolveType(decl.Result)
	if err != nil {
		return err
	}

	/* create all the blocks with their inputs */
	gr := &_GraphResolver{_Resolver: self, labels: make(map[string]*ir.Block)}
	scopes := make([]_Scope, len(decl.Blocks))
	blocks := make([]*ir.Block, len(decl.Blocks))

	/* the first block is the start block */
	for i, bd := range decl.Blocks {
		if bd.Label == "return" || bd.Label == "except" {
			return esyntax(bd.Pos, "%s is a reserved block label", bd.Label)
		} else if _, ok := gr.labels[bd.Label]; ok {
			return esyntax(bd.Pos, "duplicated block label %s", bd.Label)
		}

		/* block inputs */
		sc := make(_Scope)
		bb := ir.NewBlock()
		for _, p := range bd.Params {
			if t, err := self.resolveType(p.Type); err != nil {
				return err
			} else if v := ir.NewVariable(p.Name, t); sc.define(p.Pos, p.Name, v) != nil {
				return esyntax(p.Pos, "duplicated parameter %s", p.Name)
			} else {
				bb.Inputs = append(bb.Inputs, v)
			}
		}

		/* register the block */
		scopes[i] = sc
		blocks[i] = bb
		gr.labels[bd.Label] = bb
	}

	/* build the graph around the start block */
	gr.g = self.graphs[decl.Name]
	*gr.g = *ir.NewGraph(decl.Name, blocks[0], rt)
	gr.labels["return"] = gr.g.ReturnBlock
	gr.labels["except"] = gr.g.ExceptBlock

	/* fill every block */
	for i, bd := range decl.Blocks {
		if err = gr.defineBlock(bd, blocks[i], scopes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (self *_GraphResolver) defineBlock(decl *BlockDecl, bb *ir.Block, sc _Scope) error {
	for _, od := range decl.Ops {
		args, err := self.resolveArgs(od.Args, sc)
		if err != nil {
			return err
		}

		/* the result type */
		t, err := self.resolveType(od.Type)
		if err != nil {
			return err
		}

		/* define the result */
		v := ir.NewVariable(od.Result, t)
		if err = sc.define(od.Pos, od.Result, v); err != nil {
			return err
		}

		/* add the operation */
		bb.AddOp(ir.NewOperation(od.Name, v, args...))
	}

	/* terminate the block */
	return self.defineExit(decl.Exit, bb, sc)
}

func (self *_GraphResolver) defineExit(decl *ExitDecl, bb *ir.Block, sc _Scope) error {
	switch {
	case decl.Goto != nil:
		ln, err := self.resolveTarget(decl.Goto, sc)
		if err != nil {
			return err
		}
		bb.Goto(ln.Target, ln.Args...)
		return nil

	case decl.If != nil:
		return self.defineBranch(decl.If, bb, sc)

	case decl.Switch != nil:
		return self.defineSwitch(decl.Switch, bb, sc)

	default:
		return self.defineGuard(decl.Try, bb, sc)
	}
}

func (self *_GraphResolver) defineBranch(decl *IfDecl, bb *ir.Block, sc _Scope) error {
	cond, err := self.resolveArg(decl.Cond, sc)
	if err != nil {
		return err
	}

	/* both targets */
	iftrue, err := self.resolveTarget(decl.Then, sc)
	if err != nil {
		return err
	}
	iffalse, err := self.resolveTarget(decl.Else, sc)
	if err != nil {
		return err
	}

	/* two-way branch */
	bb.Branch(cond, iffalse, iftrue)
	return nil
}

func (self *_GraphResolver) defineSwitch(decl *SwitchDecl, bb *ir.Block, sc _Scope) error {
	var exits []*ir.Link
	var value ir.Value
	var err error

	/* the switch value */
	if value, err = self.resolveArg(decl.Value, sc); err != nil {
		return err
	}

	/* one link per case */
	for _, cd := range decl.Cases {
		var cv ir.Value
		var ln *ir.Link

		/* case values must be constants */
		if cv, err = self.resolveArg(cd.Value, sc); err != nil {
			return err
		} else if ir.AsConst(cv) == nil {
			return esyntax(cd.Value.Pos, "case value must be a constant")
		}

		/* the case target */
		if ln, err = self.resolveTarget(cd.Target, sc); err != nil {
			return err
		}
		exits = append(exits, ln.WithCase(ir.AsConst(cv).V))
	}

	/* the default case comes last */
	if decl.Default != nil {
		if ln, err := self.resolveTarget(decl.Default, sc); err != nil {
			return err
		} else {
			exits = append(exits, ln.WithCase(ir.Default))
		}
	}

	/* close the block */
	bb.ExitSwitch = value
	bb.CloseBlock(exits...)
	return nil
}

func (self *_GraphResolver) defineGuard(decl *TryDecl, bb *ir.Block, sc _Scope) error {
	var err error
	var normal *ir.Link
	var handlers []*ir.Link

	/* the normal exit */
	if normal, err = self.resolveTarget(decl.Normal, sc); err != nil {
		return err
	}

	/* one link per handler, exception variables are local to the link */
	for _, cd := range decl.Handlers {
		cls, ok := self.classes[cd.Class]
		if !ok {
			return esyntax(cd.Pos, "undefined exception class %s", cd.Class)
		}

		/* resolve the link with the exception variables in scope */
		ln := ir.NewLink(nil)
		et, ev := ln.Catch(cls)
		ls := sc.clone()

		/* bind the exception variables */
		if cd.EType != "" {
			et.Name, et.Hint = cd.EType, cd.EType
			ev.Name, ev.Hint = cd.EValue, cd.EValue
			if err = ls.define(cd.Pos, cd.EType, et); err != nil {
				return err
			} else if err = ls.define(cd.Pos, cd.EValue, ev); err != nil {
				return err
			}
		}

		/* resolve the target */
		tl, err := self.resolveTarget(cd.Target, ls)
		if err != nil {
			return err
		}

		/* add to handlers */
		ln.Target, ln.Args = tl.Target, tl.Args
		handlers = append(handlers, ln)
	}

	/* close the block */
	bb.Guard(normal, handlers...)
	return nil
}

func (self *_GraphResolver) resolveTarget(decl *TargetDecl, sc _Scope) (*ir.Link, error) {
	bb, ok := self.labels[decl.Label]
	if !ok {
		return nil, esyntax(decl.Pos, "undefined block label %s", decl.Label)
	}

	/* resolve the arguments */
	args, err := self.resolveArgs(decl.Args, sc)
	if err != nil {
		return nil, err
	}

	/* build the link */
	return ir.NewLink(bb, args...), nil
}

func (self *_GraphResolver) resolveArgs(decls []*ArgDecl, sc _Scope) ([]ir.Value, error) {
	ret := make([]ir.Value, len(decls))
	for i, ad := range decls {
		if v, err := self.resolveArg(ad, sc); err != nil {
			return nil, err
		} else {
			ret[i] = v
		}
	}
	return ret, nil
}

func (self *_GraphResolver) resolveArg(decl *ArgDecl, sc _Scope) (ir.Value, error) {
	switch {
	case decl.Var != "":
		if v, ok := sc[decl.Var]; ok {
			return v, nil
		} else {
			return nil, esyntax(decl.Pos, "undefined variable %s", decl.Var)
		}

	case decl.Ref != nil:
		return self.resolveRef(decl.Ref)

	case decl.Int != "":
		if v, err := strconv.ParseInt(decl.Int, 10, 64); err != nil {
			return nil, esyntax(decl.Pos, "invalid integer %s", decl.Int)
		} else {
			return ir.Int(v), nil
		}

	case decl.Uint != "":
		if v, err := strconv.ParseUint(decl.Uint[:len(decl.Uint)-1], 10, 64); err != nil {
			return nil, esyntax(decl.Pos, "invalid unsigned integer %s", decl.Uint)
		} else {
			return ir.Const(v, ir.Unsigned), nil
		}

	case decl.Float != "":
		if v, err := strconv.ParseFloat(decl.Float, 64); err != nil {
			return nil, esyntax(decl.Pos, "invalid float %s", decl.Float)
		} else {
			return ir.Const(v, ir.Float), nil
		}

	case decl.Char != "":
		if s, err := strconv.Unquote(decl.Char); err != nil || len([]rune(s)) != 1 {
			return nil, esyntax(decl.Pos, "invalid character %s", decl.Char)
		} else {
			return ir.Const([]rune(s)[0], ir.Char), nil
		}

	case decl.Bool != "":
		return ir.Boolean(decl.Bool == "true"), nil

	default:
		return self.resolveList(decl)
	}
}

// resolveList only accepts graph lists, the candidates of an indirect call.
func (self *_GraphResolver) resolveList(decl *ArgDecl) (ir.Value, error) {
	ret := make([]*ir.Graph, 0, len(decl.List))
	for _, p := range decl.List {
		if p.Ref == nil || p.Ref.Name == "" {
			return nil, esyntax(p.Pos, "list items must be graph references")
		} else if g, ok := self.graphs[p.Ref.Name]; !ok {
			return nil, esyntax(p.Pos, "undefined graph %s", p.Ref.Name)
		} else {
			ret = append(ret, g)
		}
	}
	return ir.Const(ret, ir.Void), nil
}

// resolveRef resolves %name, which is a type, a graph, an exception class,
// the null pointer, or a field name, in this order.
func (self *_GraphResolver) resolveRef(ref *TypeRef) (ir.Value, error) {
	if ref.Name == "" {
		if t, err := self.resolveType(ref); err != nil {
			return nil, err
		} else {
			return ir.TypeToken(t), nil
		}
	}

	/* named references */
	if t, ok := ir.PrimitiveByName(ref.Name); ok {
		return ir.TypeToken(t), nil
	} else if t, ok := self.types[ref.Name]; ok {
		return ir.TypeToken(t), nil
	} else if g, ok := self.graphs[ref.Name]; ok {
		return ir.FuncOf(g), nil
	} else if cls, ok := self.classes[ref.Name]; ok {
		return ir.ClassOf(cls), nil
	} else if ref.Name == "null" {
		return ir.Const(nil, ir.Void), nil
	} else {
		return ir.Symbol(ref.Name), nil
	}
}
