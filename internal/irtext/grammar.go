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
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `#[^\n]*`, nil},

		// Keywords must come before identifiers
		{"Keyword", `\b(struct|exception|finalizer|graph|goto|if|then|else|switch|case|default|try|ok|catch|as|true|false)\b`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Literals
		{"Float", `-?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`, nil},
		{"Uint", `[0-9]+u\b`, nil},
		{"Int", `-?[0-9]+`, nil},
		{"Char", `'(\\[^']+|[^'\\])'`, nil},

		// Punctuation
		{"Punct", `->|[(){}\[\]:,=*%]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

type File struct {
	Pos   lexer.Position
	Decls []*Decl `@@*`
}

type Decl struct {
	Struct    *StructDecl    `  @@`
	Exception *ExceptionDecl `| @@`
	Graph     *GraphDecl     `| @@`
}

type StructDecl struct {
	Pos       lexer.Position
	Name      string       `"struct" @Ident`
	Finalizer bool         `@"finalizer"?`
	Fields    []*FieldDecl `"{" ( @@ ( "," @@ )* )? "}"`
}

type FieldDecl struct {
	Pos  lexer.Position
	Name string   `@Ident ":"`
	Type *TypeRef `@@`
}

type ExceptionDecl struct {
	Pos  lexer.Position
	Name string `"exception" @Ident`
	Base string `( "(" @Ident ")" )?`
}

type TypeRef struct {
	Pos     lexer.Position
	Pointer *TypeRef  `  "*" @@`
	Array   *ArrayRef `| @@`
	Name    string    `| @Ident`
}

type ArrayRef struct {
	Len string   `"[" @Int "]"`
	Of  *TypeRef `@@`
}

type GraphDecl struct {
	Pos    lexer.Position
	Name   string       `"graph" @Ident`
	Result *TypeRef     `"->" @@ "{"`
	Blocks []*BlockDecl `@@+ "}"`
}

type BlockDecl struct {
	Pos    lexer.Position
	Label  string       `@Ident`
	Params []*FieldDecl `"(" ( @@ ( "," @@ )* )? ")" ":"`
	Ops    []*OpDecl    `@@*`
	Exit   *ExitDecl    `@@`
}

type OpDecl struct {
	Pos    lexer.Position
	Result string     `@Ident ":"`
	Type   *TypeRef   `@@ "="`
	Name   string     `@Ident`
	Args   []*ArgDecl `"(" ( @@ ( "," @@ )* )? ")"`
}

type ExitDecl struct {
	Pos    lexer.Position
	Goto   *TargetDecl `  "goto" @@`
	If     *IfDecl     `| @@`
	Switch *SwitchDecl `| @@`
	Try    *TryDecl    `| @@`
}

type IfDecl struct {
	Cond *ArgDecl    `"if" @@`
	Then *TargetDecl `"then" @@`
	Else *TargetDecl `"else" @@`
}

type SwitchDecl struct {
	Value   *ArgDecl    `"switch" @@ "{"`
	Cases   []*CaseDecl `@@*`
	Default *TargetDecl `( "default" ":" @@ )? "}"`
}

type CaseDecl struct {
	Value  *ArgDecl    `"case" @@ ":"`
	Target *TargetDecl `@@`
}

type TryDecl struct {
	Normal   *TargetDecl  `"try" "{" "ok" ":" @@`
	Handlers []*CatchDecl `@@* "}"`
}

type CatchDecl struct {
	Pos    lexer.Position
	Class  string      `"catch" @Ident`
	EType  string      `( "as" "(" @Ident`
	EValue string      `"," @Ident ")" )?`
	Target *TargetDecl `":" @@`
}

type TargetDecl struct {
	Pos   lexer.Position
	Label string     `@Ident`
	Args  []*ArgDecl `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

type ArgDecl struct {
	Pos   lexer.Position
	Ref   *TypeRef   `  "%" @@`
	List  []*ArgDecl `| "[" ( @@ ( "," @@ )* )? "]"`
	Float string     `| @Float`
	Uint  string     `| @Uint`
	Int   string     `| @Int`
	Char  string     `| @Char`
	Bool  string     `| @( "true" | "false" )`
	Var   string     `| @Ident`
}

var parser = participle.MustBuild[File](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)
