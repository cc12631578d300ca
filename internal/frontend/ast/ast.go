// Package ast is the frontend's abstract syntax tree for the C-like
// source language: a small node set (Program, FuncDecl, Stmt, Expr)
// carrying a participle Position on every node, with a recursive
// String() pretty-printer per node.
package ast

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// TypeName is a surface type: "int", "float", "void", or an array of
// one of those ("int[10]").
type TypeName struct {
	Pos    lexer.Position
	Name   string `@("int" | "float" | "void")`
	ArrLen *int   `[ "[" @Int "]" ]`
}

func (t *TypeName) String() string {
	if t.ArrLen != nil {
		return fmt.Sprintf("%s[%d]", t.Name, *t.ArrLen)
	}
	return t.Name
}

// Program is the translation unit: a sequence of global variable
// declarations and function declarations/definitions.
type Program struct {
	Pos   lexer.Position
	Decls []*TopDecl `@@*`
}

type TopDecl struct {
	Pos  lexer.Position
	Func *FuncDecl      `  @@`
	Var  *GlobalVarDecl `| @@`
}

// GlobalVarDecl declares a module-level scalar or array, optionally
// with a constant initializer.
type GlobalVarDecl struct {
	Pos  lexer.Position
	Type *TypeName    `@@`
	Name string       `@Ident`
	Init *Initializer `[ "=" @@ ] ";"`
}

// Initializer is either a scalar constant expression or a brace list
// (nested, for array initializers).
type Initializer struct {
	Pos    lexer.Position
	List   []*Initializer `  "{" [ @@ { "," @@ } ] "}"`
	Scalar *Expr          `| @@`
}

// FuncDecl is a function declaration (no body, ends in ";") or
// definition (a Block body). Distinguished from GlobalVarDecl at
// parse time by the trailing "(" after the name.
type FuncDecl struct {
	Pos    lexer.Position
	Ret    *TypeName `@@`
	Name   string    `@Ident "("`
	Params []*Param  `[ @@ { "," @@ } ] ")"`
	Body   *Block    `( @@ | ";" )`
}

type Param struct {
	Pos  lexer.Position
	Type *TypeName `@@`
	Name string    `@Ident`
}

// Block is a brace-delimited statement sequence.
type Block struct {
	Pos   lexer.Position
	Stmts []*Stmt `"{" @@* "}"`
}

// Stmt is the closed variant of statement forms.
type Stmt struct {
	Pos      lexer.Position
	VarDecl  *VarDecl      `  @@`
	If       *IfStmt       `| @@`
	While    *WhileStmt    `| @@`
	For      *ForStmt      `| @@`
	Return   *ReturnStmt   `| @@`
	Break    *BreakStmt    `| @@`
	Continue *ContinueStmt `| @@`
	Block    *Block        `| @@`
	ExprStmt *ExprStmt     `| @@`
}

type VarDecl struct {
	Pos  lexer.Position
	Type *TypeName `@@`
	Name string    `@Ident`
	Init *Expr     `[ "=" @@ ] ";"`
}

type IfStmt struct {
	Pos  lexer.Position
	Cond *Expr  `"if" "(" @@ ")"`
	Then *Block `@@`
	Else *Block `[ "else" @@ ]`
}

type WhileStmt struct {
	Pos  lexer.Position
	Cond *Expr  `"while" "(" @@ ")"`
	Body *Block `@@`
}

// ForStmt's Init and Post clauses reuse ExprStmt's bare (no-";") form
// and Cond is a plain Expr, so the for-header supplies the separating
// ";" tokens itself.
type ForStmt struct {
	Pos  lexer.Position
	Init *SimpleStmt `"for" "(" [ @@ ] ";"`
	Cond *Expr       `[ @@ ] ";"`
	Post *SimpleStmt `[ @@ ] ")"`
	Body *Block      `@@`
}

// SimpleStmt is an assignment or bare expression without a trailing
// semicolon, shared by ExprStmt and the for-header clauses.
type SimpleStmt struct {
	Pos      lexer.Position
	Left     *Expr  `@@`
	AssignOp string `( @"="`
	Right    *Expr  `  @@ )?`
}

type ReturnStmt struct {
	Pos   lexer.Position
	Value *Expr `"return" [ @@ ] ";"`
}

type BreakStmt struct {
	Pos   lexer.Position
	Break string `"break" ";"`
}

type ContinueStmt struct {
	Pos      lexer.Position
	Continue string `"continue" ";"`
}

// ExprStmt is a SimpleStmt terminated by ";": an assignment or a bare
// expression (a call used for side effect).
type ExprStmt struct {
	Pos    lexer.Position
	Simple *SimpleStmt `@@ ";"`
}

// Expr is a Pratt-style precedence-climbing expression tree flattened
// into participle's left-recursion-free alternation form: each level
// names the operators it binds and recurses into the next tighter
// level.
type Expr struct {
	Pos lexer.Position
	Or  *OrExpr `@@`
}

type OrExpr struct {
	Pos  lexer.Position
	Left *AndExpr   `@@`
	Ops  []string   `( @"||"`
	Rest []*AndExpr `  @@ )*`
}

type AndExpr struct {
	Pos  lexer.Position
	Left *EqExpr   `@@`
	Ops  []string  `( @"&&"`
	Rest []*EqExpr `  @@ )*`
}

type EqExpr struct {
	Pos  lexer.Position
	Left *RelExpr   `@@`
	Ops  []string   `( @( "==" | "!=" )`
	Rest []*RelExpr `  @@ )*`
}

type RelExpr struct {
	Pos  lexer.Position
	Left *AddExpr   `@@`
	Ops  []string   `( @( "<=" | ">=" | "<" | ">" )`
	Rest []*AddExpr `  @@ )*`
}

type AddExpr struct {
	Pos  lexer.Position
	Left *MulExpr   `@@`
	Ops  []string   `( @( "+" | "-" )`
	Rest []*MulExpr `  @@ )*`
}

type MulExpr struct {
	Pos  lexer.Position
	Left *UnaryExpr   `@@`
	Ops  []string     `( @( "*" | "/" | "%" )`
	Rest []*UnaryExpr `  @@ )*`
}

type UnaryExpr struct {
	Pos     lexer.Position
	Op      string       `(  @( "-" | "!" )`
	Inner   *UnaryExpr   `   @@`
	Postfix *PostfixExpr `| @@ )`
}

type PostfixExpr struct {
	Pos     lexer.Position
	Primary *Primary `@@`
	Index   []*Expr  `( "[" @@ "]" )*`
}

type Primary struct {
	Pos   lexer.Position
	Call  *CallExpr `  @@`
	Float *float64  `| @Float`
	Int   *int64    `| @Int`
	Ident *string   `| @Ident`
	Paren *Expr     `| "(" @@ ")"`
}

type CallExpr struct {
	Pos  lexer.Position
	Name string  `@Ident "("`
	Args []*Expr `[ @@ { "," @@ } ] ")"`
}

// String pretty-prints a parsed Program. Kept small and mainly
// useful for the CLI's --dump-ast flag.
func (p *Program) String() string {
	var b strings.Builder
	for _, d := range p.Decls {
		if d.Func != nil {
			b.WriteString(d.Func.Ret.String() + " " + d.Func.Name + "(...)\n")
		} else if d.Var != nil {
			b.WriteString(d.Var.Type.String() + " " + d.Var.Name + ";\n")
		}
	}
	return b.String()
}
