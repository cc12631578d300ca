// Package lexer defines the participle token rules for the C-like
// source language (ints, floats, arrays, control flow, calls): an
// ordered rule list. Keywords have no rule of their own; they lex as
// Ident and the grammar matches them by literal text.
package lexer

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lang is the stateful lexer for the core's source language.
var Lang = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"Float", `[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`, nil},
		{"Int", `0[xX][0-9a-fA-F]+|[0-9]+`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Operator", `(\|\||&&|==|!=|<=|>=|\+\+|--|\+=|-=|\*=|/=|%=|[-+*/%=<>!&])`, nil},
		{"Punctuation", `[{}\[\]();,]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
