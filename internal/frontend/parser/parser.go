// Package parser builds the participle grammar for the compiler's
// C-like source language over internal/frontend/ast.
package parser

import (
	"github.com/alecthomas/participle/v2"

	"rvcc/internal/frontend/ast"
	"rvcc/internal/frontend/lexer"
)

var build = participle.MustBuild[ast.Program](
	participle.Lexer(lexer.Lang),
	participle.Elide("Whitespace", "Comment"),
	// Deep enough to see past an array-suffixed type and the declared
	// name to the token that splits functions from globals.
	participle.UseLookahead(8),
)

// ParseSource parses source (from the file named filename, used only
// for diagnostics) into a Program. A returned error is always a
// *participle.Error / participle.Error-compatible value so callers can
// render it with diag's caret-style formatting.
func ParseSource(filename, source string) (*ast.Program, error) {
	return build.ParseString(filename, source)
}
