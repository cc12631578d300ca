// Package diag renders compiler diagnostics: Rust-style caret
// formatting for recoverable, user-facing source errors, and a
// panic-based abort path for the closed set of fatal internal
// invariant violations (TypeMismatch, UnknownOpcode,
// ImmediateOutOfRange, UnknownSymbol, DivByZeroConstant,
// RegisterClassMismatch).
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Kind enumerates the fatal internal invariant violations. Every one
// of these aborts compilation immediately; they are not recoverable
// diagnostics the way a frontend syntax error is.
type Kind string

const (
	TypeMismatch          Kind = "type mismatch"
	UnknownOpcode         Kind = "unknown opcode"
	ImmediateOutOfRange   Kind = "immediate out of range"
	UnknownSymbol         Kind = "use of non-existent symbol"
	DivByZeroConstant     Kind = "division by constant zero"
	RegisterClassMismatch Kind = "register class mismatch"
)

// CoreError is a fatal, unrecoverable violation of one of the core's
// own invariants — a bug in an earlier pass, not a user-facing
// diagnostic. Raised via Fatalf and always terminates the compilation.
type CoreError struct {
	Kind    Kind
	Where   string // e.g. a function/block/instruction name
	Message string
}

func (e *CoreError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Where, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Fatalf panics with a *CoreError. A pass that discovers an invariant
// violation calls this instead of returning an error; these can never
// legitimately happen once earlier passes are correct. No caller
// recovers the panic (cmd/rvcc included), so it ends the process with
// the CoreError's message.
func Fatalf(kind Kind, where, format string, args ...interface{}) {
	panic(&CoreError{Kind: kind, Where: where, Message: fmt.Sprintf(format, args...)})
}

// SourceError is a recoverable, user-facing diagnostic anchored to a
// source position (syntax errors, undeclared identifiers, arity
// mismatches). cmd/rvcc renders the frontend's irgen.CoreError through
// this; the parser's own participle errors go through cmd/rvcc's
// reportParseError instead.
type SourceError struct {
	Filename string
	Line     int
	Column   int
	Message  string
}

// Report renders err against source with a caret-underlined layout,
// styled red/bold/dim via fatih/color.
func Report(err SourceError, source string) string {
	lines := strings.Split(source, "\n")
	var out strings.Builder

	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	out.WriteString(fmt.Sprintf("%s: %s\n", red("error"), err.Message))

	width := lineNumberWidth(err.Line)
	indent := strings.Repeat(" ", width)
	out.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), err.Filename, err.Line, err.Column))
	out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	if err.Line >= 1 && err.Line <= len(lines) {
		out.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, err.Line)), dim("│"), lines[err.Line-1]))
		marker := strings.Repeat(" ", max(0, err.Column-1)) + red("^")
		out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), marker))
	}
	out.WriteString("\n")
	return out.String()
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		return 3
	}
	return w
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Success prints a green one-line confirmation.
func Success(format string, args ...interface{}) {
	color.Green("✅ "+format, args...)
}
