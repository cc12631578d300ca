// Package transform implements the SSA-level optimization passes:
// Mem2Reg, binary canonicalization, dead-instruction elimination,
// loop-simplify-form, LCSSA, LICM, induction-variable canonicalization,
// loop unswitch, and constant/runtime-trip loop unroll.
//
// Each pass implements Pass and runs one ssa.Function at a time
// against the shared analysis.Cache.
package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// Pass is one SSA-level transform. Run reports whether it changed fn.
// A pass that mutates the IR calls analysis.Cache.SetDirty itself, so
// stale analyses are recomputed before the next consumer reads them.
type Pass interface {
	Name() string
	Run(fn *ssa.Function, cache *analysis.Cache) bool
}
