// Package frame implements the stack/frame manager: it assigns
// every Functional-lifetime Variable a byte offset in its function's
// stack frame, rewrites memory references whose offset falls outside
// RISC-V's 12-bit signed immediate range, and installs the
// prologue/epilogue that adjusts sp, sets up s0, and saves/restores
// ra plus whatever callee-saved registers internal/regalloc
// actually used.
package frame

import (
	"sort"

	"rvcc/internal/lir"
	"rvcc/internal/typesys"
)

// int12Min/int12Max bound RISC-V's signed 12-bit immediate, the range
// a load/store's encoded offset must fit in.
const (
	int12Min = -2048
	int12Max = 2047
)

// synthTypes backs the pseudo-types frame attaches to sp/s0/ra
// PhysVars and to any rewrite-inserted address temp; only IsFloat()
// (always false for these) is ever consulted on them.
var synthTypes = typesys.NewInterner()

// Frame records one function's stack layout: every Functional
// variable's offset relative to its own s0, the total (16-byte
// aligned) frame size, and which callee-saved registers its
// prologue/epilogue must save.
type Frame struct {
	Offsets         map[*lir.Variable]int64
	Size            int64
	UsedCalleeSaved []string

	raOffset           int64
	savedS0Offset      int64
	calleeSavedOffsets map[string]int64
}

// Run lays out and rewrites every defined function in m, in place.
func Run(m *lir.Module) {
	for _, fn := range m.Functions {
		if fn.IsDeclare {
			continue
		}
		RunFunction(fn)
	}
}

// RunFunction computes fn's Frame, rewrites its memory references to
// fit the 12-bit immediate window, and installs its prologue/epilogue.
func RunFunction(fn *lir.Function) *Frame {
	fr := computeLayout(fn)
	rewriteOffsets(fn, fr)
	addPrologueEpilogue(fn, fr)
	fn.FrameSize = int(fr.Size)
	return fr
}

// align16 rounds n up to the next multiple of 16, the RV64 psABI's
// required stack alignment at a call boundary.
func align16(n int64) int64 {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

// slotSize is the stack footprint frame gives every ordinary
// Functional variable. Using a uniform 8 bytes (rather than each
// Type's own StoreSize) keeps addressing arithmetic simple and every
// slot naturally 8-byte aligned; it costs a few wasted bytes for an i1
// or i32 local, never correctness. Arrays use their full (8-byte
// rounded) size since they must hold every element contiguously.
func slotSize(v *lir.Variable) int64 {
	sz := int64(v.Type.StoreSize())
	if v.Type.Kind() == typesys.Array {
		return align8(sz)
	}
	if sz < 8 {
		return 8
	}
	return align8(sz)
}

func align8(n int64) int64 {
	if n%8 == 0 {
		return n
	}
	return n + (8 - n%8)
}

func sortedVars(vs []*lir.Variable) []*lir.Variable {
	out := append([]*lir.Variable{}, vs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
