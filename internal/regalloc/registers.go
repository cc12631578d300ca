// Package regalloc implements a Chaitin-Briggs graph-coloring
// register allocator with one instance per register class (integer,
// float): worklist liveness, an interference graph with move-related
// and non-move-related neighbor sets, and a
// simplify/coalesce/freeze/spill/select main loop with optimistic
// spilling.
package regalloc

// IntRegs is the ordered pool of general-purpose registers available
// to color virtual integer/pointer variables against.
// zero/ra/sp/gp/tp are reserved by the calling convention; s0 is
// reserved by internal/frame as the frame-base register, so it never
// appears as a colorable node. t6 is also held back, unused by
// anything this pool colors: internal/frame runs
// after allocation and needs one always-free integer scratch register
// to materialize an address that doesn't fit a load/store's 12-bit
// immediate, the same role t6/x31 plays for "la"-style pseudo-
// instruction expansion in a real RISC-V assembler.
var IntRegs = []string{
	"t0", "t1", "t2", "t3", "t4", "t5",
	"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
}

// FloatRegs is the ordered pool of floating-point registers.
var FloatRegs = []string{
	"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7",
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7", "ft8", "ft9", "ft10", "ft11",
	"fs0", "fs1", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7", "fs8", "fs9", "fs10", "fs11",
}

// ArgIntRegs/ArgFloatRegs are the first 8 ABI argument registers per
// class: integer arguments 1-8 pass in a0..a7, float arguments 1-8 in
// fa0..fa7.
var ArgIntRegs = []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"}
var ArgFloatRegs = []string{"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7"}

// RetIntReg/RetFloatReg hold a function's return value.
const RetIntReg = "a0"
const RetFloatReg = "fa0"

// CallerSavedInt/CallerSavedFloat are the registers a Call clobbers
// (t0..t6, a0..a7, ft0..ft11, fa0..fa7). Any variable live across a
// Call is artificially interfered with these, so the allocator
// prefers a callee-saved color (or a spill) for it instead.
var CallerSavedInt = []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"}
var CallerSavedFloat = []string{"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7",
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7", "ft8", "ft9", "ft10", "ft11"}

// CalleeSavedInt/CalleeSavedFloat are the registers a callee must
// preserve across its own body, s0..s11 and fs0..fs11 (s0 excluded
// here: internal/frame reserves it).
var CalleeSavedInt = []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11"}
var CalleeSavedFloat = []string{"fs0", "fs1", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7", "fs8", "fs9", "fs10", "fs11"}

func contains(regs []string, r string) bool {
	for _, x := range regs {
		if x == r {
			return true
		}
	}
	return false
}
