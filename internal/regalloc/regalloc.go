package regalloc

import "rvcc/internal/lir"

// Allocate runs register allocation over every defined function in m:
// ABI setup, then the int allocator, then the float allocator, each
// to completion (restarting on any actual spill). UsedCalleeSaved,
// filled in per function once coloring is final, is consulted by
// internal/frame to size the callee-saved save/restore scaffolding in
// the prologue/epilogue.
func Allocate(m *lir.Module) {
	for _, fn := range m.Functions {
		if fn.IsDeclare {
			continue
		}
		AllocateFunction(fn)
	}
}

// AllocateFunction runs the full allocation pipeline for one function.
func AllocateFunction(fn *lir.Function) {
	setupABI(fn)
	colorClass(fn, false, IntRegs)
	colorClass(fn, true, FloatRegs)
	fn.UsedCalleeSaved = usedCalleeSaved(fn)
}

// usedCalleeSaved scans every Variable's final color and returns the
// set of callee-saved physical registers actually assigned, so
// internal/frame only saves/restores what the function really
// clobbers.
func usedCalleeSaved(fn *lir.Function) []string {
	seen := map[string]bool{}
	var out []string
	note := func(reg string) {
		if reg == "" || seen[reg] {
			return
		}
		if contains(CalleeSavedInt, reg) || contains(CalleeSavedFloat, reg) {
			seen[reg] = true
			out = append(out, reg)
		}
	}
	for _, v := range fn.Vars {
		note(v.Reg)
	}
	for _, p := range fn.Params {
		note(p.Reg)
	}
	return out
}
