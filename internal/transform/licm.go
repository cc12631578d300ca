package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// LICM hoists instructions whose operands are
// all defined outside the loop (or are themselves already hoisted)
// into the loop's preheader. Div/Mod are excluded even when their
// operands are invariant — hoisting past a guard that currently skips
// a zero divisor would change which inputs reach the instruction, so
// they are left for the strength-reduction pass to handle in place.
// A Call hoists when its callee's effect summary is state-free; a
// Load hoists when its address is invariant and the alias analysis
// proves nothing in the loop can write the loaded location.
type LICM struct{}

func (LICM) Name() string { return "LICM" }

func (LICM) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	lf := cache.Loops(fn)
	alias := cache.Alias(fn)
	effects := cache.Effects(fn.Module)
	changed := false

	for _, l := range lf.AllLoops() {
		if l.Preheader == nil {
			continue // needs LoopSimplifyForm first
		}
		if hoistInvariants(l, alias, effects) {
			changed = true
		}
	}

	if changed {
		fn.RefreshCFG()
		cache.SetDirty(fn)
	}
	return changed
}

func hoistInvariants(l *analysis.Loop, alias *analysis.AliasInfo, effects *analysis.EffectsInfo) bool {
	changed := false
	invariant := map[*ssa.Instruction]bool{}
	before := l.Preheader.Terminator()

	progress := true
	for progress {
		progress = false
		for _, b := range l.BlockSlice() {
			for _, inst := range append([]*ssa.Instruction{}, b.Instructions...) {
				if invariant[inst] || !hoistable(inst, l, alias, effects) {
					continue
				}
				if !allOperandsInvariant(inst, l, invariant) {
					continue
				}
				invariant[inst] = true
				moveToPreheader(b, inst, l.Preheader, before)
				changed = true
				progress = true
			}
		}
	}
	return changed
}

func hoistable(inst *ssa.Instruction, l *analysis.Loop, alias *analysis.AliasInfo, effects *analysis.EffectsInfo) bool {
	switch inst.Op {
	case ssa.OpAlloc, ssa.OpStore, ssa.OpPhi,
		ssa.OpDiv, ssa.OpMod, ssa.OpFDiv, ssa.OpFMod:
		return false
	case ssa.OpCall:
		if inst.Callee == nil {
			return false
		}
		e := effects.Of(inst.Callee)
		return e.IsFree() && e.NoState() && !e.MemoryRead
	case ssa.OpLoad:
		return loadIsInvariant(inst, l, alias, effects)
	default:
		return !inst.IsTerminator()
	}
}

// loadIsInvariant reports whether nothing in the loop can write the
// location inst reads: no Store to a possibly-aliasing address, and
// no Call whose callee writes memory at all.
func loadIsInvariant(inst *ssa.Instruction, l *analysis.Loop, alias *analysis.AliasInfo, effects *analysis.EffectsInfo) bool {
	addr := inst.Operands[0].Value
	for _, b := range l.BlockSlice() {
		for _, other := range b.Instructions {
			switch other.Op {
			case ssa.OpStore:
				if alias.MayAlias(addr, other.Operands[0].Value) {
					return false
				}
			case ssa.OpCall:
				if other.Callee == nil {
					return false
				}
				e := effects.Of(other.Callee)
				if e.MemoryWrite || e.HasSideEffect {
					return false
				}
			}
		}
	}
	return true
}

func allOperandsInvariant(inst *ssa.Instruction, l *analysis.Loop, invariant map[*ssa.Instruction]bool) bool {
	for _, u := range inst.Operands {
		if v, ok := u.Value.(*ssa.Instruction); ok {
			if l.Contains(v.Block) && !invariant[v] {
				return false
			}
		}
	}
	return true
}

func moveToPreheader(from *ssa.Block, inst *ssa.Instruction, preheader *ssa.Block, before *ssa.Instruction) {
	for idx, cur := range from.Instructions {
		if cur == inst {
			from.Instructions = append(from.Instructions[:idx], from.Instructions[idx+1:]...)
			break
		}
	}
	preheader.InsertBefore(before, inst)
}
