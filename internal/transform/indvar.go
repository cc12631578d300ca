package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// InductionVariables eliminates redundant induction variables: when a
// loop carries more than one basic induction variable and two share
// the same Step, the non-primary one only ever differs from the
// primary by the fixed offset (secondaryBase - primaryBase), the
// shape Mem2Reg leaves behind for a counter running alongside the
// loop's main index (`int j = i + k; ...; j++`). Its uses are
// rewritten in terms of the primary plus that offset, and the now
// -redundant Phi/update pair is deleted outright, since the pair
// forms a two-instruction use cycle that DeadInstEliminate's
// zero-uses worklist can never see on its own.
type InductionVariables struct{}

func (InductionVariables) Name() string { return "InductionVariables" }

func (InductionVariables) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	lf := cache.Loops(fn)
	scev := cache.SCEV(fn)
	changed := false

	for _, l := range lf.AllLoops() {
		if l.Latch == nil {
			continue
		}
		if reduceInductionVariables(fn, l, scev) {
			changed = true
		}
	}

	if changed {
		cache.SetDirty(fn)
	}
	return changed
}

func reduceInductionVariables(fn *ssa.Function, l *analysis.Loop, scev *analysis.SCEVInfo) bool {
	var ivs []*ssa.Instruction
	for _, inst := range l.Header.Instructions {
		if inst.Op != ssa.OpPhi {
			continue
		}
		if e, ok := scev.Of(inst); ok && e.Valid {
			ivs = append(ivs, inst)
		}
	}
	if len(ivs) < 2 {
		return false
	}

	primary := findPrimaryIV(l, ivs)
	primaryExpr, _ := scev.Of(primary)
	changed := false

	for _, iv := range ivs {
		if iv == primary {
			continue
		}
		expr, _ := scev.Of(iv)
		if expr.Step != primaryExpr.Step {
			continue
		}
		offset := expr.Base - primaryExpr.Base
		latchVal, _ := iv.IncomingFrom(l.Latch)
		latchAdd, _ := latchVal.(*ssa.Instruction)

		replacement := buildReplacement(fn, l, primary, offset)
		for _, u := range append([]*ssa.Use{}, iv.Uses()...) {
			if u.User == latchAdd {
				continue // keep the self-update live until the cycle check below
			}
			rewriteUse(u, replacement)
		}
		if latchAdd != nil {
			removeDeadInductionPair(iv, latchAdd)
		}
		changed = true
	}
	return changed
}

// findPrimaryIV picks the induction Phi referenced by an Icmp feeding
// one of the loop's exiting branches; any other candidate is
// considered "primary" arbitrarily (first one found) if none gates an
// exit, since the choice only affects which Phi survives.
func findPrimaryIV(l *analysis.Loop, ivs []*ssa.Instruction) *ssa.Instruction {
	ivSet := make(map[*ssa.Instruction]bool, len(ivs))
	for _, iv := range ivs {
		ivSet[iv] = true
	}
	for _, b := range l.Exiting {
		term := b.Terminator()
		if term == nil || term.Op != ssa.OpBranch {
			continue
		}
		cond, ok := term.Operands[0].Value.(*ssa.Instruction)
		if !ok || (cond.Op != ssa.OpIcmp) {
			continue
		}
		for _, u := range cond.Operands {
			if inst, ok := u.Value.(*ssa.Instruction); ok && ivSet[inst] {
				return inst
			}
		}
	}
	return ivs[0]
}

// buildReplacement materializes primary + offset once, in the header
// right before its terminator, so it dominates every block the
// secondary IV's uses could reach.
func buildReplacement(fn *ssa.Function, l *analysis.Loop, primary *ssa.Instruction, offset int64) ssa.Value {
	if offset == 0 {
		return primary
	}
	m := fn.Module
	header := l.Header
	term := header.Terminator()
	// InstBuilder.Binary appends at the block's current end; splice it
	// back before the terminator to preserve the "terminator is last"
	// invariant.
	inst := ssa.At(header).Binary(ssa.OpAdd, primary.Type(), primary, m.ConstInt(offset))
	if term != nil {
		moveBefore(header, inst, term)
	}
	return inst
}

// moveBefore relocates inst, already present somewhere in b, to sit
// directly before mark.
func moveBefore(b *ssa.Block, inst, mark *ssa.Instruction) {
	for idx, cur := range b.Instructions {
		if cur == inst {
			b.Instructions = append(b.Instructions[:idx], b.Instructions[idx+1:]...)
			break
		}
	}
	b.InsertBefore(mark, inst)
}

// removeDeadInductionPair deletes iv and its latch update when they
// form a closed two-instruction use cycle (iv's only remaining use is
// latchAdd, and latchAdd's only use is iv's own back-edge operand).
func removeDeadInductionPair(iv, latchAdd *ssa.Instruction) {
	if len(iv.Uses()) != 1 || iv.Uses()[0].User != latchAdd {
		return
	}
	if len(latchAdd.Uses()) != 1 || latchAdd.Uses()[0].User != iv {
		return
	}
	latchAdd.ClearOperands()
	latchAdd.Block.Remove(latchAdd)
	iv.ClearOperands()
	iv.Block.Remove(iv)
}
