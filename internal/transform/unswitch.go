package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// LoopUnswitch: when a loop contains a Branch
// whose condition is already loop-invariant, duplicate the loop into
// a true-taken and a false-taken copy and hoist the branch above the
// loop, so the condition is tested once instead of every iteration.
// Inside each copy the unswitched branch collapses to a Jump to its
// taken side; the untaken subtree goes unreachable and later cleanup
// drops it.
//
// Because LICM always runs earlier in the pipeline, an invariant
// condition will already have been hoisted out of the loop by the
// time this pass looks for one — so the test here is simply "does
// the condition's defining block lie outside the loop". One branch per
// innermost loop is unswitched per Run; the pipeline's fixed point
// revisits until no loop has one left.
type LoopUnswitch struct{}

func (LoopUnswitch) Name() string { return "LoopUnswitch" }

func (LoopUnswitch) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	lf := cache.Loops(fn)
	changed := false

	for _, l := range lf.AllLoops() {
		if len(l.Children) != 0 || l.Preheader == nil || l.Latch == nil {
			continue
		}
		branchBlock, cond := findInvariantBranch(l)
		if branchBlock == nil {
			continue
		}
		unswitchOne(fn, l, branchBlock, cond)
		changed = true
	}

	if changed {
		fn.RefreshCFG()
		cache.SetDirty(fn)
	}
	return changed
}

// findInvariantBranch returns the first in-loop conditional Branch
// whose condition is defined outside the loop and isn't a bare
// ConstBool (constant conditions are skipped). The header's own exit
// branch is excluded: unswitching the loop-gating test would detach
// the iteration condition itself.
func findInvariantBranch(l *analysis.Loop) (*ssa.Block, ssa.Value) {
	for _, b := range l.BlockSlice() {
		term := b.Terminator()
		if term == nil || term.Op != ssa.OpBranch {
			continue
		}
		if !l.Contains(term.TrueBlock) || !l.Contains(term.FalseBlock) {
			continue // an exiting branch, not an internal one
		}
		cond := term.Operands[0].Value
		if inst, ok := cond.(*ssa.Instruction); ok && l.Contains(inst.Block) {
			continue
		}
		if _, isConst := cond.(*ssa.ConstBool); isConst {
			continue
		}
		return b, cond
	}
	return nil, nil
}

func unswitchOne(fn *ssa.Function, l *analysis.Loop, branchBlock *ssa.Block, cond ssa.Value) {
	blocks := l.BlockSlice()
	trueBM, trueVM := cloneBlocks(fn, blocks, ".uswT", nil)
	falseBM, falseVM := cloneBlocks(fn, blocks, ".uswF", nil)

	oldTerm := l.Preheader.Terminator()
	if oldTerm != nil {
		oldTerm.ClearOperands()
		l.Preheader.Remove(oldTerm)
	}
	ssa.At(l.Preheader).Branch(cond, trueBM[l.Header], falseBM[l.Header])

	// Each clone's copy of the unswitched branch becomes a Jump to its
	// taken side; the untaken subtree goes unreachable inside that cone.
	origTerm := branchBlock.Terminator()
	collapseBranch(trueVM[origTerm].(*ssa.Instruction), true)
	collapseBranch(falseVM[origTerm].(*ssa.Instruction), false)

	// Cloned header Phis kept their preheader entry pointing at the
	// real preheader, which is correct; but each exit Phi needs its
	// original in-loop incoming replaced by one entry per cone.
	for _, exitBlk := range l.Exits {
		for _, phi := range exitBlk.Phis() {
			for _, origExiting := range l.Exiting {
				val, ok := phi.IncomingFrom(origExiting)
				if !ok {
					continue
				}
				phi.RemovePhiIncoming(origExiting)
				ssa.AddIncoming(phi, trueBM[origExiting], remapThrough(val, trueVM))
				ssa.AddIncoming(phi, falseBM[origExiting], remapThrough(val, falseVM))
			}
		}
	}

	// The original loop body is now unreachable; delete it with the
	// two-step protocol so no dangling Uses survive.
	for _, b := range blocks {
		for _, inst := range append([]*ssa.Instruction{}, b.Instructions...) {
			inst.ClearOperands()
			b.Remove(inst)
		}
	}
	for _, b := range blocks {
		fn.RemoveBlock(b)
	}
}

// collapseBranch rewrites a cloned invariant Branch into a Jump to
// the side the dispatching guard already decided.
func collapseBranch(term *ssa.Instruction, takeTrue bool) {
	target := term.TrueBlock
	if !takeTrue {
		target = term.FalseBlock
	}
	blk := term.Block
	term.ClearOperands()
	blk.Remove(term)
	ssa.At(blk).Jump(target)
}

