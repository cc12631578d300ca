package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// LCSSA puts loops in loop-closed SSA form: it rewrites loop-defined
// values so every
// use outside the loop goes through a Phi planted in one of the
// loop's (now dedicated, after LoopSimplifyForm) exit blocks, instead
// of reaching directly into the loop body. LICM and the unroll passes
// both rely on this to reason about a loop's "final value" without
// walking its interior.
type LCSSA struct{}

func (LCSSA) Name() string { return "LCSSA" }

func (LCSSA) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	lf := cache.Loops(fn)
	dom := cache.Dominance(fn)
	changed := false

	for _, l := range lf.AllLoops() {
		if l.Preheader == nil || l.Latch == nil {
			continue // needs LoopSimplifyForm first
		}
		if insertLCSSAPhis(fn, l, dom) {
			changed = true
		}
	}

	if changed {
		cache.SetDirty(fn)
	}
	return changed
}

// exitPhis caches the one LCSSA Phi created per (def, exit) pair
// while processing a single loop, so repeated external uses of the
// same def share one Phi instead of getting one each.
type exitPhis map[*ssa.Instruction]map[*ssa.Block]*ssa.Instruction

func insertLCSSAPhis(fn *ssa.Function, l *analysis.Loop, dom *analysis.DomInfo) bool {
	changed := false
	cache := exitPhis{}

	for _, b := range l.BlockSlice() {
		for _, def := range b.Instructions {
			if !def.HasResult() {
				continue
			}
			for _, u := range append([]*ssa.Use{}, def.Uses()...) {
				if l.Contains(u.User.Block) {
					continue // intra-loop use, including the header's own back-edge Phi
				}
				if isExitPhiUse(u, l) {
					continue // already flows through a Phi in an exit block
				}
				exit := exitFor(u, l, dom)
				if exit == nil {
					continue
				}
				phi := cache.get(exit, def, l)
				rewriteUse(u, phi)
				changed = true
			}
		}
	}
	return changed
}

// isExitPhiUse reports whether u is an incoming entry of a Phi that
// already lives in one of l's exit blocks with the value arriving
// over an in-loop edge. Such a Phi is already the loop-closing Phi
// this pass would otherwise create; rewriting it again would chain a
// fresh Phi in front of it on every run and never converge.
func isExitPhiUse(u *ssa.Use, l *analysis.Loop) bool {
	if u.User.Op != ssa.OpPhi {
		return false
	}
	inExit := false
	for _, e := range l.Exits {
		if e == u.User.Block {
			inExit = true
			break
		}
	}
	if !inExit {
		return false
	}
	for idx, opUse := range u.User.Operands {
		if opUse == u {
			return l.Contains(u.User.PhiBlocks[idx])
		}
	}
	return false
}

// exitFor picks the loop exit block that gates use u: for a Phi
// operand, u's own block must itself be an exit block (dedicated
// exits guarantee the predecessor-to-phi edge crosses the loop
// boundary only at an exit); for any other instruction, it's the exit
// that dominates u's block.
func exitFor(u *ssa.Use, l *analysis.Loop, dom *analysis.DomInfo) *ssa.Block {
	if u.User.Op == ssa.OpPhi {
		for _, e := range l.Exits {
			if e == u.User.Block {
				return e
			}
		}
		return nil
	}
	for _, e := range l.Exits {
		if dom.Dominates(e, u.User.Block) {
			return e
		}
	}
	if len(l.Exits) > 0 {
		return l.Exits[0]
	}
	return nil
}

func (ep exitPhis) get(exit *ssa.Block, def *ssa.Instruction, l *analysis.Loop) *ssa.Instruction {
	byExit, ok := ep[def]
	if !ok {
		byExit = map[*ssa.Block]*ssa.Instruction{}
		ep[def] = byExit
	}
	if phi, ok := byExit[exit]; ok {
		return phi
	}
	phi := ssa.At(exit).Phi(def.Type())
	for _, p := range exit.Preds {
		if l.Contains(p) {
			ssa.AddIncoming(phi, p, def)
		}
	}
	byExit[exit] = phi
	return phi
}

// rewriteUse redirects one specific Use to point at replacement,
// without disturbing the value's other uses the way
// ssa.ReplaceAllUsesWith would.
func rewriteUse(u *ssa.Use, replacement ssa.Value) {
	for idx, opUse := range u.User.Operands {
		if opUse == u {
			u.User.SetOperand(idx, replacement)
			return
		}
	}
}
