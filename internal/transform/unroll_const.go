package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// ConstLoopUnroll unrolls loops whose trip count is known at compile
// time: when SCEV derives an exact trip count for an innermost loop
// and that count is within MaxExpansion, it replicates the loop body
// that many times in a chain: each copy's latch jumps into the next
// copy's header, and only the last copy keeps a back edge. Each copy keeps its own
// bounds check; the checks fold away once later passes prove them,
// and keeping them avoids a separate peel-the-last-iteration path.
type ConstLoopUnroll struct {
	MaxExpansion int
}

func (ConstLoopUnroll) Name() string { return "ConstLoopUnroll" }

func (p ConstLoopUnroll) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	lf := cache.Loops(fn)
	scev := cache.SCEV(fn)
	limit := p.MaxExpansion
	if limit <= 0 {
		limit = 8
	}
	changed := false

	for _, l := range lf.AllLoops() {
		if len(l.Children) != 0 || l.Preheader == nil || l.Latch == nil {
			continue
		}
		if alreadyUnrolled(l) {
			continue
		}
		n, ok := constTripCount(l, scev)
		if !ok || n <= 1 || n > int64(limit) {
			continue
		}
		unrollConst(fn, l, int(n))
		changed = true
	}

	if changed {
		fn.RefreshCFG()
		cache.SetDirty(fn)
	}
	return changed
}

// constTripCount finds the loop's exit Icmp (in one of its Exiting
// blocks) and asks SCEV for the exact iteration count it implies.
func constTripCount(l *analysis.Loop, scev *analysis.SCEVInfo) (int64, bool) {
	for _, b := range l.Exiting {
		term := b.Terminator()
		if term == nil || term.Op != ssa.OpBranch {
			continue
		}
		cond, ok := term.Operands[0].Value.(*ssa.Instruction)
		if !ok || cond.Op != ssa.OpIcmp {
			continue
		}
		iv, ok := cond.Operands[0].Value.(*ssa.Instruction)
		if !ok || iv.Op != ssa.OpPhi {
			continue
		}
		n, ok := cond.Operands[1].Value.(*ssa.ConstInt)
		if !ok {
			continue
		}
		expr, ok := scev.Of(iv)
		if !ok || !expr.Valid {
			continue
		}
		pred := cond.Pred
		if !l.Contains(term.TrueBlock) {
			pred = invertPredicate(pred)
		}
		return expr.TripCount(pred, n.Val)
	}
	return -1, false
}

func invertPredicate(p ssa.Predicate) ssa.Predicate {
	switch p {
	case ssa.PredLT:
		return ssa.PredGE
	case ssa.PredLE:
		return ssa.PredGT
	case ssa.PredGT:
		return ssa.PredLE
	case ssa.PredGE:
		return ssa.PredLT
	case ssa.PredEQ:
		return ssa.PredNE
	case ssa.PredNE:
		return ssa.PredEQ
	default:
		return p
	}
}

// unrollConst replicates l's blocks n-1 additional times (copy 0 is
// the original) and chains copy k's latch into copy k+1's header for
// k in [0, n-2], leaving the last copy's own back edge untouched as a
// self-contained fallback loop. External (LCSSA) uses of loop-defined
// values are extended with one incoming entry per extra copy.
func unrollConst(fn *ssa.Function, l *analysis.Loop, n int) {
	basePhis, copies := buildCopies(fn, l, n, ".unroll")

	for k := 0; k < n-1; k++ {
		cur, next := copies[k], copies[k+1]
		for i := range basePhis {
			val, ok := cur.phis[i].IncomingFrom(cur.latch)
			if !ok {
				continue
			}
			cur.phis[i].RemovePhiIncoming(cur.latch)
			ssa.AddIncoming(next.phis[i], cur.latch, val)
		}
		if term := cur.latch.Terminator(); term != nil {
			term.RetargetTerminator(cur.header, next.header)
		}
	}

	extendExitPhis(l, copies)
}
