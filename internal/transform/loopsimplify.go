package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// LoopSimplifyForm rewrites every loop so it
// has exactly one preheader (a block outside the loop whose only
// successor is the header), exactly one latch (a single in-loop
// predecessor of the header), and dedicated exits (every exit block's
// predecessors are all inside the loop). LICM, LCSSA, and SCEV all
// assume this shape and refuse to run on a loop missing it.
type LoopSimplifyForm struct{}

func (LoopSimplifyForm) Name() string { return "LoopSimplifyForm" }

func (LoopSimplifyForm) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	lf := cache.Loops(fn)
	changed := false

	for _, l := range lf.AllLoops() {
		if l.Preheader == nil {
			ensurePreheader(fn, l)
			changed = true
		}
		if l.Latch == nil {
			ensureLatch(fn, l)
			changed = true
		}
		if ensureDedicatedExits(fn, l) {
			changed = true
		}
	}

	if changed {
		fn.RefreshCFG()
		cache.SetDirty(fn)
	}
	return changed
}

func ensurePreheader(fn *ssa.Function, l *analysis.Loop) {
	latchSet := make(map[*ssa.Block]bool, len(l.Latches))
	for _, b := range l.Latches {
		latchSet[b] = true
	}
	var outPreds []*ssa.Block
	for _, p := range l.Header.Preds {
		if !latchSet[p] {
			outPreds = append(outPreds, p)
		}
	}
	if len(outPreds) == 0 {
		return // header has no entry outside the loop (unreachable outer loop)
	}
	if len(outPreds) == 1 && len(outPreds[0].Succs) == 1 {
		l.Preheader = outPreds[0]
		return
	}
	l.Preheader = mergeEdges(fn, outPreds, l.Header, l.Header.Label+".preheader")
}

func ensureLatch(fn *ssa.Function, l *analysis.Loop) {
	if len(l.Latches) == 1 {
		l.Latch = l.Latches[0]
		return
	}
	l.Latch = mergeEdges(fn, l.Latches, l.Header, l.Header.Label+".latch")
	l.Blocks[l.Latch] = true
}

// ensureDedicatedExits splits any exit block that still has a
// predecessor outside the loop, so every exit's predecessor set is
// entirely in-loop.
func ensureDedicatedExits(fn *ssa.Function, l *analysis.Loop) bool {
	changed := false
	for _, exit := range l.Exits {
		var inPreds []*ssa.Block
		outside := false
		for _, p := range exit.Preds {
			if l.Contains(p) {
				inPreds = append(inPreds, p)
			} else {
				outside = true
			}
		}
		if !outside || len(inPreds) == 0 {
			continue
		}
		mergeEdges(fn, inPreds, exit, exit.Label+".exit")
		changed = true
	}
	return changed
}

// mergeEdges collapses every edge in oldPreds that targets target into
// a single new intermediate block: each oldPred's terminator is
// retargeted to the new block, target's Phis are split so the values
// those predecessors used to supply now flow through matching Phis in
// the new block, and the new block unconditionally jumps to target.
// Returns the new block.
func mergeEdges(fn *ssa.Function, oldPreds []*ssa.Block, target *ssa.Block, label string) *ssa.Block {
	nb := fn.NewBlock(label)

	targetPhis := append([]*ssa.Instruction{}, target.Phis()...)
	newPhis := make([]*ssa.Instruction, len(targetPhis))
	for i, phi := range targetPhis {
		newPhis[i] = ssa.At(nb).Phi(phi.Type())
	}

	for _, p := range oldPreds {
		if term := p.Terminator(); term != nil {
			term.RetargetTerminator(target, nb)
		}
		for i, phi := range targetPhis {
			if v, ok := phi.IncomingFrom(p); ok {
				phi.RemovePhiIncoming(p)
				ssa.AddIncoming(newPhis[i], p, v)
			}
		}
	}

	for i, phi := range targetPhis {
		ssa.AddIncoming(phi, nb, newPhis[i])
	}

	ssa.At(nb).Jump(target)
	return nb
}
