package analysis

import (
	"sort"

	"rvcc/internal/ssa"
)

// Loop is a natural loop: header H plus the blocks that can reach a
// back-edge's tail without passing through H. After LoopSimplifyForm
// runs, Preheader and Latch are guaranteed unique.
type Loop struct {
	Header   *ssa.Block
	Blocks   map[*ssa.Block]bool
	Latches  []*ssa.Block // predecessors of Header inside the loop
	Exiting  []*ssa.Block // in-loop blocks with an outside successor
	Exits    []*ssa.Block // outside-loop successors of an exiting block
	Parent   *Loop
	Children []*Loop

	Preheader *ssa.Block // set once LoopSimplifyForm has run
	Latch     *ssa.Block // set once LoopSimplifyForm has run
}

// Contains reports whether b is one of the loop's blocks.
func (l *Loop) Contains(b *ssa.Block) bool { return l.Blocks[b] }

// Depth returns the loop's nesting depth (1 for an outermost loop).
func (l *Loop) Depth() int {
	d := 1
	for p := l.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// BlockSlice returns the loop's blocks ordered by block id, so
// passes that clone or walk them behave identically run to run.
func (l *Loop) BlockSlice() []*ssa.Block {
	out := make([]*ssa.Block, 0, len(l.Blocks))
	for b := range l.Blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetID() < out[j].GetID() })
	return out
}

// LoopForest is the set of top-level (outermost) loops for a
// function; each Loop's Children holds its nested loops.
type LoopForest struct {
	Top []*Loop
	// ByHeader maps a header block to its Loop, across every nesting
	// level, for O(1) "is this block a loop header" queries.
	ByHeader map[*ssa.Block]*Loop
	// Innermost maps any loop block to its most deeply nested loop.
	Innermost map[*ssa.Block]*Loop
}

func computeLoopForest(fn *ssa.Function, dom *DomInfo) *LoopForest {
	lf := &LoopForest{ByHeader: make(map[*ssa.Block]*Loop), Innermost: make(map[*ssa.Block]*Loop)}

	var loops []*Loop
	for _, header := range dom.RPO() {
		var latches []*ssa.Block
		for _, p := range header.Preds {
			if dom.Dominates(header, p) {
				latches = append(latches, p)
			}
		}
		if len(latches) == 0 {
			continue
		}
		blocks := map[*ssa.Block]bool{header: true}
		worklist := append([]*ssa.Block{}, latches...)
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			if blocks[b] {
				continue
			}
			blocks[b] = true
			for _, p := range b.Preds {
				worklist = append(worklist, p)
			}
		}
		l := &Loop{Header: header, Blocks: blocks, Latches: latches}
		for b := range blocks {
			for _, s := range b.Succs {
				if !blocks[s] {
					l.Exiting = appendUnique(l.Exiting, b)
					l.Exits = appendUnique(l.Exits, s)
				}
			}
		}
		// Recognize an already-simplified loop, so LoopSimplifyForm is
		// idempotent across reanalysis instead of stacking a fresh
		// preheader/latch on every run.
		if len(latches) == 1 {
			l.Latch = latches[0]
		}
		var outPreds []*ssa.Block
		for _, p := range header.Preds {
			if !blocks[p] {
				outPreds = append(outPreds, p)
			}
		}
		if len(outPreds) == 1 && len(outPreds[0].Succs) == 1 {
			l.Preheader = outPreds[0]
		}
		loops = append(loops, l)
		lf.ByHeader[header] = l
	}

	// Nest by block-set subset inclusion: attach each loop to the
	// smallest strict superset among its siblings.
	for _, l := range loops {
		var parent *Loop
		for _, cand := range loops {
			if cand == l || len(cand.Blocks) <= len(l.Blocks) {
				continue
			}
			if !isSubset(l.Blocks, cand.Blocks) {
				continue
			}
			if parent == nil || len(cand.Blocks) < len(parent.Blocks) {
				parent = cand
			}
		}
		l.Parent = parent
		if parent != nil {
			parent.Children = append(parent.Children, l)
		} else {
			lf.Top = append(lf.Top, l)
		}
	}

	for _, l := range loops {
		for b := range l.Blocks {
			if cur, ok := lf.Innermost[b]; !ok || len(l.Blocks) < len(cur.Blocks) {
				lf.Innermost[b] = l
			}
		}
	}

	return lf
}

func isSubset(a, b map[*ssa.Block]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// AllLoops returns every loop in the forest, children before parents
// (post-order), the traversal order LICM wants: hoisting out of an
// inner loop may enable hoisting out of its parent.
func (lf *LoopForest) AllLoops() []*Loop {
	var out []*Loop
	var visit func(l *Loop)
	visit = func(l *Loop) {
		for _, c := range l.Children {
			visit(c)
		}
		out = append(out, l)
	}
	for _, l := range lf.Top {
		visit(l)
	}
	return out
}
