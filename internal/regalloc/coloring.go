package regalloc

import (
	"sort"

	"rvcc/internal/lir"
)

// colorClass runs the Chaitin-Briggs main loop for one register class
// of one function to a fixed point: simplify, coalesce (Briggs),
// freeze, spill-candidate selection, select. When
// selection discovers an actual spill (no color available), it
// surrounds every def/use of that variable with a store/load pair
// (spilling it to a fresh frame slot) and restarts the whole pipeline,
// since a newly inserted spill store/load changes liveness everywhere.
func colorClass(fn *lir.Function, isFloat bool, regs []string) {
	for {
		g := buildGraph(fn, isFloat, regs)
		k := len(regs)
		order, actualSpills := runColoring(g, k)
		if len(actualSpills) == 0 {
			applyColors(fn, order)
			return
		}
		insertSpillCode(fn, actualSpills)
		// restart: liveness, interference, and colors are all stale
		// once spill code has been inserted.
	}
}

// selectResult pairs a colored/spilled node with its final decision.
type selectResult struct {
	n   *node
	reg string // "" if actually spilled
}

// runColoring drives simplify/coalesce/freeze/spill/select to
// completion, returning the coloring decisions for every virtual node
// and the subset that turned out to need an actual stack spill.
func runColoring(g *graph, k int) ([]selectResult, []*node) {
	var allNodes []*node
	for _, n := range g.nodes {
		allNodes = append(allNodes, n)
	}
	// Deterministic order keeps allocation reproducible across runs.
	sort.Slice(allNodes, func(i, j int) bool { return allNodes[i].Var.Name < allNodes[j].Var.Name })

	active := map[*node]bool{}
	for _, n := range allNodes {
		active[n] = true
	}

	var selectStack []*node
	var potentialSpills []*node

	// degreeIn counts only neighbors still "in the graph": any
	// PreColored node (never simplified away) plus any virtual node
	// still active (not yet pushed to the select stack).
	degreeIn := func(n *node, active map[*node]bool) int {
		d := 0
		for nb := range n.NonMoveNeighbors {
			if nb.PreColored || active[nb] {
				d++
			}
		}
		return d
	}

	isMoveRelated := func(n *node) bool {
		for nb := range n.MoveNeighbors {
			if active[nb] {
				return true
			}
		}
		return false
	}

	for len(active) > 0 {
		progressed := true
		for progressed {
			progressed = false
			// simplify: push every non-move-related node with degree < k.
			for _, n := range allNodes {
				if !active[n] {
					continue
				}
				if isMoveRelated(n) {
					continue
				}
				if degreeIn(n, active) < k {
					selectStack = append(selectStack, n)
					delete(active, n)
					progressed = true
				}
			}
			if progressed {
				continue
			}
			// coalesce: merge the first Briggs-safe move-related pair.
			if mergeOneCoalescablePair(allNodes, active, k) {
				progressed = true
				continue
			}
			// freeze: convert one move-related node's edges to non-move.
			for _, n := range allNodes {
				if !active[n] {
					continue
				}
				if isMoveRelated(n) && degreeIn(n, active) < k {
					freezeMoves(n)
					progressed = true
					break
				}
			}
		}
		if len(active) == 0 {
			break
		}
		// spill: pick the minimum cost/degree candidate among remaining
		// active nodes, push it with a spill marker.
		cand := selectSpillCandidate(allNodes, active, degreeIn)
		potentialSpills = append(potentialSpills, cand)
		selectStack = append(selectStack, cand)
		delete(active, cand)
	}

	// select: pop the stack, assign the lowest-numbered free color.
	colored := map[*node]string{}
	var actualSpills []*node
	isPotentialSpill := map[*node]bool{}
	for _, n := range potentialSpills {
		isPotentialSpill[n] = true
	}

	for i := len(selectStack) - 1; i >= 0; i-- {
		n := selectStack[i]
		used := map[string]bool{}
		for nb := range n.NonMoveNeighbors {
			if c, ok := neighborColor(nb, colored); ok {
				used[c] = true
			}
		}
		for nb := range n.MoveNeighbors {
			if c, ok := neighborColor(nb, colored); ok {
				used[c] = true
			}
		}
		var chosen string
		for _, r := range g.regs {
			if !used[r] {
				chosen = r
				break
			}
		}
		if chosen == "" {
			if isPotentialSpill[n] {
				actualSpills = append(actualSpills, n)
				continue
			}
			// A non-spill-candidate node failed to color: conservative
			// coalescing guarantees this cannot happen for nodes
			// simplified at degree < k, but a frozen move-related node
			// can in principle still fail; treat it the same as an
			// actual spill rather than aborting.
			actualSpills = append(actualSpills, n)
			continue
		}
		colored[n] = chosen
		n.Color = chosen
	}

	var results []selectResult
	for _, n := range allNodes {
		if c, ok := colored[n]; ok {
			results = append(results, selectResult{n: n, reg: c})
		}
	}
	return results, actualSpills
}

func neighborColor(n *node, colored map[*node]string) (string, bool) {
	if n.PreColored {
		return n.Reg, true
	}
	if c, ok := colored[n]; ok {
		return c, true
	}
	return "", false
}

// freezeMoves converts n's move-related edges to non-move-related,
// giving up on coalescing them so simplify can make progress.
func freezeMoves(n *node) {
	for nb := range n.MoveNeighbors {
		delete(n.MoveNeighbors, nb)
		delete(nb.MoveNeighbors, n)
		n.NonMoveNeighbors[nb] = true
		nb.NonMoveNeighbors[n] = true
	}
}

// mergeOneCoalescablePair finds one move-related pair satisfying the
// Briggs criterion and merges them, returning true if a merge
// happened.
func mergeOneCoalescablePair(allNodes []*node, active map[*node]bool, k int) bool {
	for _, a := range allNodes {
		if !active[a] {
			continue
		}
		for b := range a.MoveNeighbors {
			if !active[b] || a == b {
				continue
			}
			if a.NonMoveNeighbors[b] {
				continue // already forced apart
			}
			if briggsSafe(a, b, k, active) {
				absorb(a, b)
				delete(active, b)
				return true
			}
		}
	}
	return false
}

// briggsSafe reports whether merging a and b is conservative: the
// combined node has fewer than k neighbors of degree >= k, counting
// shared neighbors once.
func briggsSafe(a, b *node, k int, active map[*node]bool) bool {
	if a.PreColored && b.PreColored {
		return false
	}
	inGraph := func(n *node) bool { return n.PreColored || active[n] }

	combined := map[*node]bool{}
	for nb := range a.NonMoveNeighbors {
		if inGraph(nb) {
			combined[nb] = true
		}
	}
	for nb := range b.NonMoveNeighbors {
		if inGraph(nb) {
			combined[nb] = true
		}
	}
	delete(combined, a)
	delete(combined, b)

	significant := 0
	for nb := range combined {
		deg := 0
		for nb2 := range nb.NonMoveNeighbors {
			if inGraph(nb2) {
				deg++
			}
		}
		if nb.NonMoveNeighbors[a] && nb.NonMoveNeighbors[b] {
			deg-- // a and b will become one neighbor, not two
		}
		if deg >= k {
			significant++
		}
	}
	return significant < k
}

// absorb merges b into a: a keeps b's neighbor edges. Only called
// from mergeOneCoalescablePair, where both a and b are drawn from
// `active`, and PreColored nodes are never inserted into `active`, so
// neither side is ever PreColored here.
func absorb(a, b *node) {
	a.Coalesced = append(a.Coalesced, b)
	a.Coalesced = append(a.Coalesced, b.Coalesced...)
	delete(a.MoveNeighbors, b)
	for nb := range b.MoveNeighbors {
		if nb == a {
			continue
		}
		delete(nb.MoveNeighbors, b)
		if !a.NonMoveNeighbors[nb] {
			nb.MoveNeighbors[a] = true
			a.MoveNeighbors[nb] = true
		}
	}
	for nb := range b.NonMoveNeighbors {
		delete(nb.MoveNeighbors, b)
		delete(nb.NonMoveNeighbors, b)
		if nb != a {
			nb.NonMoveNeighbors[a] = true
			a.NonMoveNeighbors[nb] = true
		}
	}
}

// selectSpillCandidate picks the active node with minimum
// cost/degree, where cost is the weighted sum of uses and defs across
// its live range, scaled by 10^loopDepth.
func selectSpillCandidate(allNodes []*node, active map[*node]bool, degreeIn func(*node, map[*node]bool) int) *node {
	var best *node
	bestRatio := -1.0
	for _, n := range allNodes {
		if !active[n] || n.PreColored {
			continue
		}
		deg := degreeIn(n, active)
		if deg == 0 {
			continue
		}
		cost := spillCost(n)
		ratio := cost / float64(deg)
		if best == nil || ratio < bestRatio {
			best = n
			bestRatio = ratio
		}
	}
	if best == nil {
		// every remaining active node is PreColored or degree-0; fall
		// back to an arbitrary remaining node to make progress.
		for n := range active {
			return n
		}
	}
	return best
}

func spillCost(n *node) float64 {
	scale := 1.0
	for i := 0; i < n.loopDepth; i++ {
		scale *= 10
	}
	return float64(n.useCount+n.defCount) * scale
}

// applyColors writes each node's (and its coalesced siblings') final
// physical register name into the underlying lir.Variable.
func applyColors(fn *lir.Function, results []selectResult) {
	for _, r := range results {
		assign := func(n *node) {
			if n.Var != nil {
				n.Var.Reg = r.reg
			}
		}
		assign(r.n)
		for _, c := range r.n.Coalesced {
			assign(c)
		}
	}
}
