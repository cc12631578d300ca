package analysis

import "rvcc/internal/ssa"

// DomInfo is the control-flow and dominance answer set for one
// function: reverse post-order, immediate dominators, dominator-tree
// children, and dominance frontiers. Unreachable blocks (not reached
// from entry during RPO) are simply absent from every set.
type DomInfo struct {
	fn  *ssa.Function
	rpo []*ssa.Block
	idx map[*ssa.Block]int // position of block in rpo; unreachable blocks have no entry

	idom     map[*ssa.Block]*ssa.Block
	children map[*ssa.Block][]*ssa.Block
	frontier map[*ssa.Block][]*ssa.Block
}

// RPO returns blocks reachable from entry in reverse post-order.
func (d *DomInfo) RPO() []*ssa.Block { return d.rpo }

// IDom returns b's immediate dominator, or nil for the entry block or
// an unreachable block.
func (d *DomInfo) IDom(b *ssa.Block) *ssa.Block { return d.idom[b] }

// Dominates reports whether a dominates b (reflexively: a dominates
// a).
func (d *DomInfo) Dominates(a, b *ssa.Block) bool {
	if _, ok := d.idx[a]; !ok {
		return false
	}
	if _, ok := d.idx[b]; !ok {
		return false
	}
	for cur := b; cur != nil; cur = d.idom[cur] {
		if cur == a {
			return true
		}
	}
	return false
}

// StrictlyDominates reports whether a dominates b and a != b.
func (d *DomInfo) StrictlyDominates(a, b *ssa.Block) bool {
	return a != b && d.Dominates(a, b)
}

// Dominators returns the set of blocks that dominate b, including b
// itself.
func (d *DomInfo) Dominators(b *ssa.Block) []*ssa.Block {
	var out []*ssa.Block
	for cur := b; cur != nil; cur = d.idom[cur] {
		out = append(out, cur)
	}
	return out
}

// Children returns b's children in the dominator tree.
func (d *DomInfo) Children(b *ssa.Block) []*ssa.Block { return d.children[b] }

// Frontier returns the dominance frontier of b: blocks Y such that b
// dominates a predecessor of Y but does not strictly dominate Y.
func (d *DomInfo) Frontier(b *ssa.Block) []*ssa.Block { return d.frontier[b] }

// BFSLayers returns blocks in dominator-tree BFS layer order, entry
// first.
func (d *DomInfo) BFSLayers() []*ssa.Block {
	if d.fn.Entry == nil {
		return nil
	}
	order := []*ssa.Block{d.fn.Entry}
	queue := []*ssa.Block{d.fn.Entry}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, c := range d.children[b] {
			order = append(order, c)
			queue = append(queue, c)
		}
	}
	return order
}

func computeDominance(fn *ssa.Function) *DomInfo {
	fn.RefreshCFG()
	d := &DomInfo{
		fn:       fn,
		idx:      make(map[*ssa.Block]int),
		idom:     make(map[*ssa.Block]*ssa.Block),
		children: make(map[*ssa.Block][]*ssa.Block),
		frontier: make(map[*ssa.Block][]*ssa.Block),
	}
	if fn.Entry == nil {
		return d
	}

	d.rpo = reversePostOrder(fn.Entry)
	for i, b := range d.rpo {
		d.idx[b] = i
	}

	// Iterative Cooper-Harvey-Kennedy dominator computation over RPO.
	d.idom[fn.Entry] = fn.Entry
	changed := true
	for changed {
		changed = false
		for _, b := range d.rpo[1:] {
			var newIdom *ssa.Block
			for _, p := range b.Preds {
				if _, ok := d.idx[p]; !ok {
					continue // predecessor unreachable from entry
				}
				if d.idom[p] == nil {
					continue // not yet processed this round
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(d, newIdom, p)
			}
			if newIdom != nil && d.idom[b] != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}
	d.idom[fn.Entry] = nil // entry has no dominator

	for _, b := range d.rpo {
		if im := d.idom[b]; im != nil {
			d.children[im] = append(d.children[im], b)
		}
	}

	for _, b := range d.rpo {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			if _, ok := d.idx[p]; !ok {
				continue
			}
			runner := p
			for runner != d.idom[b] && runner != nil {
				d.frontier[runner] = appendUnique(d.frontier[runner], b)
				runner = d.idom[runner]
			}
		}
	}

	return d
}

// intersect finds the nearest common dominator of a and b by walking
// up the (partially built) idom chains using RPO index as the
// dominance-tree depth proxy, the standard Cooper-Harvey-Kennedy
// trick.
func intersect(d *DomInfo, a, b *ssa.Block) *ssa.Block {
	for a != b {
		for d.idx[a] > d.idx[b] {
			a = d.idom[a]
		}
		for d.idx[b] > d.idx[a] {
			b = d.idom[b]
		}
	}
	return a
}

func reversePostOrder(entry *ssa.Block) []*ssa.Block {
	visited := make(map[*ssa.Block]bool)
	var post []*ssa.Block
	var visit func(b *ssa.Block)
	visit = func(b *ssa.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	rpo := make([]*ssa.Block, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

func appendUnique(s []*ssa.Block, b *ssa.Block) []*ssa.Block {
	for _, x := range s {
		if x == b {
			return s
		}
	}
	return append(s, b)
}
