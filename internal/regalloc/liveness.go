package regalloc

import "rvcc/internal/lir"

// allocatable reports whether v is a candidate for register coloring
// of the given class: only Local-lifetime variables ever occupy a
// register. Functional variables (Allocs, spilled temps) are always
// frame-resident and are addressed directly by internal/frame via
// their own stack offset, never through a colored register, even
// though they appear as a Mem.Base operand in Uses(); Global variables
// never reach the allocator at all (references to them lower to
// LoadAddress by symbol name, per internal/lower).
func allocatable(v *lir.Variable, isFloat bool) bool {
	return v != nil && v.Lifetime == lir.Local && v.Reg == "" && v.IsFloat() == isFloat
}

// computeLiveness fills every block's LiveIn/LiveOut for the given
// register class (isFloat selects float vs int/pointer variables): a
// worklist analysis, per block, backward over instructions,
// maintaining live-out from successors' live-in.
func computeLiveness(fn *lir.Function, isFloat bool) {
	for _, b := range fn.Blocks {
		b.LiveIn = map[*lir.Variable]bool{}
		b.LiveOut = map[*lir.Variable]bool{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			liveOut := map[*lir.Variable]bool{}
			for _, s := range b.Succs {
				for v := range s.LiveIn {
					liveOut[v] = true
				}
			}
			liveIn := blockLiveIn(b, liveOut, isFloat)
			if !sameSet(liveOut, b.LiveOut) {
				b.LiveOut = liveOut
				changed = true
			}
			if !sameSet(liveIn, b.LiveIn) {
				b.LiveIn = liveIn
				changed = true
			}
		}
	}
}

// blockLiveIn walks b's instructions backward from liveOut, returning
// the variables live at the block's entry.
func blockLiveIn(b *lir.Block, liveOut map[*lir.Variable]bool, isFloat bool) map[*lir.Variable]bool {
	live := map[*lir.Variable]bool{}
	for v := range liveOut {
		live[v] = true
	}
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		inst := b.Instrs[i]
		if d := inst.Defs(); allocatable(d, isFloat) {
			delete(live, d)
		}
		for _, u := range inst.Uses() {
			if allocatable(u, isFloat) {
				live[u] = true
			}
		}
	}
	return live
}

func sameSet(a, b map[*lir.Variable]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

// loopDepths estimates, per block, a loop-nesting depth used to scale
// spill costs. The LIR has no carried-over loop forest (that
// analysis lives at the SSA level, one IR up), so
// this recomputes a cheap approximation directly on lir.Block: a DFS
// classifies back-edges (an edge to a block still on the recursion
// stack), then every block that can reach a back-edge's source without
// passing through its target gets its depth bumped by one, exactly the
// block-collapse technique analysis/loop.go uses one level up.
func loopDepths(fn *lir.Function) map[*lir.Block]int {
	depth := map[*lir.Block]int{}
	for _, b := range fn.Blocks {
		depth[b] = 0
	}
	if fn.Entry == nil {
		return depth
	}

	onStack := map[*lir.Block]bool{}
	visited := map[*lir.Block]bool{}
	var backEdges [][2]*lir.Block

	var dfs func(b *lir.Block)
	dfs = func(b *lir.Block) {
		visited[b] = true
		onStack[b] = true
		for _, s := range b.Succs {
			if onStack[s] {
				backEdges = append(backEdges, [2]*lir.Block{b, s})
				continue
			}
			if !visited[s] {
				dfs(s)
			}
		}
		onStack[b] = false
	}
	dfs(fn.Entry)

	for _, e := range backEdges {
		tail, head := e[0], e[1]
		loopBlocks := collectLoopBlocks(head, tail)
		for b := range loopBlocks {
			depth[b]++
		}
	}
	return depth
}

// collectLoopBlocks gathers every block that can reach tail by walking
// predecessors without passing through head, plus head itself.
func collectLoopBlocks(head, tail *lir.Block) map[*lir.Block]bool {
	blocks := map[*lir.Block]bool{head: true}
	if head == tail {
		return blocks
	}
	blocks[tail] = true
	worklist := []*lir.Block{tail}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, p := range b.Preds {
			if !blocks[p] {
				blocks[p] = true
				worklist = append(worklist, p)
			}
		}
	}
	return blocks
}
