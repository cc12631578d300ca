package analysis

import (
	"rvcc/internal/ssa"
	"rvcc/internal/typesys"
)

// AliasInfo is a property-set alias analysis: each pointer is
// assigned a set of "kind ids"; two ids may be registered as mutually
// disjoint (globals vs. each Alloc's stack-slot id vs. the function's
// argument-pointer group); a GEP with a non-zero constant first index
// is disjoint from its base. Phi/Load/Call/BitCast results get an
// empty ("unknown") id set.
type AliasInfo struct {
	ids       map[ssa.Value][]int
	disjoint  map[[2]int]bool
	nextID    int
}

const (
	kindGlobal = iota
	kindArgGroup
	kindFirstAlloc
)

func newAliasInfo() *AliasInfo {
	return &AliasInfo{ids: make(map[ssa.Value][]int), disjoint: make(map[[2]int]bool), nextID: kindFirstAlloc}
}

func (a *AliasInfo) registerDisjoint(x, y int) {
	if x == y {
		return
	}
	a.disjoint[[2]int{x, y}] = true
	a.disjoint[[2]int{y, x}] = true
}

func (a *AliasInfo) fresh() int {
	id := a.nextID
	a.nextID++
	return id
}

// MayAlias reports whether p and q may point at overlapping storage:
// true unless their id sets are forced disjoint by a registered rule,
// or either has an empty (unknown) id set, in which case they may
// alias conservatively.
func (a *AliasInfo) MayAlias(p, q ssa.Value) bool {
	pids, qids := a.ids[p], a.ids[q]
	if len(pids) == 0 || len(qids) == 0 {
		return true
	}
	for _, x := range pids {
		for _, y := range qids {
			if !a.disjoint[[2]int{x, y}] {
				return true
			}
		}
	}
	return false
}

func computeAlias(fn *ssa.Function) *AliasInfo {
	a := newAliasInfo()

	globalID := kindGlobal
	argID := kindArgGroup
	a.registerDisjoint(globalID, argID)

	for _, arg := range fn.Args {
		if arg.Type().Kind() == typesys.Ptr {
			a.ids[arg] = []int{argID}
		}
	}

	for _, g := range fn.Module.Globals {
		a.ids[g] = []int{globalID}
	}

	allocIDs := map[*ssa.Instruction]int{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == ssa.OpAlloc {
				id := a.fresh()
				allocIDs[inst] = id
				a.ids[inst] = []int{id}
				a.registerDisjoint(id, globalID)
				a.registerDisjoint(id, argID)
				for other, otherID := range allocIDs {
					if other != inst {
						a.registerDisjoint(id, otherID)
					}
				}
			}
		}
	}

	// Propagate to GEP results in program order; a fixed point is
	// unnecessary since GEP operands are always defined earlier in this
	// forward walk for acyclic def-use (no Phi involved), consistent
	// with SSA dominance. BitCast results are left without ids.
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			switch inst.Op {
			case ssa.OpGEP:
				base := inst.Operands[0].Value
				baseIDs := a.ids[base]
				if idx, ok := constIndex(inst.Operands[1].Value); ok && idx != 0 {
					// A GEP with a non-zero constant first index can
					// never alias its own base: two different offsets
					// into the same object don't overlap at a point
					// access. Give it a fresh id disjoint from every
					// id the base carries.
					id := a.fresh()
					for _, baseID := range baseIDs {
						a.registerDisjoint(id, baseID)
					}
					a.ids[inst] = []int{id}
				} else {
					// Zero or non-constant offset: inherits the base's
					// ids (may still alias the base).
					a.ids[inst] = append([]int(nil), baseIDs...)
				}
			}
		}
	}

	return a
}

func constIndex(v ssa.Value) (int64, bool) {
	if c, ok := v.(*ssa.ConstInt); ok {
		return c.Val, true
	}
	return 0, false
}
