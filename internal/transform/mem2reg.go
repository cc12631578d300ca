package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
	"rvcc/internal/typesys"
)

// Mem2Reg promotes memory to registers: for each Alloc of a scalar type
// whose only users are Load/Store, replace memory traffic with SSA
// values via the standard Cytron et al. algorithm (iterated dominance
// frontier for Phi placement, dominator-tree walk for reaching
// definitions).
type Mem2Reg struct{}

func (Mem2Reg) Name() string { return "Mem2Reg" }

func (Mem2Reg) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	dom := cache.Dominance(fn)
	changed := false

	for _, alloc := range promotableAllocs(fn) {
		promoteAlloc(fn, alloc, dom)
		changed = true
	}
	if changed {
		cache.SetDirty(fn)
	}
	return changed
}

// promotableAllocs returns every Alloc whose allocated type is scalar
// (not Array) and whose only users are Load/Store.
func promotableAllocs(fn *ssa.Function) []*ssa.Instruction {
	var out []*ssa.Instruction
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op != ssa.OpAlloc {
				continue
			}
			if inst.AllocType.Kind() == typesys.Array {
				continue
			}
			ok := true
			for _, u := range inst.Uses() {
				if u.User.Op != ssa.OpLoad && u.User.Op != ssa.OpStore {
					ok = false
					break
				}
				if u.User.Op == ssa.OpStore && u.User.Operands[0].Value != ssa.Value(inst) {
					ok = false // alloc used as the stored value, not the address
					break
				}
			}
			if ok {
				out = append(out, inst)
			}
		}
	}
	return out
}

func promoteAlloc(fn *ssa.Function, alloc *ssa.Instruction, dom *analysis.DomInfo) {
	scalarType := alloc.AllocType

	defBlocks := map[*ssa.Block]bool{}
	for _, u := range alloc.Uses() {
		if u.User.Op == ssa.OpStore {
			defBlocks[u.User.Block] = true
		}
	}

	phiBlocks := iteratedDominanceFrontier(dom, defBlocks)
	phis := make(map[*ssa.Block]*ssa.Instruction, len(phiBlocks))
	for b := range phiBlocks {
		phis[b] = ssa.At(b).Phi(scalarType)
	}

	stack := []ssa.Value{}
	push := func(v ssa.Value) { stack = append(stack, v) }
	pop := func() { stack = stack[:len(stack)-1] }
	top := func() (ssa.Value, bool) {
		if len(stack) == 0 {
			return nil, false
		}
		return stack[len(stack)-1], true
	}

	var walk func(b *ssa.Block)
	walk = func(b *ssa.Block) {
		pushes := 0
		if phi, ok := phis[b]; ok {
			push(phi)
			pushes++
		}

		var toRemove []*ssa.Instruction
		for _, inst := range b.Instructions {
			switch inst.Op {
			case ssa.OpLoad:
				if inst.Operands[0].Value != ssa.Value(alloc) {
					continue
				}
				var repl ssa.Value
				if v, ok := top(); ok {
					repl = v
				} else {
					repl = zeroValue(fn.Module, scalarType)
				}
				ssa.ReplaceAllUsesWith(inst, repl)
				toRemove = append(toRemove, inst)
			case ssa.OpStore:
				if inst.Operands[0].Value != ssa.Value(alloc) {
					continue
				}
				push(inst.Operands[1].Value)
				pushes++
				toRemove = append(toRemove, inst)
			}
		}

		for _, s := range b.Succs {
			if phi, ok := phis[s]; ok {
				if v, ok2 := top(); ok2 {
					ssa.AddIncoming(phi, b, v)
				} else {
					ssa.AddIncoming(phi, b, zeroValue(fn.Module, scalarType))
				}
			}
		}

		for _, c := range dom.Children(b) {
			walk(c)
		}

		for i := 0; i < pushes; i++ {
			pop()
		}
		for _, inst := range toRemove {
			inst.ClearOperands()
			b.Remove(inst)
		}
	}
	if fn.Entry != nil {
		walk(fn.Entry)
	}

	alloc.ClearOperands()
	alloc.Block.Remove(alloc)
}

// iteratedDominanceFrontier computes DF+(defBlocks): the fixed point
// of repeatedly unioning in the dominance frontier of newly added
// blocks.
func iteratedDominanceFrontier(dom *analysis.DomInfo, defBlocks map[*ssa.Block]bool) map[*ssa.Block]bool {
	out := map[*ssa.Block]bool{}
	worklist := make([]*ssa.Block, 0, len(defBlocks))
	for b := range defBlocks {
		worklist = append(worklist, b)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, f := range dom.Frontier(b) {
			if !out[f] {
				out[f] = true
				worklist = append(worklist, f)
			}
		}
	}
	return out
}

func zeroValue(m *ssa.Module, t *typesys.Type) ssa.Value {
	switch t.Kind() {
	case typesys.I1:
		return m.ConstBool(false)
	case typesys.F32:
		return m.ConstFloat(0)
	case typesys.Ptr:
		return ssa.NewUndef(t)
	default:
		return m.ConstInt(0)
	}
}
