package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// DeadInstEliminate removes every instruction
// with HasResult() true, zero Uses(), and no side effect, iterating to
// a fixed point within the function (removing one dead instruction can
// make one of its operands dead in turn). Calls are only eligible when
// the whole-program effect summary says the callee IsFree().
type DeadInstEliminate struct{}

func (DeadInstEliminate) Name() string { return "DeadInstEliminate" }

func (DeadInstEliminate) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	effects := cache.Effects(fn.Module)
	changed := false

	for {
		progress := false
		for _, b := range fn.Blocks {
			for i := len(b.Instructions) - 1; i >= 0; i-- {
				inst := b.Instructions[i]
				if !isDead(inst, effects) {
					continue
				}
				inst.ClearOperands()
				b.Remove(inst)
				progress = true
			}
		}
		if !progress {
			break
		}
		changed = true
	}

	if changed {
		cache.SetDirty(fn)
	}
	return changed
}

func isDead(inst *ssa.Instruction, effects *analysis.EffectsInfo) bool {
	if !inst.HasResult() {
		return false
	}
	if len(inst.Uses()) != 0 {
		return false
	}
	switch inst.Op {
	case ssa.OpStore, ssa.OpBranch, ssa.OpJump, ssa.OpRet, ssa.OpSwitch:
		return false // terminators/Store never have a result; defensive, unreachable
	case ssa.OpCall:
		if inst.Callee == nil {
			return false // indirect call: conservatively kept alive
		}
		return effects.Of(inst.Callee).IsFree()
	default:
		return true
	}
}
