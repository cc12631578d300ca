package transform

import (
	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// StandardizeBinary canonicalizes binary
// instructions so a later pass (CSE, strength reduction) sees one
// normal form instead of having to handle both operand orders.
//
//   - a commutative op with exactly one constant operand gets that
//     constant moved to the right;
//   - Icmp/Fcmp with the constant on the left gets its operands
//     swapped and its predicate flipped (Swapped());
//   - Add(x, Const(-c)) is rewritten to Sub(x, Const(c)) so later
//     passes never need to special-case a negative addend.
type StandardizeBinary struct{}

func (StandardizeBinary) Name() string { return "StandardizeBinary" }

func (StandardizeBinary) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if canonicalizeOne(fn, inst) {
				changed = true
			}
		}
	}
	if changed {
		cache.SetDirty(fn)
	}
	return changed
}

func canonicalizeOne(fn *ssa.Function, inst *ssa.Instruction) bool {
	changed := false

	if inst.Op.IsCommutative() && len(inst.Operands) == 2 {
		if isConst(inst.Operands[0].Value) && !isConst(inst.Operands[1].Value) {
			swapOperands(inst)
			changed = true
		}
	}

	if (inst.Op == ssa.OpIcmp || inst.Op == ssa.OpFcmp) && len(inst.Operands) == 2 {
		if isConst(inst.Operands[0].Value) && !isConst(inst.Operands[1].Value) {
			swapOperands(inst)
			inst.Pred = inst.Pred.Swapped()
			changed = true
		}
	}

	if inst.Op == ssa.OpAdd && len(inst.Operands) == 2 {
		if c, ok := inst.Operands[1].Value.(*ssa.ConstInt); ok && c.Val < 0 {
			m := fn.Module
			inst.Op = ssa.OpSub
			inst.SetOperand(1, m.ConstInt(-c.Val))
			changed = true
		}
	}

	if inst.Op == ssa.OpSub && len(inst.Operands) == 2 {
		if c, ok := inst.Operands[1].Value.(*ssa.ConstInt); ok && c.Val < 0 {
			m := fn.Module
			inst.Op = ssa.OpAdd
			inst.SetOperand(1, m.ConstInt(-c.Val))
			changed = true
		}
	}

	return changed
}

func isConst(v ssa.Value) bool {
	switch v.(type) {
	case *ssa.ConstInt, *ssa.ConstFloat, *ssa.ConstBool:
		return true
	default:
		return false
	}
}

// swapOperands exchanges operand 0 and 1 in place, preserving each
// Use's identity (so Uses()/Users bookkeeping on the operand values
// doesn't need to be touched, only the values they point at).
func swapOperands(inst *ssa.Instruction) {
	a, b := inst.Operands[0].Value, inst.Operands[1].Value
	inst.SetOperand(0, b)
	inst.SetOperand(1, a)
}
