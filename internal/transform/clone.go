package transform

import "rvcc/internal/ssa"

// cloneBlocks duplicates blocks (all belonging to fn) into fresh
// blocks named with the given tag suffix, remapping every operand and
// block-target reference that points within blocks through the
// returned maps. A value defined outside blocks (a loop-invariant
// operand, a constant, a global, an argument) is left pointing at the
// original — only intra-clone references are rewritten.
//
// dropPred, when non-nil, suppresses the incoming entry for that
// predecessor on every cloned Phi in the entry block of blocks; it is
// used when chaining unrolled loop copies, where only the very first
// copy still has a real preheader edge.
func cloneBlocks(fn *ssa.Function, blocks []*ssa.Block, tag string, dropPred *ssa.Block) (map[*ssa.Block]*ssa.Block, map[*ssa.Instruction]ssa.Value) {
	blockMap := make(map[*ssa.Block]*ssa.Block, len(blocks))
	valMap := make(map[*ssa.Instruction]ssa.Value)

	for _, b := range blocks {
		blockMap[b] = fn.NewBlock(b.Label + tag)
	}

	remapVal := func(v ssa.Value) ssa.Value {
		if inst, ok := v.(*ssa.Instruction); ok {
			if nv, ok := valMap[inst]; ok {
				return nv
			}
		}
		return v
	}
	remapBlock := func(b *ssa.Block) *ssa.Block {
		if nb, ok := blockMap[b]; ok {
			return nb
		}
		return b
	}

	for _, b := range blocks {
		nb := blockMap[b]
		for _, inst := range b.Instructions {
			valMap[inst] = cloneOne(nb, inst, remapVal, remapBlock, dropPred)
		}
	}

	// Patch pass: a clone created before its operand's defining
	// instruction was cloned (a back edge, or just block order) still
	// points at the original; redirect every such operand now that the
	// value map is complete.
	for _, b := range blocks {
		nb := blockMap[b]
		for _, inst := range nb.Instructions {
			for idx, u := range inst.Operands {
				if orig, ok := u.Value.(*ssa.Instruction); ok {
					if nv, ok2 := valMap[orig]; ok2 && nv != u.Value {
						inst.SetOperand(idx, nv)
					}
				}
			}
		}
	}
	return blockMap, valMap
}

// remapThrough resolves v through a clone's value map, returning v
// itself when it was defined outside the cloned region.
func remapThrough(v ssa.Value, valMap map[*ssa.Instruction]ssa.Value) ssa.Value {
	if inst, ok := v.(*ssa.Instruction); ok {
		if nv, ok := valMap[inst]; ok {
			return nv
		}
	}
	return v
}

func cloneOne(nb *ssa.Block, inst *ssa.Instruction, remapVal func(ssa.Value) ssa.Value, remapBlock func(*ssa.Block) *ssa.Block, dropPred *ssa.Block) ssa.Value {
	at := ssa.At(nb)
	operand := func(i int) ssa.Value { return remapVal(inst.Operands[i].Value) }

	switch inst.Op {
	case ssa.OpAlloc:
		return at.Alloc(inst.AllocType)
	case ssa.OpLoad:
		return at.Load(operand(0))
	case ssa.OpStore:
		return at.Store(operand(0), operand(1))
	case ssa.OpGEP:
		return at.GEP(operand(0), operand(1), inst.ElemType)
	case ssa.OpBitCast:
		return at.BitCast(operand(0), inst.Type())
	case ssa.OpFptosi:
		return at.Fptosi(operand(0))
	case ssa.OpSitofp:
		return at.Sitofp(operand(0))
	case ssa.OpZext:
		return at.Zext(operand(0))
	case ssa.OpIcmp:
		return at.Icmp(inst.Pred, operand(0), operand(1))
	case ssa.OpFcmp:
		return at.Fcmp(inst.Pred, operand(0), operand(1))
	case ssa.OpCall:
		args := make([]ssa.Value, len(inst.Operands))
		for i := range inst.Operands {
			args[i] = operand(i)
		}
		return at.Call(inst.Callee, args)
	case ssa.OpPhi:
		phi := at.Phi(inst.Type())
		for i, pred := range inst.PhiBlocks {
			if pred == dropPred {
				continue
			}
			ssa.AddIncoming(phi, remapBlock(pred), remapVal(inst.Operands[i].Value))
		}
		return phi
	case ssa.OpSelect:
		return at.Select(operand(0), operand(1), operand(2))
	case ssa.OpBranch:
		return at.Branch(operand(0), remapBlock(inst.TrueBlock), remapBlock(inst.FalseBlock))
	case ssa.OpJump:
		return at.Jump(remapBlock(inst.Target))
	case ssa.OpRet:
		var v ssa.Value
		if len(inst.Operands) > 0 {
			v = operand(0)
		}
		return at.Ret(v)
	case ssa.OpSwitch:
		cases := make([]ssa.SwitchCase, len(inst.SwitchCases))
		for i, c := range inst.SwitchCases {
			cases[i] = ssa.SwitchCase{Val: c.Val, Block: remapBlock(c.Block)}
		}
		var def *ssa.Block
		if inst.SwitchDefault != nil {
			def = remapBlock(inst.SwitchDefault)
		}
		return at.Switch(operand(0), cases, def)
	default:
		// IntBinary/FloatBinary/FNeg family: one or two operands, same type.
		var rhs ssa.Value
		if len(inst.Operands) > 1 {
			rhs = operand(1)
		}
		return at.Binary(inst.Op, inst.Type(), operand(0), rhs)
	}
}
