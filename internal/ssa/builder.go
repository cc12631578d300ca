package ssa

import (
	"fmt"

	"rvcc/internal/typesys"
)

// InstBuilder emits instructions into a single Block in order.
// internal/frontend/irgen drives this API, and tests construct
// fixture modules with it directly.
type InstBuilder struct {
	Block *Block
}

func At(b *Block) *InstBuilder { return &InstBuilder{Block: b} }

func (ib *InstBuilder) fn() *Function { return ib.Block.Func }

func (ib *InstBuilder) newInst(op Opcode, typ *typesys.Type) *Instruction {
	inst := &Instruction{
		valueBase: valueBase{typ: typ},
		id:        ib.fn().nextInstID(),
		Op:        op,
	}
	inst.name = fmt.Sprintf("%%v%d", ib.fn().nextValueID())
	ib.Block.Append(inst)
	return inst
}

// Alloc emits an Alloc of elemType, producing a Ptr(elemType) value.
func (ib *InstBuilder) Alloc(elemType *typesys.Type) *Instruction {
	m := ib.fn().Module
	inst := ib.newInst(OpAlloc, m.Types.PtrTo(elemType))
	inst.AllocType = elemType
	return inst
}

// Load emits a Load of the pointee type behind addr.
func (ib *InstBuilder) Load(addr Value) *Instruction {
	inst := ib.newInst(OpLoad, addr.Type().Elem())
	inst.newOperand(addr)
	return inst
}

// Store emits a Store of val through addr. Stores have no result.
func (ib *InstBuilder) Store(addr, val Value) *Instruction {
	m := ib.fn().Module
	inst := ib.newInst(OpStore, m.Types.Void())
	inst.newOperand(addr)
	inst.newOperand(val)
	return inst
}

// GEP computes &base[index] without loading; elemType is the type
// being indexed (base's pointee).
func (ib *InstBuilder) GEP(base Value, index Value, elemType *typesys.Type) *Instruction {
	m := ib.fn().Module
	inst := ib.newInst(OpGEP, m.Types.PtrTo(elemType))
	inst.ElemType = elemType
	inst.newOperand(base)
	inst.newOperand(index)
	return inst
}

// BitCast reinterprets val's bit pattern as typ.
func (ib *InstBuilder) BitCast(val Value, typ *typesys.Type) *Instruction {
	inst := ib.newInst(OpBitCast, typ)
	inst.newOperand(val)
	return inst
}

func (ib *InstBuilder) Fptosi(val Value) *Instruction {
	inst := ib.newInst(OpFptosi, ib.fn().Module.Types.I32())
	inst.newOperand(val)
	return inst
}

func (ib *InstBuilder) Sitofp(val Value) *Instruction {
	inst := ib.newInst(OpSitofp, ib.fn().Module.Types.F32())
	inst.newOperand(val)
	return inst
}

func (ib *InstBuilder) Zext(val Value) *Instruction {
	inst := ib.newInst(OpZext, ib.fn().Module.Types.I32())
	inst.newOperand(val)
	return inst
}

func (ib *InstBuilder) Icmp(pred Predicate, lhs, rhs Value) *Instruction {
	inst := ib.newInst(OpIcmp, ib.fn().Module.Types.I1())
	inst.Pred = pred
	inst.newOperand(lhs)
	inst.newOperand(rhs)
	return inst
}

func (ib *InstBuilder) Fcmp(pred Predicate, lhs, rhs Value) *Instruction {
	inst := ib.newInst(OpFcmp, ib.fn().Module.Types.I1())
	inst.Pred = pred
	inst.newOperand(lhs)
	inst.newOperand(rhs)
	return inst
}

// Binary emits any IntBinary/FloatBinary/FNeg opcode. op must not be a
// cast, comparison, memory, or control-flow opcode.
func (ib *InstBuilder) Binary(op Opcode, typ *typesys.Type, lhs, rhs Value) *Instruction {
	inst := ib.newInst(op, typ)
	inst.newOperand(lhs)
	if rhs != nil {
		inst.newOperand(rhs)
	}
	return inst
}

// Call emits a direct call to callee with args, producing callee's
// return type (Void if callee returns Void).
func (ib *InstBuilder) Call(callee *Function, args []Value) *Instruction {
	inst := ib.newInst(OpCall, callee.ReturnType)
	inst.Callee = callee
	for _, a := range args {
		inst.newOperand(a)
	}
	return inst
}

// Phi creates an empty Phi in the block; AddIncoming populates it.
func (ib *InstBuilder) Phi(typ *typesys.Type) *Instruction {
	inst := &Instruction{
		valueBase: valueBase{typ: typ},
		id:        ib.fn().nextInstID(),
		Op:        OpPhi,
	}
	inst.name = fmt.Sprintf("%%v%d", ib.fn().nextValueID())
	ib.Block.PrependPhi(inst)
	return inst
}

// AddIncoming adds one (predecessor, value) entry to a Phi.
func AddIncoming(phi *Instruction, pred *Block, val Value) {
	phi.PhiBlocks = append(phi.PhiBlocks, pred)
	phi.newOperand(val)
}

// Select emits a select(cond, a, b).
func (ib *InstBuilder) Select(cond, a, b Value) *Instruction {
	inst := ib.newInst(OpSelect, a.Type())
	inst.newOperand(cond)
	inst.newOperand(a)
	inst.newOperand(b)
	return inst
}

// --- terminators ---

func (ib *InstBuilder) Ret(val Value) *Instruction {
	inst := ib.newInst(OpRet, ib.fn().Module.Types.Void())
	if val != nil {
		inst.newOperand(val)
	}
	return inst
}

func (ib *InstBuilder) Jump(target *Block) *Instruction {
	inst := ib.newInst(OpJump, ib.fn().Module.Types.Void())
	inst.Target = target
	return inst
}

func (ib *InstBuilder) Branch(cond Value, trueB, falseB *Block) *Instruction {
	inst := ib.newInst(OpBranch, ib.fn().Module.Types.Void())
	inst.newOperand(cond)
	inst.TrueBlock = trueB
	inst.FalseBlock = falseB
	return inst
}

func (ib *InstBuilder) Switch(val Value, cases []SwitchCase, def *Block) *Instruction {
	inst := ib.newInst(OpSwitch, ib.fn().Module.Types.Void())
	inst.newOperand(val)
	inst.SwitchCases = cases
	inst.SwitchDefault = def
	return inst
}
