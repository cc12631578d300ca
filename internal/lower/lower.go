// Package lower translates an optimized ssa.Module into a lir.Module:
// each SSA instruction becomes one or more three-address LIR
// instructions over fresh virtual registers, Allocs become frame
// variables, GEPs become Pointer descriptors, and comparisons fold
// into the branches that consume them.
package lower

import (
	"fmt"

	"rvcc/internal/lir"
	"rvcc/internal/ssa"
	"rvcc/internal/typesys"
)

// Lower rewrites every function and global in sm into a fresh lir.Module.
func Lower(sm *ssa.Module) *lir.Module {
	lm := lir.NewModule()
	for _, g := range sm.Globals {
		lowerGlobal(lm, g)
	}
	for _, fn := range sm.Funcs {
		lowerFunction(lm, fn)
	}
	return lm
}

func lowerGlobal(lm *lir.Module, g *ssa.Global) {
	typ := g.Type().Elem() // Global's own Type() is Ptr(elem)
	lm.Globals = append(lm.Globals, &lir.Global{
		Name: g.Name(),
		Type: typ,
		Init: lowerInitializer(g.Init),
	})
}

func lowerInitializer(init *ssa.Initializer) *lir.Initializer {
	if init.Elems != nil {
		elems := make([]*lir.Initializer, len(init.Elems))
		for i, e := range init.Elems {
			elems[i] = lowerInitializer(e)
		}
		return &lir.Initializer{Elems: elems, ZeroInit: init.ZeroInit, LastNonZero: init.LastNonZero}
	}
	out := &lir.Initializer{IsScalar: true, ZeroInit: init.ZeroInit, LastNonZero: -1}
	switch c := init.Scalar.(type) {
	case *ssa.ConstInt:
		out.IntScalar = c.Val
	case *ssa.ConstFloat:
		out.IsFloat = true
		out.FloatScalar = c.Val
	}
	return out
}

// fnLowerer holds the per-function state threaded through one
// ssa.Function -> lir.Function lowering.
type fnLowerer struct {
	lm *lir.Module
	sf *ssa.Function
	lf *lir.Function

	blocks map[*ssa.Block]*lir.Block
	// regs maps an SSA value that denotes an ordinary register result
	// (arithmetic, comparisons materialized via SetCond, conversions,
	// calls, phis) to its Variable.
	regs map[ssa.Value]*lir.Variable
	// ptrs maps an SSA value of pointer type (Alloc results, GEP
	// results, Global references) to the Pointer descriptor it denotes,
	// so a Load/Store/GEP consuming it never needs a register at all
	// unless the offset escapes the 12-bit immediate range (handled by
	// internal/frame once slot offsets are final).
	ptrs map[ssa.Value]lir.Pointer

	cur *lir.Block
}

func lowerFunction(lm *lir.Module, sf *ssa.Function) {
	lf := lm.NewFunction(sf.Name, sf.ReturnType, sf.Declare)
	if sf.Declare {
		return
	}
	fl := &fnLowerer{
		lm:     lm,
		sf:     sf,
		lf:     lf,
		blocks: map[*ssa.Block]*lir.Block{},
		regs:   map[ssa.Value]*lir.Variable{},
		ptrs:   map[ssa.Value]lir.Pointer{},
	}
	for _, a := range sf.Args {
		v := lf.NewVar(a.Name(), a.Type(), lir.Local)
		lf.Params = append(lf.Params, v)
		fl.regs[a] = v
	}
	for _, b := range sf.Blocks {
		fl.blocks[b] = lf.NewBlock(b.Label)
	}
	for _, b := range sf.Blocks {
		fl.cur = fl.blocks[b]
		for _, inst := range b.Instructions {
			fl.lowerInst(inst)
		}
	}
	// Phi elimination: append a Move at the end of each predecessor
	// block for every Phi's incoming value, standard SSA destruction
	// by parallel-copy sequentialization.
	for _, b := range sf.Blocks {
		for _, phi := range b.Phis() {
			dst := fl.regs[phi]
			for idx, pred := range phi.PhiBlocks {
				val := phi.Operands[idx].Value
				predBlock := fl.blocks[pred]
				insertBeforeTerminator(predBlock, &lir.Move{Dst: dst, Src: fl.operand(val)})
			}
		}
	}
	lf.RefreshCFG()
}

func insertBeforeTerminator(b *lir.Block, i lir.Instr) {
	if n := len(b.Instrs); n > 0 {
		if _, isTerm := b.Instrs[n-1].(*lir.Jump); isTerm {
			b.Instrs = append(b.Instrs[:n], nil)
			copy(b.Instrs[n:], b.Instrs[n-1:])
			b.Instrs[n-1] = i
			return
		}
		if _, isTerm := b.Instrs[n-1].(*lir.Branch); isTerm {
			b.Instrs = append(b.Instrs[:n], nil)
			copy(b.Instrs[n:], b.Instrs[n-1:])
			b.Instrs[n-1] = i
			return
		}
	}
	b.Append(i)
}

// operand resolves an ssa.Value used as an instruction operand to a
// lir.Operand: an immediate for constants, a register for everything
// else.
func (fl *fnLowerer) operand(v ssa.Value) lir.Operand {
	switch c := v.(type) {
	case *ssa.ConstInt:
		return lir.IntImm(c.Val)
	case *ssa.ConstFloat:
		// Float constants are always materialized into a register:
		// RV64 has no float-immediate operand form, and keeping them
		// out of Operand.IsImm means the emitter never needs a
		// reserved float scratch register.
		reg := fl.lf.NewVar("fconst", v.Type(), lir.Local)
		fl.cur.Append(&lir.LoadImmFloat{Dst: reg, Imm: c.Val})
		return lir.VarOperand(reg)
	case *ssa.ConstBool:
		if c.Val {
			return lir.IntImm(1)
		}
		return lir.IntImm(0)
	}
	if reg, ok := fl.regs[v]; ok {
		return lir.VarOperand(reg)
	}
	if g, ok := v.(*ssa.Global); ok {
		reg := fl.lf.NewVar("gaddr", g.Type(), lir.Local)
		fl.cur.Append(&lir.LoadAddress{Dst: reg, Kind: lir.AddrGlobal, Sym: g.Name()})
		return lir.VarOperand(reg)
	}
	// A pointer-valued SSA value used as a plain operand (e.g. an array
	// passed by decay to a function call) needs its address materialized.
	if ptr, ok := fl.ptrs[v]; ok {
		if ptr.Base.Lifetime == lir.Functional {
			reg := fl.lf.NewVar("addr", v.Type(), lir.Local)
			fl.cur.Append(&lir.LoadAddress{Dst: reg, Kind: lir.AddrFrame, Frame: ptr.Base, Offset: ptr.Offset})
			return lir.VarOperand(reg)
		}
		// The base register already holds a computed address.
		if ptr.Offset == 0 {
			return lir.VarOperand(ptr.Base)
		}
		reg := fl.lf.NewVar("addr", v.Type(), lir.Local)
		fl.cur.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: reg, Lhs: lir.VarOperand(ptr.Base), Rhs: lir.IntImm(ptr.Offset)})
		return lir.VarOperand(reg)
	}
	panic(fmt.Sprintf("lower: unresolved operand %s", v.Name()))
}

func (fl *fnLowerer) lowerInst(inst *ssa.Instruction) {
	switch inst.Op {
	case ssa.OpAlloc:
		slot := fl.lf.NewVar(inst.Name(), inst.AllocType, lir.Functional)
		fl.ptrs[inst] = lir.Pointer{Base: slot, Offset: 0}

	case ssa.OpLoad:
		fl.lowerLoad(inst)

	case ssa.OpStore:
		fl.lowerStore(inst)

	case ssa.OpGEP:
		fl.lowerGEP(inst)

	case ssa.OpBitCast:
		// No-op at this level: both sides already share a register/
		// pointer representation.
		if p, ok := fl.ptrs[inst.Operands[0].Value]; ok {
			fl.ptrs[inst] = p
		} else {
			fl.regs[inst] = fl.regs[inst.Operands[0].Value]
		}

	case ssa.OpFptosi, ssa.OpSitofp, ssa.OpZext:
		fl.lowerConvert(inst)

	case ssa.OpIcmp, ssa.OpFcmp:
		fl.lowerCompareValue(inst)

	case ssa.OpAdd, ssa.OpSub, ssa.OpMul, ssa.OpDiv, ssa.OpMod,
		ssa.OpAnd, ssa.OpOr, ssa.OpXor, ssa.OpSmin, ssa.OpSmax:
		fl.lowerIntBinary(inst)

	case ssa.OpFAdd, ssa.OpFSub, ssa.OpFMul, ssa.OpFDiv, ssa.OpFMod,
		ssa.OpFSmin, ssa.OpFSmax:
		fl.lowerFloatBinary(inst)

	case ssa.OpFNeg:
		dst := fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
		fl.cur.Append(&lir.FloatArithmetic{Op: lir.FNeg, Dst: dst, Lhs: fl.operand(inst.Operands[0].Value)})
		fl.regs[inst] = dst

	case ssa.OpBranch:
		fl.lowerBranch(inst)

	case ssa.OpJump:
		fl.cur.Append(&lir.Jump{Target: fl.blocks[inst.Target]})

	case ssa.OpRet:
		if len(inst.Operands) == 0 {
			fl.cur.Append(&lir.Return{})
		} else {
			op := fl.operand(inst.Operands[0].Value)
			fl.cur.Append(&lir.Return{Val: &op})
		}

	case ssa.OpSwitch:
		fl.lowerSwitch(inst)

	case ssa.OpCall:
		fl.lowerCall(inst)

	case ssa.OpPhi:
		// Destination register allocated up front; incoming copies are
		// inserted in a second pass once every block is lowered (phi
		// sources may reference blocks not yet visited).
		fl.regs[inst] = fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)

	case ssa.OpSelect:
		panic("lower: OpSelect has no surface syntax in this frontend and is not lowered")

	default:
		panic(fmt.Sprintf("lower: unhandled opcode %v", inst.Op))
	}
}

func (fl *fnLowerer) addrOf(v ssa.Value) lir.Mem {
	if g, ok := v.(*ssa.Global); ok {
		reg := fl.lf.NewVar("gaddr", g.Type(), lir.Local)
		fl.cur.Append(&lir.LoadAddress{Dst: reg, Kind: lir.AddrGlobal, Sym: g.Name()})
		return lir.Mem{Base: reg, Offset: 0}
	}
	if p, ok := fl.ptrs[v]; ok {
		return lir.Mem{Base: p.Base, Offset: p.Offset}
	}
	// A dynamically computed address (materialized register holding a
	// pointer value, e.g. the result of pointer arithmetic folded
	// through a call) is used directly as a zero-offset base.
	return lir.Mem{Base: fl.regs[v], Offset: 0}
}

func (fl *fnLowerer) lowerLoad(inst *ssa.Instruction) {
	mem := fl.addrOf(inst.Operands[0].Value)
	dst := fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
	if inst.Type().IsFloat() {
		fl.cur.Append(&lir.LoadFloat{Dst: dst, Mem: mem})
	} else {
		fl.cur.Append(&lir.LoadInt{Dst: dst, Mem: mem})
	}
	fl.regs[inst] = dst
}

func (fl *fnLowerer) lowerStore(inst *ssa.Instruction) {
	mem := fl.addrOf(inst.Operands[0].Value)
	val := inst.Operands[1].Value
	src := fl.operand(val)
	if val.Type().IsFloat() {
		fl.cur.Append(&lir.StoreFloat{Src: src, Mem: mem})
	} else {
		fl.cur.Append(&lir.StoreInt{Src: src, Mem: mem})
	}
}

// lowerGEP folds a constant index directly into the base Pointer's
// Offset; a variable index instead materializes a new address register
// via an explicit multiply-add (base + index*elemSize).
func (fl *fnLowerer) lowerGEP(inst *ssa.Instruction) {
	base := inst.Operands[0].Value
	index := inst.Operands[1].Value
	elemSize := int64(inst.ElemType.StoreSize())

	if ci, ok := index.(*ssa.ConstInt); ok {
		if p, ok := fl.ptrs[base]; ok {
			fl.ptrs[inst] = lir.Pointer{Base: p.Base, Offset: p.Offset + ci.Val*elemSize}
			return
		}
	}

	baseMem := fl.addrOf(base)
	baseReg := baseMem.Base
	if baseMem.Offset != 0 {
		withOff := fl.lf.NewVar("gepbase", base.Type(), lir.Local)
		fl.cur.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: withOff, Lhs: lir.VarOperand(baseReg), Rhs: lir.IntImm(baseMem.Offset)})
		baseReg = withOff
	}
	idxOp := fl.operand(index)
	scaled := fl.lf.NewVar("gepidx", index.Type(), lir.Local)
	fl.cur.Append(&lir.IntArithmetic{Op: lir.IMul, Dst: scaled, Lhs: idxOp, Rhs: lir.IntImm(elemSize)})
	addr := fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
	fl.cur.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: addr, Lhs: lir.VarOperand(baseReg), Rhs: lir.VarOperand(scaled)})
	fl.ptrs[inst] = lir.Pointer{Base: addr, Offset: 0}
}

func (fl *fnLowerer) lowerConvert(inst *ssa.Instruction) {
	dst := fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
	src := fl.operand(inst.Operands[0].Value)
	fl.cur.Append(&lir.Move{Dst: dst, Src: src})
	fl.regs[inst] = dst
}

var cmpPredTable = map[ssa.Predicate]lir.CmpPred{
	ssa.PredEQ: lir.PredEQ,
	ssa.PredNE: lir.PredNE,
	ssa.PredLT: lir.PredLT,
	ssa.PredLE: lir.PredLE,
	ssa.PredGT: lir.PredGT,
	ssa.PredGE: lir.PredGE,
}

// singleBranchUse reports whether inst's only use is as the condition
// operand of a Branch, letting lowerBranch fold the comparison directly
// into the Branch instruction instead of materializing a SetCond.
func singleBranchUse(inst *ssa.Instruction) (*ssa.Instruction, bool) {
	uses := inst.Uses()
	if len(uses) != 1 {
		return nil, false
	}
	user := uses[0].User
	if user.Op == ssa.OpBranch && user.Operands[0].Value == ssa.Value(inst) {
		return user, true
	}
	return nil, false
}

// lowerCompareValue materializes an Icmp/Fcmp's result via SetCond.
// Skipped when the comparison's single use is a Branch condition
// (lowerBranch handles that case by folding the comparison in place).
func (fl *fnLowerer) lowerCompareValue(inst *ssa.Instruction) {
	if _, ok := singleBranchUse(inst); ok {
		return // materialized lazily, if at all, by lowerBranch
	}
	dst := fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
	lhs := inst.Operands[0].Value
	fl.cur.Append(&lir.SetCond{
		Dst:     dst,
		Pred:    cmpPredTable[inst.Pred],
		IsFloat: lhs.Type().IsFloat(),
		Lhs:     fl.operand(lhs),
		Rhs:     fl.operand(inst.Operands[1].Value),
	})
	fl.regs[inst] = dst
}

func (fl *fnLowerer) lowerBranch(inst *ssa.Instruction) {
	cond := inst.Operands[0].Value
	trueB := fl.blocks[inst.TrueBlock]
	falseB := fl.blocks[inst.FalseBlock]

	if cmp, ok := cond.(*ssa.Instruction); ok && (cmp.Op == ssa.OpIcmp || cmp.Op == ssa.OpFcmp) {
		if _, direct := singleBranchUse(cmp); direct {
			lhs := cmp.Operands[0].Value
			fl.cur.Append(&lir.Branch{
				Pred:    cmpPredTable[cmp.Pred],
				IsFloat: lhs.Type().IsFloat(),
				Lhs:     fl.operand(lhs),
				Rhs:     fl.operand(cmp.Operands[1].Value),
				True:    trueB,
				False:   falseB,
			})
			return
		}
	}
	// General case: branch on cond != 0.
	fl.cur.Append(&lir.Branch{
		Pred:  lir.PredNE,
		Lhs:   fl.operand(cond),
		Rhs:   lir.IntImm(0),
		True:  trueB,
		False: falseB,
	})
}

func (fl *fnLowerer) lowerSwitch(inst *ssa.Instruction) {
	// No surface syntax produces OpSwitch in this frontend (no switch
	// statement); supported here only so a future frontend extension
	// has somewhere to land. Lowered as a linear chain of equality
	// branches, the standard baseline switch-lowering strategy absent
	// a jump-table pass.
	scrut := fl.operand(inst.Operands[0].Value)
	cur := fl.cur
	for _, c := range inst.SwitchCases {
		target := fl.blocks[c.Block]
		contB := fl.lf.NewBlock("switch.cont")
		cur.Append(&lir.Branch{Pred: lir.PredEQ, Lhs: scrut, Rhs: lir.IntImm(c.Val), True: target, False: contB})
		cur = contB
	}
	def := fl.blocks[inst.SwitchDefault]
	cur.Append(&lir.Jump{Target: def})
}

func (fl *fnLowerer) lowerCall(inst *ssa.Instruction) {
	args := make([]lir.Operand, len(inst.Operands))
	argIsFloat := make([]bool, len(inst.Operands))
	for i, op := range inst.Operands {
		args[i] = fl.operand(op.Value)
		argIsFloat[i] = op.Value.Type().IsFloat()
	}
	var dst *lir.Variable
	if inst.HasResult() && inst.Type().Kind() != typesys.Void {
		dst = fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
		fl.regs[inst] = dst
	}
	fl.cur.Append(&lir.Call{
		Dst:        dst,
		Callee:     inst.Callee.Name,
		Args:       args,
		ArgIsFloat: argIsFloat,
		IsFloat:    dst != nil && dst.IsFloat(),
	})
}

var intOpTable = map[ssa.Opcode]lir.IntOp{
	ssa.OpAdd: lir.IAdd, ssa.OpSub: lir.ISub, ssa.OpMul: lir.IMul,
	ssa.OpDiv: lir.IDiv, ssa.OpMod: lir.IMod, ssa.OpAnd: lir.IAnd,
	ssa.OpOr: lir.IOr, ssa.OpXor: lir.IXor, ssa.OpSmin: lir.ISmin, ssa.OpSmax: lir.ISmax,
}

var floatOpTable = map[ssa.Opcode]lir.FloatOp{
	ssa.OpFAdd: lir.FAdd, ssa.OpFSub: lir.FSub, ssa.OpFMul: lir.FMul,
	ssa.OpFDiv: lir.FDiv, ssa.OpFMod: lir.FMod, ssa.OpFSmin: lir.FSmin, ssa.OpFSmax: lir.FSmax,
}

func (fl *fnLowerer) lowerIntBinary(inst *ssa.Instruction) {
	dst := fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
	lhs := fl.operand(inst.Operands[0].Value)
	rhs := fl.operand(inst.Operands[1].Value)
	if lhs.IsImm && rhs.IsImm {
		if folded, ok := foldIntBinary(inst.Op, lhs.IntImm, rhs.IntImm); ok {
			fl.cur.Append(&lir.LoadImmInt{Dst: dst, Imm: folded})
			fl.regs[inst] = dst
			return
		}
	}
	fl.cur.Append(&lir.IntArithmetic{
		Op:  intOpTable[inst.Op],
		Dst: dst,
		Lhs: lhs,
		Rhs: rhs,
	})
	fl.regs[inst] = dst
}

// foldIntBinary evaluates a constant-constant integer binary at
// lowering time, in the target's 32-bit two's-complement semantics.
// Division and modulo by zero report false and leave the instruction
// alone (it can only trap at runtime if actually executed).
func foldIntBinary(op ssa.Opcode, a, b int64) (int64, bool) {
	x, y := int32(a), int32(b)
	var r int32
	switch op {
	case ssa.OpAdd:
		r = x + y
	case ssa.OpSub:
		r = x - y
	case ssa.OpMul:
		r = x * y
	case ssa.OpDiv:
		if y == 0 {
			return 0, false
		}
		r = x / y
	case ssa.OpMod:
		if y == 0 {
			return 0, false
		}
		r = x % y
	case ssa.OpAnd:
		r = x & y
	case ssa.OpOr:
		r = x | y
	case ssa.OpXor:
		r = x ^ y
	case ssa.OpSmin:
		r = x
		if y < x {
			r = y
		}
	case ssa.OpSmax:
		r = x
		if y > x {
			r = y
		}
	default:
		return 0, false
	}
	return int64(r), true
}

func (fl *fnLowerer) lowerFloatBinary(inst *ssa.Instruction) {
	dst := fl.lf.NewVar(inst.Name(), inst.Type(), lir.Local)
	lhs := fl.operand(inst.Operands[0].Value)
	rhs := fl.operand(inst.Operands[1].Value)
	if inst.Op == ssa.OpFMod {
		fl.expandFMod(dst, lhs, rhs, inst)
		fl.regs[inst] = dst
		return
	}
	fl.cur.Append(&lir.FloatArithmetic{
		Op:  floatOpTable[inst.Op],
		Dst: dst,
		Lhs: lhs,
		Rhs: rhs,
	})
	fl.regs[inst] = dst
}

// expandFMod lowers a % b over floats as a - trunc(a/b)*b: RV64 has
// no float-remainder instruction, and expanding here, while operands
// are still virtual registers, avoids needing scratch registers after
// allocation. The int<->float Moves become fcvt instructions at
// emission.
func (fl *fnLowerer) expandFMod(dst *lir.Variable, lhs, rhs lir.Operand, inst *ssa.Instruction) {
	types := fl.sf.Module.Types
	q := fl.lf.NewVar("fmod.q", inst.Type(), lir.Local)
	qi := fl.lf.NewVar("fmod.qi", types.I32(), lir.Local)
	qt := fl.lf.NewVar("fmod.qt", inst.Type(), lir.Local)
	p := fl.lf.NewVar("fmod.p", inst.Type(), lir.Local)
	fl.cur.Append(&lir.FloatArithmetic{Op: lir.FDiv, Dst: q, Lhs: lhs, Rhs: rhs})
	fl.cur.Append(&lir.Move{Dst: qi, Src: lir.VarOperand(q)})
	fl.cur.Append(&lir.Move{Dst: qt, Src: lir.VarOperand(qi)})
	fl.cur.Append(&lir.FloatArithmetic{Op: lir.FMul, Dst: p, Lhs: lir.VarOperand(qt), Rhs: rhs})
	fl.cur.Append(&lir.FloatArithmetic{Op: lir.FSub, Dst: dst, Lhs: lhs, Rhs: lir.VarOperand(p)})
}
