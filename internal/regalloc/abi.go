package regalloc

import (
	"rvcc/internal/lir"
	"rvcc/internal/typesys"
)

// physReg is the local alias regalloc's ABI binding uses for
// lir.PhysVar.
func physReg(name string, typ *typesys.Type) *lir.Variable {
	return lir.PhysVar(name, typ)
}

// setupABI runs once per function before colorClass's first iteration
// (inserting it again on a spill restart would duplicate every copy):
// bind parameters from their ABI registers (or an incoming stack slot
// past the 8th of a class), bind each Call's arguments into the ABI
// argument registers and its result back from the return register.
func setupABI(fn *lir.Function) {
	bindParams(fn)
	bindCalls(fn)
	bindReturns(fn)
}

// bindReturns moves each Return's value into the ABI return register
// immediately before the Return, which then carries no operand of its
// own (the emitter's ret never names a register).
func bindReturns(fn *lir.Function) {
	for _, b := range fn.Blocks {
		var out []lir.Instr
		for _, inst := range b.Instrs {
			ret, ok := inst.(*lir.Return)
			if !ok || ret.Val == nil {
				out = append(out, inst)
				continue
			}
			val := *ret.Val
			reg := RetIntReg
			if fn.IsFloat {
				reg = RetFloatReg
			}
			pr := physReg(reg, argOperandType(val, fn.IsFloat))
			out = append(out, &lir.Move{Dst: pr, Src: val})
			ret.Val = nil
			out = append(out, ret)
		}
		b.Instrs = out
	}
}

func insertAtEntry(fn *lir.Function, instrs ...lir.Instr) {
	fn.Entry.Instrs = append(append(append([]lir.Instr{}, instrs...), fn.Entry.Instrs...))
}

// bindParams copies each of the first 8 integer and 8 float
// parameters out of their ABI argument register at function entry;
// the 9th-and-later parameter of a class instead arrives in memory
// and every in-body use is rewritten to reload from that incoming
// slot, the same load-before-use rewrite insertSpillCode uses for an
// actually-spilled variable.
func bindParams(fn *lir.Function) {
	// intIdx/floatIdx classify each parameter into its own register
	// file; stackIdx is shared across both classes because the RV64
	// overflow area is one flat sequence of 8-byte slots in original
	// argument order, not one sequence per class: an int and a float
	// parameter that both overflow do not get the same slot.
	var intIdx, floatIdx, stackIdx int
	var entryMoves []lir.Instr
	overflow := map[*lir.Variable]bool{}

	for _, p := range fn.Params {
		if p.IsFloat() {
			if floatIdx < len(ArgFloatRegs) {
				entryMoves = append(entryMoves, &lir.Move{Dst: p, Src: lir.VarOperand(physReg(ArgFloatRegs[floatIdx], p.Type))})
				floatIdx++
			} else {
				p.Lifetime = lir.Functional
				p.ArgSlot = lir.IncomingArg
				p.ArgIdx = stackIdx
				stackIdx++
				overflow[p] = true
			}
		} else {
			if intIdx < len(ArgIntRegs) {
				entryMoves = append(entryMoves, &lir.Move{Dst: p, Src: lir.VarOperand(physReg(ArgIntRegs[intIdx], p.Type))})
				intIdx++
			} else {
				p.Lifetime = lir.Functional
				p.ArgSlot = lir.IncomingArg
				p.ArgIdx = stackIdx
				stackIdx++
				overflow[p] = true
			}
		}
	}
	if len(entryMoves) > 0 {
		insertAtEntry(fn, entryMoves...)
	}
	if len(overflow) > 0 {
		for _, b := range fn.Blocks {
			var out []lir.Instr
			for _, inst := range b.Instrs {
				out = append(out, rewriteSpilledUses(fn, inst, overflow)...)
			}
			b.Instrs = out
		}
	}
}

// bindCalls rewrites every Call site: the first 8 integer and 8 float
// arguments are moved into their ABI register immediately before the
// call (and the Call's own operand list updated to reference that
// physical-register Variable, so the emitter's job at the call site is
// just "call callee" with no further sequencing); the 9th-and-later
// argument of a class is instead stored to an outgoing stack slot.
// The call's result is moved out of the return register into its
// destination right after.
func bindCalls(fn *lir.Function) {
	for _, b := range fn.Blocks {
		var out []lir.Instr
		for _, inst := range b.Instrs {
			call, ok := inst.(*lir.Call)
			if !ok {
				out = append(out, inst)
				continue
			}
			out = append(out, bindOneCall(fn, call)...)
		}
		b.Instrs = out
	}
}

func bindOneCall(fn *lir.Function, call *lir.Call) []lir.Instr {
	var pre []lir.Instr
	// stackIdx is shared across both classes for the same reason as in
	// bindParams: one flat overflow stack area in argument order.
	var intIdx, floatIdx, stackIdx int
	for i, arg := range call.Args {
		isFloat := call.ArgIsFloat[i]
		if isFloat {
			if floatIdx < len(ArgFloatRegs) {
				pr := physReg(ArgFloatRegs[floatIdx], argOperandType(arg, true))
				pre = append(pre, &lir.Move{Dst: pr, Src: arg})
				call.Args[i] = lir.VarOperand(pr)
				floatIdx++
			} else {
				pre = append(pre, outgoingStore(fn, arg, stackIdx, true))
				stackIdx++
			}
		} else {
			if intIdx < len(ArgIntRegs) {
				pr := physReg(ArgIntRegs[intIdx], argOperandType(arg, false))
				pre = append(pre, &lir.Move{Dst: pr, Src: arg})
				call.Args[i] = lir.VarOperand(pr)
				intIdx++
			} else {
				pre = append(pre, outgoingStore(fn, arg, stackIdx, false))
				stackIdx++
			}
		}
	}

	instrs := append(pre, lir.Instr(call))
	if call.Dst != nil {
		retReg := RetIntReg
		if call.IsFloat {
			retReg = RetFloatReg
		}
		pr := physReg(retReg, call.Dst.Type)
		origDst := call.Dst
		call.Dst = pr
		instrs = append(instrs, &lir.Move{Dst: origDst, Src: lir.VarOperand(pr)})
	}
	return instrs
}

func argType(o lir.Operand) *typesys.Type {
	if !o.IsImm && o.Var != nil {
		return o.Var.Type
	}
	return nil
}

// outgoingStore reserves a fresh Functional variable in fn's frame for
// the idx'th stack overflow argument (idx counts int and float overflow
// arguments together) and stores arg into it, immediately before the
// call. internal/frame gives every variable with the same idx one
// offset.
func outgoingStore(fn *lir.Function, arg lir.Operand, idx int, isFloat bool) lir.Instr {
	name := "outarg.i"
	if isFloat {
		name = "outarg.f"
	}
	slot := fn.NewVar(name, argOperandType(arg, isFloat), lir.Functional)
	slot.ArgSlot = lir.OutgoingArg
	slot.ArgIdx = idx
	if isFloat {
		return &lir.StoreFloat{Src: arg, Mem: lir.Mem{Base: slot}}
	}
	return &lir.StoreInt{Src: arg, Mem: lir.Mem{Base: slot}}
}

// synthTypes supplies a Type for an outgoing-argument slot when the
// argument itself is an immediate (so there is no Variable to read a
// Type from). Scalar types are cheap, interning-invariant-safe to
// construct ad hoc here: Variable.Type is only ever consulted through
// IsFloat()/StoreSize() for this slot, neither of which depends on the
// type matching any other module's interned identity.
var synthTypes = typesys.NewInterner()

func argOperandType(o lir.Operand, isFloat bool) *typesys.Type {
	if t := argType(o); t != nil {
		return t
	}
	if isFloat {
		return synthTypes.F32()
	}
	return synthTypes.I32()
}
