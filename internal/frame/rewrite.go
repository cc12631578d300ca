package frame

import "rvcc/internal/lir"

// rewriteOffsets resolves every Functional-variable memory reference
// to a concrete byte offset from s0: a direct Mem{Base,Offset} that
// fits the encoding gets rewritten in place to address s0 directly; one
// that doesn't gets its address hoisted into a fresh temp register via
// an inserted LoadAddress first (which internal/emit can always
// expand into a multi-instruction sequence, unlike a single load/store's
// fixed 12-bit immediate field). A standalone LoadAddress already in the
// IR needs no such split — it can already expand arbitrarily — so it
// just has its Frame variable's slot offset folded into its own Offset.
func rewriteOffsets(fn *lir.Function, fr *Frame) {
	s0 := lir.PhysVar("s0", synthTypes.PtrTo(synthTypes.I32()))

	for _, b := range fn.Blocks {
		var out []lir.Instr
		for _, inst := range b.Instrs {
			if la, ok := inst.(*lir.LoadAddress); ok && la.Kind == lir.AddrFrame && la.Frame != nil {
				la.Offset += fr.Offsets[la.Frame]
			}
			out = append(out, rewriteMem(inst, fr, s0)...)
		}
		b.Instrs = out
	}
}

// rewriteMem resolves inst's Mem operand(s) (if any) against fr,
// returning the instructions to splice in inst's place.
func rewriteMem(inst lir.Instr, fr *Frame, s0 *lir.Variable) []lir.Instr {
	var pre []lir.Instr

	resolve := func(mem *lir.Mem) {
		v := mem.Base
		if v == nil || v.Lifetime != lir.Functional {
			return
		}
		total := fr.Offsets[v] + mem.Offset
		if total >= int12Min && total <= int12Max {
			mem.Base = s0
			mem.Offset = total
			return
		}
		// t6 is reserved by internal/regalloc (never colored to any
		// variable) precisely so this always-free scratch register is
		// available here, after allocation has already run.
		tmp := lir.PhysVar("t6", synthTypes.PtrTo(synthTypes.I32()))
		pre = append(pre, &lir.LoadAddress{Dst: tmp, Kind: lir.AddrFrame, Frame: v, Offset: total})
		mem.Base = tmp
		mem.Offset = 0
	}

	switch ins := inst.(type) {
	case *lir.LoadInt:
		resolve(&ins.Mem)
	case *lir.LoadFloat:
		resolve(&ins.Mem)
	case *lir.StoreInt:
		resolve(&ins.Mem)
	case *lir.StoreFloat:
		resolve(&ins.Mem)
	}

	return append(pre, inst)
}
