package frame

import "rvcc/internal/lir"

// addPrologueEpilogue installs fn's entry prologue and one epilogue
// copy before every Return: adjust sp down by the frame size, save ra
// and the caller's s0, establish s0 as this call's frame base, save
// whichever callee-saved registers internal/regalloc actually used;
// the epilogue reverses each step in the opposite order before
// returning control to the caller.
func addPrologueEpilogue(fn *lir.Function, fr *Frame) {
	// Pointer-typed on purpose: the emitter picks ld/sd over lw/sw by
	// the variable's store size, and these all hold full 64-bit values.
	ptrT := synthTypes.PtrTo(synthTypes.I32())
	sp := lir.PhysVar("sp", ptrT)
	s0 := lir.PhysVar("s0", ptrT)
	ra := lir.PhysVar("ra", ptrT)

	// The caller's s0 must be saved before s0 is repointed at this
	// frame, so both saves address relative to the already-adjusted sp.
	var prologue []lir.Instr
	prologue = append(prologue,
		&lir.IntArithmetic{Op: lir.IAdd, Dst: sp, Lhs: lir.VarOperand(sp), Rhs: lir.IntImm(-fr.Size)},
		&lir.StoreInt{Src: lir.VarOperand(ra), Mem: lir.Mem{Base: sp, Offset: fr.Size + fr.raOffset}},
		&lir.StoreInt{Src: lir.VarOperand(s0), Mem: lir.Mem{Base: sp, Offset: fr.Size + fr.savedS0Offset}},
		&lir.IntArithmetic{Op: lir.IAdd, Dst: s0, Lhs: lir.VarOperand(sp), Rhs: lir.IntImm(fr.Size)},
	)
	for _, reg := range fr.UsedCalleeSaved {
		if isFloatReg(reg) {
			pr := lir.PhysVar(reg, synthTypes.F32())
			prologue = append(prologue, &lir.StoreFloat{Src: lir.VarOperand(pr), Mem: lir.Mem{Base: s0, Offset: fr.calleeSavedOffsets[reg]}})
		} else {
			pr := lir.PhysVar(reg, ptrT)
			prologue = append(prologue, &lir.StoreInt{Src: lir.VarOperand(pr), Mem: lir.Mem{Base: s0, Offset: fr.calleeSavedOffsets[reg]}})
		}
	}
	fn.Entry.Instrs = append(append([]lir.Instr{}, prologue...), fn.Entry.Instrs...)

	for _, b := range fn.Blocks {
		if len(b.Instrs) == 0 {
			continue
		}
		ret, ok := b.Instrs[len(b.Instrs)-1].(*lir.Return)
		if !ok {
			continue
		}
		var epilogue []lir.Instr
		for i := len(fr.UsedCalleeSaved) - 1; i >= 0; i-- {
			reg := fr.UsedCalleeSaved[i]
			if isFloatReg(reg) {
				pr := lir.PhysVar(reg, synthTypes.F32())
				epilogue = append(epilogue, &lir.LoadFloat{Dst: pr, Mem: lir.Mem{Base: s0, Offset: fr.calleeSavedOffsets[reg]}})
			} else {
				pr := lir.PhysVar(reg, ptrT)
				epilogue = append(epilogue, &lir.LoadInt{Dst: pr, Mem: lir.Mem{Base: s0, Offset: fr.calleeSavedOffsets[reg]}})
			}
		}
		epilogue = append(epilogue,
			&lir.LoadInt{Dst: ra, Mem: lir.Mem{Base: s0, Offset: fr.raOffset}},
			&lir.LoadInt{Dst: s0, Mem: lir.Mem{Base: sp, Offset: fr.Size + fr.savedS0Offset}},
			&lir.IntArithmetic{Op: lir.IAdd, Dst: sp, Lhs: lir.VarOperand(sp), Rhs: lir.IntImm(fr.Size)},
		)
		b.Instrs = append(b.Instrs[:len(b.Instrs)-1], append(epilogue, ret)...)
	}
}

func isFloatReg(reg string) bool {
	return len(reg) > 0 && reg[0] == 'f'
}
