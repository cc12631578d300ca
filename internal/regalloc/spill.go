package regalloc

import "rvcc/internal/lir"

// insertSpillCode performs the actual-spill step: for every node that
// failed to color, a new stack slot is reserved and every def/use of
// the variable is surrounded by a store/load pair. The spilled
// Variable's own Lifetime flips to Functional so
// internal/frame assigns it a frame offset; every instruction
// referencing it is rewritten to go through a fresh Local temp loaded
// immediately before (for a use) or stored immediately after (for a
// def) instead.
func insertSpillCode(fn *lir.Function, spills []*node) {
	spillSet := map[*lir.Variable]bool{}
	for _, n := range spills {
		if n.Var == nil {
			continue
		}
		n.Var.Lifetime = lir.Functional
		spillSet[n.Var] = true
		for _, c := range n.Coalesced {
			if c.Var != nil {
				c.Var.Lifetime = lir.Functional
				spillSet[c.Var] = true
			}
		}
	}
	if len(spillSet) == 0 {
		return
	}

	for _, b := range fn.Blocks {
		var out []lir.Instr
		for _, inst := range b.Instrs {
			out = append(out, rewriteSpilledUses(fn, inst, spillSet)...)
		}
		b.Instrs = out
	}
}

// rewriteSpilledUses replaces every spilled operand of inst with a
// freshly loaded temp (inserted immediately before inst) and, if inst
// defines a spilled variable, appends a store of the result
// immediately after. Returns the instructions to splice in inst's
// place (load(s), inst, store).
func rewriteSpilledUses(fn *lir.Function, inst lir.Instr, spillSet map[*lir.Variable]bool) []lir.Instr {
	var pre []lir.Instr
	temps := map[*lir.Variable]*lir.Variable{}

	reload := func(v *lir.Variable) *lir.Variable {
		if t, ok := temps[v]; ok {
			return t
		}
		t := fn.NewVar(v.Name+".reload", v.Type, lir.Local)
		if v.IsFloat() {
			pre = append(pre, &lir.LoadFloat{Dst: t, Mem: lir.Mem{Base: v}})
		} else {
			pre = append(pre, &lir.LoadInt{Dst: t, Mem: lir.Mem{Base: v}})
		}
		temps[v] = t
		return t
	}

	rewriteOperand := func(o *lir.Operand) {
		if !o.IsImm && o.Var != nil && spillSet[o.Var] {
			o.Var = reload(o.Var)
		}
	}

	switch ins := inst.(type) {
	case *lir.IntArithmetic:
		rewriteOperand(&ins.Lhs)
		rewriteOperand(&ins.Rhs)
	case *lir.FloatArithmetic:
		rewriteOperand(&ins.Lhs)
		rewriteOperand(&ins.Rhs)
	case *lir.SetCond:
		rewriteOperand(&ins.Lhs)
		rewriteOperand(&ins.Rhs)
	case *lir.Branch:
		rewriteOperand(&ins.Lhs)
		rewriteOperand(&ins.Rhs)
	case *lir.Move:
		rewriteOperand(&ins.Src)
	case *lir.StoreInt:
		rewriteOperand(&ins.Src)
		if ins.Mem.Base != nil && spillSet[ins.Mem.Base] {
			ins.Mem.Base = reload(ins.Mem.Base)
		}
	case *lir.StoreFloat:
		rewriteOperand(&ins.Src)
		if ins.Mem.Base != nil && spillSet[ins.Mem.Base] {
			ins.Mem.Base = reload(ins.Mem.Base)
		}
	case *lir.LoadInt:
		if ins.Mem.Base != nil && spillSet[ins.Mem.Base] {
			ins.Mem.Base = reload(ins.Mem.Base)
		}
	case *lir.LoadFloat:
		if ins.Mem.Base != nil && spillSet[ins.Mem.Base] {
			ins.Mem.Base = reload(ins.Mem.Base)
		}
	case *lir.LoadAddress:
		if ins.Kind == lir.AddrFrame && ins.Frame != nil && spillSet[ins.Frame] {
			ins.Frame = reload(ins.Frame)
		}
	case *lir.Call:
		for i := range ins.Args {
			rewriteOperand(&ins.Args[i])
		}
	case *lir.Return:
		if ins.Val != nil {
			rewriteOperand(ins.Val)
		}
	}

	def := inst.Defs()
	if def != nil && spillSet[def] {
		tmp := fn.NewVar(def.Name+".spill", def.Type, lir.Local)
		origSlot := def
		redefine(inst, tmp)
		var store lir.Instr
		if tmp.IsFloat() {
			store = &lir.StoreFloat{Src: lir.VarOperand(tmp), Mem: lir.Mem{Base: origSlot}}
		} else {
			store = &lir.StoreInt{Src: lir.VarOperand(tmp), Mem: lir.Mem{Base: origSlot}}
		}
		return append(append(pre, inst), store)
	}

	return append(pre, inst)
}

// redefine points inst's destination operand at tmp instead of its
// original (now-spilled) Variable.
func redefine(inst lir.Instr, tmp *lir.Variable) {
	switch ins := inst.(type) {
	case *lir.IntArithmetic:
		ins.Dst = tmp
	case *lir.FloatArithmetic:
		ins.Dst = tmp
	case *lir.SetCond:
		ins.Dst = tmp
	case *lir.Move:
		ins.Dst = tmp
	case *lir.LoadInt:
		ins.Dst = tmp
	case *lir.LoadFloat:
		ins.Dst = tmp
	case *lir.LoadAddress:
		ins.Dst = tmp
	case *lir.LoadImmInt:
		ins.Dst = tmp
	case *lir.LoadImmFloat:
		ins.Dst = tmp
	case *lir.Call:
		ins.Dst = tmp
	}
}
