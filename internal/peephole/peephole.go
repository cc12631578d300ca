// Package peephole implements the two local-rewrite passes that
// bracket register allocation. PreRA runs on virtual registers:
// add-zero to move, redundant load/store elimination, and reuse of
// constants and addresses already materialized in a nearby register.
// PostRA runs on physical registers: self-move and add-zero removal,
// and unreachable / trivial-jump block removal.
package peephole

import "rvcc/internal/lir"

// reuseWindow bounds how far back the constant/address-reuse rewrite
// looks for an earlier materialization of the same value.
const reuseWindow = 16

// PreRA runs the pre-allocation rewrites over every defined function.
func PreRA(m *lir.Module) {
	for _, fn := range m.Functions {
		if fn.IsDeclare {
			continue
		}
		for _, b := range fn.Blocks {
			b.Instrs = addZeroToMove(b.Instrs)
			b.Instrs = dropRedundantMemOps(b.Instrs)
			b.Instrs = reuseMaterialized(b.Instrs)
		}
	}
}

// addZeroToMove rewrites `add rd, rs, 0` and `add rd, 0, rs` into a
// plain Move so the allocator sees a coalescable copy instead of an
// ALU op.
func addZeroToMove(instrs []lir.Instr) []lir.Instr {
	for idx, inst := range instrs {
		ia, ok := inst.(*lir.IntArithmetic)
		if !ok || ia.Op != lir.IAdd {
			continue
		}
		if ia.Rhs.IsImm && ia.Rhs.IntImm == 0 {
			instrs[idx] = &lir.Move{Dst: ia.Dst, Src: ia.Lhs}
		} else if ia.Lhs.IsImm && ia.Lhs.IntImm == 0 {
			instrs[idx] = &lir.Move{Dst: ia.Dst, Src: ia.Rhs}
		}
	}
	return instrs
}

// dropRedundantMemOps deletes the second of two consecutive identical
// loads (same destination, same address) or stores (same source, same
// address); the first already established the state the second would.
func dropRedundantMemOps(instrs []lir.Instr) []lir.Instr {
	out := instrs[:0]
	for _, inst := range instrs {
		if len(out) > 0 && sameMemOp(out[len(out)-1], inst) {
			continue
		}
		out = append(out, inst)
	}
	return out
}

func sameMemOp(a, b lir.Instr) bool {
	switch x := a.(type) {
	case *lir.LoadInt:
		y, ok := b.(*lir.LoadInt)
		return ok && x.Dst == y.Dst && x.Mem == y.Mem
	case *lir.LoadFloat:
		y, ok := b.(*lir.LoadFloat)
		return ok && x.Dst == y.Dst && x.Mem == y.Mem
	case *lir.StoreInt:
		y, ok := b.(*lir.StoreInt)
		return ok && x.Src == y.Src && x.Mem == y.Mem
	case *lir.StoreFloat:
		y, ok := b.(*lir.StoreFloat)
		return ok && x.Src == y.Src && x.Mem == y.Mem
	}
	return false
}

// reuseMaterialized drops a LoadImmInt or LoadAddress whose value is
// already held by a variable materialized within the last reuseWindow
// instructions (and not redefined since), rewriting later uses of the
// duplicate onto the earlier holder.
func reuseMaterialized(instrs []lir.Instr) []lir.Instr {
	replaced := map[*lir.Variable]*lir.Variable{}
	out := make([]lir.Instr, 0, len(instrs))

	holderOf := func(pos int, want lir.Instr) *lir.Variable {
		low := pos - reuseWindow
		if low < 0 {
			low = 0
		}
		var holder *lir.Variable
		for i := low; i < pos; i++ {
			if holder != nil {
				// The holder must survive untouched up to the reuse point.
				if d := out[i].Defs(); d == holder {
					holder = nil
				}
				if holder != nil {
					continue
				}
			}
			if sameMaterialization(out[i], want) {
				holder = out[i].Defs()
			}
		}
		return holder
	}

	for _, inst := range instrs {
		rewriteUses(inst, replaced)
		switch inst.(type) {
		case *lir.LoadImmInt, *lir.LoadAddress:
			if h := holderOf(len(out), inst); h != nil {
				replaced[inst.Defs()] = h
				continue
			}
		}
		// A fresh definition of a previously-eliminated variable ends
		// its substitution; later reads mean the new value.
		if d := inst.Defs(); d != nil {
			delete(replaced, d)
		}
		out = append(out, inst)
	}
	return out
}

func sameMaterialization(a, b lir.Instr) bool {
	switch x := a.(type) {
	case *lir.LoadImmInt:
		y, ok := b.(*lir.LoadImmInt)
		return ok && x.Imm == y.Imm
	case *lir.LoadAddress:
		y, ok := b.(*lir.LoadAddress)
		return ok && x.Kind == y.Kind && x.Sym == y.Sym && x.Frame == y.Frame && x.Offset == y.Offset
	}
	return false
}

// rewriteUses redirects every operand of inst that reads a replaced
// variable to its surviving holder.
func rewriteUses(inst lir.Instr, replaced map[*lir.Variable]*lir.Variable) {
	if len(replaced) == 0 {
		return
	}
	sub := func(v *lir.Variable) *lir.Variable {
		if r, ok := replaced[v]; ok {
			return r
		}
		return v
	}
	subOp := func(o *lir.Operand) {
		if !o.IsImm && o.Var != nil {
			o.Var = sub(o.Var)
		}
	}
	switch x := inst.(type) {
	case *lir.LoadInt:
		x.Mem.Base = sub(x.Mem.Base)
	case *lir.LoadFloat:
		x.Mem.Base = sub(x.Mem.Base)
	case *lir.StoreInt:
		subOp(&x.Src)
		x.Mem.Base = sub(x.Mem.Base)
	case *lir.StoreFloat:
		subOp(&x.Src)
		x.Mem.Base = sub(x.Mem.Base)
	case *lir.IntArithmetic:
		subOp(&x.Lhs)
		subOp(&x.Rhs)
	case *lir.FloatArithmetic:
		subOp(&x.Lhs)
		subOp(&x.Rhs)
	case *lir.SetCond:
		subOp(&x.Lhs)
		subOp(&x.Rhs)
	case *lir.Move:
		subOp(&x.Src)
	case *lir.Branch:
		subOp(&x.Lhs)
		subOp(&x.Rhs)
	case *lir.Return:
		if x.Val != nil {
			subOp(x.Val)
		}
	case *lir.Call:
		for i := range x.Args {
			subOp(&x.Args[i])
		}
	}
}

// PostRA runs the post-allocation cleanups over every defined
// function: every operand now names a physical register, so a Move
// whose two sides landed in the same register (the coalescing payoff)
// is pure noise, as is an add/sub of immediate zero writing back to
// its own source register.
func PostRA(m *lir.Module) {
	for _, fn := range m.Functions {
		if fn.IsDeclare {
			continue
		}
		for _, b := range fn.Blocks {
			b.Instrs = dropIdentityOps(b.Instrs)
		}
		dropTrivialJumpBlocks(fn)
	}
}

func regOf(v *lir.Variable) string {
	if v == nil {
		return ""
	}
	return v.Reg
}

func dropIdentityOps(instrs []lir.Instr) []lir.Instr {
	out := instrs[:0]
	for _, inst := range instrs {
		switch x := inst.(type) {
		case *lir.Move:
			if !x.Src.IsImm && x.Src.Var != nil &&
				regOf(x.Dst) != "" && regOf(x.Dst) == regOf(x.Src.Var) {
				continue
			}
		case *lir.IntArithmetic:
			if (x.Op == lir.IAdd || x.Op == lir.ISub) &&
				x.Rhs.IsImm && x.Rhs.IntImm == 0 &&
				!x.Lhs.IsImm && x.Lhs.Var != nil &&
				regOf(x.Dst) != "" && regOf(x.Dst) == regOf(x.Lhs.Var) {
				continue
			}
		}
		out = append(out, inst)
	}
	return out
}

// dropTrivialJumpBlocks removes blocks containing only an
// unconditional Jump by retargeting every predecessor terminator to
// the jump's destination, then dropping blocks no longer reachable
// from entry. Iterates until no block qualifies, since collapsing one
// block can make its own target trivial in turn.
func dropTrivialJumpBlocks(fn *lir.Function) {
	for {
		changed := false
		for _, b := range fn.Blocks {
			if b == fn.Entry || len(b.Instrs) != 1 {
				continue
			}
			j, ok := b.Instrs[0].(*lir.Jump)
			if !ok || j.Target == b {
				continue
			}
			for _, other := range fn.Blocks {
				if other == b || len(other.Instrs) == 0 {
					continue
				}
				switch t := other.Instrs[len(other.Instrs)-1].(type) {
				case *lir.Jump:
					if t.Target == b {
						t.Target = j.Target
						changed = true
					}
				case *lir.Branch:
					if t.True == b {
						t.True = j.Target
						changed = true
					}
					if t.False == b {
						t.False = j.Target
						changed = true
					}
				}
			}
		}
		fn.RefreshCFG()
		if !dropUnreachable(fn) && !changed {
			return
		}
	}
}

// dropUnreachable removes blocks with no path from entry (a collapsed
// trivial block's only role was being jumped to).
func dropUnreachable(fn *lir.Function) bool {
	reach := map[*lir.Block]bool{}
	var walk func(*lir.Block)
	walk = func(b *lir.Block) {
		if reach[b] {
			return
		}
		reach[b] = true
		for _, s := range b.Succs {
			walk(s)
		}
	}
	walk(fn.Entry)

	kept := fn.Blocks[:0]
	dropped := false
	for _, b := range fn.Blocks {
		if reach[b] {
			kept = append(kept, b)
		} else {
			dropped = true
		}
	}
	fn.Blocks = kept
	if dropped {
		fn.RefreshCFG()
	}
	return dropped
}
