package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/lir"
	"rvcc/internal/typesys"
)

// TestCoalescingMergesMoveChain: y = move x; return y — x and y must
// land in the same physical register so the move is a no-op.
func TestCoalescingMergesMoveChain(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("f", ty.I32(), false)
	x := fn.NewVar("x", ty.I32(), lir.Local)
	fn.Params = append(fn.Params, x)
	y := fn.NewVar("y", ty.I32(), lir.Local)

	entry := fn.NewBlock("entry")
	entry.Append(&lir.Move{Dst: y, Src: lir.VarOperand(x)})
	retVal := lir.VarOperand(y)
	entry.Append(&lir.Return{Val: &retVal})
	fn.RefreshCFG()

	AllocateFunction(fn)

	require.NotEmpty(t, x.Reg)
	require.Equal(t, x.Reg, y.Reg, "move-related pair should coalesce into one register")
}

// TestAllocationCompleteness: after allocation every Local variable
// referenced by an instruction has a physical register.
func TestAllocationCompleteness(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("f", ty.I32(), false)
	a := fn.NewVar("a", ty.I32(), lir.Local)
	b := fn.NewVar("b", ty.I32(), lir.Local)
	c := fn.NewVar("c", ty.I32(), lir.Local)
	fa := fn.NewVar("fa", ty.F32(), lir.Local)

	entry := fn.NewBlock("entry")
	entry.Append(&lir.LoadImmInt{Dst: a, Imm: 3})
	entry.Append(&lir.LoadImmInt{Dst: b, Imm: 4})
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: c, Lhs: lir.VarOperand(a), Rhs: lir.VarOperand(b)})
	entry.Append(&lir.LoadImmFloat{Dst: fa, Imm: 1.5})
	retVal := lir.VarOperand(c)
	entry.Append(&lir.Return{Val: &retVal})
	fn.RefreshCFG()

	AllocateFunction(fn)

	for _, b := range fn.Blocks {
		for _, inst := range b.Instrs {
			if d := inst.Defs(); d != nil && d.Lifetime == lir.Local {
				require.NotEmpty(t, d.Reg, "unallocated def %s", d.Name)
			}
			for _, u := range inst.Uses() {
				if u.Lifetime == lir.Local {
					require.NotEmpty(t, u.Reg, "unallocated use %s", u.Name)
				}
			}
		}
	}
}

// TestCallerSavedAvoidedAcrossCall: a value live across a call must
// not land in a caller-saved register.
func TestCallerSavedAvoidedAcrossCall(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("f", ty.I32(), false)
	live := fn.NewVar("live", ty.I32(), lir.Local)
	res := fn.NewVar("res", ty.I32(), lir.Local)
	sum := fn.NewVar("sum", ty.I32(), lir.Local)

	entry := fn.NewBlock("entry")
	entry.Append(&lir.LoadImmInt{Dst: live, Imm: 42})
	entry.Append(&lir.Call{Dst: res, Callee: "g"})
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: sum, Lhs: lir.VarOperand(live), Rhs: lir.VarOperand(res)})
	retVal := lir.VarOperand(sum)
	entry.Append(&lir.Return{Val: &retVal})
	fn.RefreshCFG()

	AllocateFunction(fn)

	require.NotEmpty(t, live.Reg)
	require.False(t, contains(CallerSavedInt, live.Reg),
		"value live across a call must get a callee-saved register, got %s", live.Reg)
	require.Contains(t, fn.UsedCalleeSaved, live.Reg)
}

// TestSpillInsertsStoreLoad: three values live at once in a
// two-register pool force the allocator to spill, and the spilled
// variable's traffic must go through its frame slot.
func TestSpillInsertsStoreLoad(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("f", ty.I32(), false)
	a := fn.NewVar("a", ty.I32(), lir.Local)
	b := fn.NewVar("b", ty.I32(), lir.Local)
	c := fn.NewVar("c", ty.I32(), lir.Local)
	d := fn.NewVar("d", ty.I32(), lir.Local)
	e := fn.NewVar("e", ty.I32(), lir.Local)

	entry := fn.NewBlock("entry")
	entry.Append(&lir.LoadImmInt{Dst: a, Imm: 1})
	entry.Append(&lir.LoadImmInt{Dst: b, Imm: 2})
	entry.Append(&lir.LoadImmInt{Dst: c, Imm: 3})
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: d, Lhs: lir.VarOperand(b), Rhs: lir.VarOperand(c)})
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: e, Lhs: lir.VarOperand(d), Rhs: lir.VarOperand(a)})
	retVal := lir.VarOperand(e)
	entry.Append(&lir.Return{Val: &retVal})
	fn.RefreshCFG()

	colorClass(fn, false, []string{"t0", "t1"})

	spilled := 0
	for _, v := range fn.Vars {
		if v.Lifetime == lir.Functional {
			spilled++
		}
	}
	require.NotZero(t, spilled, "one of the overlapping ranges must spill")

	stores, loads := 0, 0
	for _, inst := range entry.Instrs {
		switch inst.(type) {
		case *lir.StoreInt:
			stores++
		case *lir.LoadInt:
			loads++
		}
	}
	require.NotZero(t, stores, "spill must store the defined value")
	require.NotZero(t, loads, "spill must reload before use")
}
