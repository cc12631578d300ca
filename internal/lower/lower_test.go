package lower

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/lir"
	"rvcc/internal/ssa"
)

// TestLowerFoldsCompareIntoBranch: an Icmp whose only use is a Branch
// condition must not materialize a SetCond.
func TestLowerFoldsCompareIntoBranch(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")

	cmp := ssa.At(entry).Icmp(ssa.PredLT, m.ConstInt(1), m.ConstInt(2))
	ssa.At(entry).Branch(cmp, thenB, elseB)
	ssa.At(thenB).Ret(m.ConstInt(1))
	ssa.At(elseB).Ret(m.ConstInt(0))
	fn.RefreshCFG()

	lm := Lower(m)
	lf := lm.Lookup("f")
	require.NotNil(t, lf)

	for _, b := range lf.Blocks {
		for _, inst := range b.Instrs {
			_, isSetCond := inst.(*lir.SetCond)
			require.False(t, isSetCond, "compare with a single branch use must fold into the branch")
		}
	}

	var br *lir.Branch
	for _, inst := range lf.Entry.Instrs {
		if x, ok := inst.(*lir.Branch); ok {
			br = x
		}
	}
	require.NotNil(t, br)
	require.Equal(t, lir.PredLT, br.Pred)
}

// TestLowerGEPConstantIndexFoldsIntoOffset: &a[3] becomes a Pointer
// descriptor, not an instruction; the load then addresses base+12.
func TestLowerGEPConstantIndexFoldsIntoOffset(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	ib := ssa.At(entry)

	arr := ib.Alloc(m.Types.ArrayOf(m.Types.I32(), 8))
	gep := ib.GEP(arr, m.ConstInt(3), m.Types.I32())
	load := ib.Load(gep)
	ib.Ret(load)
	fn.RefreshCFG()

	lm := Lower(m)
	lf := lm.Lookup("f")

	var li *lir.LoadInt
	for _, inst := range lf.Entry.Instrs {
		if x, ok := inst.(*lir.LoadInt); ok {
			li = x
		}
	}
	require.NotNil(t, li)
	require.EqualValues(t, 12, li.Mem.Offset, "constant GEP index folds to a byte offset")
	require.Equal(t, lir.Functional, li.Mem.Base.Lifetime, "the alloc backs a frame slot")
}

// TestLowerPhiBecomesPredecessorMoves: SSA destruction places one
// move per incoming edge at the end of each predecessor.
func TestLowerPhiBecomesPredecessorMoves(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	left := fn.NewBlock("left")
	right := fn.NewBlock("right")
	join := fn.NewBlock("join")

	cmp := ssa.At(entry).Icmp(ssa.PredEQ, m.ConstInt(0), m.ConstInt(0))
	ssa.At(entry).Branch(cmp, left, right)
	ssa.At(left).Jump(join)
	ssa.At(right).Jump(join)
	phi := ssa.At(join).Phi(m.Types.I32())
	ssa.AddIncoming(phi, left, m.ConstInt(10))
	ssa.AddIncoming(phi, right, m.ConstInt(20))
	ssa.At(join).Ret(phi)
	fn.RefreshCFG()

	lm := Lower(m)
	lf := lm.Lookup("f")

	movesBeforeJump := 0
	for _, b := range lf.Blocks {
		n := len(b.Instrs)
		if n < 2 {
			continue
		}
		if _, isJump := b.Instrs[n-1].(*lir.Jump); !isJump {
			continue
		}
		if _, isMove := b.Instrs[n-2].(*lir.Move); isMove {
			movesBeforeJump++
		}
	}
	require.Equal(t, 2, movesBeforeJump, "each predecessor feeds the phi register")
}

// TestLowerConstantFolding: a constant-constant binary folds at
// lowering instead of reaching the ALU.
func TestLowerConstantFolding(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	ib := ssa.At(entry)
	sum := ib.Binary(ssa.OpAdd, m.Types.I32(), m.ConstInt(30), m.ConstInt(12))
	ib.Ret(sum)
	fn.RefreshCFG()

	lm := Lower(m)
	lf := lm.Lookup("f")

	var li *lir.LoadImmInt
	for _, inst := range lf.Entry.Instrs {
		switch x := inst.(type) {
		case *lir.LoadImmInt:
			li = x
		case *lir.IntArithmetic:
			t.Fatalf("constant add must fold away, found ALU op")
		}
	}
	require.NotNil(t, li)
	require.EqualValues(t, 42, li.Imm)
}
