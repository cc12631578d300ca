package peephole

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/lir"
	"rvcc/internal/typesys"
)

func newFn(name string) (*lir.Module, *lir.Function, *lir.Block, *typesys.Interner) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	fn := m.NewFunction(name, ty.Void(), false)
	entry := fn.NewBlock("entry")
	return m, fn, entry, ty
}

func TestAddZeroBecomesMove(t *testing.T) {
	m, fn, entry, ty := newFn("f")
	a := fn.NewVar("a", ty.I32(), lir.Local)
	b := fn.NewVar("b", ty.I32(), lir.Local)
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: b, Lhs: lir.VarOperand(a), Rhs: lir.IntImm(0)})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	PreRA(m)

	mv, ok := entry.Instrs[0].(*lir.Move)
	require.True(t, ok, "add rd, rs, 0 should rewrite to a move")
	require.Equal(t, b, mv.Dst)
	require.Equal(t, a, mv.Src.Var)
}

func TestRedundantLoadDropped(t *testing.T) {
	m, fn, entry, ty := newFn("f")
	base := fn.NewVar("base", ty.I32(), lir.Functional)
	d := fn.NewVar("d", ty.I32(), lir.Local)
	entry.Append(&lir.LoadInt{Dst: d, Mem: lir.Mem{Base: base}})
	entry.Append(&lir.LoadInt{Dst: d, Mem: lir.Mem{Base: base}})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	PreRA(m)

	loads := 0
	for _, inst := range entry.Instrs {
		if _, ok := inst.(*lir.LoadInt); ok {
			loads++
		}
	}
	require.Equal(t, 1, loads, "second identical load is redundant")
}

func TestConstantReuseWithinWindow(t *testing.T) {
	m, fn, entry, ty := newFn("f")
	a := fn.NewVar("a", ty.I32(), lir.Local)
	b := fn.NewVar("b", ty.I32(), lir.Local)
	c := fn.NewVar("c", ty.I32(), lir.Local)
	entry.Append(&lir.LoadImmInt{Dst: a, Imm: 77})
	entry.Append(&lir.LoadImmInt{Dst: b, Imm: 77})
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: c, Lhs: lir.VarOperand(a), Rhs: lir.VarOperand(b)})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	PreRA(m)

	imms := 0
	for _, inst := range entry.Instrs {
		if _, ok := inst.(*lir.LoadImmInt); ok {
			imms++
		}
	}
	require.Equal(t, 1, imms, "duplicate load-imm should be dropped")

	add := entry.Instrs[1].(*lir.IntArithmetic)
	require.Equal(t, a, add.Lhs.Var)
	require.Equal(t, a, add.Rhs.Var, "users of the duplicate must be rewritten to the survivor")
}

func TestPostRADropsSelfMoves(t *testing.T) {
	m, fn, entry, ty := newFn("f")
	a := fn.NewVar("a", ty.I32(), lir.Local)
	a.Reg = "t0"
	b := fn.NewVar("b", ty.I32(), lir.Local)
	b.Reg = "t0"
	entry.Append(&lir.Move{Dst: b, Src: lir.VarOperand(a)})
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: a, Lhs: lir.VarOperand(a), Rhs: lir.IntImm(0)})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	PostRA(m)

	require.Len(t, entry.Instrs, 1, "self-move and add-zero-to-self are both noise")
	_, isRet := entry.Instrs[0].(*lir.Return)
	require.True(t, isRet)
}

func TestPostRACollapsesTrivialJumpBlock(t *testing.T) {
	m, fn, entry, _ := newFn("f")
	hop := fn.NewBlock("hop")
	tail := fn.NewBlock("tail")
	entry.Append(&lir.Jump{Target: hop})
	hop.Append(&lir.Jump{Target: tail})
	tail.Append(&lir.Return{})
	fn.RefreshCFG()

	PostRA(m)

	require.Len(t, fn.Blocks, 2, "the jump-only block should be gone")
	j := entry.Instrs[0].(*lir.Jump)
	require.Equal(t, tail, j.Target)
}
