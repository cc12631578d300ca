package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/lir"
	"rvcc/internal/typesys"
)

func TestEmitSimpleFunction(t *testing.T) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	fn := m.NewFunction("main", ty.I32(), false)
	entry := fn.NewBlock("entry")

	a := fn.NewVar("a", ty.I32(), lir.Local)
	a.Reg = "t0"
	b := fn.NewVar("b", ty.I32(), lir.Local)
	b.Reg = "t1"
	entry.Append(&lir.LoadImmInt{Dst: a, Imm: 41})
	entry.Append(&lir.IntArithmetic{Op: lir.IAdd, Dst: b, Lhs: lir.VarOperand(a), Rhs: lir.IntImm(1)})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	asm := Emit(m)
	require.Contains(t, asm, ".globl main")
	require.Contains(t, asm, "main:")
	require.Contains(t, asm, "li t0, 41")
	require.Contains(t, asm, "addiw t1, t0, 1")
	require.Contains(t, asm, "ret")
}

func TestEmitGlobalWithTrailingZeros(t *testing.T) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	m.Globals = append(m.Globals, &lir.Global{
		Name: "arr",
		Type: ty.ArrayOf(ty.I32(), 8),
		Init: &lir.Initializer{
			Elems: []*lir.Initializer{
				{IsScalar: true, IntScalar: 1, LastNonZero: -1},
				{IsScalar: true, IntScalar: 2, LastNonZero: -1},
				{IsScalar: true, LastNonZero: -1},
				{IsScalar: true, LastNonZero: -1},
				{IsScalar: true, LastNonZero: -1},
				{IsScalar: true, LastNonZero: -1},
				{IsScalar: true, LastNonZero: -1},
				{IsScalar: true, LastNonZero: -1},
			},
			LastNonZero: 1,
		},
	})

	asm := Emit(m)
	require.Contains(t, asm, ".data")
	require.Contains(t, asm, "arr:")
	require.Contains(t, asm, ".word 1")
	require.Contains(t, asm, ".word 2")
	require.Contains(t, asm, ".zero 24", "the six trailing zero words collapse")
}

func TestEmitZeroInitGlobal(t *testing.T) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	m.Globals = append(m.Globals, &lir.Global{
		Name: "zeros",
		Type: ty.ArrayOf(ty.I32(), 100),
		Init: &lir.Initializer{ZeroInit: true, LastNonZero: -1},
	})

	asm := Emit(m)
	require.Contains(t, asm, ".zero 400")
}

func TestEmitBranchAndLabels(t *testing.T) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	fn := m.NewFunction("f", ty.I32(), false)
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")

	x := fn.NewVar("x", ty.I32(), lir.Local)
	x.Reg = "a0"
	entry.Append(&lir.Branch{Pred: lir.PredLT, Lhs: lir.VarOperand(x), Rhs: lir.IntImm(0), True: thenB, False: elseB})
	thenB.Append(&lir.Return{})
	elseB.Append(&lir.Return{})
	fn.RefreshCFG()

	asm := Emit(m)
	require.Contains(t, asm, ".Lf_then:")
	require.Contains(t, asm, ".Lf_else:")
	require.Contains(t, asm, "blt a0, zero, .Lf_then")
	require.Contains(t, asm, "j .Lf_else")
}

func TestEmitMulhSequence(t *testing.T) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	fn := m.NewFunction("f", ty.I32(), false)
	entry := fn.NewBlock("entry")

	x := fn.NewVar("x", ty.I32(), lir.Local)
	x.Reg = "t0"
	mvar := fn.NewVar("m", ty.I32(), lir.Local)
	mvar.Reg = "t1"
	hi := fn.NewVar("hi", ty.I32(), lir.Local)
	hi.Reg = "t2"
	entry.Append(&lir.IntArithmetic{Op: lir.IMulh, Dst: hi, Lhs: lir.VarOperand(x), Rhs: lir.VarOperand(mvar)})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	asm := Emit(m)
	require.Contains(t, asm, "mul t2, t0, t1")
	require.Contains(t, asm, "srai t2, t2, 32")
}

func TestEmitCrossClassMoveIsConversion(t *testing.T) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	fn := m.NewFunction("f", ty.F32(), false)
	entry := fn.NewBlock("entry")

	i := fn.NewVar("i", ty.I32(), lir.Local)
	i.Reg = "t0"
	f := fn.NewVar("f", ty.F32(), lir.Local)
	f.Reg = "fa0"
	entry.Append(&lir.Move{Dst: f, Src: lir.VarOperand(i)})
	entry.Append(&lir.Move{Dst: i, Src: lir.VarOperand(f)})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	asm := Emit(m)
	require.Contains(t, asm, "fcvt.s.w fa0, t0")
	require.Contains(t, asm, "fcvt.w.s t0, fa0, rtz")
}

func TestEmitLargeOffsetGoesThroughScratch(t *testing.T) {
	ty := typesys.NewInterner()
	m := lir.NewModule()
	fn := m.NewFunction("f", ty.Void(), false)
	entry := fn.NewBlock("entry")

	base := fn.NewVar("base", ty.I32(), lir.Local)
	base.Reg = "s0"
	d := fn.NewVar("d", ty.I32(), lir.Local)
	d.Reg = "t0"
	entry.Append(&lir.LoadInt{Dst: d, Mem: lir.Mem{Base: base, Offset: 4000}})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	asm := Emit(m)
	require.Contains(t, asm, "li t6, 4000")
	require.Contains(t, asm, "add t6, s0, t6")
	require.Contains(t, asm, "lw t0, 0(t6)")
	require.False(t, strings.Contains(asm, "4000(s0)"))
}
