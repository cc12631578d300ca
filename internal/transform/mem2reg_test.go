package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// TestMem2RegStraightLine covers the simplest promotion: a local that
// is stored twice and read once reduces to its last stored constant.
//
//	int t = 0; t = 1; return t;
func TestMem2RegStraightLine(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	ib := ssa.At(entry)

	alloc := ib.Alloc(m.Types.I32())
	ib.Store(alloc, m.ConstInt(0))
	ib.Store(alloc, m.ConstInt(1))
	load := ib.Load(alloc)
	ret := ib.Ret(load)
	fn.RefreshCFG()

	changed := Mem2Reg{}.Run(fn, analysis.NewCache())
	require.True(t, changed)

	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			require.NotEqual(t, ssa.OpAlloc, inst.Op)
			require.NotEqual(t, ssa.OpLoad, inst.Op)
			require.NotEqual(t, ssa.OpStore, inst.Op)
		}
	}

	c, ok := ret.Operands[0].Value.(*ssa.ConstInt)
	require.True(t, ok, "return operand should be a constant after promotion")
	require.EqualValues(t, 1, c.Val)
}

// TestMem2RegDiamondPhi checks Phi placement at a join: a local
// assigned differently on the two sides of a branch must merge
// through a Phi whose definition dominates the use.
func TestMem2RegDiamondPhi(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	left := fn.NewBlock("left")
	right := fn.NewBlock("right")
	join := fn.NewBlock("join")

	alloc := ssa.At(entry).Alloc(m.Types.I32())
	ssa.At(entry).Store(alloc, m.ConstInt(0))
	ssa.At(entry).Branch(m.ConstBool(true), left, right)
	ssa.At(left).Store(alloc, m.ConstInt(10))
	ssa.At(left).Jump(join)
	ssa.At(right).Store(alloc, m.ConstInt(20))
	ssa.At(right).Jump(join)
	load := ssa.At(join).Load(alloc)
	ret := ssa.At(join).Ret(load)
	fn.RefreshCFG()

	require.True(t, Mem2Reg{}.Run(fn, analysis.NewCache()))

	phi, ok := ret.Operands[0].Value.(*ssa.Instruction)
	require.True(t, ok)
	require.Equal(t, ssa.OpPhi, phi.Op)
	require.Equal(t, join, phi.Block)
	require.Len(t, phi.Operands, 2)

	vals := map[int64]bool{}
	for _, u := range phi.Operands {
		c, ok := u.Value.(*ssa.ConstInt)
		require.True(t, ok)
		vals[c.Val] = true
	}
	require.True(t, vals[10] && vals[20])
}
