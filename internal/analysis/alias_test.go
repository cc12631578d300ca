package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/ssa"
)

func TestAliasDistinctAllocsDisjoint(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.Void(), nil, false)
	entry := fn.NewBlock("entry")
	a := ssa.At(entry).Alloc(m.Types.I32())
	b := ssa.At(entry).Alloc(m.Types.I32())
	ssa.At(entry).Ret(nil)
	fn.RefreshCFG()

	ai := computeAlias(fn)
	require.False(t, ai.MayAlias(a, b), "two distinct stack slots cannot alias")
	require.True(t, ai.MayAlias(a, a))
}

func TestAliasGlobalVsAlloc(t *testing.T) {
	m := ssa.NewModule()
	g := m.NewGlobal("g", m.Types.I32(), &ssa.Initializer{Scalar: m.ConstInt(0), ZeroInit: true, LastNonZero: -1})
	fn := m.NewFunction("f", m.Types.Void(), nil, false)
	entry := fn.NewBlock("entry")
	a := ssa.At(entry).Alloc(m.Types.I32())
	ssa.At(entry).Ret(nil)
	fn.RefreshCFG()

	ai := computeAlias(fn)
	require.False(t, ai.MayAlias(g, a), "a global and a stack slot occupy disjoint storage")
}

func TestAliasGEPConstantOffsetDisjointFromBase(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.Void(), nil, false)
	entry := fn.NewBlock("entry")
	arr := ssa.At(entry).Alloc(m.Types.ArrayOf(m.Types.I32(), 8))
	gep := ssa.At(entry).GEP(arr, m.ConstInt(3), m.Types.I32())
	gep0 := ssa.At(entry).GEP(arr, m.ConstInt(0), m.Types.I32())
	ssa.At(entry).Ret(nil)
	fn.RefreshCFG()

	ai := computeAlias(fn)
	require.False(t, ai.MayAlias(gep, arr), "&a[3] cannot alias a point access through the base")
	require.True(t, ai.MayAlias(gep0, arr), "&a[0] is the base")
}

// TestAliasUnknownIsConservative: a pointer loaded from memory has no
// kind ids, so it may alias anything.
func TestAliasUnknownIsConservative(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.Void(), nil, false)
	entry := fn.NewBlock("entry")
	cell := ssa.At(entry).Alloc(m.Types.PtrTo(m.Types.I32()))
	loaded := ssa.At(entry).Load(cell)
	other := ssa.At(entry).Alloc(m.Types.I32())
	ssa.At(entry).Ret(nil)
	fn.RefreshCFG()

	ai := computeAlias(fn)
	require.True(t, ai.MayAlias(loaded, other))
	require.True(t, ai.MayAlias(loaded, cell))
}
