package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/ssa"
	"rvcc/internal/typesys"
)

// TestEffectsIOPropagation: a function calling putint is itself an IO
// writer, and so is its caller, transitively.
func TestEffectsIOPropagation(t *testing.T) {
	m := ssa.NewModule()
	putint := m.DeclareRuntime("putint", m.Types.Void(), []*typesys.Type{m.Types.I32()})

	leaf := m.NewFunction("leaf", m.Types.Void(), nil, false)
	lb := leaf.NewBlock("entry")
	ssa.At(lb).Call(putint, []ssa.Value{m.ConstInt(1)})
	ssa.At(lb).Ret(nil)
	leaf.RefreshCFG()

	caller := m.NewFunction("caller", m.Types.Void(), nil, false)
	cb := caller.NewBlock("entry")
	ssa.At(cb).Call(leaf, nil)
	ssa.At(cb).Ret(nil)
	caller.RefreshCFG()

	ei := computeEffects(m)
	require.True(t, ei.Of(leaf).IOWrite)
	require.True(t, ei.Of(caller).IOWrite)
	require.False(t, ei.Of(leaf).IsFree())
	require.False(t, ei.Of(caller).IsLeaf)
}

func TestEffectsPureFunctionIsFree(t *testing.T) {
	m := ssa.NewModule()
	pure := m.NewFunction("pure", m.Types.I32(), []*typesys.Type{m.Types.I32()}, false)
	pb := pure.NewBlock("entry")
	dbl := ssa.At(pb).Binary(ssa.OpAdd, m.Types.I32(), pure.Args[0], pure.Args[0])
	ssa.At(pb).Ret(dbl)
	pure.RefreshCFG()

	ei := computeEffects(m)
	e := ei.Of(pure)
	require.True(t, e.IsFree())
	require.True(t, e.NoState())
	require.True(t, e.IsLeaf)
	require.False(t, e.IsRecursive)
}

func TestEffectsRecursionAndArgWrites(t *testing.T) {
	m := ssa.NewModule()
	ptrI32 := m.Types.PtrTo(m.Types.I32())
	f := m.NewFunction("f", m.Types.Void(), []*typesys.Type{ptrI32}, false)
	fb := f.NewBlock("entry")
	ssa.At(fb).Store(f.Args[0], m.ConstInt(7))
	ssa.At(fb).Call(f, []ssa.Value{f.Args[0]})
	ssa.At(fb).Ret(nil)
	f.RefreshCFG()

	ei := computeEffects(m)
	e := ei.Of(f)
	require.True(t, e.IsRecursive)
	require.True(t, e.MemoryWrite)
	require.True(t, e.HasSideEffect, "store through a pointer argument")
	require.False(t, e.NoState())
}
