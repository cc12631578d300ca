package typesys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterningIdentity(t *testing.T) {
	in := NewInterner()
	require.Same(t, in.I32(), in.I32())
	require.Same(t, in.PtrTo(in.I32()), in.PtrTo(in.I32()))
	require.Same(t, in.ArrayOf(in.F32(), 4), in.ArrayOf(in.F32(), 4))
	require.NotSame(t, in.ArrayOf(in.F32(), 4), in.ArrayOf(in.F32(), 5))
	require.True(t, Equal(in.PtrTo(in.I32()), in.PtrTo(in.I32())))
}

func TestSizes(t *testing.T) {
	in := NewInterner()
	require.Equal(t, 1, in.I1().Size())
	require.Equal(t, 4, in.I1().StoreSize())
	require.Equal(t, 4, in.I32().Size())
	require.Equal(t, 4, in.F32().Size())
	require.Equal(t, 8, in.PtrTo(in.I32()).Size())
	require.Equal(t, 40, in.ArrayOf(in.I32(), 10).Size())
	require.Equal(t, 80, in.ArrayOf(in.ArrayOf(in.I32(), 4), 5).Size())
}

func TestRegisterClasses(t *testing.T) {
	in := NewInterner()
	require.True(t, in.F32().IsFloat())
	require.False(t, in.I32().IsFloat())
	require.True(t, in.I32().IsInteger())
	require.True(t, in.I1().IsInteger())
	require.True(t, in.PtrTo(in.F32()).IsInteger(), "pointers live in integer registers")
}
