package irgen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/frontend/parser"
	"rvcc/internal/ssa"
)

func build(t *testing.T, src string) *ssa.Module {
	t.Helper()
	prog, err := parser.ParseSource("test.c", src)
	require.NoError(t, err)
	m, err := Build(prog)
	require.NoError(t, err)
	return m
}

func TestBuildSimpleFunction(t *testing.T) {
	m := build(t, `
int add(int a, int b) {
	return a + b;
}
`)
	fn := m.LookupFunction("add")
	require.NotNil(t, fn)
	require.Len(t, fn.Args, 2)
	require.Equal(t, m.Types.I32(), fn.ReturnType)

	// Naive lowering: each parameter gets an alloc + store.
	allocs := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == ssa.OpAlloc {
				allocs++
			}
		}
	}
	require.Equal(t, 2, allocs)
}

func TestBuildLoopAndGlobal(t *testing.T) {
	m := build(t, `
int a[4] = {1, 2, 3, 4};

int sum() {
	int s = 0;
	int i;
	for (i = 0; i < 4; i = i + 1) {
		s = s + a[i];
	}
	return s;
}
`)
	require.Len(t, m.Globals, 1)
	g := m.Globals[0]
	require.Equal(t, "a", g.Name())
	require.Len(t, g.Init.Elems, 4)
	require.False(t, g.Init.ZeroInit)
	require.Equal(t, 3, g.Init.LastNonZero)

	fn := m.LookupFunction("sum")
	require.NotNil(t, fn)

	// A for loop builds a header with a conditional branch back around.
	branches := 0
	for _, b := range fn.Blocks {
		if term := b.Terminator(); term != nil && term.Op == ssa.OpBranch {
			branches++
		}
	}
	require.NotZero(t, branches)
}

func TestBuildZeroInitGlobal(t *testing.T) {
	m := build(t, `int z[8];`)
	require.Len(t, m.Globals, 1)
	require.True(t, m.Globals[0].Init.ZeroInit)
	require.Equal(t, -1, m.Globals[0].Init.LastNonZero)
}

func TestBuildRuntimeCall(t *testing.T) {
	m := build(t, `
void main() {
	putint(42);
}
`)
	putint := m.LookupFunction("putint")
	require.NotNil(t, putint, "putint must be lazily declared")
	require.True(t, putint.Declare)
}

func TestBuildUndeclaredIdentifierFails(t *testing.T) {
	prog, err := parser.ParseSource("test.c", `
int f() {
	return nope;
}
`)
	require.NoError(t, err)
	_, err = Build(prog)
	require.Error(t, err)
}
