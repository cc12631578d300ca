package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
	"rvcc/internal/typesys"
)

// buildCountingLoop constructs
//
//	for (i = 0; i < n; i += step) {}
//
// as entry -> header <-> body, header -> exit, returning the module,
// function, and induction Phi.
func buildCountingLoop(t *testing.T, n, step int64) (*ssa.Module, *ssa.Function, *ssa.Instruction) {
	t.Helper()
	m := ssa.NewModule()
	fn := m.NewFunction("count", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")

	ssa.At(entry).Jump(header)

	iv := ssa.At(header).Phi(m.Types.I32())
	cmp := ssa.At(header).Icmp(ssa.PredLT, iv, m.ConstInt(n))
	ssa.At(header).Branch(cmp, body, exit)

	next := ssa.At(body).Binary(ssa.OpAdd, m.Types.I32(), iv, m.ConstInt(step))
	ssa.At(body).Jump(header)

	ssa.At(exit).Ret(iv)

	ssa.AddIncoming(iv, entry, m.ConstInt(0))
	ssa.AddIncoming(iv, body, next)
	fn.RefreshCFG()
	return m, fn, iv
}

func TestLoopSimplifyIdempotent(t *testing.T) {
	_, fn, _ := buildCountingLoop(t, 4, 1)
	cache := analysis.NewCache()

	LoopSimplifyForm{}.Run(fn, cache)
	blocksAfterFirst := len(fn.Blocks)

	changed := LoopSimplifyForm{}.Run(fn, cache)
	require.False(t, changed, "second run must be a no-op")
	require.Equal(t, blocksAfterFirst, len(fn.Blocks))
}

func TestLICMHoistsInvariantAdd(t *testing.T) {
	m, fn, _ := buildCountingLoop(t, 10, 1)
	cache := analysis.NewCache()
	LoopSimplifyForm{}.Run(fn, cache)

	// Plant an invariant computation in the loop body and keep it
	// alive from outside the loop via the return.
	lf := cache.Loops(fn)
	require.Len(t, lf.Top, 1)
	loop := lf.Top[0]
	body := loop.Latch
	inv := ssa.At(body).Binary(ssa.OpAdd, m.Types.I32(), m.ConstInt(3), m.ConstInt(4))
	term := body.Terminator()
	body.Remove(inv)
	body.InsertBefore(term, inv)
	findRet(fn).Terminator().SetOperand(0, inv)
	cache.SetDirty(fn)

	require.True(t, LICM{}.Run(fn, cache))

	loop = cache.Loops(fn).Top[0]
	require.NotNil(t, loop.Preheader)
	require.Equal(t, loop.Preheader, inv.Block, "invariant add should sit in the preheader")
	for _, u := range inv.Operands {
		if def, ok := u.Value.(*ssa.Instruction); ok {
			require.False(t, loop.Contains(def.Block), "hoisted instruction must not read loop-defined values")
		}
	}
}

func findRet(fn *ssa.Function) *ssa.Block {
	for _, b := range fn.Blocks {
		if term := b.Terminator(); term != nil && term.Op == ssa.OpRet {
			return b
		}
	}
	return nil
}

func TestConstUnrollReplicatesBody(t *testing.T) {
	_, fn, _ := buildCountingLoop(t, 4, 1)
	cache := analysis.NewCache()
	LoopSimplifyForm{}.Run(fn, cache)
	LCSSA{}.Run(fn, cache)

	before := len(fn.Blocks)
	changed := ConstLoopUnroll{MaxExpansion: 8}.Run(fn, cache)
	require.True(t, changed)
	require.Greater(t, len(fn.Blocks), before, "unrolling must add cloned blocks")

	blocks := len(fn.Blocks)
	ConstLoopUnroll{MaxExpansion: 8}.Run(fn, cache)
	require.Equal(t, blocks, len(fn.Blocks), "unrolled result must not unroll again")
}

// buildRuntimeLoop constructs for (i = 0; i < n; i += step) with n a
// function argument, so the trip count is only known at run time.
func buildRuntimeLoop(t *testing.T, step int64) (*ssa.Module, *ssa.Function) {
	t.Helper()
	m := ssa.NewModule()
	fn := m.NewFunction("count", m.Types.I32(), []*typesys.Type{m.Types.I32()}, false)
	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")

	ssa.At(entry).Jump(header)
	iv := ssa.At(header).Phi(m.Types.I32())
	cmp := ssa.At(header).Icmp(ssa.PredLT, iv, fn.Args[0])
	ssa.At(header).Branch(cmp, body, exit)
	next := ssa.At(body).Binary(ssa.OpAdd, m.Types.I32(), iv, m.ConstInt(step))
	ssa.At(body).Jump(header)
	ssa.At(exit).Ret(iv)
	ssa.AddIncoming(iv, entry, m.ConstInt(0))
	ssa.AddIncoming(iv, body, next)
	fn.RefreshCFG()
	return m, fn
}

// TestRuntimeUnrollKernelAndRemainder checks the chunked construction:
// guard arithmetic bounds a straight-line kernel of Factor copies, and
// the original loop survives as the remainder for the leftover
// iterations.
func TestRuntimeUnrollKernelAndRemainder(t *testing.T) {
	_, fn := buildRuntimeLoop(t, 1)
	cache := analysis.NewCache()
	LoopSimplifyForm{}.Run(fn, cache)
	LCSSA{}.Run(fn, cache)

	require.True(t, LoopUnroll{Factor: 4}.Run(fn, cache))

	// Exactly two conditional branches remain: the kernel guard and
	// the remainder loop's own exit check. The inner copies' checks
	// collapsed into jumps.
	branches, divs, kernelBlocks, remBlocks := 0, 0, 0, 0
	for _, b := range fn.Blocks {
		if term := b.Terminator(); term != nil && term.Op == ssa.OpBranch {
			branches++
		}
		for _, inst := range b.Instructions {
			if inst.Op == ssa.OpDiv {
				divs++
			}
		}
		if strings.Contains(b.Label, ".unroll.rem") {
			remBlocks++
		} else if strings.Contains(b.Label, ".unroll") {
			kernelBlocks++
		}
	}
	require.Equal(t, 2, branches, "kernel guard + remainder check only")
	require.Equal(t, 1, divs, "the chunk-aligned bound divides once")
	require.NotZero(t, kernelBlocks, "expected cloned kernel blocks")
	require.NotZero(t, remBlocks, "expected the original loop tagged as remainder")

	blocks := len(fn.Blocks)
	require.False(t, LoopUnroll{Factor: 4}.Run(fn, cache), "unroll residue must not unroll again")
	require.Equal(t, blocks, len(fn.Blocks))
}

// TestRuntimeUnrollSkipsConstantBound: a compile-time trip count is
// ConstLoopUnroll's job; the runtime unroll must leave it alone.
func TestRuntimeUnrollSkipsConstantBound(t *testing.T) {
	_, fn, _ := buildCountingLoop(t, 100, 3)
	cache := analysis.NewCache()
	LoopSimplifyForm{}.Run(fn, cache)
	LCSSA{}.Run(fn, cache)

	require.False(t, LoopUnroll{Factor: 4}.Run(fn, cache))
}

// TestUnswitchDuplicatesLoop branches inside the loop on the
// function's own i1 argument, which is invariant; the pass must hoist
// the test above the loop and leave one cone per outcome.
func TestUnswitchDuplicatesLoop(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("usw", m.Types.I32(), []*typesys.Type{m.Types.I1()}, false)
	arg := fn.Args[0]

	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	cond := fn.NewBlock("cond")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	latch := fn.NewBlock("latch")
	exit := fn.NewBlock("exit")

	ssa.At(entry).Jump(header)
	iv := ssa.At(header).Phi(m.Types.I32())
	cmp := ssa.At(header).Icmp(ssa.PredLT, iv, m.ConstInt(8))
	ssa.At(header).Branch(cmp, cond, exit)
	ssa.At(cond).Branch(arg, thenB, elseB)
	ssa.At(thenB).Jump(latch)
	ssa.At(elseB).Jump(latch)
	next := ssa.At(latch).Binary(ssa.OpAdd, m.Types.I32(), iv, m.ConstInt(1))
	ssa.At(latch).Jump(header)
	ssa.At(exit).Ret(iv)
	ssa.AddIncoming(iv, entry, m.ConstInt(0))
	ssa.AddIncoming(iv, latch, next)
	fn.RefreshCFG()

	cache := analysis.NewCache()
	LoopSimplifyForm{}.Run(fn, cache)
	LCSSA{}.Run(fn, cache)
	loop := cache.Loops(fn).Top[0]
	preheader := loop.Preheader
	require.NotNil(t, preheader)

	require.True(t, LoopUnswitch{}.Run(fn, cache))

	guard := preheader.Terminator()
	require.Equal(t, ssa.OpBranch, guard.Op)
	require.Equal(t, ssa.Value(arg), guard.Operands[0].Value, "guard must test the invariant condition")

	cones := 0
	for _, b := range fn.Blocks {
		if strings.Contains(b.Label, ".uswT") || strings.Contains(b.Label, ".uswF") {
			cones++
		}
	}
	require.NotZero(t, cones, "expected cloned cone blocks")

	// No further invariant branch remains to unswitch.
	require.False(t, LoopUnswitch{}.Run(fn, cache))
}
