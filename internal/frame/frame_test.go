package frame

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/lir"
	"rvcc/internal/typesys"
)

// TestLargeFrameRewritesOffsets: 600 word-sized locals push the frame
// past the 12-bit immediate reach, so at least one access must be
// rewritten through a LoadAddress.
func TestLargeFrameRewritesOffsets(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("big", ty.Void(), false)
	entry := fn.NewBlock("entry")

	tmp := fn.NewVar("tmp", ty.I32(), lir.Local)
	tmp.Reg = "t0" // pretend allocation already happened
	for i := 0; i < 600; i++ {
		slot := fn.NewVar("local"+strconv.Itoa(i), ty.I32(), lir.Functional)
		entry.Append(&lir.LoadInt{Dst: tmp, Mem: lir.Mem{Base: slot}})
	}
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	fr := RunFunction(fn)

	require.Greater(t, fr.Size, int64(2048), "600 locals cannot fit the 12-bit window")
	require.Zero(t, fr.Size%16, "frame must stay 16-byte aligned")

	loadAddrs := 0
	direct := 0
	for _, inst := range entry.Instrs {
		switch x := inst.(type) {
		case *lir.LoadAddress:
			loadAddrs++
		case *lir.LoadInt:
			if x.Mem.Base != nil && x.Mem.Base.Reg == "s0" {
				require.GreaterOrEqual(t, x.Mem.Offset, int64(-2048))
				require.LessOrEqual(t, x.Mem.Offset, int64(2047))
				direct++
			}
		}
	}
	require.NotZero(t, loadAddrs, "out-of-range slots must go through a LoadAddress")
	require.NotZero(t, direct, "near slots should still address s0 directly")
}

// TestSmallFrameLayout checks slot assignment and prologue/epilogue
// installation for a frame that fits the immediate window.
func TestSmallFrameLayout(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("small", ty.I32(), false)
	entry := fn.NewBlock("entry")

	a := fn.NewVar("a", ty.I32(), lir.Functional)
	tmp := fn.NewVar("tmp", ty.I32(), lir.Local)
	tmp.Reg = "t0"
	entry.Append(&lir.StoreInt{Src: lir.IntImm(7), Mem: lir.Mem{Base: a}})
	entry.Append(&lir.LoadInt{Dst: tmp, Mem: lir.Mem{Base: a}})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	fr := RunFunction(fn)

	off, ok := fr.Offsets[a]
	require.True(t, ok)
	require.Negative(t, off, "locals sit below s0")
	require.Zero(t, fr.Size%16)
	require.Equal(t, int(fr.Size), fn.FrameSize)

	// Prologue: sp adjustment first, then ra/s0 saves, then s0 setup.
	first, ok := entry.Instrs[0].(*lir.IntArithmetic)
	require.True(t, ok)
	require.Equal(t, "sp", first.Dst.Reg)
	require.Equal(t, -fr.Size, first.Rhs.IntImm)

	// Epilogue restores sp right before the return.
	n := len(entry.Instrs)
	_, isRet := entry.Instrs[n-1].(*lir.Return)
	require.True(t, isRet)
	restore, ok := entry.Instrs[n-2].(*lir.IntArithmetic)
	require.True(t, ok)
	require.Equal(t, "sp", restore.Dst.Reg)
	require.Equal(t, fr.Size, restore.Rhs.IntImm)
}

// TestIncomingOverflowArgGetsPositiveOffset: a stack-passed parameter
// is addressed above the callee's frame pointer.
func TestIncomingOverflowArgGetsPositiveOffset(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("f", ty.Void(), false)
	entry := fn.NewBlock("entry")

	p := fn.NewVar("p8", ty.I32(), lir.Functional)
	p.ArgSlot = lir.IncomingArg
	p.ArgIdx = 0
	tmp := fn.NewVar("tmp", ty.I32(), lir.Local)
	tmp.Reg = "t0"
	entry.Append(&lir.LoadInt{Dst: tmp, Mem: lir.Mem{Base: p}})
	entry.Append(&lir.Return{})
	fn.RefreshCFG()

	fr := RunFunction(fn)
	require.EqualValues(t, 0, fr.Offsets[p], "first overflow arg sits at s0+0")
}
