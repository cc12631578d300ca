package passmanager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// TestPipelineConverges runs the full O1 pass list over a function
// with a loop, a promotable local, and dead code, and checks that Run
// returns with the local promoted and every block still ending in
// exactly one terminator.
func TestPipelineConverges(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")

	// int s = 0; for (i = 0; i < 4; i++) s = s + i; return s;
	sVar := ssa.At(entry).Alloc(m.Types.I32())
	ssa.At(entry).Store(sVar, m.ConstInt(0))
	ssa.At(entry).Jump(header)

	iv := ssa.At(header).Phi(m.Types.I32())
	cmp := ssa.At(header).Icmp(ssa.PredLT, iv, m.ConstInt(4))
	ssa.At(header).Branch(cmp, body, exit)

	s := ssa.At(body).Load(sVar)
	sum := ssa.At(body).Binary(ssa.OpAdd, m.Types.I32(), s, iv)
	ssa.At(body).Store(sVar, sum)
	next := ssa.At(body).Binary(ssa.OpAdd, m.Types.I32(), iv, m.ConstInt(1))
	ssa.At(body).Jump(header)

	sOut := ssa.At(exit).Load(sVar)
	ssa.At(exit).Ret(sOut)

	ssa.AddIncoming(iv, entry, m.ConstInt(0))
	ssa.AddIncoming(iv, body, next)
	fn.RefreshCFG()

	p := NewPipeline(O1)
	p.Run(m, analysis.NewCache())

	// Mem2Reg must have promoted the only local.
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			require.NotEqual(t, ssa.OpAlloc, inst.Op)
		}
	}
	// Every block still ends in exactly one terminator.
	for _, b := range fn.Blocks {
		term := b.Terminator()
		require.NotNil(t, term, "block %s lost its terminator", b.Label)
		for _, inst := range b.Instructions[:len(b.Instructions)-1] {
			require.False(t, inst.IsTerminator())
		}
	}
}

func TestO0PipelineIsEmpty(t *testing.T) {
	p := NewPipeline(O0)
	require.Empty(t, p.passes)
}
