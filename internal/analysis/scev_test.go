package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/ssa"
)

// buildLoopWithIV constructs for (i = init; i < 100; i += step) and
// returns the analyses plus the induction Phi.
func buildLoopWithIV(t *testing.T, init, step int64) (*ssa.Function, *Cache, *ssa.Instruction) {
	t.Helper()
	m := ssa.NewModule()
	fn := m.NewFunction("iv", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")

	ssa.At(entry).Jump(header)
	iv := ssa.At(header).Phi(m.Types.I32())
	cmp := ssa.At(header).Icmp(ssa.PredLT, iv, m.ConstInt(100))
	ssa.At(header).Branch(cmp, body, exit)
	next := ssa.At(body).Binary(ssa.OpAdd, m.Types.I32(), iv, m.ConstInt(step))
	ssa.At(body).Jump(header)
	ssa.At(exit).Ret(iv)
	ssa.AddIncoming(iv, entry, m.ConstInt(init))
	ssa.AddIncoming(iv, body, next)
	fn.RefreshCFG()

	cache := NewCache()
	// The forest recognizes the already-simplified shape directly.
	lf := cache.Loops(fn)
	require.Len(t, lf.Top, 1)
	require.NotNil(t, lf.Top[0].Preheader)
	require.NotNil(t, lf.Top[0].Latch)
	return fn, cache, iv
}

func TestSCEVRecognizesBasicIV(t *testing.T) {
	fn, cache, iv := buildLoopWithIV(t, 5, 3)
	expr, ok := cache.SCEV(fn).Of(iv)
	require.True(t, ok)
	require.True(t, expr.Valid)
	require.EqualValues(t, 5, expr.Base)
	require.EqualValues(t, 3, expr.Step)
}

func TestTripCountClosedForms(t *testing.T) {
	tests := []struct {
		name       string
		init, step int64
		pred       ssa.Predicate
		n          int64
		want       int64
		computable bool
	}{
		{"lt-exact", 0, 1, ssa.PredLT, 4, 4, true},
		{"lt-step", 0, 3, ssa.PredLT, 10, 4, true}, // ceil(10/3)
		{"lt-zero-bound", 0, 1, ssa.PredLT, 0, 0, true},
		{"lt-negative-bound", 0, 2, ssa.PredLT, -5, 0, true},
		{"le", 0, 1, ssa.PredLE, 4, 5, true},
		{"le-step", 1, 2, ssa.PredLE, 7, 4, true}, // 1,3,5,7
		{"gt", 10, -2, ssa.PredGT, 0, 5, true},    // 10,8,6,4,2
		{"ge", 10, -2, ssa.PredGE, 0, 6, true},    // 10,8,6,4,2,0
		{"eq-not-computable", 0, 1, ssa.PredEQ, 4, -1, false},
		{"ne-not-computable", 0, 1, ssa.PredNE, 4, -1, false},
		{"lt-wrong-direction", 0, -1, ssa.PredLT, 4, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := &SCEVExpr{Base: tt.init, Step: tt.step, Valid: true}
			got, ok := expr.TripCount(tt.pred, tt.n)
			require.Equal(t, tt.computable, ok)
			if ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

// TestTripCountMatchesSimulation cross-checks the closed forms
// against a direct simulation of the loop, the ground truth.
func TestTripCountMatchesSimulation(t *testing.T) {
	holds := func(p ssa.Predicate, a, b int64) bool {
		switch p {
		case ssa.PredLT:
			return a < b
		case ssa.PredLE:
			return a <= b
		case ssa.PredGT:
			return a > b
		default:
			return a >= b
		}
	}
	for _, pred := range []ssa.Predicate{ssa.PredLT, ssa.PredLE} {
		for init := int64(-3); init <= 3; init++ {
			for step := int64(1); step <= 4; step++ {
				for n := int64(-2); n <= 12; n++ {
					expr := &SCEVExpr{Base: init, Step: step, Valid: true}
					got, ok := expr.TripCount(pred, n)
					require.True(t, ok)
					sim := int64(0)
					for i := init; holds(pred, i, n); i += step {
						sim++
					}
					require.Equal(t, sim, got, "pred=%v init=%d step=%d n=%d", pred, init, step, n)
				}
			}
		}
	}
}

func TestPolynomialFolding(t *testing.T) {
	l := &Loop{}
	i := &SCEVExpr{Loop: l, Base: 2, Step: 3, Valid: true} // 2 + 3k
	j := &SCEVExpr{Loop: l, Base: 1, Step: 1, Valid: true} // 1 + k

	sum := i.Polynomial().Add(j.Polynomial())
	require.NotNil(t, sum)
	for k := int64(0); k < 6; k++ {
		require.Equal(t, (2+3*k)+(1+k), sum.EvalAt(k))
	}

	prod := i.Polynomial().MulAffine(j.Polynomial())
	require.NotNil(t, prod)
	for k := int64(0); k < 6; k++ {
		require.Equal(t, (2+3*k)*(1+k), prod.EvalAt(k), "k=%d", k)
	}

	scaled := i.Polynomial().Scale(5)
	for k := int64(0); k < 6; k++ {
		require.Equal(t, 5*(2+3*k), scaled.EvalAt(k))
	}
}
