package strength

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcc/internal/config"
	"rvcc/internal/lir"
	"rvcc/internal/typesys"
)

// evalSeq interprets a strength-reduced instruction sequence with
// 32-bit two's-complement semantics, the reference model the emitted
// RV64 word-ops implement.
func evalSeq(t *testing.T, instrs []lir.Instr, env map[*lir.Variable]int64) {
	t.Helper()
	val := func(o lir.Operand) int64 {
		if o.IsImm {
			return o.IntImm
		}
		v, ok := env[o.Var]
		require.True(t, ok, "read of undefined variable %s", o.Var.Name)
		return v
	}
	for _, inst := range instrs {
		switch x := inst.(type) {
		case *lir.LoadImmInt:
			env[x.Dst] = int64(int32(x.Imm))
		case *lir.Move:
			env[x.Dst] = int64(int32(val(x.Src)))
		case *lir.IntArithmetic:
			a, b := val(x.Lhs), val(x.Rhs)
			var r int64
			switch x.Op {
			case lir.IAdd:
				r = int64(int32(a) + int32(b))
			case lir.ISub:
				r = int64(int32(a) - int32(b))
			case lir.IMul:
				r = int64(int32(a) * int32(b))
			case lir.IMulh:
				r = (int64(int32(a)) * int64(int32(b))) >> 32
			case lir.IDiv:
				r = int64(int32(a) / int32(b))
			case lir.IMod:
				r = int64(int32(a) % int32(b))
			case lir.IAnd:
				r = a & b
			case lir.IShl:
				r = int64(int32(a) << (uint(b) & 31))
			case lir.IShr:
				r = int64(int32(a) >> (uint(b) & 31))
			default:
				t.Fatalf("unexpected op %d in reduced sequence", x.Op)
			}
			env[x.Dst] = r
		default:
			t.Fatalf("unexpected instruction %T in reduced sequence", inst)
		}
	}
}

var testConstants = []int64{
	1, 2, 4, 8, 16, 1024, 1 << 30,
	3, 5, 7, 11, 13, 6, 12, 9, 10, 100, 1000003,
	-1, -3, -8, -10,
	-2147483648,
}

var testInputs = []int64{
	0, 1, -1, -2147483648, 2147483647, 7, -7, 1 << 30, -(1 << 30), 100, -100, 999,
}

func runReduced(t *testing.T, op lir.IntOp, c, x int64) (int64, bool) {
	t.Helper()
	ty := typesys.NewInterner()
	fn := lir.NewFunction("t", ty.I32(), false)
	xv := fn.NewVar("x", ty.I32(), lir.Local)
	dst := fn.NewVar("dst", ty.I32(), lir.Local)
	ia := &lir.IntArithmetic{Op: op, Dst: dst, Lhs: lir.VarOperand(xv), Rhs: lir.IntImm(c)}

	cfg := config.Default()
	var seq []lir.Instr
	switch op {
	case lir.IMul:
		seq = reduceMul(fn, ia, cfg)
	case lir.IDiv:
		seq = reduceDiv(fn, ia, cfg)
	default:
		seq = reduceMod(fn, ia, cfg)
	}

	env := map[*lir.Variable]int64{xv: x}
	// A sequence that kept the original hardware op is still correct;
	// interpret it the same way.
	for _, inst := range seq {
		if same, ok := inst.(*lir.IntArithmetic); ok && same == ia {
			env[dst] = hardwareRef(op, x, c)
			return env[dst], true
		}
	}
	evalSeq(t, seq, env)
	return env[dst], true
}

func hardwareRef(op lir.IntOp, x, c int64) int64 {
	switch op {
	case lir.IMul:
		return int64(int32(x) * int32(c))
	case lir.IDiv:
		return int64(int32(x) / int32(c))
	default:
		return int64(int32(x) % int32(c))
	}
}

func TestMulByConstantEquivalence(t *testing.T) {
	for _, c := range testConstants {
		for _, x := range testInputs {
			got, _ := runReduced(t, lir.IMul, c, x)
			require.Equal(t, int64(int32(x)*int32(c)), got, "x=%d c=%d", x, c)
		}
	}
	// Multiplication by zero folds to a load of zero.
	got, _ := runReduced(t, lir.IMul, 0, 1234)
	require.Zero(t, got)
}

func TestDivByConstantEquivalence(t *testing.T) {
	for _, c := range testConstants {
		if c == 0 {
			continue
		}
		for _, x := range testInputs {
			if int32(x) == -2147483648 && int32(c) == -1 {
				continue // UB in the reference as well
			}
			got, _ := runReduced(t, lir.IDiv, c, x)
			require.Equal(t, int64(int32(x)/int32(c)), got, "x=%d c=%d", x, c)
		}
	}
}

func TestModByConstantEquivalence(t *testing.T) {
	for _, c := range testConstants {
		if c == 0 {
			continue
		}
		for _, x := range testInputs {
			if int32(x) == -2147483648 && int32(c) == -1 {
				continue
			}
			got, _ := runReduced(t, lir.IMod, c, x)
			require.Equal(t, int64(int32(x)%int32(c)), got, "x=%d c=%d", x, c)
		}
	}
}

// TestDivByTen pins the concrete case the backend cares most about:
// 100/10 = 10 and -100/10 = -10 through the magic-number path.
func TestDivByTen(t *testing.T) {
	got, _ := runReduced(t, lir.IDiv, 10, 100)
	require.EqualValues(t, 10, got)
	got, _ = runReduced(t, lir.IDiv, 10, -100)
	require.EqualValues(t, -10, got)
}

func TestMagicSignedKnownValues(t *testing.T) {
	// Classic published constants (Granlund & Montgomery / Hacker's
	// Delight table 10-1).
	m, s := magicSigned(3)
	require.Equal(t, uint32(0x55555556), m)
	require.Equal(t, uint(0), s)

	m, s = magicSigned(5)
	require.Equal(t, uint32(0x66666667), m)
	require.Equal(t, uint(1), s)

	m, s = magicSigned(7)
	require.Equal(t, uint32(0x92492493), m)
	require.Equal(t, uint(2), s)

	m, s = magicSigned(10)
	require.Equal(t, uint32(0x66666667), m)
	require.Equal(t, uint(2), s)
}

func TestDivByZeroConstantAborts(t *testing.T) {
	ty := typesys.NewInterner()
	fn := lir.NewFunction("t", ty.I32(), false)
	xv := fn.NewVar("x", ty.I32(), lir.Local)
	dst := fn.NewVar("dst", ty.I32(), lir.Local)
	ia := &lir.IntArithmetic{Op: lir.IDiv, Dst: dst, Lhs: lir.VarOperand(xv), Rhs: lir.IntImm(0)}
	require.Panics(t, func() { reduceDiv(fn, ia, config.Default()) })
}
