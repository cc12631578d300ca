// Package strength rewrites IntArithmetic Mul/Div/Mod-by-constant
// into shift/add/sub sequences: Granlund-Montgomery magic-number
// division, power-of-two fast paths, and bounded-cost shift-add
// multiply trees.
package strength

import (
	"rvcc/internal/config"
	"rvcc/internal/diag"
	"rvcc/internal/lir"
)

// Reduce rewrites every Mul/Div/Mod-by-constant IntArithmetic
// instruction in m in place, bounded by cfg.MaxMulCost.
func Reduce(m *lir.Module, cfg *config.Config) {
	for _, fn := range m.Functions {
		for _, b := range fn.Blocks {
			b.Instrs = reduceBlock(fn, b.Instrs, cfg)
		}
	}
}

func reduceBlock(fn *lir.Function, instrs []lir.Instr, cfg *config.Config) []lir.Instr {
	out := make([]lir.Instr, 0, len(instrs))
	for _, inst := range instrs {
		ia, ok := inst.(*lir.IntArithmetic)
		if !ok || !ia.Rhs.IsImm || ia.Lhs.IsImm {
			out = append(out, inst)
			continue
		}
		switch ia.Op {
		case lir.IMul:
			out = append(out, reduceMul(fn, ia, cfg)...)
		case lir.IDiv:
			out = append(out, reduceDiv(fn, ia, cfg)...)
		case lir.IMod:
			out = append(out, reduceMod(fn, ia, cfg)...)
		default:
			out = append(out, inst)
		}
	}
	return out
}

func isPow2(n int64) (uint, bool) {
	if n <= 0 {
		return 0, false
	}
	if n&(n-1) != 0 {
		return 0, false
	}
	shift := uint(0)
	for (int64(1) << shift) != n {
		shift++
	}
	return shift, true
}

// reduceMul rewrites `x * C` into a shift, or a bounded shift-add/sub
// tree for small constants, falling back to the original multiply when
// the constant needs more than cfg.MaxMulCost shift terms (one per set
// bit). Mirrors
// Arithmetic.cpp's cost-bounded search.
func reduceMul(fn *lir.Function, ia *lir.IntArithmetic, cfg *config.Config) []lir.Instr {
	c := ia.Rhs.IntImm
	if c == 0 {
		return []lir.Instr{&lir.LoadImmInt{Dst: ia.Dst, Imm: 0}}
	}
	if c == 1 {
		return []lir.Instr{&lir.Move{Dst: ia.Dst, Src: ia.Lhs}}
	}
	neg := c < 0
	abs := c
	if neg {
		abs = -c
	}
	if shift, ok := isPow2(abs); ok {
		dst := ia.Dst
		if neg {
			dst = fn.NewVar("mul.shl", ia.Dst.Type, lir.Local)
		}
		out := []lir.Instr{&lir.IntArithmetic{Op: lir.IShl, Dst: dst, Lhs: ia.Lhs, Rhs: lir.IntImm(int64(shift))}}
		if neg {
			out = append(out, &lir.IntArithmetic{Op: lir.ISub, Dst: ia.Dst, Lhs: lir.IntImm(0), Rhs: lir.VarOperand(dst)})
		}
		return out
	}

	// Shift-add/sub tree for small odd-ish multipliers:
	// x*C = x<<k1 + x<<k2 + ... (one term per set bit, cost = popcount).
	var out []lir.Instr
	acc := (*lir.Variable)(nil)
	bitsUsed := 0
	rem := abs
	for shift := uint(0); rem != 0 && bitsUsed < cfg.MaxMulCost; shift++ {
		if rem&1 == 1 {
			term := fn.NewVar("mul.term", ia.Dst.Type, lir.Local)
			if shift == 0 {
				out = append(out, &lir.Move{Dst: term, Src: ia.Lhs})
			} else {
				out = append(out, &lir.IntArithmetic{Op: lir.IShl, Dst: term, Lhs: ia.Lhs, Rhs: lir.IntImm(int64(shift))})
			}
			if acc == nil {
				acc = term
			} else {
				next := fn.NewVar("mul.acc", ia.Dst.Type, lir.Local)
				out = append(out, &lir.IntArithmetic{Op: lir.IAdd, Dst: next, Lhs: lir.VarOperand(acc), Rhs: lir.VarOperand(term)})
				acc = next
			}
			bitsUsed++
		}
		rem >>= 1
	}
	if rem != 0 {
		// Tree exceeded the cost bound; emit the plain multiply.
		return []lir.Instr{ia}
	}
	if neg {
		out = append(out, &lir.IntArithmetic{Op: lir.ISub, Dst: ia.Dst, Lhs: lir.IntImm(0), Rhs: lir.VarOperand(acc)})
	} else {
		out = append(out, &lir.Move{Dst: ia.Dst, Src: lir.VarOperand(acc)})
	}
	return out
}

// reduceDiv rewrites signed division by a constant. A power of two
// becomes a shift with a correcting bias for negative dividends (the
// classic `(x + ((x>>31) & (C-1))) >> log2(C)` sequence); any other
// constant goes through the Granlund-Montgomery magic-multiply
// sequence. A negative divisor divides by |C| and negates.
func reduceDiv(fn *lir.Function, ia *lir.IntArithmetic, cfg *config.Config) []lir.Instr {
	c := ia.Rhs.IntImm
	if c == 0 {
		diag.Fatalf(diag.DivByZeroConstant, fn.Name, "division of %s by constant zero", ia.Dst.Name)
	}
	if c == 1 {
		return []lir.Instr{&lir.Move{Dst: ia.Dst, Src: ia.Lhs}}
	}
	if c == -1 {
		return []lir.Instr{&lir.IntArithmetic{Op: lir.ISub, Dst: ia.Dst, Lhs: lir.IntImm(0), Rhs: ia.Lhs}}
	}
	neg := c < 0
	abs := c
	if neg {
		abs = -c
	}
	dst := ia.Dst
	if neg {
		dst = fn.NewVar("div.q", ia.Dst.Type, lir.Local)
	}
	var out []lir.Instr
	if shift, ok := isPow2(abs); ok {
		signBit := fn.NewVar("div.sign", ia.Dst.Type, lir.Local)
		bias := fn.NewVar("div.bias", ia.Dst.Type, lir.Local)
		adjusted := fn.NewVar("div.adj", ia.Dst.Type, lir.Local)
		out = []lir.Instr{
			&lir.IntArithmetic{Op: lir.IShr, Dst: signBit, Lhs: ia.Lhs, Rhs: lir.IntImm(31)},
			&lir.IntArithmetic{Op: lir.IAnd, Dst: bias, Lhs: lir.VarOperand(signBit), Rhs: lir.IntImm(abs - 1)},
			&lir.IntArithmetic{Op: lir.IAdd, Dst: adjusted, Lhs: ia.Lhs, Rhs: lir.VarOperand(bias)},
			&lir.IntArithmetic{Op: lir.IShr, Dst: dst, Lhs: lir.VarOperand(adjusted), Rhs: lir.IntImm(int64(shift))},
		}
	} else {
		out = magicDiv(fn, dst, ia.Lhs, uint32(abs))
	}
	if neg {
		out = append(out, &lir.IntArithmetic{Op: lir.ISub, Dst: ia.Dst, Lhs: lir.IntImm(0), Rhs: lir.VarOperand(dst)})
	}
	return out
}

// magicDiv emits `dst = x / d` for d >= 3, not a power of two, via the
// magic multiplier: t = mulh(x, M); when M overflowed into the sign
// bit, t += x; q = (t >> sh) - (x >> 31).
func magicDiv(fn *lir.Function, dst *lir.Variable, x lir.Operand, d uint32) []lir.Instr {
	m, sh := magicSigned(d)

	mvar := fn.NewVar("div.magic", dst.Type, lir.Local)
	hi := fn.NewVar("div.hi", dst.Type, lir.Local)
	out := []lir.Instr{
		&lir.LoadImmInt{Dst: mvar, Imm: int64(int32(m))},
		&lir.IntArithmetic{Op: lir.IMulh, Dst: hi, Lhs: x, Rhs: lir.VarOperand(mvar)},
	}
	t := hi
	if int32(m) < 0 {
		adj := fn.NewVar("div.hiadj", dst.Type, lir.Local)
		out = append(out, &lir.IntArithmetic{Op: lir.IAdd, Dst: adj, Lhs: lir.VarOperand(hi), Rhs: x})
		t = adj
	}
	shifted := fn.NewVar("div.shr", dst.Type, lir.Local)
	sign := fn.NewVar("div.sign", dst.Type, lir.Local)
	out = append(out,
		&lir.IntArithmetic{Op: lir.IShr, Dst: shifted, Lhs: lir.VarOperand(t), Rhs: lir.IntImm(int64(sh))},
		&lir.IntArithmetic{Op: lir.IShr, Dst: sign, Lhs: x, Rhs: lir.IntImm(31)},
		&lir.IntArithmetic{Op: lir.ISub, Dst: dst, Lhs: lir.VarOperand(shifted), Rhs: lir.VarOperand(sign)},
	)
	return out
}

// magicSigned computes the signed-division magic number and post-shift
// for a divisor d >= 2 (Granlund & Montgomery; the incremental form
// from Hacker's Delight figure 10-1). The returned multiplier is
// interpreted as a signed 32-bit value by the emission above.
func magicSigned(d uint32) (magic uint32, shift uint) {
	const two31 = uint32(1) << 31

	anc := two31 - 1 - (two31-1)%d // absolute value of nc
	p := uint(31)
	q1 := two31 / anc
	r1 := two31 - q1*anc
	q2 := two31 / d
	r2 := two31 - q2*d
	for {
		p++
		q1 *= 2
		r1 *= 2
		if r1 >= anc {
			q1++
			r1 -= anc
		}
		q2 *= 2
		r2 *= 2
		if r2 >= d {
			q2++
			r2 -= d
		}
		delta := d - r2
		if q1 >= delta && !(q1 == delta && r1 == 0) {
			break
		}
	}
	return q2 + 1, p - 32
}

// reduceMod rewrites `x % C` as `x - (x/C)*C` built atop reduceDiv's
// quotient sequence, with the multiply itself strength-reduced in
// turn.
func reduceMod(fn *lir.Function, ia *lir.IntArithmetic, cfg *config.Config) []lir.Instr {
	c := ia.Rhs.IntImm
	if c == 0 {
		diag.Fatalf(diag.DivByZeroConstant, fn.Name, "modulo of %s by constant zero", ia.Dst.Name)
	}
	q := fn.NewVar("mod.q", ia.Dst.Type, lir.Local)
	out := reduceDiv(fn, &lir.IntArithmetic{Op: lir.IDiv, Dst: q, Lhs: ia.Lhs, Rhs: ia.Rhs}, cfg)
	qc := fn.NewVar("mod.qc", ia.Dst.Type, lir.Local)
	out = append(out, reduceMul(fn, &lir.IntArithmetic{Op: lir.IMul, Dst: qc, Lhs: lir.VarOperand(q), Rhs: ia.Rhs}, cfg)...)
	out = append(out, &lir.IntArithmetic{Op: lir.ISub, Dst: ia.Dst, Lhs: ia.Lhs, Rhs: lir.VarOperand(qc)})
	return out
}
