// Package emit renders an allocated, frame-rewritten lir.Module as
// RV64 textual assembly. By this point every operand is a physical
// register, an immediate, or an s0/sp-relative memory form, so each
// LIR instruction maps onto a short fixed sequence; t6 is the only
// scratch register used (internal/regalloc holds it out of the
// colorable pool for exactly this reason).
package emit

import (
	"fmt"
	"math"
	"strings"

	"rvcc/internal/diag"
	"rvcc/internal/lir"
)

const (
	int12Min = -2048
	int12Max = 2047
)

// Emit renders the whole module: a .data section for globals followed
// by .text with every defined function.
func Emit(m *lir.Module) string {
	e := &emitter{}
	e.globals(m)
	e.line(".text")
	for _, fn := range m.Functions {
		if fn.IsDeclare {
			continue
		}
		e.function(fn)
	}
	return e.b.String()
}

type emitter struct {
	b      strings.Builder
	fn     *lir.Function
	labelN int
}

func (e *emitter) line(format string, args ...interface{}) {
	fmt.Fprintf(&e.b, format+"\n", args...)
}

func (e *emitter) op(format string, args ...interface{}) {
	fmt.Fprintf(&e.b, "\t"+format+"\n", args...)
}

func (e *emitter) globals(m *lir.Module) {
	if len(m.Globals) == 0 {
		return
	}
	e.line(".data")
	for _, g := range m.Globals {
		e.line(".globl %s", g.Name)
		e.line("%s:", g.Name)
		if g.Init == nil || g.Init.ZeroInit {
			e.op(".zero %d", g.Type.Size())
			continue
		}
		e.initializer(g.Init, g.Type.Size())
	}
}

// initializer flattens an initializer tree row-major; a trailing
// all-zero run collapses into one .zero directive via LastNonZero.
func (e *emitter) initializer(init *lir.Initializer, totalBytes int) {
	emitted := e.initWords(init, true)
	if rest := totalBytes - emitted*4; rest > 0 {
		e.op(".zero %d", rest)
	}
}

// initWords walks the tree emitting .word directives, returning how
// many words were emitted. trailing marks whether this subtree's own
// trailing zeros may be elided (only true on the spine of the
// outermost array).
func (e *emitter) initWords(init *lir.Initializer, trailing bool) int {
	if init.IsScalar {
		if init.IsFloat {
			e.op(".word 0x%08x", math.Float32bits(float32(init.FloatScalar)))
		} else {
			e.op(".word %d", int32(init.IntScalar))
		}
		return 1
	}
	n := 0
	last := len(init.Elems) - 1
	if trailing && init.LastNonZero >= 0 {
		last = init.LastNonZero
	}
	for i, elem := range init.Elems {
		if i > last {
			break
		}
		n += e.initWords(elem, trailing && i == last)
	}
	return n
}

func (e *emitter) function(fn *lir.Function) {
	e.fn = fn
	e.line(".globl %s", fn.Name)
	e.line("%s:", fn.Name)
	for _, b := range fn.Blocks {
		// The entry block gets a label too: a loop rotated onto the
		// entry can legitimately branch back to it.
		e.line("%s:", e.blockLabel(b))
		for _, inst := range b.Instrs {
			e.instr(inst)
		}
	}
}

func (e *emitter) blockLabel(b *lir.Block) string {
	return fmt.Sprintf(".L%s_%s", e.fn.Name, b.Name)
}

func (e *emitter) freshLabel() string {
	e.labelN++
	return fmt.Sprintf(".Lt%d", e.labelN)
}

// reg returns the physical register assigned to v, which allocation
// must have provided by now.
func (e *emitter) reg(v *lir.Variable) string {
	if v.Reg == "" {
		diag.Fatalf(diag.UnknownSymbol, e.fn.Name, "variable %s reached emission without a register", v.Name)
	}
	return v.Reg
}

// intOperand returns a register holding o, materializing an immediate
// into t6 when needed. Zero becomes the zero register for free.
func (e *emitter) intOperand(o lir.Operand) string {
	if !o.IsImm {
		return e.reg(o.Var)
	}
	if o.IntImm == 0 {
		return "zero"
	}
	e.op("li t6, %d", o.IntImm)
	return "t6"
}

func (e *emitter) floatOperand(o lir.Operand) string {
	if o.IsImm {
		diag.Fatalf(diag.RegisterClassMismatch, e.fn.Name, "unmaterialized float immediate %g", o.FloatImm)
	}
	return e.reg(o.Var)
}

// memAddr resolves m to an "offset(base)" string, spilling the offset
// through t6 when it exceeds the 12-bit immediate window.
func (e *emitter) memAddr(m lir.Mem) string {
	base := e.reg(m.Base)
	if m.Offset >= int12Min && m.Offset <= int12Max {
		return fmt.Sprintf("%d(%s)", m.Offset, base)
	}
	e.op("li t6, %d", m.Offset)
	e.op("add t6, %s, t6", base)
	return "0(t6)"
}

// wide reports whether v occupies a full 64-bit slot (pointers and
// the prologue's ra/s0 saves) rather than a 32-bit word.
func wide(v *lir.Variable) bool {
	return v.Type.StoreSize() == 8
}

func (e *emitter) instr(inst lir.Instr) {
	switch x := inst.(type) {
	case *lir.LoadImmInt:
		e.op("li %s, %d", e.reg(x.Dst), x.Imm)

	case *lir.LoadImmFloat:
		bits := math.Float32bits(float32(x.Imm))
		if bits == 0 {
			e.op("fmv.w.x %s, zero", e.reg(x.Dst))
		} else {
			e.op("li t6, %d", int32(bits))
			e.op("fmv.w.x %s, t6", e.reg(x.Dst))
		}

	case *lir.LoadAddress:
		e.loadAddress(x)

	case *lir.LoadInt:
		mn := "lw"
		if wide(x.Dst) {
			mn = "ld"
		}
		e.op("%s %s, %s", mn, e.reg(x.Dst), e.memAddr(x.Mem))

	case *lir.LoadFloat:
		e.op("flw %s, %s", e.reg(x.Dst), e.memAddr(x.Mem))

	case *lir.StoreInt:
		src := e.intOperand(x.Src)
		mn := "sw"
		if !x.Src.IsImm && wide(x.Src.Var) {
			mn = "sd"
		}
		e.op("%s %s, %s", mn, src, e.memAddr(x.Mem))

	case *lir.StoreFloat:
		e.op("fsw %s, %s", e.floatOperand(x.Src), e.memAddr(x.Mem))

	case *lir.IntArithmetic:
		e.intArith(x)

	case *lir.FloatArithmetic:
		e.floatArith(x)

	case *lir.SetCond:
		e.setCond(x)

	case *lir.Move:
		e.move(x)

	case *lir.Jump:
		e.op("j %s", e.blockLabel(x.Target))

	case *lir.Branch:
		e.branch(x)

	case *lir.Return:
		e.op("ret")

	case *lir.Call:
		e.op("call %s", x.Callee)

	default:
		diag.Fatalf(diag.UnknownOpcode, e.fn.Name, "unhandled LIR instruction %T", inst)
	}
}

func (e *emitter) loadAddress(x *lir.LoadAddress) {
	dst := e.reg(x.Dst)
	switch x.Kind {
	case lir.AddrGlobal:
		e.op("la %s, %s", dst, x.Sym)
		if x.Offset != 0 {
			e.addImm(dst, dst, x.Offset, false)
		}
	case lir.AddrFrame:
		// Offset is s0-relative once internal/frame has run; dst is
		// free as its own scratch for an out-of-range offset.
		if x.Offset >= int12Min && x.Offset <= int12Max {
			e.op("addi %s, s0, %d", dst, x.Offset)
		} else {
			e.op("li %s, %d", dst, x.Offset)
			e.op("add %s, s0, %s", dst, dst)
		}
	}
}

// addImm emits dst = src + imm, choosing addi/addiw when imm fits.
func (e *emitter) addImm(dst, src string, imm int64, word bool) {
	mn, mnImm := "add", "addi"
	if word {
		mn, mnImm = "addw", "addiw"
	}
	if imm >= int12Min && imm <= int12Max {
		e.op("%s %s, %s, %d", mnImm, dst, src, imm)
		return
	}
	e.op("li t6, %d", imm)
	e.op("%s %s, %s, t6", mn, dst, src)
}

// intArith emits one IntOp. 32-bit values use the w-form so results
// stay sign-extended; pointer-typed destinations (address arithmetic,
// sp adjustment) use the full 64-bit form.
func (e *emitter) intArith(x *lir.IntArithmetic) {
	dst := e.reg(x.Dst)
	word := !wide(x.Dst)

	// Immediate-friendly forms first.
	if x.Rhs.IsImm && !x.Lhs.IsImm {
		lhs := e.reg(x.Lhs.Var)
		imm := x.Rhs.IntImm
		switch x.Op {
		case lir.IAdd:
			e.addImm(dst, lhs, imm, word)
			return
		case lir.ISub:
			e.addImm(dst, lhs, -imm, word)
			return
		case lir.IAnd:
			if imm >= int12Min && imm <= int12Max {
				e.op("andi %s, %s, %d", dst, lhs, imm)
				return
			}
		case lir.IOr:
			if imm >= int12Min && imm <= int12Max {
				e.op("ori %s, %s, %d", dst, lhs, imm)
				return
			}
		case lir.IXor:
			if imm >= int12Min && imm <= int12Max {
				e.op("xori %s, %s, %d", dst, lhs, imm)
				return
			}
		case lir.IShl:
			if word {
				e.op("slliw %s, %s, %d", dst, lhs, imm)
			} else {
				e.op("slli %s, %s, %d", dst, lhs, imm)
			}
			return
		case lir.IShr:
			if word {
				e.op("sraiw %s, %s, %d", dst, lhs, imm)
			} else {
				e.op("srai %s, %s, %d", dst, lhs, imm)
			}
			return
		}
	}

	lhs := e.intOperand(x.Lhs)
	if lhs == "t6" {
		// Lhs took the scratch; park it in dst so materializing Rhs
		// cannot clobber it (dst never aliases a distinct Rhs source).
		e.op("mv %s, t6", dst)
		lhs = dst
	}
	rhs := e.intOperand(x.Rhs)

	switch x.Op {
	case lir.IAdd:
		e.wop("add", word, dst, lhs, rhs)
	case lir.ISub:
		e.wop("sub", word, dst, lhs, rhs)
	case lir.IMul:
		e.wop("mul", word, dst, lhs, rhs)
	case lir.IMulh:
		// High half of the exact 64-bit product of two sign-extended
		// 32-bit values.
		e.op("mul %s, %s, %s", dst, lhs, rhs)
		e.op("srai %s, %s, 32", dst, dst)
	case lir.IDiv:
		e.wop("div", word, dst, lhs, rhs)
	case lir.IMod:
		e.wop("rem", word, dst, lhs, rhs)
	case lir.IAnd:
		e.op("and %s, %s, %s", dst, lhs, rhs)
	case lir.IOr:
		e.op("or %s, %s, %s", dst, lhs, rhs)
	case lir.IXor:
		e.op("xor %s, %s, %s", dst, lhs, rhs)
	case lir.IShl:
		e.wop("sll", word, dst, lhs, rhs)
	case lir.IShr:
		e.wop("sra", word, dst, lhs, rhs)
	case lir.ISmin:
		e.minMax(dst, lhs, rhs, "blt")
	case lir.ISmax:
		e.minMax(dst, lhs, rhs, "bgt")
	default:
		diag.Fatalf(diag.UnknownOpcode, e.fn.Name, "unhandled int op %d", x.Op)
	}
}

// wop emits mnemonic or its w-suffixed variant.
func (e *emitter) wop(mn string, word bool, dst, lhs, rhs string) {
	if word {
		mn += "w"
	}
	e.op("%s %s, %s, %s", mn, dst, lhs, rhs)
}

// minMax emits a compare-and-pick diamond. Branching before either
// move keeps it correct even when dst aliases one of the sources.
func (e *emitter) minMax(dst, lhs, rhs, br string) {
	take := e.freshLabel()
	done := e.freshLabel()
	e.op("%s %s, %s, %s", br, lhs, rhs, take)
	e.op("mv %s, %s", dst, rhs)
	e.op("j %s", done)
	e.line("%s:", take)
	e.op("mv %s, %s", dst, lhs)
	e.line("%s:", done)
}

func (e *emitter) floatArith(x *lir.FloatArithmetic) {
	dst := e.reg(x.Dst)
	lhs := e.floatOperand(x.Lhs)
	switch x.Op {
	case lir.FNeg:
		e.op("fneg.s %s, %s", dst, lhs)
		return
	}
	rhs := e.floatOperand(x.Rhs)
	switch x.Op {
	case lir.FAdd:
		e.op("fadd.s %s, %s, %s", dst, lhs, rhs)
	case lir.FSub:
		e.op("fsub.s %s, %s, %s", dst, lhs, rhs)
	case lir.FMul:
		e.op("fmul.s %s, %s, %s", dst, lhs, rhs)
	case lir.FDiv:
		e.op("fdiv.s %s, %s, %s", dst, lhs, rhs)
	case lir.FSmin:
		e.op("fmin.s %s, %s, %s", dst, lhs, rhs)
	case lir.FSmax:
		e.op("fmax.s %s, %s, %s", dst, lhs, rhs)
	default:
		diag.Fatalf(diag.UnknownOpcode, e.fn.Name, "unhandled float op %d", x.Op)
	}
}

func (e *emitter) setCond(x *lir.SetCond) {
	dst := e.reg(x.Dst)
	if x.IsFloat {
		lhs, rhs := e.floatOperand(x.Lhs), e.floatOperand(x.Rhs)
		switch x.Pred {
		case lir.PredEQ:
			e.op("feq.s %s, %s, %s", dst, lhs, rhs)
		case lir.PredNE:
			e.op("feq.s %s, %s, %s", dst, lhs, rhs)
			e.op("xori %s, %s, 1", dst, dst)
		case lir.PredLT:
			e.op("flt.s %s, %s, %s", dst, lhs, rhs)
		case lir.PredLE:
			e.op("fle.s %s, %s, %s", dst, lhs, rhs)
		case lir.PredGT:
			e.op("flt.s %s, %s, %s", dst, rhs, lhs)
		case lir.PredGE:
			e.op("fle.s %s, %s, %s", dst, rhs, lhs)
		}
		return
	}
	lhs := e.intOperand(x.Lhs)
	if lhs == "t6" {
		e.op("mv %s, t6", dst)
		lhs = dst
	}
	rhs := e.intOperand(x.Rhs)
	switch x.Pred {
	case lir.PredEQ:
		e.op("sub t6, %s, %s", lhs, rhs)
		e.op("seqz %s, t6", dst)
	case lir.PredNE:
		e.op("sub t6, %s, %s", lhs, rhs)
		e.op("snez %s, t6", dst)
	case lir.PredLT:
		e.op("slt %s, %s, %s", dst, lhs, rhs)
	case lir.PredGT:
		e.op("slt %s, %s, %s", dst, rhs, lhs)
	case lir.PredLE:
		e.op("slt %s, %s, %s", dst, rhs, lhs)
		e.op("xori %s, %s, 1", dst, dst)
	case lir.PredGE:
		e.op("slt %s, %s, %s", dst, lhs, rhs)
		e.op("xori %s, %s, 1", dst, dst)
	}
}

// move handles all four register-class combinations: the int<->float
// crossings are the lowered fptosi/sitofp conversions.
func (e *emitter) move(x *lir.Move) {
	dst := e.reg(x.Dst)
	dstFloat := x.Dst.IsFloat()
	srcFloat := x.Src.TypeIsFloat()
	switch {
	case dstFloat && srcFloat:
		e.op("fmv.s %s, %s", dst, e.floatOperand(x.Src))
	case dstFloat && !srcFloat:
		e.op("fcvt.s.w %s, %s", dst, e.intOperand(x.Src))
	case !dstFloat && srcFloat:
		e.op("fcvt.w.s %s, %s, rtz", dst, e.floatOperand(x.Src))
	default:
		if x.Src.IsImm {
			e.op("li %s, %d", dst, x.Src.IntImm)
		} else {
			e.op("mv %s, %s", dst, e.reg(x.Src.Var))
		}
	}
}

var intBranchMn = map[lir.CmpPred]string{
	lir.PredEQ: "beq", lir.PredNE: "bne",
	lir.PredLT: "blt", lir.PredLE: "ble",
	lir.PredGT: "bgt", lir.PredGE: "bge",
}

func (e *emitter) branch(x *lir.Branch) {
	trueL := e.blockLabel(x.True)
	if x.IsFloat {
		lhs, rhs := e.floatOperand(x.Lhs), e.floatOperand(x.Rhs)
		switch x.Pred {
		case lir.PredEQ:
			e.op("feq.s t6, %s, %s", lhs, rhs)
			e.op("bnez t6, %s", trueL)
		case lir.PredNE:
			e.op("feq.s t6, %s, %s", lhs, rhs)
			e.op("beqz t6, %s", trueL)
		case lir.PredLT:
			e.op("flt.s t6, %s, %s", lhs, rhs)
			e.op("bnez t6, %s", trueL)
		case lir.PredLE:
			e.op("fle.s t6, %s, %s", lhs, rhs)
			e.op("bnez t6, %s", trueL)
		case lir.PredGT:
			e.op("flt.s t6, %s, %s", rhs, lhs)
			e.op("bnez t6, %s", trueL)
		case lir.PredGE:
			e.op("fle.s t6, %s, %s", rhs, lhs)
			e.op("bnez t6, %s", trueL)
		}
		e.op("j %s", e.blockLabel(x.False))
		return
	}
	if x.Lhs.IsImm && x.Rhs.IsImm {
		// Both sides constant: the branch decides at compile time.
		if constPredHolds(x.Pred, x.Lhs.IntImm, x.Rhs.IntImm) {
			e.op("j %s", trueL)
		} else {
			e.op("j %s", e.blockLabel(x.False))
		}
		return
	}
	lhs := e.intOperand(x.Lhs)
	rhs := e.intOperand(x.Rhs)
	e.op("%s %s, %s, %s", intBranchMn[x.Pred], lhs, rhs, trueL)
	e.op("j %s", e.blockLabel(x.False))
}

func constPredHolds(p lir.CmpPred, a, b int64) bool {
	switch p {
	case lir.PredEQ:
		return a == b
	case lir.PredNE:
		return a != b
	case lir.PredLT:
		return a < b
	case lir.PredLE:
		return a <= b
	case lir.PredGT:
		return a > b
	case lir.PredGE:
		return a >= b
	}
	return false
}
