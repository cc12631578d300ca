package irgen

import (
	"rvcc/internal/frontend/ast"
	"rvcc/internal/ssa"
	"rvcc/internal/typesys"
)

// coerce inserts the implicit int<->float conversion the target type
// requires (sitofp/fptosi, plus zext for i1 -> i32), matching ordinary
// C promotion rules. Any other mismatch (pointer/array types, i1 ->
// float) returns v unchanged: no conversion is inserted and nothing
// aborts.
func (b *Builder) coerce(v ssa.Value, target *typesys.Type) ssa.Value {
	if v.Type() == target {
		return v
	}
	ib := ssa.At(b.cur)
	if target.IsFloat() && v.Type().Kind() == typesys.I32 {
		return ib.Sitofp(v)
	}
	if target.Kind() == typesys.I32 && v.Type().IsFloat() {
		return ib.Fptosi(v)
	}
	if target.Kind() == typesys.I32 && v.Type().Kind() == typesys.I1 {
		return ib.Zext(v)
	}
	return v
}

func (b *Builder) buildExpr(e *ast.Expr) ssa.Value {
	return b.buildOr(e.Or)
}

func (b *Builder) buildOr(e *ast.OrExpr) ssa.Value {
	v := b.buildAnd(e.Left)
	for i := range e.Ops {
		rhs := b.buildAnd(e.Rest[i])
		v = b.logical(v, rhs, false)
	}
	return v
}

func (b *Builder) buildAnd(e *ast.AndExpr) ssa.Value {
	v := b.buildEq(e.Left)
	for i := range e.Ops {
		rhs := b.buildEq(e.Rest[i])
		v = b.logical(v, rhs, true)
	}
	return v
}

// logical implements non-short-circuiting &&/|| over truthiness
// (each operand coerced with Icmp/Fcmp-ne-zero, combined with
// And/Or). The language's operands are side-effect-visible only
// through calls, and DeadInstEliminate recovers the cheap cases, so
// true short-circuit control flow is not emitted here.
func (b *Builder) logical(lhs, rhs ssa.Value, isAnd bool) ssa.Value {
	ib := ssa.At(b.cur)
	l := b.toBool(lhs)
	r := b.toBool(rhs)
	if isAnd {
		return ib.Binary(ssa.OpAnd, b.mod.Types.I1(), l, r)
	}
	return ib.Binary(ssa.OpOr, b.mod.Types.I1(), l, r)
}

func (b *Builder) toBool(v ssa.Value) ssa.Value {
	if v.Type() == b.mod.Types.I1() {
		return v
	}
	ib := ssa.At(b.cur)
	if v.Type().IsFloat() {
		return ib.Fcmp(ssa.PredNE, v, b.mod.ConstFloat(0))
	}
	return ib.Icmp(ssa.PredNE, v, b.mod.ConstInt(0))
}

func (b *Builder) buildEq(e *ast.EqExpr) ssa.Value {
	v := b.buildRel(e.Left)
	for i, op := range e.Ops {
		rhs := b.buildRel(e.Rest[i])
		v = b.buildCompare(op, v, rhs)
	}
	return v
}

func (b *Builder) buildRel(e *ast.RelExpr) ssa.Value {
	v := b.buildAdd(e.Left)
	for i, op := range e.Ops {
		rhs := b.buildAdd(e.Rest[i])
		v = b.buildCompare(op, v, rhs)
	}
	return v
}

func (b *Builder) buildCompare(op string, lhs, rhs ssa.Value) ssa.Value {
	lhs, rhs = b.balance(lhs, rhs)
	pred := predicateFor(op)
	ib := ssa.At(b.cur)
	if lhs.Type().IsFloat() {
		return ib.Fcmp(pred, lhs, rhs)
	}
	return ib.Icmp(pred, lhs, rhs)
}

func predicateFor(op string) ssa.Predicate {
	switch op {
	case "==":
		return ssa.PredEQ
	case "!=":
		return ssa.PredNE
	case "<":
		return ssa.PredLT
	case "<=":
		return ssa.PredLE
	case ">":
		return ssa.PredGT
	case ">=":
		return ssa.PredGE
	default:
		return ssa.PredEQ
	}
}

// balance applies C's usual arithmetic conversions: if either operand
// is float, the other is widened to float.
func (b *Builder) balance(lhs, rhs ssa.Value) (ssa.Value, ssa.Value) {
	if lhs.Type().IsFloat() && !rhs.Type().IsFloat() {
		rhs = b.coerce(rhs, b.mod.Types.F32())
	} else if rhs.Type().IsFloat() && !lhs.Type().IsFloat() {
		lhs = b.coerce(lhs, b.mod.Types.F32())
	}
	return lhs, rhs
}

func (b *Builder) buildAdd(e *ast.AddExpr) ssa.Value {
	v := b.buildMul(e.Left)
	for i, op := range e.Ops {
		rhs := b.buildMul(e.Rest[i])
		v = b.buildArith(op, v, rhs)
	}
	return v
}

func (b *Builder) buildMul(e *ast.MulExpr) ssa.Value {
	v := b.buildUnary(e.Left)
	for i, op := range e.Ops {
		rhs := b.buildUnary(e.Rest[i])
		v = b.buildArith(op, v, rhs)
	}
	return v
}

func (b *Builder) buildArith(op string, lhs, rhs ssa.Value) ssa.Value {
	lhs, rhs = b.balance(lhs, rhs)
	isFloat := lhs.Type().IsFloat()
	var code ssa.Opcode
	switch op {
	case "+":
		code = pick(isFloat, ssa.OpFAdd, ssa.OpAdd)
	case "-":
		code = pick(isFloat, ssa.OpFSub, ssa.OpSub)
	case "*":
		code = pick(isFloat, ssa.OpFMul, ssa.OpMul)
	case "/":
		code = pick(isFloat, ssa.OpFDiv, ssa.OpDiv)
	case "%":
		code = pick(isFloat, ssa.OpFMod, ssa.OpMod)
	}
	return ssa.At(b.cur).Binary(code, lhs.Type(), lhs, rhs)
}

func pick(cond bool, a, b ssa.Opcode) ssa.Opcode {
	if cond {
		return a
	}
	return b
}

func (b *Builder) buildUnary(e *ast.UnaryExpr) ssa.Value {
	if e.Op == "" {
		return b.buildPostfix(e.Postfix)
	}
	v := b.buildUnary(e.Inner)
	ib := ssa.At(b.cur)
	switch e.Op {
	case "-":
		if v.Type().IsFloat() {
			return ib.Binary(ssa.OpFNeg, v.Type(), v, nil)
		}
		return ib.Binary(ssa.OpSub, v.Type(), b.mod.ConstInt(0), v)
	case "!":
		return ib.Icmp(ssa.PredEQ, b.toBool(v), b.mod.ConstBool(false))
	}
	return v
}

func (b *Builder) buildPostfix(e *ast.PostfixExpr) ssa.Value {
	if e.Primary.Ident != nil && len(e.Index) > 0 {
		val, ok := b.syms.Lookup(*e.Primary.Ident)
		if !ok {
			b.fail(e.Pos, "use of undeclared identifier %q", *e.Primary.Ident)
		}
		if len(e.Index) > 1 {
			b.fail(e.Pos, "only 1-D arrays are supported")
		}
		idx := b.buildExpr(e.Index[0])
		elemType := val.Type().Elem().Elem()
		addr := ssa.At(b.cur).GEP(val, idx, elemType)
		return ssa.At(b.cur).Load(addr)
	}
	return b.buildPrimary(e.Primary)
}

func (b *Builder) buildPrimary(p *ast.Primary) ssa.Value {
	switch {
	case p.Int != nil:
		return b.mod.ConstInt(*p.Int)
	case p.Float != nil:
		return b.mod.ConstFloat(float32(*p.Float))
	case p.Paren != nil:
		return b.buildExpr(p.Paren)
	case p.Call != nil:
		return b.buildCall(p.Call)
	case p.Ident != nil:
		addr, ok := b.syms.Lookup(*p.Ident)
		if !ok {
			b.fail(p.Pos, "use of undeclared identifier %q", *p.Ident)
		}
		if addr.Type().Elem().Kind() == typesys.Array {
			return addr // array-typed locals decay to their base pointer
		}
		return ssa.At(b.cur).Load(addr)
	}
	b.fail(p.Pos, "malformed expression")
	return nil
}

func (b *Builder) buildCall(c *ast.CallExpr) ssa.Value {
	callee := b.mod.LookupFunction(c.Name)
	if callee == nil {
		callee = b.declareRuntimeCallee(c)
		if callee == nil {
			b.fail(c.Pos, "call to undeclared function %q", c.Name)
		}
	}
	if len(c.Args) != len(callee.Args) {
		b.fail(c.Pos, "call to %q: expected %d arguments, got %d", c.Name, len(callee.Args), len(c.Args))
	}
	args := make([]ssa.Value, len(c.Args))
	for i, a := range c.Args {
		args[i] = b.coerce(b.buildExpr(a), callee.Args[i].Type())
	}
	return ssa.At(b.cur).Call(callee, args)
}

// declareRuntimeCallee lazily declares one of the runtime helpers
// (putf/putint/putfloat) the first time it is called.
func (b *Builder) declareRuntimeCallee(c *ast.CallExpr) *ssa.Function {
	types := b.mod.Types
	switch c.Name {
	case "putint":
		return b.mod.DeclareRuntime("putint", types.Void(), []*typesys.Type{types.I32()})
	case "putfloat":
		return b.mod.DeclareRuntime("putfloat", types.Void(), []*typesys.Type{types.F32()})
	case "putf":
		return b.mod.DeclareRuntime("putf", types.Void(), []*typesys.Type{types.PtrTo(types.I32())})
	}
	return nil
}
