package irgen

import (
	"github.com/alecthomas/participle/v2/lexer"

	"rvcc/internal/frontend/ast"
	"rvcc/internal/ssa"
	"rvcc/internal/typesys"
)

func (b *Builder) buildBlock(blk *ast.Block) {
	b.syms.Push()
	defer b.syms.Pop()
	for _, s := range blk.Stmts {
		b.buildStmt(s)
	}
}

func (b *Builder) buildStmt(s *ast.Stmt) {
	switch {
	case s.VarDecl != nil:
		b.buildVarDecl(s.VarDecl)
	case s.If != nil:
		b.buildIf(s.If)
	case s.While != nil:
		b.buildWhile(s.While)
	case s.For != nil:
		b.buildFor(s.For)
	case s.Return != nil:
		b.buildReturn(s.Return)
	case s.Break != nil:
		b.buildBreak(s.Break.Pos)
	case s.Continue != nil:
		b.buildContinue(s.Continue.Pos)
	case s.Block != nil:
		b.buildBlock(s.Block)
	case s.ExprStmt != nil:
		b.buildSimple(s.ExprStmt.Simple)
	}
}

func (b *Builder) buildVarDecl(v *ast.VarDecl) {
	typ := b.convertType(v.Type)
	ib := ssa.At(b.cur)
	alloc := ib.Alloc(typ)
	b.syms.Declare(v.Name, alloc)
	if typ.Kind() == typesys.Array {
		// Local arrays are zeroed through the memset intrinsic; the
		// grammar has no local brace initializers, so this is the only
		// initialization they get.
		types := b.mod.Types
		memset := b.mod.DeclareRuntime("memset", types.Void(),
			[]*typesys.Type{types.PtrTo(types.I32()), types.I32(), types.I32()})
		base := ib.BitCast(alloc, types.PtrTo(types.I32()))
		ib.Call(memset, []ssa.Value{base, b.mod.ConstInt(0), b.mod.ConstInt(int64(typ.Size()))})
		return
	}
	if v.Init != nil {
		val := b.buildExpr(v.Init)
		val = b.coerce(val, typ)
		ib.Store(alloc, val)
	}
}

// buildSimple lowers an assignment or a bare expression-for-effect
// (e.g. a call). A nil SimpleStmt (the empty clause of a for-header)
// is a no-op.
func (b *Builder) buildSimple(s *ast.SimpleStmt) {
	if s == nil {
		return
	}
	if s.AssignOp == "" {
		b.buildExpr(s.Left)
		return
	}
	addr, elemType := b.buildLValue(s.Left)
	val := b.buildExpr(s.Right)
	val = b.coerce(val, elemType)
	ssa.At(b.cur).Store(addr, val)
}

// buildLValue resolves an assignable expression (a bare identifier or
// an index into an array) to its address and element type.
func (b *Builder) buildLValue(e *ast.Expr) (ssa.Value, *typesys.Type) {
	post := singlePostfix(e)
	if post == nil || post.Primary.Ident == nil {
		b.fail(e.Pos, "invalid assignment target")
	}
	name := *post.Primary.Ident
	val, ok := b.syms.Lookup(name)
	if !ok {
		b.fail(e.Pos, "use of undeclared identifier %q", name)
	}
	if len(post.Index) == 0 {
		return val, val.Type().Elem()
	}
	if len(post.Index) > 1 {
		b.fail(e.Pos, "only 1-D arrays are supported")
	}
	idx := b.buildExpr(post.Index[0])
	elemType := val.Type().Elem().Elem()
	addr := ssa.At(b.cur).GEP(val, idx, elemType)
	return addr, elemType
}

func (b *Builder) buildIf(s *ast.IfStmt) {
	cond := b.buildCondition(s.Cond)
	thenB := b.fn.NewBlock(b.freshLabel("if.then"))
	joinB := b.fn.NewBlock(b.freshLabel("if.end"))
	var elseB *ssa.Block
	if s.Else != nil {
		elseB = b.fn.NewBlock(b.freshLabel("if.else"))
	} else {
		elseB = joinB
	}
	ssa.At(b.cur).Branch(cond, thenB, elseB)

	b.cur = thenB
	b.buildBlock(s.Then)
	if b.cur.Terminator() == nil {
		ssa.At(b.cur).Jump(joinB)
	}

	if s.Else != nil {
		b.cur = elseB
		b.buildBlock(s.Else)
		if b.cur.Terminator() == nil {
			ssa.At(b.cur).Jump(joinB)
		}
	}

	b.cur = joinB
	b.fn.RefreshCFG()
}

func (b *Builder) buildWhile(s *ast.WhileStmt) {
	headB := b.fn.NewBlock(b.freshLabel("while.cond"))
	bodyB := b.fn.NewBlock(b.freshLabel("while.body"))
	exitB := b.fn.NewBlock(b.freshLabel("while.end"))

	ssa.At(b.cur).Jump(headB)

	b.cur = headB
	cond := b.buildCondition(s.Cond)
	ssa.At(b.cur).Branch(cond, bodyB, exitB)

	b.breakTargets = append(b.breakTargets, exitB)
	b.continueTargets = append(b.continueTargets, headB)
	b.cur = bodyB
	b.buildBlock(s.Body)
	if b.cur.Terminator() == nil {
		ssa.At(b.cur).Jump(headB)
	}
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.cur = exitB
	b.fn.RefreshCFG()
}

func (b *Builder) buildFor(s *ast.ForStmt) {
	b.syms.Push()
	defer b.syms.Pop()

	b.buildSimple(s.Init)

	headB := b.fn.NewBlock(b.freshLabel("for.cond"))
	bodyB := b.fn.NewBlock(b.freshLabel("for.body"))
	postB := b.fn.NewBlock(b.freshLabel("for.post"))
	exitB := b.fn.NewBlock(b.freshLabel("for.end"))

	ssa.At(b.cur).Jump(headB)

	b.cur = headB
	if s.Cond != nil {
		cond := b.buildCondition(s.Cond)
		ssa.At(b.cur).Branch(cond, bodyB, exitB)
	} else {
		ssa.At(b.cur).Jump(bodyB)
	}

	b.breakTargets = append(b.breakTargets, exitB)
	b.continueTargets = append(b.continueTargets, postB)
	b.cur = bodyB
	b.buildBlock(s.Body)
	if b.cur.Terminator() == nil {
		ssa.At(b.cur).Jump(postB)
	}
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.cur = postB
	b.buildSimple(s.Post)
	ssa.At(b.cur).Jump(headB)

	b.cur = exitB
	b.fn.RefreshCFG()
}

func (b *Builder) buildReturn(s *ast.ReturnStmt) {
	ib := ssa.At(b.cur)
	if s.Value == nil {
		ib.Ret(nil)
	} else {
		val := b.buildExpr(s.Value)
		val = b.coerce(val, b.fn.ReturnType)
		ib.Ret(val)
	}
	b.deadBlockAfterTerminator()
}

func (b *Builder) buildBreak(pos lexer.Position) {
	if len(b.breakTargets) == 0 {
		b.fail(pos, "break outside of a loop")
	}
	ssa.At(b.cur).Jump(b.breakTargets[len(b.breakTargets)-1])
	b.deadBlockAfterTerminator()
}

func (b *Builder) buildContinue(pos lexer.Position) {
	if len(b.continueTargets) == 0 {
		b.fail(pos, "continue outside of a loop")
	}
	ssa.At(b.cur).Jump(b.continueTargets[len(b.continueTargets)-1])
	b.deadBlockAfterTerminator()
}

// deadBlockAfterTerminator opens a fresh unreachable block as the
// current insertion point after an early terminator (return/break/
// continue), so any statements textually following it in the same
// block (dead code, but syntactically legal) do not get appended
// after the block's terminator.
func (b *Builder) deadBlockAfterTerminator() {
	b.cur = b.fn.NewBlock(b.freshLabel("unreachable"))
}

// buildCondition lowers a boolean-context expression to an i1 value,
// synthesizing an Icmp(Ne, v, 0) when the expression's natural type is
// not already i1 (e.g. a bare int variable used as a condition).
func (b *Builder) buildCondition(e *ast.Expr) ssa.Value {
	val := b.buildExpr(e)
	if val.Type() == b.mod.Types.I1() {
		return val
	}
	ib := ssa.At(b.cur)
	if val.Type().IsFloat() {
		return ib.Fcmp(ssa.PredNE, val, b.mod.ConstFloat(0))
	}
	return ib.Icmp(ssa.PredNE, val, b.mod.ConstInt(0))
}

// singlePostfix descends through the precedence levels to a bare
// PostfixExpr (identifier, optionally indexed), returning nil if the
// expression is not in that shape.
func singlePostfix(e *ast.Expr) *ast.PostfixExpr {
	a := e.Or
	if a == nil || len(a.Ops) != 0 {
		return nil
	}
	an := a.Left
	if an == nil || len(an.Ops) != 0 {
		return nil
	}
	eq := an.Left
	if eq == nil || len(eq.Ops) != 0 {
		return nil
	}
	rel := eq.Left
	if rel == nil || len(rel.Ops) != 0 {
		return nil
	}
	add := rel.Left
	if add == nil || len(add.Ops) != 0 {
		return nil
	}
	mul := add.Left
	if mul == nil || len(mul.Ops) != 0 {
		return nil
	}
	u := mul.Left
	if u == nil || u.Op != "" {
		return nil
	}
	return u.Postfix
}
