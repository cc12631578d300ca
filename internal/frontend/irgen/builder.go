// Package irgen lowers internal/frontend/ast into a well-formed
// ssa.Module.
//
// The builder takes the naive route and leaves SSA construction to
// the optimizer: every local becomes an Alloc, reads and writes go
// through Load/Store, and internal/transform.Mem2Reg promotes the
// scalar ones to SSA values afterward. This sidesteps the
// incomplete-phi block-sealing bookkeeping an on-the-fly SSA builder
// would need.
package irgen

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"

	"rvcc/internal/frontend/ast"
	"rvcc/internal/ssa"
	"rvcc/internal/symtab"
	"rvcc/internal/typesys"
)

// CoreError is a fatal frontend-contract violation. irgen only ever
// raises the kinds that are frontend-detectable (unknown symbol or
// type, arity mismatch at a call, misplaced break/continue, invalid
// assignment target, non-literal global initializer); everything
// downstream of IR construction is the optimizer's and backend's to
// enforce.
type CoreError struct {
	Pos     lexer.Position
	Message string
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Builder drives one Program -> Module lowering.
type Builder struct {
	mod    *ssa.Module
	syms   *symtab.Table
	fn     *ssa.Function
	cur    *ssa.Block
	blockN int

	breakTargets    []*ssa.Block
	continueTargets []*ssa.Block
}

// Build lowers prog into a fresh ssa.Module.
func Build(prog *ast.Program) (*ssa.Module, error) {
	b := &Builder{mod: ssa.NewModule(), syms: symtab.New()}
	return b.build(prog)
}

func (b *Builder) build(prog *ast.Program) (m *ssa.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*CoreError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	// Two passes: declare every function signature and global first so
	// forward calls/references resolve regardless of source order.
	for _, d := range prog.Decls {
		if d.Func != nil {
			b.declareFunc(d.Func)
		}
	}
	for _, d := range prog.Decls {
		if d.Var != nil {
			b.buildGlobal(d.Var)
		}
	}
	for _, d := range prog.Decls {
		if d.Func != nil && d.Func.Body != nil {
			b.buildFunction(d.Func)
		}
	}
	return b.mod, nil
}

func (b *Builder) fail(pos lexer.Position, format string, args ...interface{}) {
	panic(&CoreError{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (b *Builder) convertType(t *ast.TypeName) *typesys.Type {
	types := b.mod.Types
	var base *typesys.Type
	switch t.Name {
	case "int":
		base = types.I32()
	case "float":
		base = types.F32()
	case "void":
		base = types.Void()
	default:
		b.fail(t.Pos, "unknown type %q", t.Name)
	}
	if t.ArrLen != nil {
		return types.ArrayOf(base, *t.ArrLen)
	}
	return base
}

func (b *Builder) declareFunc(f *ast.FuncDecl) {
	if b.mod.LookupFunction(f.Name) != nil {
		return
	}
	ret := b.convertType(f.Ret)
	argTypes := make([]*typesys.Type, len(f.Params))
	for i, p := range f.Params {
		argTypes[i] = b.convertType(p.Type)
	}
	b.mod.NewFunction(f.Name, ret, argTypes, f.Body == nil)
}

func (b *Builder) buildGlobal(v *ast.GlobalVarDecl) {
	typ := b.convertType(v.Type)
	init := b.buildInitializer(typ, v.Init)
	b.mod.NewGlobal(v.Name, typ, init)
	b.syms.Declare(v.Name, b.mod.Globals[len(b.mod.Globals)-1])
}

// buildInitializer lowers an (possibly absent, possibly nested) AST
// initializer into an ssa.Initializer, computing the ZeroInit fast
// path and LastNonZero index as it goes.
func (b *Builder) buildInitializer(typ *typesys.Type, init *ast.Initializer) *ssa.Initializer {
	if init == nil {
		return b.zeroInitializer(typ)
	}
	if typ.Kind() == typesys.Array {
		elems := make([]*ssa.Initializer, typ.Len())
		lastNonZero := -1
		zero := true
		for i := 0; i < typ.Len(); i++ {
			var child *ast.Initializer
			if i < len(init.List) {
				child = init.List[i]
			}
			elems[i] = b.buildInitializer(typ.Elem(), child)
			if !elems[i].ZeroInit || elems[i].Scalar != nil && !isZeroScalar(elems[i].Scalar) {
				zero = false
				lastNonZero = i
			}
		}
		return &ssa.Initializer{Elems: elems, ZeroInit: zero, LastNonZero: lastNonZero}
	}
	val := b.constExpr(typ, init.Scalar)
	return &ssa.Initializer{Scalar: val, ZeroInit: isZeroScalar(val), LastNonZero: -1}
}

func (b *Builder) zeroInitializer(typ *typesys.Type) *ssa.Initializer {
	if typ.Kind() == typesys.Array {
		elems := make([]*ssa.Initializer, typ.Len())
		for i := range elems {
			elems[i] = b.zeroInitializer(typ.Elem())
		}
		return &ssa.Initializer{Elems: elems, ZeroInit: true, LastNonZero: -1}
	}
	if typ.IsFloat() {
		return &ssa.Initializer{Scalar: b.mod.ConstFloat(0), ZeroInit: true, LastNonZero: -1}
	}
	return &ssa.Initializer{Scalar: b.mod.ConstInt(0), ZeroInit: true, LastNonZero: -1}
}

func isZeroScalar(v ssa.Value) bool {
	switch c := v.(type) {
	case *ssa.ConstInt:
		return c.Val == 0
	case *ssa.ConstFloat:
		return c.Val == 0
	}
	return false
}

// constExpr evaluates a global initializer expression, which must
// reduce to a literal constant (the frontend performs no general
// constant folding; the optimizer's passes only ever run on function
// bodies).
func (b *Builder) constExpr(typ *typesys.Type, e *ast.Expr) ssa.Value {
	prim := unwrapPrimary(e)
	if prim == nil {
		b.fail(e.Pos, "global initializer must be a literal constant")
	}
	switch {
	case prim.Int != nil:
		if typ.IsFloat() {
			return b.mod.ConstFloat(float32(*prim.Int))
		}
		return b.mod.ConstInt(*prim.Int)
	case prim.Float != nil:
		return b.mod.ConstFloat(float32(*prim.Float))
	default:
		b.fail(e.Pos, "global initializer must be a literal constant")
		return nil
	}
}

// unwrapPrimary descends through the precedence levels to a bare
// Primary, returning nil if the expression is not a single literal.
func unwrapPrimary(e *ast.Expr) *ast.Primary {
	if e.Or == nil || len(e.Or.Ops) != 0 {
		return nil
	}
	a := e.Or.Left
	if a == nil || len(a.Ops) != 0 {
		return nil
	}
	eq := a.Left
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
	if u.Postfix == nil || len(u.Postfix.Index) != 0 {
		return nil
	}
	return u.Postfix.Primary
}
