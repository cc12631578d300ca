package irgen

import (
	"strconv"

	"rvcc/internal/frontend/ast"
	"rvcc/internal/ssa"
)

func (b *Builder) buildFunction(f *ast.FuncDecl) {
	fn := b.mod.LookupFunction(f.Name)
	b.fn = fn
	b.blockN = 0
	entry := fn.NewBlock(b.freshLabel("entry"))
	b.cur = entry

	b.syms.Push()
	defer b.syms.Pop()

	for i, p := range f.Params {
		ib := ssa.At(b.cur)
		alloc := ib.Alloc(fn.Args[i].Type())
		ib.Store(alloc, fn.Args[i])
		b.syms.Declare(p.Name, alloc)
	}

	b.buildBlock(f.Body)

	if b.cur != nil && b.cur.Terminator() == nil {
		b.emitImplicitReturn()
	}
	b.pruneUnreachable(fn)
}

// pruneUnreachable deletes blocks with no path from entry. Statements
// after a return/break/continue land in such blocks; leaving them
// around would let them reference values the optimizer later removes
// under dominance-based reasoning that only covers reachable code.
func (b *Builder) pruneUnreachable(fn *ssa.Function) {
	fn.RefreshCFG()
	reach := map[*ssa.Block]bool{}
	var walk func(*ssa.Block)
	walk = func(blk *ssa.Block) {
		if reach[blk] {
			return
		}
		reach[blk] = true
		for _, s := range blk.Succs {
			walk(s)
		}
	}
	walk(fn.Entry)

	var dead []*ssa.Block
	for _, blk := range fn.Blocks {
		if !reach[blk] {
			dead = append(dead, blk)
		}
	}
	for _, blk := range dead {
		for _, inst := range append([]*ssa.Instruction{}, blk.Instructions...) {
			inst.ClearOperands()
			blk.Remove(inst)
		}
	}
	for _, blk := range dead {
		fn.RemoveBlock(blk)
	}
	if len(dead) > 0 {
		fn.RefreshCFG()
	}
}

func (b *Builder) freshLabel(prefix string) string {
	b.blockN++
	return prefix + "." + strconv.Itoa(b.blockN)
}

func (b *Builder) emitImplicitReturn() {
	ib := ssa.At(b.cur)
	if b.fn.ReturnType == b.mod.Types.Void() {
		ib.Ret(nil)
		return
	}
	if b.fn.ReturnType.IsFloat() {
		ib.Ret(b.mod.ConstFloat(0))
	} else {
		ib.Ret(b.mod.ConstInt(0))
	}
}
