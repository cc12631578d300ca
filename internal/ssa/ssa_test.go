package ssa

import "testing"

func TestReplaceAllUsesWith(t *testing.T) {
	m := NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	b := At(entry)

	c1 := m.ConstInt(1)
	c2 := m.ConstInt(2)
	add := b.Binary(OpAdd, m.Types.I32(), c1, c2)
	ret := b.Ret(add)

	if len(add.Uses()) != 1 {
		t.Fatalf("expected add to have 1 user, got %d", len(add.Uses()))
	}

	ReplaceAllUsesWith(add, c1)

	if len(add.Uses()) != 0 {
		t.Fatalf("expected add to have 0 users after replace, got %d", len(add.Uses()))
	}
	if ret.Operands[0].Value != Value(c1) {
		t.Fatalf("expected ret operand to be rewritten to c1")
	}
	if len(c1.Uses()) != 2 { // original add operand + new ret operand
		t.Fatalf("expected c1 to have 2 uses, got %d", len(c1.Uses()))
	}
}

func TestTwoStepDelete(t *testing.T) {
	m := NewModule()
	fn := m.NewFunction("f", m.Types.Void(), nil, false)
	entry := fn.NewBlock("entry")
	b := At(entry)

	alloc := b.Alloc(m.Types.I32())
	b.Store(alloc, m.ConstInt(1))
	b.Ret(nil)

	store := entry.Instructions[1]
	store.ClearOperands()
	entry.Remove(store)

	if len(entry.Instructions) != 2 {
		t.Fatalf("expected store to be spliced out, got %d instructions", len(entry.Instructions))
	}
	if len(alloc.Uses()) != 0 {
		t.Fatalf("expected alloc to have no uses after store deleted, got %d", len(alloc.Uses()))
	}
}

func TestPhiIncoming(t *testing.T) {
	m := NewModule()
	fn := m.NewFunction("f", m.Types.I32(), nil, false)
	entry := fn.NewBlock("entry")
	merge := fn.NewBlock("merge")
	At(entry).Jump(merge)
	fn.RefreshCFG()

	phi := At(merge).Phi(m.Types.I32())
	AddIncoming(phi, entry, m.ConstInt(42))

	if len(phi.Operands) != 1 || len(phi.PhiBlocks) != 1 {
		t.Fatalf("expected 1 incoming entry")
	}
	if merge.Instructions[0] != phi {
		t.Fatalf("expected phi to be first instruction in block")
	}
}
