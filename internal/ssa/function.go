package ssa

import "rvcc/internal/typesys"

// Function holds the ordered block list, entry block, argument list,
// return type, name, and a flag distinguishing defined functions from
// declarations of runtime helpers (putf, putint, putfloat,
// memset-family).
type Function struct {
	Name       string
	ReturnType *typesys.Type
	Args       []*Argument
	Blocks     []*Block
	Entry      *Block
	Declare    bool // true for a runtime-helper declaration with no body

	Module *Module

	blockSeq int
	valSeq   int
	instSeq  int

	// Dirty is set by RefreshCFG. Nothing in the module reads or clears
	// it.
	Dirty bool
}

// NewBlock creates and appends a fresh, unterminated block.
func (f *Function) NewBlock(label string) *Block {
	b := &Block{id: f.blockSeq, Label: label, Func: f}
	f.blockSeq++
	f.Blocks = append(f.Blocks, b)
	if f.Entry == nil {
		f.Entry = b
	}
	return b
}

func (f *Function) nextValueID() int {
	id := f.valSeq
	f.valSeq++
	return id
}

func (f *Function) nextInstID() int {
	id := f.instSeq
	f.instSeq++
	return id
}

// RefreshCFG recomputes every Block's Preds/Succs from terminator
// operands. Must be called after any pass rewrites a terminator;
// the CFG is always rebuilt whole, never patched.
func (f *Function) RefreshCFG() {
	for _, b := range f.Blocks {
		b.Preds = nil
		b.Succs = nil
	}
	for _, b := range f.Blocks {
		for _, s := range successorsOf(b.Terminator()) {
			if s == nil {
				continue
			}
			b.Succs = append(b.Succs, s)
			s.Preds = append(s.Preds, b)
		}
	}
	f.Dirty = true
}

// RemoveBlock deletes b from the function's block list. Callers must
// first detach b from the CFG (rewrite predecessors' terminators) and
// clear/splice its own instructions.
func (f *Function) RemoveBlock(b *Block) {
	for idx, cur := range f.Blocks {
		if cur == b {
			f.Blocks = append(f.Blocks[:idx], f.Blocks[idx+1:]...)
			return
		}
	}
}
