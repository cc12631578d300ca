package ssa

// Block is an ordered sequence of instructions, Phis (if any)
// contiguous at the front, ending with exactly one terminator.
// Predecessor/successor sets are derived from terminator operands and
// cached here; call Function.RefreshCFG after any transform that
// rewrites a terminator.
type Block struct {
	id           int
	Label        string
	Instructions []*Instruction
	Func         *Function // parent

	Preds []*Block
	Succs []*Block
}

func (b *Block) GetID() int { return b.id }

// Terminator returns the block's terminator instruction, or nil if
// the block is (transiently, mid-construction) unterminated.
func (b *Block) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// Phis returns the leading contiguous run of Phi instructions.
func (b *Block) Phis() []*Instruction {
	n := 0
	for n < len(b.Instructions) && b.Instructions[n].Op == OpPhi {
		n++
	}
	return b.Instructions[:n]
}

// Append adds inst at the end of the instruction list. Phis must be
// appended before any non-Phi instruction; callers violating this
// invariant corrupt the "Phis contiguous at front" guarantee; Append
// does not check it, and nothing downstream does either.
func (b *Block) Append(inst *Instruction) {
	inst.Block = b
	b.Instructions = append(b.Instructions, inst)
}

// InsertBefore inserts inst immediately before mark in b's instruction
// list.
func (b *Block) InsertBefore(mark, inst *Instruction) {
	inst.Block = b
	for idx, cur := range b.Instructions {
		if cur == mark {
			b.Instructions = append(b.Instructions, nil)
			copy(b.Instructions[idx+1:], b.Instructions[idx:])
			b.Instructions[idx] = inst
			return
		}
	}
	panic("ssa: InsertBefore: mark not found in block")
}

// PrependPhi inserts a Phi instruction at the front of the block,
// after any existing Phis, preserving the "Phis contiguous at front"
// invariant.
func (b *Block) PrependPhi(inst *Instruction) {
	inst.Block = b
	n := len(b.Phis())
	b.Instructions = append(b.Instructions, nil)
	copy(b.Instructions[n+1:], b.Instructions[n:])
	b.Instructions[n] = inst
}

// Remove splices inst out of the block. The caller must have already
// called inst.ClearOperands() (step one of the two-step delete
// protocol); Remove is step two.
func (b *Block) Remove(inst *Instruction) {
	for idx, cur := range b.Instructions {
		if cur == inst {
			b.Instructions = append(b.Instructions[:idx], b.Instructions[idx+1:]...)
			inst.Block = nil
			return
		}
	}
}

// successorsOf returns the blocks a terminator can transfer control
// to, in a deterministic order.
func successorsOf(term *Instruction) []*Block {
	if term == nil {
		return nil
	}
	switch term.Op {
	case OpJump:
		return []*Block{term.Target}
	case OpBranch:
		return []*Block{term.TrueBlock, term.FalseBlock}
	case OpSwitch:
		succs := make([]*Block, 0, len(term.SwitchCases)+1)
		for _, c := range term.SwitchCases {
			succs = append(succs, c.Block)
		}
		if term.SwitchDefault != nil {
			succs = append(succs, term.SwitchDefault)
		}
		return succs
	default:
		return nil
	}
}
