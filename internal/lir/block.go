package lir

// Block is a straight-line sequence of Instrs ending (once lowering is
// complete) in exactly one of Jump/Branch/Return, mirroring ssa.Block's
// shape one level down.
type Block struct {
	Name   string
	Instrs []Instr
	Preds  []*Block
	Succs  []*Block

	// LiveIn/LiveOut are filled in by internal/regalloc's liveness
	// pass and consulted by interference construction.
	LiveIn  map[*Variable]bool
	LiveOut map[*Variable]bool
}

func NewBlock(name string) *Block {
	return &Block{Name: name}
}

func (b *Block) Append(i Instr) {
	b.Instrs = append(b.Instrs, i)
}

// Terminator returns the block's last instruction if it is a
// Jump/Branch/Return, else nil.
func (b *Block) Terminator() Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	switch b.Instrs[len(b.Instrs)-1].(type) {
	case *Jump, *Branch, *Return:
		return b.Instrs[len(b.Instrs)-1]
	default:
		return nil
	}
}

func addSucc(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// RefreshCFG recomputes every block's Preds/Succs from its
// terminator. Like ssa.Function.RefreshCFG, the edge sets are rebuilt
// whole, never patched.
func (f *Function) RefreshCFG() {
	for _, b := range f.Blocks {
		b.Preds = nil
		b.Succs = nil
	}
	for _, b := range f.Blocks {
		switch t := b.Terminator().(type) {
		case *Jump:
			addSucc(b, t.Target)
		case *Branch:
			addSucc(b, t.True)
			addSucc(b, t.False)
		}
	}
}
