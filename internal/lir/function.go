package lir

import (
	"strconv"

	"rvcc/internal/typesys"
)

// Function is a single lowered routine: its virtual-register Vars
// (named, typed, with a Lifetime), its Blocks in layout order, and
// (once internal/frame runs) its frame byte-size bookkeeping.
type Function struct {
	Name       string
	Params     []*Variable
	ReturnType *typesys.Type
	IsFloat    bool // true if ReturnType is a float type
	IsDeclare  bool // external/runtime-declared, no body

	Blocks []*Block
	Entry  *Block

	Vars map[string]*Variable

	// FrameSize is the total stack-frame byte size internal/frame
	// computes; 0 until that pass runs.
	FrameSize int

	// UsedCalleeSaved is the set of callee-saved physical registers
	// internal/regalloc actually assigned to some Variable,
	// consulted by internal/frame when sizing the prologue/epilogue
	// save/restore scaffolding.
	UsedCalleeSaved []string

	varN int
}

func NewFunction(name string, ret *typesys.Type, isDeclare bool) *Function {
	return &Function{Name: name, ReturnType: ret, IsFloat: ret.IsFloat(), IsDeclare: isDeclare, Vars: map[string]*Variable{}}
}

func (f *Function) NewBlock(name string) *Block {
	b := NewBlock(name)
	f.Blocks = append(f.Blocks, b)
	if f.Entry == nil {
		f.Entry = b
	}
	return b
}

// NewVar allocates a fresh Variable named hint; when hint is empty or
// already taken in this function, a per-function counter suffix is
// appended so two SSA values that share a name (across different
// blocks, after inlining globals, etc.) never collide at the LIR level.
func (f *Function) NewVar(hint string, typ *typesys.Type, lt Lifetime) *Variable {
	f.varN++
	name := hint
	if _, exists := f.Vars[name]; exists || name == "" {
		name = hint + ".v" + strconv.Itoa(f.varN)
	}
	v := &Variable{Name: name, Type: typ, Lifetime: lt}
	f.Vars[name] = v
	return v
}
