package lir

import "rvcc/internal/typesys"

// Initializer mirrors ssa.Initializer one level down, re-expressed over
// lir's own scalar representation (int/float immediates instead of
// ssa.Value) so internal/emit never needs to import internal/ssa.
type Initializer struct {
	IsFloat     bool
	IntScalar   int64
	FloatScalar float64
	IsScalar    bool
	Elems       []*Initializer
	ZeroInit    bool
	LastNonZero int
}

// Global is a module-level data object, addressed via LoadAddress.
type Global struct {
	Name string
	Type *typesys.Type
	Init *Initializer
}

// Module is the root of the low-level IR: every defined/declared
// Function plus every Global, the output of internal/lower.Lower and
// the input to every later backend pass and finally internal/emit.
type Module struct {
	Functions []*Function
	Globals   []*Global
}

func NewModule() *Module { return &Module{} }

func (m *Module) NewFunction(name string, ret *typesys.Type, isDeclare bool) *Function {
	fn := NewFunction(name, ret, isDeclare)
	m.Functions = append(m.Functions, fn)
	return fn
}

func (m *Module) Lookup(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
