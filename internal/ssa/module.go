package ssa

import (
	"fmt"
	"math"

	"rvcc/internal/typesys"
)

// ConstString is a constant string literal: a UTF-8 byte sequence
// with C-style escapes preserved for the emitter.
type ConstString struct {
	Name  string
	Bytes []byte
}

// Module owns the function list, global variables, constant strings,
// and cached runtime-function declarations referenced by Calls.
type Module struct {
	Types   *typesys.Interner
	Funcs   []*Function
	Globals []*Global
	Strings []*ConstString

	funcByName map[string]*Function

	constBools  map[bool]*ConstBool
	constInts   map[int64]*ConstInt
	constFloats map[uint64]*ConstFloat
}

// NewModule creates an empty Module with its own type interner and
// constant-interning caches. The caches live with the Module so that
// teardown between compilations is a single release.
func NewModule() *Module {
	return &Module{
		Types:       typesys.NewInterner(),
		funcByName:  make(map[string]*Function),
		constBools:  make(map[bool]*ConstBool),
		constInts:   make(map[int64]*ConstInt),
		constFloats: make(map[uint64]*ConstFloat),
	}
}

// NewFunction declares a function (or, if declare is true, a runtime
// helper declaration such as putf/putint/putfloat/memset) and adds it
// to the module.
func (m *Module) NewFunction(name string, ret *typesys.Type, argTypes []*typesys.Type, declare bool) *Function {
	fn := &Function{Name: name, ReturnType: ret, Module: m, Declare: declare}
	for i, t := range argTypes {
		fn.Args = append(fn.Args, &Argument{
			valueBase: valueBase{name: fmt.Sprintf("%%arg%d", i), typ: t},
			Index:     i,
		})
	}
	m.Funcs = append(m.Funcs, fn)
	m.funcByName[name] = fn
	return fn
}

// LookupFunction resolves a function by name and returns nil on a
// miss; callers decide what a miss means (irgen declares a runtime
// helper or reports an undeclared function).
func (m *Module) LookupFunction(name string) *Function {
	return m.funcByName[name]
}

// NewGlobal declares a module-level global with the given initializer.
func (m *Module) NewGlobal(name string, typ *typesys.Type, init *Initializer) *Global {
	g := &Global{valueBase: valueBase{name: name, typ: m.Types.PtrTo(typ)}, Init: init}
	m.Globals = append(m.Globals, g)
	return g
}

// NewString interns a constant string literal and returns it.
func (m *Module) NewString(name string, bytes []byte) *ConstString {
	s := &ConstString{Name: name, Bytes: bytes}
	m.Strings = append(m.Strings, s)
	return s
}

// ConstBool returns the interned boolean constant.
func (m *Module) ConstBool(v bool) *ConstBool {
	if c, ok := m.constBools[v]; ok {
		return c
	}
	c := &ConstBool{valueBase: valueBase{name: fmt.Sprintf("%v", v), typ: m.Types.I1()}, Val: v}
	m.constBools[v] = c
	return c
}

// ConstInt returns the interned i32 constant for v (sign-extended from
// the 32-bit two's-complement representation).
func (m *Module) ConstInt(v int64) *ConstInt {
	v = int64(int32(v))
	if c, ok := m.constInts[v]; ok {
		return c
	}
	c := &ConstInt{valueBase: valueBase{name: fmt.Sprintf("%d", v), typ: m.Types.I32()}, Val: v}
	m.constInts[v] = c
	return c
}

// ConstFloat returns the interned f32 constant for v, keyed by its
// 64-bit IEEE bit pattern.
func (m *Module) ConstFloat(v float32) *ConstFloat {
	bits := math.Float64bits(float64(v))
	if c, ok := m.constFloats[bits]; ok {
		return c
	}
	c := &ConstFloat{
		valueBase: valueBase{name: fmt.Sprintf("%g", v), typ: m.Types.F32()},
		Val:       float64(v),
		Bits:      bits,
	}
	m.constFloats[bits] = c
	return c
}

// DeclareRuntime ensures a runtime helper (putf/putint/putfloat/
// memset) is declared exactly once per module.
func (m *Module) DeclareRuntime(name string, ret *typesys.Type, argTypes []*typesys.Type) *Function {
	if fn := m.LookupFunction(name); fn != nil {
		return fn
	}
	return m.NewFunction(name, ret, argTypes, true)
}
