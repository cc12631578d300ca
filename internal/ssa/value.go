// Package ssa implements the mid-level SSA IR: Values, Uses, Users,
// Instructions, Blocks, Functions, Module, and global
// constants/initializers.
//
// Instructions are a single tagged struct (an Op plus a fixed operand
// shape per tag) rather than one type per opcode, so passes can
// switch exhaustively over Op without dynamic casts.
package ssa

import (
	"fmt"

	"rvcc/internal/typesys"
)

// Value is the abstract base of everything that can appear as an
// operand: constants, globals, function references, block references,
// function arguments, and instructions.
type Value interface {
	// Name is a stable textual name used by dumps; it is not
	// necessarily unique outside of its defining function.
	Name() string
	// Type is the value's unique, non-null type.
	Type() *typesys.Type
	// Uses returns the Uses by which Users reference this Value.
	// The returned slice must not be mutated by the caller.
	Uses() []*Use
	addUse(u *Use)
	removeUse(u *Use)
	clearAllUses()
}

// valueBase is embedded by every concrete Value implementation and
// supplies the Uses() bookkeeping shared by all of them.
type valueBase struct {
	name string
	typ  *typesys.Type
	uses []*Use
}

func (v *valueBase) Name() string          { return v.name }
func (v *valueBase) Type() *typesys.Type   { return v.typ }
func (v *valueBase) Uses() []*Use          { return v.uses }
func (v *valueBase) addUse(u *Use)         { v.uses = append(v.uses, u) }
func (v *valueBase) removeUse(target *Use) {
	for i, u := range v.uses {
		if u == target {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}
func (v *valueBase) clearAllUses() { v.uses = nil }

// Use is one operand edge: it points at the Value it reads and back
// at the User (almost always an *Instruction) that owns it.
// value.Uses() always equals the set of Users that contain a Use
// referencing value; ReplaceAllUsesWith is the single atomic step
// that keeps that invariant across a rewrite.
type Use struct {
	Value Value
	User  *Instruction
}

// ReplaceAllUsesWith rewrites every Use of old to point at replacement
// and transfers old's user set to replacement. old and replacement
// must have the same type; a mismatch is fatal.
func ReplaceAllUsesWith(old, replacement Value) {
	if old.Type() != replacement.Type() {
		panic(fmt.Sprintf("ssa: type mismatch replacing %s (%s) with %s (%s)",
			old.Name(), old.Type(), replacement.Name(), replacement.Type()))
	}
	uses := old.Uses()
	for _, u := range uses {
		u.Value = replacement
		replacement.addUse(u)
	}
	old.clearAllUses()
}

// Constants are interned by (type, bit pattern); ConstFloat interning
// uses the 64-bit IEEE representation of the (widened) float value.

type ConstBool struct {
	valueBase
	Val bool
}

type ConstInt struct {
	valueBase
	Val int64 // sign-extended 32-bit value
}

type ConstFloat struct {
	valueBase
	Val float64 // stored as float64, truncated to float32 semantics at use
	Bits uint64 // canonical IEEE-754 bit pattern used for interning
}

// Undef represents an unspecified value of a given type, produced
// when Mem2Reg finds no reaching definition for a Load.
type Undef struct {
	valueBase
}

// NewUndef returns a fresh Undef of type t. Unlike constants, Undef is
// not interned: each use site getting a distinct Value is harmless
// since Undef carries no payload to compare.
func NewUndef(t *typesys.Type) *Undef {
	return &Undef{valueBase: valueBase{name: "undef", typ: t}}
}

// Global is a module-level variable with a constant initializer tree.
type Global struct {
	valueBase
	Init *Initializer
}

// Initializer is a scalar constant or a nested array initializer.
// ZeroInit and LastNonZero let the emitter skip trailing zero words
// without walking the whole tree.
type Initializer struct {
	Scalar        Value          // non-nil for a scalar initializer
	Elems         []*Initializer // non-nil for an array initializer
	ZeroInit      bool           // true iff every element is a zero constant
	LastNonZero   int            // index of the last non-zero element, -1 if none
}

// FuncRef is a reference to a Function usable as a Call operand.
type FuncRef struct {
	valueBase
	Fn *Function
}

// Argument is a function parameter.
type Argument struct {
	valueBase
	Index int
}
