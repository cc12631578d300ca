// Package typesys implements the core's closed value-type system.
//
// Types are structurally interned: two structurally equal types share
// the same *Type identity, so callers may compare types with ==.
package typesys

import "fmt"

// Kind distinguishes the variants of Type.
type Kind int

const (
	I1 Kind = iota
	I32
	F32
	Void
	Ptr
	Array
)

// Type is a closed variant: I1, I32, F32, Void, Ptr(T), Array(T, N).
// Instances are only ever produced through an Interner, which
// guarantees structural identity.
type Type struct {
	kind byte
	elem *Type // Ptr/Array element
	n    int   // Array length
}

func (t *Type) Kind() Kind {
	return Kind(t.kind)
}

// Elem returns the pointee/element type of a Ptr or Array type.
func (t *Type) Elem() *Type {
	return t.elem
}

// Len returns the element count of an Array type.
func (t *Type) Len() int {
	return t.n
}

// Size returns the in-memory size in bytes: Ptr(T) is 8 bytes,
// I32/F32 are 4 bytes, I1 is 1 byte (but always widened to 4 when
// materialized in a slot), arrays are flattened row-major.
func (t *Type) Size() int {
	switch Kind(t.kind) {
	case I1:
		return 1
	case I32, F32:
		return 4
	case Void:
		return 0
	case Ptr:
		return 8
	case Array:
		return t.elem.Size() * t.n
	default:
		panic(fmt.Sprintf("typesys: unknown kind %d", t.kind))
	}
}

// StoreSize is the size a value of this type actually occupies in a
// register or stack slot (I1 is widened to 4 bytes like I32).
func (t *Type) StoreSize() int {
	if Kind(t.kind) == I1 {
		return 4
	}
	return t.Size()
}

// IsFloat reports whether values of this type live in the float
// register class.
func (t *Type) IsFloat() bool {
	return Kind(t.kind) == F32
}

// IsInteger reports whether values of this type live in the integer
// register class (includes pointers and booleans).
func (t *Type) IsInteger() bool {
	switch Kind(t.kind) {
	case I1, I32, Ptr:
		return true
	default:
		return false
	}
}

func (t *Type) String() string {
	switch Kind(t.kind) {
	case I1:
		return "i1"
	case I32:
		return "i32"
	case F32:
		return "f32"
	case Void:
		return "void"
	case Ptr:
		return "ptr<" + t.elem.String() + ">"
	case Array:
		return fmt.Sprintf("[%s x %d]", t.elem.String(), t.n)
	default:
		return "?"
	}
}

// key is the structural identity used by the interning table.
type key struct {
	kind byte
	elem *Type
	n    int
}

// Interner is a module-scoped cache mapping structural type
// descriptions to a single canonical *Type, so that Equal reduces to
// pointer comparison. One Interner is owned per ssa.Module and
// discarded with it.
type Interner struct {
	table map[key]*Type
	i1    *Type
	i32   *Type
	f32   *Type
	void  *Type
}

// NewInterner creates an Interner with the four scalar types
// pre-populated.
func NewInterner() *Interner {
	in := &Interner{table: make(map[key]*Type)}
	in.i1 = in.intern(key{kind: byte(I1)})
	in.i32 = in.intern(key{kind: byte(I32)})
	in.f32 = in.intern(key{kind: byte(F32)})
	in.void = in.intern(key{kind: byte(Void)})
	return in
}

func (in *Interner) intern(k key) *Type {
	if t, ok := in.table[k]; ok {
		return t
	}
	t := &Type{kind: k.kind, elem: k.elem, n: k.n}
	in.table[k] = t
	return t
}

func (in *Interner) I1() *Type   { return in.i1 }
func (in *Interner) I32() *Type  { return in.i32 }
func (in *Interner) F32() *Type  { return in.f32 }
func (in *Interner) Void() *Type { return in.void }

// PtrTo returns the interned Ptr(elem) type.
func (in *Interner) PtrTo(elem *Type) *Type {
	return in.intern(key{kind: byte(Ptr), elem: elem})
}

// ArrayOf returns the interned Array(elem, n) type.
func (in *Interner) ArrayOf(elem *Type, n int) *Type {
	return in.intern(key{kind: byte(Array), elem: elem, n: n})
}

// Equal reports structural equality; since types are interned this is
// just a pointer comparison, but the named helper documents intent at
// call sites and tolerates a nil on either side.
func Equal(a, b *Type) bool {
	return a == b
}
