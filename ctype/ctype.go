// Package ctype describes native C types for calling into the foreign
// function layer: primitives, pointers, arrays, structs and unions (complete
// or incomplete), an opaque placeholder and function signatures.
//
// Descriptors are immutable once built and safe to share between goroutines.
// Predefined descriptors are singletons and may be compared by pointer;
// constructed ones should be compared with Equal.
package ctype

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncomplete is returned when the size or by-value use of a type
	// whose layout is unknown is requested.
	ErrIncomplete = errors.New("incomplete type")

	// ErrInvalidSignature is returned for function signatures that cannot be
	// called: array returns, misplaced variadic markers, incomplete by-value
	// parameters.
	ErrInvalidSignature = errors.New("invalid function signature")
)

// Kind classifies a descriptor.
type Kind int

const (
	KindVoid Kind = iota
	KindPrimitive
	KindPointer
	KindArray
	KindStruct
	KindUnion
	KindOpaque
	KindVariadic
)

var kindNames = [...]string{
	KindVoid:      "void",
	KindPrimitive: "primitive",
	KindPointer:   "pointer",
	KindArray:     "array",
	KindStruct:    "struct",
	KindUnion:     "union",
	KindOpaque:    "opaque",
	KindVariadic:  "variadic",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Class is the value class of a primitive or pointer-like type. It decides
// how Go values are represented when crossing the foreign boundary.
type Class int

const (
	ClassNone Class = iota
	ClassSigned
	ClassUnsigned
	ClassChar
	ClassFloat
	ClassBool
	ClassPointer
)

// Type is a native type descriptor.
type Type struct {
	kind     Kind
	name     string
	class    Class
	size     int // fixed size for primitives; 0 means model dependent
	elem     *Type
	length   int
	fields   []Field
	complete bool
}

// Field is a struct or union member. Bits is the bit-field width, or 0 for
// ordinary members.
type Field struct {
	Name string
	Type *Type
	Bits int
}

// Kind returns the descriptor's kind.
func (t *Type) Kind() Kind { return t.kind }

// Name returns the C name for primitives and pointer typedefs, or the tag
// for structs, unions and opaque types.
func (t *Type) Name() string { return t.name }

// Class returns the value class; ClassPointer for all pointers.
func (t *Type) Class() Class {
	if t.kind == KindPointer {
		return ClassPointer
	}
	return t.class
}

// Elem returns the pointee or array element type.
func (t *Type) Elem() *Type { return t.elem }

// Len returns the array length.
func (t *Type) Len() int { return t.length }

// Fields returns the members of a complete struct or union.
func (t *Type) Fields() []Field { return t.fields }

// Complete reports whether the type's layout is known.
func (t *Type) Complete() bool { return t.complete }

// IsObject reports whether t is the id or Class pointer typedef.
func (t *Type) IsObject() bool { return t == ID || t == ClassPtr }

// IsCString reports whether t is a pointer to char.
func (t *Type) IsCString() bool {
	return t.kind == KindPointer && t.elem != nil && t.elem.class == ClassChar
}

// ---------------------------------------------------------------------------
// Predefined descriptors
// ---------------------------------------------------------------------------

func primitive(name string, class Class, size int) *Type {
	return &Type{kind: KindPrimitive, name: name, class: class, size: size, complete: true}
}

var (
	Void = &Type{kind: KindVoid, name: "void", complete: true}

	Char       = primitive("char", ClassChar, 1)
	SChar      = primitive("signed char", ClassSigned, 1)
	UChar      = primitive("unsigned char", ClassUnsigned, 1)
	Short      = primitive("short", ClassSigned, 2)
	UShort     = primitive("unsigned short", ClassUnsigned, 2)
	Int        = primitive("int", ClassSigned, 4)
	UInt       = primitive("unsigned int", ClassUnsigned, 4)
	Long       = primitive("long", ClassSigned, 0)
	ULong      = primitive("unsigned long", ClassUnsigned, 0)
	LongLong   = primitive("long long", ClassSigned, 8)
	ULongLong  = primitive("unsigned long long", ClassUnsigned, 8)
	Float      = primitive("float", ClassFloat, 4)
	Double     = primitive("double", ClassFloat, 8)
	LongDouble = primitive("long double", ClassFloat, 16)
	Bool       = primitive("bool", ClassBool, 1)

	// Unknown stands in for data of unknown type. It can be pointed to but
	// never passed by value.
	Unknown = &Type{kind: KindOpaque, name: "unknown"}

	// UnknownStruct and UnknownUnion are the placeholders for aggregates that
	// have neither a tag nor a member list.
	UnknownStruct = &Type{kind: KindStruct, name: "unknown_struct"}
	UnknownUnion  = &Type{kind: KindUnion, name: "unknown_union"}

	objcObject   = &Type{kind: KindStruct, name: "objc_object"}
	objcClass    = &Type{kind: KindStruct, name: "objc_class"}
	objcSelector = &Type{kind: KindStruct, name: "objc_selector"}

	// ID, ClassPtr and SEL are the runtime's pointer typedefs.
	ID       = &Type{kind: KindPointer, name: "id", elem: objcObject, complete: true}
	ClassPtr = &Type{kind: KindPointer, name: "Class", elem: objcClass, complete: true}
	SEL      = &Type{kind: KindPointer, name: "SEL", elem: objcSelector, complete: true}

	// VoidPtr is void *.
	VoidPtr = &Type{kind: KindPointer, elem: Void, complete: true}

	// CString is char *.
	CString = &Type{kind: KindPointer, elem: Char, complete: true}

	// Variadic marks the start of variadic arguments. It may only appear as
	// the last parameter of a Func.
	Variadic = &Type{kind: KindVariadic, name: "..."}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// PointerTo returns a pointer to elem.
func PointerTo(elem *Type) *Type {
	switch elem {
	case Void:
		return VoidPtr
	case Char:
		return CString
	}
	return &Type{kind: KindPointer, elem: elem, complete: true}
}

// ArrayOf returns an array of n elements of elem.
func ArrayOf(elem *Type, n int) *Type {
	return &Type{kind: KindArray, elem: elem, length: n, complete: elem.complete}
}

// StructOf returns a complete struct with the given members.
func StructOf(name string, fields []Field) *Type {
	return &Type{kind: KindStruct, name: name, fields: fields, complete: true}
}

// UnionOf returns a complete union with the given members.
func UnionOf(name string, fields []Field) *Type {
	return &Type{kind: KindUnion, name: name, fields: fields, complete: true}
}

// IncompleteStruct returns a named struct with unknown layout.
func IncompleteStruct(name string) *Type {
	return &Type{kind: KindStruct, name: name}
}

// IncompleteUnion returns a named union with unknown layout.
func IncompleteUnion(name string) *Type {
	return &Type{kind: KindUnion, name: name}
}

// ---------------------------------------------------------------------------
// Comparison and printing
// ---------------------------------------------------------------------------

// Equal reports whether a and b describe the same type.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.kind != b.kind || a.name != b.name || a.length != b.length ||
		a.complete != b.complete || a.class != b.class || len(a.fields) != len(b.fields) {
		return false
	}
	if (a.elem == nil) != (b.elem == nil) || (a.elem != nil && !Equal(a.elem, b.elem)) {
		return false
	}
	for i := range a.fields {
		fa, fb := a.fields[i], b.fields[i]
		if fa.Name != fb.Name || fa.Bits != fb.Bits || !Equal(fa.Type, fb.Type) {
			return false
		}
	}
	return true
}

// String returns a C-like spelling of the type.
func (t *Type) String() string {
	switch t.kind {
	case KindVoid, KindPrimitive, KindOpaque, KindVariadic:
		return t.name
	case KindPointer:
		if t.name != "" {
			return t.name
		}
		return t.elem.String() + " *"
	case KindArray:
		return fmt.Sprintf("%s[%d]", t.elem, t.length)
	case KindStruct, KindUnion:
		return t.aggregateString()
	}
	panic(fmt.Sprintf("ctype: unhandled kind %v", t.kind))
}

func (t *Type) aggregateString() string {
	var sb strings.Builder
	sb.WriteString(t.kind.String())
	sb.WriteByte(' ')
	sb.WriteString(t.name)
	if !t.complete {
		return sb.String()
	}
	sb.WriteString(" {")
	for _, f := range t.fields {
		fmt.Fprintf(&sb, " %s %s", f.Type, f.Name)
		if f.Bits > 0 {
			fmt.Fprintf(&sb, ":%d", f.Bits)
		}
		sb.WriteByte(';')
	}
	sb.WriteString(" }")
	return sb.String()
}
