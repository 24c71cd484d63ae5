// Package encoding models the runtime's textual type encodings.
//
// A type encoding such as "{CGPoint=dd}" or "r^@" is decoded into a tree of
// Type values. The tree is purely structural: it says nothing about sizes,
// alignment or calling conventions. Package ctype derives those.
package encoding

import (
	"strconv"
	"strings"
)

// Type is a decoded type encoding.
//
// The concrete variants are Qualified, Unknown, Void, Scalar, Pointer, ID,
// ClassRef, SelectorRef, Array, Struct and Union. BitField and Field are
// internal types: they only appear inside a Struct or Union field list.
type Type interface {
	// Encode returns the canonical encoding text for the type.
	Encode() string
	isType()
}

// Qualifier is a type qualifier character such as 'r' (const).
type Qualifier byte

// Type qualifiers.
const (
	Const   Qualifier = 'r'
	In      Qualifier = 'n'
	InOut   Qualifier = 'N'
	Out     Qualifier = 'o'
	ByCopy  Qualifier = 'O'
	ByRef   Qualifier = 'R'
	Oneway  Qualifier = 'V'
	Atomic  Qualifier = 'A'
	Complex Qualifier = 'j'
)

func isQualifier(c byte) bool {
	switch Qualifier(c) {
	case Const, In, InOut, Out, ByCopy, ByRef, Oneway, Atomic, Complex:
		return true
	}
	return false
}

// ScalarKind identifies a scalar C type by its encoding character.
type ScalarKind byte

// Scalar kinds.
const (
	Char       ScalarKind = 'c'
	Int        ScalarKind = 'i'
	Short      ScalarKind = 's'
	Long       ScalarKind = 'l'
	LongLong   ScalarKind = 'q'
	UChar      ScalarKind = 'C'
	UInt       ScalarKind = 'I'
	UShort     ScalarKind = 'S'
	ULong      ScalarKind = 'L'
	ULongLong  ScalarKind = 'Q'
	Float      ScalarKind = 'f'
	Double     ScalarKind = 'd'
	LongDouble ScalarKind = 'D'
	Bool       ScalarKind = 'B'
)

var scalarNames = map[ScalarKind]string{
	Char:       "char",
	Int:        "int",
	Short:      "short",
	Long:       "long",
	LongLong:   "long long",
	UChar:      "unsigned char",
	UInt:       "unsigned int",
	UShort:     "unsigned short",
	ULong:      "unsigned long",
	ULongLong:  "unsigned long long",
	Float:      "float",
	Double:     "double",
	LongDouble: "long double",
	Bool:       "bool",
}

// CName returns the C spelling of the scalar type.
func (k ScalarKind) CName() string {
	return scalarNames[k]
}

// ---------------------------------------------------------------------------
// Variants
// ---------------------------------------------------------------------------

// Qualified wraps a type with one or more qualifiers.
type Qualified struct {
	Qualifiers []Qualifier
	Type       Type
}

// Unknown is the '?' placeholder for data of unknown type (function pointers
// and the like).
type Unknown struct{}

// Void is 'v'.
type Void struct{}

// Scalar is a numeric or boolean C type.
type Scalar struct {
	Kind ScalarKind
}

// Pointer is '^' followed by the element type. "*" (C string) decodes to a
// Pointer to Char.
type Pointer struct {
	Elem Type
}

// ID is an object reference, '@'. ClassName holds the quoted class name when
// present; Block marks the "@?" block form.
type ID struct {
	ClassName string
	Block     bool
}

// ClassRef is '#'.
type ClassRef struct{}

// SelectorRef is ':'.
type SelectorRef struct{}

// Array is "[<len><elem>]".
type Array struct {
	Len  int
	Elem Type
}

// Struct is "{name=fields}". An empty Name means the encoding had no name or
// used '?'. Fields is nil when the layout is unknown ("{name}") and non-nil,
// possibly empty, when it was spelled out.
type Struct struct {
	Name   string
	Fields []Field
}

// Union is "(name=fields)", with the same conventions as Struct.
type Union struct {
	Name   string
	Fields []Field
}

// Field is a member of a Struct or Union. Name is empty when the encoding
// did not carry field names.
type Field struct {
	Name string
	Type Type
}

// BitField is "b<width>".
type BitField struct {
	Width int
}

func (Qualified) isType()   {}
func (Unknown) isType()     {}
func (Void) isType()        {}
func (Scalar) isType()      {}
func (Pointer) isType()     {}
func (ID) isType()          {}
func (ClassRef) isType()    {}
func (SelectorRef) isType() {}
func (Array) isType()       {}
func (Struct) isType()      {}
func (Union) isType()       {}
func (Field) isType()       {}
func (BitField) isType()    {}

// IsInternal reports whether t may only appear nested inside a struct or
// union field list.
func IsInternal(t Type) bool {
	switch t.(type) {
	case Field, *Field, BitField, *BitField:
		return true
	}
	return false
}

// Unqualified strips any Qualified wrappers from t.
func Unqualified(t Type) Type {
	for {
		q, ok := t.(Qualified)
		if !ok {
			return t
		}
		t = q.Type
	}
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func (q Qualified) Encode() string {
	var sb strings.Builder
	for _, c := range q.Qualifiers {
		sb.WriteByte(byte(c))
	}
	sb.WriteString(q.Type.Encode())
	return sb.String()
}

func (Unknown) Encode() string { return "?" }

func (Void) Encode() string { return "v" }

func (s Scalar) Encode() string { return string(rune(s.Kind)) }

func (p Pointer) Encode() string {
	if s, ok := p.Elem.(Scalar); ok && s.Kind == Char {
		return "*"
	}
	return "^" + p.Elem.Encode()
}

func (id ID) Encode() string {
	switch {
	case id.Block:
		return "@?"
	case id.ClassName != "":
		return `@"` + id.ClassName + `"`
	}
	return "@"
}

func (ClassRef) Encode() string { return "#" }

func (SelectorRef) Encode() string { return ":" }

func (a Array) Encode() string {
	return "[" + strconv.Itoa(a.Len) + a.Elem.Encode() + "]"
}

func (s Struct) Encode() string {
	return encodeAggregate('{', '}', s.Name, s.Fields)
}

func (u Union) Encode() string {
	return encodeAggregate('(', ')', u.Name, u.Fields)
}

func (f Field) Encode() string {
	if f.Name == "" {
		return f.Type.Encode()
	}
	return `"` + f.Name + `"` + f.Type.Encode()
}

func (b BitField) Encode() string { return "b" + strconv.Itoa(b.Width) }

func encodeAggregate(open, close byte, name string, fields []Field) string {
	var sb strings.Builder
	sb.WriteByte(open)
	if name == "" {
		sb.WriteByte('?')
	} else {
		sb.WriteString(name)
	}
	if fields != nil {
		sb.WriteByte('=')
		for _, f := range fields {
			sb.WriteString(f.Encode())
		}
	}
	sb.WriteByte(close)
	return sb.String()
}
