package bridge

import (
	"fmt"

	"github.com/chazu/objcbridge/objcrt"
)

// Kind discriminates reflective entities.
type Kind int

const (
	KindObject Kind = iota
	KindClass
	KindMetaClass
	KindProtocol
	KindSelector
	KindIvar
	KindMethod
	KindProperty
)

var kindNames = [...]string{
	KindObject:    "Object",
	KindClass:     "Class",
	KindMetaClass: "MetaClass",
	KindProtocol:  "Protocol",
	KindSelector:  "Selector",
	KindIvar:      "Ivar",
	KindMethod:    "Method",
	KindProperty:  "Property",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsClass reports whether k is Class or MetaClass.
func (k Kind) IsClass() bool { return k == KindClass || k == KindMetaClass }

// Entity is any reflective entity backed by a foreign address.
type Entity interface {
	Address() objcrt.Address
	Kind() Kind
}

// kindOf classifies an object-family address.
func (b *Bridge) kindOf(addr objcrt.Address) Kind {
	if b.rt.ObjectIsClass(addr) {
		if b.rt.ClassIsMetaClass(addr) {
			return KindMetaClass
		}
		return KindClass
	}
	if b.isProtocolAddr(addr) {
		return KindProtocol
	}
	return KindObject
}

// isProtocolAddr reports whether addr is an instance of the Protocol class
// or one of its subclasses.
func (b *Bridge) isProtocolAddr(addr objcrt.Address) bool {
	if b.known.Protocol == 0 {
		return false
	}
	return b.inheritsFrom(b.rt.ObjectClass(addr), b.known.Protocol)
}

// inheritsFrom walks cls's superclass chain looking for ancestor.
func (b *Bridge) inheritsFrom(cls, ancestor objcrt.Address) bool {
	if ancestor == 0 {
		return false
	}
	for c := cls; c != 0; c = b.rt.ClassSuperclass(c) {
		if c == ancestor {
			return true
		}
	}
	return false
}

// formatAddress renders addr padded to the target's pointer width.
func (b *Bridge) formatAddress(addr objcrt.Address) string {
	return fmt.Sprintf("0x%0*x", b.arch.PointerSize*2, uintptr(addr))
}
