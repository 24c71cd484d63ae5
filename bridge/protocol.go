package bridge

import (
	"fmt"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// ProtocolEqual reports whether two protocols are the same according to the
// runtime. For other kinds it compares addresses.
func (o *Object) ProtocolEqual(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if o.kind == KindProtocol && other.kind == KindProtocol {
		return o.b.rt.ProtocolIsEqual(o.addr, other.addr)
	}
	return o.addr == other.addr
}

// ConformedBy reports whether a class or protocol conforms to the protocol
// o. Classes that implement conformsToProtocol: are asked directly.
// Otherwise conformance is derived from the runtime: direct adoption, then
// the superclass chain, then each adopted protocol recursively.
func (o *Object) ConformedBy(e *Object) (bool, error) {
	if err := o.live(); err != nil {
		return false, err
	}
	if err := e.live(); err != nil {
		return false, err
	}
	if o.kind != KindProtocol {
		return false, fmt.Errorf("conformance to %s: %w", o.kind, ErrTypeMismatch)
	}

	b := o.b
	switch e.kind {
	case KindClass, KindMetaClass:
		ask := b.Selector("conformsToProtocol:")
		if b.rt.ClassRespondsToSelector(b.rt.ObjectClass(e.addr), ask.addr) {
			return b.sendBool(e.addr, ask, ctype.ID, o.addr)
		}
		return b.classConforms(e.addr, o.addr), nil
	case KindProtocol:
		return b.protocolConforms(e.addr, o.addr), nil
	}
	return false, fmt.Errorf("conformance of %s: %w", e.kind, ErrTypeMismatch)
}

// ConformedByInstance reports whether obj's class conforms to the protocol.
func (o *Object) ConformedByInstance(obj *Object) (bool, error) {
	if err := obj.live(); err != nil {
		return false, err
	}
	if obj.kind != KindObject {
		return o.ConformedBy(obj)
	}
	cls, err := obj.Class()
	if err != nil {
		return false, err
	}
	defer cls.Release()
	return o.ConformedBy(cls)
}

func (b *Bridge) classConforms(cls, proto objcrt.Address) bool {
	if b.rt.ClassConformsToProtocol(cls, proto) {
		return true
	}
	if sup := b.rt.ClassSuperclass(cls); sup != 0 && b.classConforms(sup, proto) {
		return true
	}
	for _, p := range b.rt.ClassProtocols(cls) {
		if b.protocolConforms(p, proto) {
			return true
		}
	}
	return false
}

func (b *Bridge) protocolConforms(p, proto objcrt.Address) bool {
	if b.rt.ProtocolIsEqual(p, proto) || b.rt.ProtocolConformsToProtocol(p, proto) {
		return true
	}
	for _, q := range b.rt.ProtocolProtocols(p) {
		if b.protocolConforms(q, proto) {
			return true
		}
	}
	return false
}
