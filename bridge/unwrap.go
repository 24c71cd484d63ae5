package bridge

import (
	"fmt"
	"reflect"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// Unwrap converts a raw foreign value to its Go form. id and Class values
// become *Object (nil for the nil object), SEL becomes *Selector, integers
// become int64 or uint64, floating point values float64, char byte and
// bool bool. Anything else, such as pointers and structs, is returned as
// the objcrt.Value itself.
//
// retain has the meaning of ObjectAt: false hands an owned reference to the
// proxy.
func (b *Bridge) Unwrap(v objcrt.Value, retain bool) (any, error) {
	t := v.Type
	if t == nil || t.Kind() == ctype.KindVoid {
		return nil, nil
	}
	switch {
	case t.IsObject():
		addr, ok := v.Data.(objcrt.Address)
		if !ok {
			return nil, b.badResult(v)
		}
		o, err := b.ObjectAt(addr, retain)
		if err != nil || o == nil {
			return nil, err
		}
		return o, nil
	case t == ctype.SEL:
		addr, ok := v.Data.(objcrt.Address)
		if !ok {
			return nil, b.badResult(v)
		}
		if addr == 0 {
			return nil, nil
		}
		return b.SelectorAt(addr)
	case t.Kind() != ctype.KindPrimitive:
		return v, nil
	}

	var ok bool
	switch t.Class() {
	case ctype.ClassSigned:
		_, ok = v.Data.(int64)
	case ctype.ClassUnsigned:
		_, ok = v.Data.(uint64)
	case ctype.ClassFloat:
		_, ok = v.Data.(float64)
	case ctype.ClassChar:
		_, ok = v.Data.(byte)
	case ctype.ClassBool:
		_, ok = v.Data.(bool)
	}
	if !ok {
		return nil, b.badResult(v)
	}
	return v.Data, nil
}

func (b *Bridge) badResult(v objcrt.Value) error {
	return fmt.Errorf("%w: %T returned for %s", ErrTypeMismatch, v.Data, v.Type)
}

// ---------------------------------------------------------------------------
// Foundation to Go
// ---------------------------------------------------------------------------

// ToNative converts Foundation values back to Go: NSString to string,
// NSData to []byte, NSNumber to int64, uint64, float64 or bool, NSArray to
// []any, NSSet to map[any]struct{} and NSDictionary to map[any]any,
// recursively. Other objects are returned as the proxy itself.
func (b *Bridge) ToNative(o *Object) (any, error) {
	if o == nil {
		return nil, nil
	}
	if err := o.live(); err != nil {
		return nil, err
	}
	if o.kind != KindObject {
		return o, nil
	}

	cls := b.rt.ObjectClass(o.addr)
	switch {
	case b.inheritsFrom(cls, b.known.NSString):
		p, err := b.sendAddr(o.addr, "UTF8String", ctype.CString)
		if err != nil {
			return nil, err
		}
		return b.ffi.CString(p), nil
	case b.inheritsFrom(cls, b.known.NSData):
		n, err := b.count(o.addr, "length")
		if err != nil {
			return nil, err
		}
		p, err := b.sendAddr(o.addr, "bytes", ctype.VoidPtr)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return []byte{}, nil
		}
		return b.ffi.Bytes(p, n), nil
	case b.inheritsFrom(cls, b.known.NSNumber):
		return b.numberValue(o.addr)
	case b.inheritsFrom(cls, b.known.NSArray):
		return b.arrayValues(o.addr)
	case b.inheritsFrom(cls, b.known.NSDictionary):
		return b.dictionaryValues(o.addr)
	case b.inheritsFrom(cls, b.known.NSSet):
		all, err := b.sendObject(o.addr, "allObjects")
		if err != nil {
			return nil, err
		}
		defer all.Release()
		elems, err := b.arrayValues(all.addr)
		if err != nil {
			return nil, err
		}
		set := make(map[any]struct{}, len(elems))
		for _, e := range elems {
			set[hashable(e)] = struct{}{}
		}
		return set, nil
	}
	return o, nil
}

var noArgs = []*ctype.Type{}

func (b *Bridge) sendAddr(target objcrt.Address, sel string, ret *ctype.Type) (objcrt.Address, error) {
	v, err := b.Send(target, b.Selector(sel), nil, ret, noArgs)
	if err != nil {
		return 0, err
	}
	addr, ok := v.Data.(objcrt.Address)
	if !ok {
		return 0, b.badResult(v)
	}
	return addr, nil
}

func (b *Bridge) sendObject(target objcrt.Address, sel string, args ...any) (*Object, error) {
	argTypes := noArgs
	if len(args) > 0 {
		argTypes = make([]*ctype.Type, len(args))
		for i, a := range args {
			argTypes[i] = ctype.ID
			if _, ok := a.(uint64); ok {
				argTypes[i] = ctype.ULong
			}
		}
	}
	v, err := b.Send(target, b.Selector(sel), args, ctype.ID, argTypes)
	if err != nil {
		return nil, err
	}
	r, err := b.Unwrap(v, shouldRetainResult(sel))
	if err != nil {
		return nil, err
	}
	o, _ := r.(*Object)
	if o == nil {
		return nil, fmt.Errorf("%s returned nil: %w", sel, ErrNilAddress)
	}
	return o, nil
}

func (b *Bridge) count(target objcrt.Address, sel string) (int, error) {
	v, err := b.Send(target, b.Selector(sel), nil, ctype.ULong, noArgs)
	if err != nil {
		return 0, err
	}
	n, ok := v.Data.(uint64)
	if !ok {
		return 0, b.badResult(v)
	}
	return int(n), nil
}

func (b *Bridge) numberValue(addr objcrt.Address) (any, error) {
	p, err := b.sendAddr(addr, "objCType", ctype.CString)
	if err != nil {
		return nil, err
	}
	code := b.ffi.CString(p)
	if code == "" {
		return nil, fmt.Errorf("%w: number without type code", ErrTypeMismatch)
	}
	var (
		sel string
		ret *ctype.Type
	)
	switch code[0] {
	case 'B':
		sel, ret = "boolValue", b.arch.BOOL()
	case 'f', 'd':
		sel, ret = "doubleValue", ctype.Double
	case 'C', 'S', 'I', 'L', 'Q':
		sel, ret = "unsignedLongLongValue", ctype.ULongLong
	default:
		sel, ret = "longLongValue", ctype.LongLong
	}
	v, err := b.Send(addr, b.Selector(sel), nil, ret, noArgs)
	if err != nil {
		return nil, err
	}
	if code[0] == 'B' {
		return truthy(v.Data)
	}
	return b.Unwrap(v, true)
}

func (b *Bridge) arrayValues(addr objcrt.Address) ([]any, error) {
	n, err := b.count(addr, "count")
	if err != nil {
		return nil, err
	}
	out := make([]any, n)
	for i := range n {
		elem, err := b.sendObject(addr, "objectAtIndex:", uint64(i))
		if err == nil {
			out[i], err = b.nativeElem(elem)
		}
		if err != nil {
			releaseProxies(out[:i]...)
			return nil, err
		}
	}
	return out, nil
}

func (b *Bridge) dictionaryValues(addr objcrt.Address) (map[any]any, error) {
	keys, err := b.sendObject(addr, "allKeys")
	if err != nil {
		return nil, err
	}
	defer keys.Release()
	n, err := b.count(keys.addr, "count")
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, n)
	for i := range n {
		key, err := b.sendObject(keys.addr, "objectAtIndex:", uint64(i))
		if err != nil {
			releaseEntries(out)
			return nil, err
		}
		val, err := b.sendObject(addr, "objectForKey:", key.addr)
		if err != nil {
			key.Release()
			releaseEntries(out)
			return nil, err
		}
		k, err := b.nativeElem(key)
		if err != nil {
			val.Release()
			releaseEntries(out)
			return nil, err
		}
		v, err := b.nativeElem(val)
		if err != nil {
			releaseProxies(k)
			releaseEntries(out)
			return nil, err
		}
		out[hashable(k)] = v
	}
	return out, nil
}

// releaseProxies releases the proxies among vs, the already converted
// elements of a collection whose conversion failed.
func releaseProxies(vs ...any) {
	for _, v := range vs {
		if o, ok := v.(*Object); ok {
			o.Release()
		}
	}
}

func releaseEntries(m map[any]any) {
	for k, v := range m {
		releaseProxies(k, v)
	}
}

// nativeElem converts a collection element, dropping the proxy's handle
// unless the proxy itself is the result.
func (b *Bridge) nativeElem(o *Object) (any, error) {
	v, err := b.ToNative(o)
	if p, ok := v.(*Object); !ok || p != o {
		o.Release()
	}
	return v, err
}

// hashable returns v if it can be used as a map key, and a string form of
// byte slices otherwise. Other unhashable values keep their identity
// through a pointer.
func hashable(v any) any {
	if v == nil || reflect.TypeOf(v).Comparable() {
		return v
	}
	if data, ok := v.([]byte); ok {
		return string(data)
	}
	return &v
}
