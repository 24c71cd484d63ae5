package bridge

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// Ivar describes an instance variable declared by a class.
type Ivar struct {
	b        *Bridge
	addr     objcrt.Address
	name     string
	offset   uintptr
	encoding string

	typ atomic.Pointer[ctype.Type]
}

func (b *Bridge) ivarAt(addr objcrt.Address) *Ivar {
	return b.ivars.internValue(addr, func() *Ivar {
		return &Ivar{
			b:        b,
			addr:     addr,
			name:     b.rt.IvarName(addr),
			offset:   b.rt.IvarOffset(addr),
			encoding: b.rt.IvarTypeEncoding(addr),
		}
	})
}

func (v *Ivar) Address() objcrt.Address { return v.addr }
func (v *Ivar) Kind() Kind              { return KindIvar }
func (v *Ivar) Name() string            { return v.name }
func (v *Ivar) Offset() uintptr         { return v.offset }
func (v *Ivar) TypeEncoding() string    { return v.encoding }

func (v *Ivar) String() string {
	return fmt.Sprintf("<Ivar %s %q at offset %d>", v.name, v.encoding, v.offset)
}

// Type returns the native type of the variable, decoding it on first use.
func (v *Ivar) Type() (*ctype.Type, error) {
	if t := v.typ.Load(); t != nil {
		return t, nil
	}
	et, err := v.b.decoder.DecodeType(v.encoding)
	if err != nil {
		return nil, err
	}
	t, err := ConvertType(et)
	if err != nil {
		return nil, err
	}
	if !v.typ.CompareAndSwap(nil, t) {
		return v.typ.Load(), nil
	}
	return t, nil
}

// Get reads the variable from obj and unwraps it.
func (v *Ivar) Get(obj *Object) (any, error) {
	if err := obj.live(); err != nil {
		return nil, err
	}
	t, err := v.Type()
	if err != nil {
		return nil, err
	}
	data, err := v.b.ffi.Load(obj.addr+objcrt.Address(v.offset), t)
	runtime.KeepAlive(obj)
	if err != nil {
		return nil, fmt.Errorf("ivar %s: %w", v.name, err)
	}
	return v.b.Unwrap(objcrt.Value{Type: t, Data: data}, true)
}

// Set writes value into the variable of obj. Proxies are stored by address.
func (v *Ivar) Set(obj *Object, value any) error {
	if err := obj.live(); err != nil {
		return err
	}
	t, err := v.Type()
	if err != nil {
		return err
	}
	switch x := value.(type) {
	case *Object:
		value = x.addr
	case *Selector:
		value = x.addr
	}
	c, err := objcrt.Canonical(t, value)
	if err != nil {
		return fmt.Errorf("ivar %s: %w: %w", v.name, ErrTypeMismatch, err)
	}
	err = v.b.ffi.Store(obj.addr+objcrt.Address(v.offset), t, c)
	runtime.KeepAlive(obj)
	if err != nil {
		return fmt.Errorf("ivar %s: %w", v.name, err)
	}
	return nil
}
