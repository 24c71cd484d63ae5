package bridge

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/chazu/objcbridge/abi"
	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/encoding"
	"github.com/chazu/objcbridge/objcrt"
)

// Method is a method implementation registered with a class.
type Method struct {
	b        *Bridge
	addr     objcrt.Address
	sel      *Selector
	encoding string

	raw atomic.Pointer[rawSignature]
	sig atomic.Pointer[signature]
}

type rawSignature struct {
	ret  encoding.Type
	args []encoding.Type
}

type signature struct {
	ret  *ctype.Type
	args []*ctype.Type
}

func (b *Bridge) methodAt(addr objcrt.Address) *Method {
	return b.methods.internValue(addr, func() *Method {
		return &Method{
			b:        b,
			addr:     addr,
			sel:      b.selectorAt(b.rt.MethodSelector(addr)),
			encoding: b.rt.MethodTypeEncoding(addr),
		}
	})
}

func (m *Method) Address() objcrt.Address { return m.addr }
func (m *Method) Kind() Kind              { return KindMethod }

// Selector returns the method's selector.
func (m *Method) Selector() *Selector { return m.sel }

// TypeEncoding returns the raw method type encoding.
func (m *Method) TypeEncoding() string { return m.encoding }

// ArgumentCount returns the number of arguments including the receiver and
// selector.
func (m *Method) ArgumentCount() int { return m.b.rt.MethodArgumentCount(m.addr) }

// Implementation returns the method's current implementation pointer.
func (m *Method) Implementation() objcrt.Address { return m.b.rt.MethodImplementation(m.addr) }

// SetImplementation replaces the implementation and returns the old one.
func (m *Method) SetImplementation(imp objcrt.Address) objcrt.Address {
	return m.b.rt.SetMethodImplementation(m.addr, imp)
}

// ExchangeImplementations swaps the implementations of m and other.
func (m *Method) ExchangeImplementations(other *Method) {
	m.b.rt.ExchangeImplementations(m.addr, other.addr)
}

func (m *Method) String() string {
	return fmt.Sprintf("<Method %s %q>", m.sel.name, m.encoding)
}

// DecodeSignatureRaw returns the decoded return and argument encodings,
// without the implicit receiver and selector arguments.
func (m *Method) DecodeSignatureRaw() (encoding.Type, []encoding.Type, error) {
	if r := m.raw.Load(); r != nil {
		return r.ret, r.args, nil
	}
	ret, args, err := m.b.decoder.DecodeMethodSignature(m.encoding)
	if err != nil {
		return nil, nil, err
	}
	if len(args) < 2 {
		return nil, nil, fmt.Errorf("%w: method %s has %d implicit arguments", ErrSignature, m.sel.name, len(args))
	}
	r := &rawSignature{ret: ret, args: args[2:]}
	if !m.raw.CompareAndSwap(nil, r) {
		r = m.raw.Load()
	}
	return r.ret, r.args, nil
}

// DecodeSignature returns the native return and argument types, without the
// implicit receiver and selector arguments.
func (m *Method) DecodeSignature() (*ctype.Type, []*ctype.Type, error) {
	if s := m.sig.Load(); s != nil {
		return s.ret, s.args, nil
	}
	rawRet, rawArgs, err := m.DecodeSignatureRaw()
	if err != nil {
		return nil, nil, err
	}
	ret, err := ConvertType(rawRet)
	if err != nil {
		return nil, nil, fmt.Errorf("method %s return type: %w", m.sel.name, err)
	}
	args := make([]*ctype.Type, len(rawArgs))
	for i, a := range rawArgs {
		if args[i], err = ConvertType(a); err != nil {
			return nil, nil, fmt.Errorf("method %s argument %d: %w", m.sel.name, i, err)
		}
	}
	s := &signature{ret: ret, args: args}
	if !m.sig.CompareAndSwap(nil, s) {
		s = m.sig.Load()
	}
	return s.ret, s.args, nil
}

// Invoke calls the method's implementation directly on receiver, bypassing
// dynamic dispatch. opts may be nil; only its type overrides are used.
func (m *Method) Invoke(receiver *Object, opts *SendOptions, args ...any) (any, error) {
	if err := receiver.live(); err != nil {
		return nil, err
	}
	var ret *ctype.Type
	var argTypes []*ctype.Type
	if opts != nil {
		ret, argTypes = opts.Return, opts.Args
	}
	switch {
	case ret == nil && argTypes == nil:
		var err error
		if ret, argTypes, err = m.DecodeSignature(); err != nil {
			return nil, err
		}
	case ret == nil || argTypes == nil:
		return nil, fmt.Errorf("%w: return and argument types must be given together", ErrSignature)
	}

	b := m.b
	if err := b.checkArgCounts(m.sel, args, argTypes); err != nil {
		return nil, err
	}
	marshaled, temps, err := b.marshalArgs(args, argTypes)
	defer releaseAll(temps)
	if err != nil {
		return nil, err
	}
	lead := []*ctype.Type{ctype.ID, ctype.VoidPtr}
	v, err := b.call(abi.MethodInvoke, ret, lead, []any{receiver.addr, m.addr}, argTypes, marshaled)
	runtime.KeepAlive(receiver)
	if err != nil {
		return nil, err
	}
	return b.Unwrap(v, shouldRetainResult(m.sel.name))
}

// ---------------------------------------------------------------------------
// Bound methods
// ---------------------------------------------------------------------------

// BoundMethod pairs a receiver with a selector. Calling it sends the
// message.
type BoundMethod struct {
	Receiver *Object
	Selector *Selector
}

// Call sends the bound message with args.
func (bm *BoundMethod) Call(args ...any) (any, error) {
	return bm.Receiver.SendSelector(bm.Selector, nil, args...)
}

// CallWith sends the bound message with explicit options.
func (bm *BoundMethod) CallWith(opts SendOptions, args ...any) (any, error) {
	return bm.Receiver.SendSelector(bm.Selector, &opts, args...)
}

// Equal reports whether both bound methods have the same receiver and
// selector.
func (bm *BoundMethod) Equal(other *BoundMethod) bool {
	if bm == nil || other == nil {
		return bm == other
	}
	return bm.Receiver == other.Receiver && bm.Selector == other.Selector
}

func (bm *BoundMethod) String() string {
	return fmt.Sprintf("<BoundMethod %s of %s>", bm.Selector.name, bm.Receiver)
}
