package bridge

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/chazu/objcbridge/abi"
	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// Send sends sel to target with explicitly typed arguments. argTypes lists
// the types of the message arguments, excluding the receiver and selector;
// it may end with ctype.Variadic, in which case any extra arguments are
// typed from their Go values.
//
// Send validates the selector and the argument count before any foreign
// call is made.
func (b *Bridge) Send(target objcrt.Address, sel *Selector, args []any, ret *ctype.Type, argTypes []*ctype.Type) (objcrt.Value, error) {
	if err := b.checkArgCounts(sel, args, argTypes); err != nil {
		return objcrt.Value{}, err
	}
	lead := []*ctype.Type{ctype.ID, ctype.SEL}
	return b.call(abi.MsgSend, ret, lead, []any{target, sel.addr}, argTypes, args)
}

var objcSuper = ctype.StructOf("objc_super", []ctype.Field{
	{Name: "receiver", Type: ctype.ID},
	{Name: "super_class", Type: ctype.ClassPtr},
})

// SendSuper sends sel to receiver, starting method lookup at cls instead of
// the receiver's class.
func (b *Bridge) SendSuper(receiver *Object, cls *Object, sel *Selector, args []any, ret *ctype.Type, argTypes []*ctype.Type) (objcrt.Value, error) {
	if err := receiver.live(); err != nil {
		return objcrt.Value{}, err
	}
	if err := cls.live(); err != nil {
		return objcrt.Value{}, err
	}
	if !cls.kind.IsClass() {
		return objcrt.Value{}, fmt.Errorf("super send through %s: %w", cls, ErrTypeMismatch)
	}
	if err := b.checkArgCounts(sel, args, argTypes); err != nil {
		return objcrt.Value{}, err
	}
	super := make([]byte, 2*b.arch.PointerSize)
	putAddress(super, b.arch.PointerSize, receiver.addr)
	putAddress(super[b.arch.PointerSize:], b.arch.PointerSize, cls.addr)
	lead := []*ctype.Type{ctype.PointerTo(objcSuper), ctype.SEL}
	return b.call(abi.MsgSendSuper, ret, lead, []any{super, sel.addr}, argTypes, args)
}

func putAddress(buf []byte, size int, addr objcrt.Address) {
	if size == 4 {
		binary.LittleEndian.PutUint32(buf, uint32(addr))
		return
	}
	binary.LittleEndian.PutUint64(buf, uint64(addr))
}

// checkArgCounts rejects unknown selectors, misplaced variadic markers and
// argument lists that do not match the declared types or the selector.
func (b *Bridge) checkArgCounts(sel *Selector, args []any, argTypes []*ctype.Type) error {
	if sel == nil || !b.rt.SelectorIsMapped(sel.addr) {
		return ErrInvalidSelector
	}
	variadic := false
	for i, t := range argTypes {
		if t != ctype.Variadic {
			continue
		}
		if i != len(argTypes)-1 {
			return fmt.Errorf("%w: '...' may only be the last argument type", ErrArity)
		}
		variadic = true
	}
	if variadic {
		if fixed := len(argTypes) - 1; len(args) < fixed {
			return fmt.Errorf("%w: %d arguments for %d fixed argument types", ErrArity, len(args), fixed)
		}
		return nil
	}
	if len(args) != len(argTypes) {
		return fmt.Errorf("%w: %d arguments for %d argument types", ErrArity, len(args), len(argTypes))
	}
	if n := strings.Count(sel.name, ":"); n != len(args) {
		return fmt.Errorf("%w: %d arguments for selector %q which takes %d", ErrArity, len(args), sel.name, n)
	}
	return nil
}

// call builds the signature lead+argTypes, converts args to canonical form
// and calls the polymorphic entry point name.
func (b *Bridge) call(name string, ret *ctype.Type, lead []*ctype.Type, leadArgs []any, argTypes []*ctype.Type, args []any) (objcrt.Value, error) {
	params := make([]*ctype.Type, 0, len(lead)+len(argTypes))
	params = append(params, lead...)
	params = append(params, argTypes...)
	fn, err := ctype.NewFunc(ret, params)
	if err != nil {
		return objcrt.Value{}, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}

	callArgs := make([]any, 0, len(leadArgs)+len(args))
	callArgs = append(callArgs, leadArgs...)
	for i, arg := range args {
		var (
			t *ctype.Type
			v any
		)
		if n := len(lead) + i; n < len(fn.Params) {
			t = fn.Params[n]
			v, err = objcrt.Canonical(t, arg)
		} else {
			t, v, err = promoteVariadic(arg)
			fn.Params = append(fn.Params, t)
		}
		if err != nil {
			return objcrt.Value{}, fmt.Errorf("argument %d: %w: %w", i, ErrTypeMismatch, err)
		}
		callArgs = append(callArgs, v)
	}

	sym := b.arch.EntryPoint(name, ret)
	addr, ok := b.entry[sym]
	if !ok {
		return objcrt.Value{}, fmt.Errorf("entry point %s: %w", sym, ErrNotFound)
	}
	return b.ffi.Call(addr, fn, callArgs)
}

// promoteVariadic types an extra variadic argument following the C default
// argument promotions.
func promoteVariadic(arg any) (*ctype.Type, any, error) {
	var t *ctype.Type
	switch arg.(type) {
	case nil, objcrt.Address:
		t = ctype.ID
	case string:
		t = ctype.CString
	case float32, float64:
		t = ctype.Double
	case uint, uint32, uint64, uintptr:
		t = ctype.ULong
	case bool, int, int8, int16, int32, int64, uint8, uint16:
		t = ctype.Long
	default:
		return nil, nil, fmt.Errorf("%w: cannot pass %T as a variadic argument", objcrt.ErrBadValue, arg)
	}
	v, err := objcrt.Canonical(t, arg)
	return t, v, err
}

// shouldRetainResult reports whether a returned object must be retained by
// its proxy. Methods in the copy, init, mutableCopy and new families return
// an owned reference already.
func shouldRetainResult(sel string) bool {
	for _, prefix := range []string{"copy", "init", "mutableCopy", "new"} {
		if strings.HasPrefix(sel, prefix) {
			return false
		}
	}
	return true
}
