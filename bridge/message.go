package bridge

import (
	"fmt"
	"runtime"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// SendOptions overrides the defaults of a message send.
type SendOptions struct {
	// Return and Args set the signature explicitly. They must be given
	// together; use an empty, non-nil Args for messages without arguments.
	// When both are nil the signature is taken from the receiver's class.
	Return *ctype.Type
	Args   []*ctype.Type

	// SkipRespondsCheck sends without first asking whether the receiver
	// responds to the selector.
	SkipRespondsCheck bool
}

// Send sends the message named sel with args and returns the unwrapped
// result (see Unwrap). The signature is looked up in the receiver's class.
func (o *Object) Send(sel string, args ...any) (any, error) {
	return o.SendSelector(o.b.Selector(sel), nil, args...)
}

// SendWith is Send with explicit options.
func (o *Object) SendWith(opts SendOptions, sel string, args ...any) (any, error) {
	return o.SendSelector(o.b.Selector(sel), &opts, args...)
}

// SendSelector sends sel to o. opts may be nil.
func (o *Object) SendSelector(sel *Selector, opts *SendOptions, args ...any) (any, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	var so SendOptions
	if opts != nil {
		so = *opts
	}

	if !so.SkipRespondsCheck {
		ok, err := o.RespondsTo(sel)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s does not respond to %q: %w", o, sel.name, ErrNotResponding)
		}
	}

	ret, argTypes, err := o.signatureFor(sel, so.Return, so.Args)
	if err != nil {
		return nil, err
	}
	v, err := o.b.sendMarshaled(o.addr, sel, args, ret, argTypes)
	runtime.KeepAlive(o)
	if err != nil {
		return nil, err
	}
	return o.b.Unwrap(v, shouldRetainResult(sel.name))
}

func (o *Object) signatureFor(sel *Selector, ret *ctype.Type, argTypes []*ctype.Type) (*ctype.Type, []*ctype.Type, error) {
	switch {
	case ret == nil && argTypes == nil:
	case ret == nil || argTypes == nil:
		return nil, nil, fmt.Errorf("%w: return and argument types must be given together", ErrSignature)
	default:
		return ret, argTypes, nil
	}

	cls := o.b.rt.ObjectClass(o.addr)
	m := o.b.rt.ClassInstanceMethod(cls, sel.addr)
	if m == 0 {
		return nil, nil, fmt.Errorf("%w: no method %q in %s", ErrSignature, sel.name, o.b.rt.ClassName(cls))
	}
	return o.b.methodAt(m).DecodeSignature()
}

// sendMarshaled marshals args against argTypes and sends. Objects created
// while coercing arguments are released after the call.
func (b *Bridge) sendMarshaled(target objcrt.Address, sel *Selector, args []any, ret *ctype.Type, argTypes []*ctype.Type) (objcrt.Value, error) {
	// Reject arity errors before coercion makes any foreign calls.
	if err := b.checkArgCounts(sel, args, argTypes); err != nil {
		return objcrt.Value{}, err
	}
	marshaled, temps, err := b.marshalArgs(args, argTypes)
	defer releaseAll(temps)
	if err != nil {
		return objcrt.Value{}, err
	}
	v, err := b.Send(target, sel, marshaled, ret, argTypes)
	runtime.KeepAlive(args)
	return v, err
}

// marshalArgs converts proxies to addresses and coerces native values passed
// in object slots. temps holds the proxies created for coerced values.
func (b *Bridge) marshalArgs(args []any, argTypes []*ctype.Type) (out []any, temps []*Object, err error) {
	out = make([]any, len(args))
	for i, arg := range args {
		var t *ctype.Type
		if i < len(argTypes) && argTypes[i] != ctype.Variadic {
			t = argTypes[i]
		}
		switch a := arg.(type) {
		case *Object:
			if err := a.live(); err != nil {
				return nil, temps, fmt.Errorf("argument %d: %w", i, err)
			}
			out[i] = a.addr
			continue
		case *Selector:
			out[i] = a.addr
			continue
		case *Block:
			out[i] = a.obj.addr
			continue
		}
		if t == nil || !t.IsObject() || arg == nil {
			out[i] = arg
			continue
		}
		if _, ok := arg.(objcrt.Address); ok {
			out[i] = arg
			continue
		}
		obj, owned, err := b.coerce(arg, nil)
		if err != nil {
			return nil, temps, fmt.Errorf("argument %d: %w", i, err)
		}
		if owned {
			temps = append(temps, obj)
		}
		out[i] = obj.addr
	}
	return out, temps, nil
}

func releaseAll(objs []*Object) {
	for _, o := range objs {
		if err := o.Release(); err != nil {
			log.Errorf("releasing temporary: %s", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Responding to selectors
// ---------------------------------------------------------------------------

// RespondsTo reports whether o responds to sel. Objects whose class
// implements respondsToSelector: are asked directly; otherwise the runtime
// API is consulted.
func (o *Object) RespondsTo(sel *Selector) (bool, error) {
	if err := o.live(); err != nil {
		return false, err
	}
	respondsSel := o.b.Selector("respondsToSelector:")
	cls := o.b.rt.ObjectClass(o.addr)
	if o.b.rt.ClassRespondsToSelector(cls, respondsSel.addr) {
		return o.b.sendBool(o.addr, respondsSel, ctype.SEL, sel.addr)
	}
	return o.b.rt.ClassRespondsToSelector(cls, sel.addr), nil
}

// sendBool sends a one-argument predicate message with a fixed signature.
func (b *Bridge) sendBool(target objcrt.Address, sel *Selector, argType *ctype.Type, arg objcrt.Address) (bool, error) {
	v, err := b.Send(target, sel, []any{arg}, b.arch.BOOL(), []*ctype.Type{argType})
	if err != nil {
		return false, err
	}
	return truthy(v.Data)
}

func truthy(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case uint64:
		return x != 0, nil
	case byte:
		return x != 0, nil
	}
	return false, fmt.Errorf("%w: %T is not a boolean result", ErrTypeMismatch, v)
}
