package objctest

import (
	"fmt"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

type callback struct {
	sig *ctype.Func
	fn  objcrt.CallbackFunc
}

// NewCallback registers fn under a fresh address. Calling the address
// through Call runs fn.
func (rt *Runtime) NewCallback(sig *ctype.Func, fn objcrt.CallbackFunc) (Address, error) {
	if sig.Variadic {
		return 0, fmt.Errorf("objctest: variadic callback %s", sig)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	addr := rt.allocLocked()
	rt.callbacks[addr] = callback{sig: sig, fn: fn}
	return addr, nil
}

// Alloc reserves n bytes of memory. Like all stub memory it holds values
// written with Store rather than raw bytes.
func (rt *Runtime) Alloc(n int) (Address, error) {
	if n <= 0 {
		return 0, fmt.Errorf("objctest: allocation of %d bytes: %w", n, objcrt.ErrBadValue)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	addr := rt.next
	rt.next += Address((n + 0xff) &^ 0xff)
	rt.allocs[addr] = n
	return addr, nil
}

// call runs the callback with the caller's view of the signature, which
// must match the one it was created with.
func (cb callback) call(sig *ctype.Func, args []any) (objcrt.Value, error) {
	if len(args) != len(cb.sig.Params) || len(sig.Params) != len(cb.sig.Params) {
		return objcrt.Value{}, fmt.Errorf("objctest: %d arguments for callback %s", len(args), cb.sig)
	}
	in := make([]any, len(args))
	for i, a := range args {
		if !ctype.Equal(sig.Params[i], cb.sig.Params[i]) {
			return objcrt.Value{}, fmt.Errorf("objctest: callback %s called as %s", cb.sig, sig)
		}
		v, err := objcrt.Canonical(cb.sig.Params[i], a)
		if err != nil {
			return objcrt.Value{}, fmt.Errorf("objctest: callback argument %d: %w", i, err)
		}
		in[i] = v
	}
	res, err := cb.fn(in)
	if err != nil {
		return objcrt.Value{}, err
	}
	if cb.sig.Return.Kind() == ctype.KindVoid {
		return objcrt.Value{Type: ctype.Void}, nil
	}
	if res == nil {
		return zeroValue(cb.sig.Return), nil
	}
	v, err := objcrt.Canonical(cb.sig.Return, res)
	if err != nil {
		return objcrt.Value{}, fmt.Errorf("objctest: callback result: %w", err)
	}
	return objcrt.Value{Type: cb.sig.Return, Data: v}, nil
}
