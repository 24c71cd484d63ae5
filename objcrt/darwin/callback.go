//go:build darwin

package darwin

import (
	"fmt"
	"reflect"

	"github.com/ebitengine/purego"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// NewCallback compiles fn into a C function pointer. purego callbacks take
// and return scalars only, and their number is limited per process.
func (r *Runtime) NewCallback(sig *ctype.Func, fn objcrt.CallbackFunc) (addr objcrt.Address, err error) {
	if sig.Variadic {
		return 0, fmt.Errorf("%w: variadic callback %s", ErrUnsupported, sig)
	}
	for _, t := range append([]*ctype.Type{sig.Return}, sig.Params...) {
		switch t.Kind() {
		case ctype.KindStruct, ctype.KindUnion, ctype.KindArray:
			return 0, fmt.Errorf("%w: callback %s passes %s by value", ErrUnsupported, sig, t)
		}
	}
	ft, err := funcType(sig, nil, r.model)
	if err != nil {
		return 0, err
	}

	impl := reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = fromValue(v, sig.Params[i])
		}
		res, err := fn(args)
		if ft.NumOut() == 0 {
			if err != nil {
				log.Errorf("callback %s: %s", sig, err)
			}
			return nil
		}
		out := reflect.Zero(ft.Out(0))
		if err == nil && res != nil {
			out, err = callbackResult(sig.Return, ft.Out(0), res)
		}
		if err != nil {
			log.Errorf("callback %s: %s", sig, err)
			out = reflect.Zero(ft.Out(0))
		}
		return []reflect.Value{out}
	})

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrUnsupported, p)
		}
	}()
	addr = objcrt.Address(purego.NewCallback(impl.Interface()))
	log.Debugf("callback %s at %s", sig, addr)
	return addr, nil
}

// callbackResult converts a callback's result. Values that would point
// into Go memory cannot outlive the callback and are rejected.
func callbackResult(t *ctype.Type, gt reflect.Type, res any) (reflect.Value, error) {
	v, err := objcrt.Canonical(t, res)
	if err != nil {
		return reflect.Value{}, err
	}
	switch v.(type) {
	case string, []byte, []objcrt.Address:
		return reflect.Value{}, fmt.Errorf("%w: callback result %T", ErrUnsupported, res)
	}
	var held pins
	return toValue(v, gt, &held)
}

// Alloc returns zeroed memory from the C heap.
func (r *Runtime) Alloc(n int) (objcrt.Address, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: allocation of %d bytes", objcrt.ErrBadValue, n)
	}
	p := r.calloc(1, uintptr(n))
	if p == 0 {
		return 0, fmt.Errorf("calloc of %d bytes failed", n)
	}
	return objcrt.Address(p), nil
}
