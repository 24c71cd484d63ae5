package objctest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// ErrUnrecognizedSelector is returned by Call when the receiver has no
// method for the selector.
var ErrUnrecognizedSelector = errors.New("unrecognized selector")

// Symbol resolves the message dispatch entry points.
func (rt *Runtime) Symbol(name string) (Address, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if a, ok := rt.symbols[name]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("objctest: symbol %s not found", name)
}

// Call dispatches a message through one of the entry points. retain and
// release are handled for every receiver; other selectors run the Impl of
// the method found in the receiver's class hierarchy. Messages to nil
// return the zero value of the return type.
func (rt *Runtime) Call(fn Address, sig *ctype.Func, args []any) (objcrt.Value, error) {
	rt.mu.Lock()
	rt.calls++
	if cb, ok := rt.callbacks[fn]; ok {
		rt.lastEntry = "callback"
		rt.mu.Unlock()
		return cb.call(sig, args)
	}
	name := rt.symbolNames[fn]
	rt.lastEntry = name
	if name == "" {
		rt.mu.Unlock()
		return objcrt.Value{}, fmt.Errorf("objctest: call to unknown function %s", fn)
	}
	if len(args) != len(sig.Params) || len(args) < 2 {
		rt.mu.Unlock()
		return objcrt.Value{}, fmt.Errorf("objctest: %d arguments for %s", len(args), sig)
	}

	var (
		self Address
		m    *method
	)
	switch strings.TrimSuffix(name, "_stret") {
	case "objc_msgSend":
		self, _ = args[0].(Address)
		sel, _ := args[1].(Address)
		selName := rt.selNames[sel]
		rt.sends[selName]++
		if self == 0 {
			rt.mu.Unlock()
			return zeroValue(sig.Return), nil
		}
		switch selName {
		case "retain":
			rt.retains[self]++
			if o := rt.objects[self]; o != nil {
				o.rc++
			}
			rt.mu.Unlock()
			return objcrt.Value{Type: sig.Return, Data: self}, nil
		case "release":
			rt.releases[self]++
			if o := rt.objects[self]; o != nil {
				o.rc--
			}
			rt.mu.Unlock()
			return objcrt.Value{Type: ctype.Void}, nil
		}
		m = rt.findMethodLocked(rt.isaLocked(self), sel)
	case "objc_msgSendSuper":
		buf, _ := args[0].([]byte)
		if len(buf) != 8 && len(buf) != 16 {
			rt.mu.Unlock()
			return objcrt.Value{}, fmt.Errorf("objctest: bad objc_super of %d bytes", len(buf))
		}
		half := len(buf) / 2
		self = readAddress(buf[:half])
		cls := readAddress(buf[half:])
		sel, _ := args[1].(Address)
		rt.sends[rt.selNames[sel]]++
		m = rt.findMethodLocked(rt.classAddrs[cls], sel)
	case "method_invoke":
		self, _ = args[0].(Address)
		ma, _ := args[1].(Address)
		m = rt.methods[ma]
		if m != nil {
			rt.sends[rt.selNames[m.sel]]++
		}
	}
	if m == nil {
		rt.mu.Unlock()
		return objcrt.Value{}, fmt.Errorf("objctest: %s sent to %s: %w", rt.selectorOf(args[1]), self, ErrUnrecognizedSelector)
	}
	impl := rt.impls[m.imp]
	selName := rt.selNames[m.sel]
	rt.mu.Unlock()

	if impl == nil {
		return objcrt.Value{}, fmt.Errorf("objctest: %s has no implementation", selName)
	}
	result, err := impl(&Call{RT: rt, Self: self, Sel: selName, Args: args[2:]})
	if err != nil {
		return objcrt.Value{}, err
	}
	if sig.Return.Kind() == ctype.KindVoid {
		return objcrt.Value{Type: ctype.Void}, nil
	}
	if result == nil {
		return zeroValue(sig.Return), nil
	}
	v, err := objcrt.Canonical(sig.Return, result)
	if err != nil {
		return objcrt.Value{}, fmt.Errorf("objctest: %s result: %w", selName, err)
	}
	return objcrt.Value{Type: sig.Return, Data: v}, nil
}

func (rt *Runtime) selectorOf(arg any) string {
	if a, ok := arg.(Address); ok {
		if name, ok := rt.selNames[a]; ok {
			return name
		}
		return a.String()
	}
	return fmt.Sprint(arg)
}

func readAddress(buf []byte) Address {
	if len(buf) == 4 {
		return Address(binary.LittleEndian.Uint32(buf))
	}
	return Address(binary.LittleEndian.Uint64(buf))
}

func zeroValue(t *ctype.Type) objcrt.Value {
	var v any
	switch t.Kind() {
	case ctype.KindVoid:
		return objcrt.Value{Type: ctype.Void}
	case ctype.KindStruct, ctype.KindUnion, ctype.KindArray:
		v = []byte(nil)
	}
	switch t.Class() {
	case ctype.ClassSigned:
		v = int64(0)
	case ctype.ClassUnsigned:
		v = uint64(0)
	case ctype.ClassChar:
		v = byte(0)
	case ctype.ClassFloat:
		v = float64(0)
	case ctype.ClassBool:
		v = false
	case ctype.ClassPointer:
		v = Address(0)
	}
	return objcrt.Value{Type: t, Data: v}
}

// Load reads a value stored with Store. Unwritten memory reads as zero.
func (rt *Runtime) Load(addr Address, t *ctype.Type) (any, error) {
	if addr == 0 {
		return nil, fmt.Errorf("objctest: load from nil")
	}
	rt.mu.Lock()
	v, ok := rt.memory[addr]
	rt.mu.Unlock()
	if !ok {
		return zeroValue(t).Data, nil
	}
	return objcrt.Canonical(t, v)
}

// Store writes v at addr.
func (rt *Runtime) Store(addr Address, t *ctype.Type, v any) error {
	if addr == 0 {
		return fmt.Errorf("objctest: store to nil")
	}
	cv, err := objcrt.Canonical(t, v)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.memory[addr] = cv
	rt.mu.Unlock()
	return nil
}

// CString returns a string created with NewCString, or the bytes up to the
// first NUL of a byte array written with Store.
func (rt *Runtime) CString(addr Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if s, ok := rt.cstrings[addr]; ok {
		return s
	}
	if buf, ok := rt.memory[addr].([]byte); ok {
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			buf = buf[:i]
		}
		return string(buf)
	}
	return ""
}

// Bytes returns up to n bytes of a buffer created with NewBuffer.
func (rt *Runtime) Bytes(addr Address, n int) []byte {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	buf := rt.buffers[addr]
	if n > len(buf) {
		n = len(buf)
	}
	return append([]byte(nil), buf[:n]...)
}

var (
	_ objcrt.Runtime   = (*Runtime)(nil)
	_ objcrt.FFI       = (*Runtime)(nil)
	_ objcrt.Callbacks = (*Runtime)(nil)
)
