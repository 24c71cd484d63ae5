package bridge

import (
	"errors"
	"testing"

	"github.com/chazu/objcbridge/abi"
	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
	"github.com/chazu/objcbridge/objcrt/objctest"
)

func TestSendUsesMethodSignature(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)

	got, err := o.Send("area")
	if err != nil {
		t.Fatalf("Send(area): %v", err)
	}
	if got != 4.0 {
		t.Errorf("area = %v, want 4", got)
	}

	got, err = o.Send("scaleBy:", 3)
	if err != nil {
		t.Fatalf("Send(scaleBy:): %v", err)
	}
	if got != 6.0 {
		t.Errorf("scaleBy: = %v, want 6", got)
	}
	if f.rt.LastEntryPoint() != abi.MsgSend {
		t.Errorf("entry point = %s, want %s", f.rt.LastEntryPoint(), abi.MsgSend)
	}
}

func TestSendStructReturnSelectsStret(t *testing.T) {
	tests := []struct {
		arch abi.Arch
		want string
	}{
		{abi.ARM32, "objc_msgSend_stret"},
		{abi.ARM64, "objc_msgSend"},
		{abi.AMD64, "objc_msgSend"},
	}
	for _, tt := range tests {
		t.Run(tt.arch.Name, func(t *testing.T) {
			b, f := newTestBridge(t, WithArch(tt.arch))
			o := f.object(t, b, f.square)

			got, err := o.Send("bounds")
			if err != nil {
				t.Fatalf("Send(bounds): %v", err)
			}
			if f.rt.LastEntryPoint() != tt.want {
				t.Errorf("entry point = %s, want %s", f.rt.LastEntryPoint(), tt.want)
			}
			v, ok := got.(objcrt.Value)
			if !ok {
				t.Fatalf("bounds returned %T, want objcrt.Value", got)
			}
			if v.Type.Kind() != ctype.KindStruct || v.Type.Name() != "CGRect" {
				t.Errorf("bounds type = %s", v.Type)
			}
			if data, _ := v.Data.([]byte); len(data) != 32 {
				t.Errorf("bounds data = %v", v.Data)
			}

			// Scalar results never use the stret variant.
			if _, err := o.Send("area"); err != nil {
				t.Fatalf("Send(area): %v", err)
			}
			if f.rt.LastEntryPoint() != "objc_msgSend" {
				t.Errorf("entry point for double = %s", f.rt.LastEntryPoint())
			}
		})
	}
}

func TestArityCheckedBeforeCalling(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)
	skip := SendOptions{SkipRespondsCheck: true}
	calls := f.rt.Calls()

	if _, err := o.SendWith(skip, "scaleBy:"); !errors.Is(err, ErrArity) {
		t.Errorf("too few arguments: error = %v, want ErrArity", err)
	}
	if _, err := o.SendWith(skip, "area", 1); !errors.Is(err, ErrArity) {
		t.Errorf("too many arguments: error = %v, want ErrArity", err)
	}
	// Coercible arguments must not be coerced before the check fails.
	if _, err := o.SendWith(skip, "area", "a string"); !errors.Is(err, ErrArity) {
		t.Errorf("coercible extra argument: error = %v, want ErrArity", err)
	}
	_, err := b.Send(o.Address(), b.Selector("scaleBy:"), []any{1.0, 2.0}, ctype.Double, []*ctype.Type{ctype.Double})
	if !errors.Is(err, ErrArity) {
		t.Errorf("argument types shorter than arguments: error = %v, want ErrArity", err)
	}
	_, err = b.Send(o.Address(), b.Selector("area"), []any{1}, ctype.Double, []*ctype.Type{ctype.Int})
	if !errors.Is(err, ErrArity) {
		t.Errorf("arguments for a unary selector: error = %v, want ErrArity", err)
	}
	_, err = b.Send(o.Address(), b.Selector("scaleBy:"), []any{1.0}, ctype.Double, []*ctype.Type{ctype.Variadic, ctype.Double})
	if !errors.Is(err, ErrArity) {
		t.Errorf("misplaced variadic marker: error = %v, want ErrArity", err)
	}
	bogus := &Selector{b: b, addr: 0xdead0, name: "bogus"}
	if _, err := b.Send(o.Address(), bogus, nil, ctype.Void, noArgs); !errors.Is(err, ErrInvalidSelector) {
		t.Errorf("unmapped selector: error = %v, want ErrInvalidSelector", err)
	}
	if _, err := b.Send(o.Address(), nil, nil, ctype.Void, noArgs); !errors.Is(err, ErrInvalidSelector) {
		t.Errorf("nil selector: error = %v, want ErrInvalidSelector", err)
	}

	if got := f.rt.Calls(); got != calls {
		t.Errorf("%d foreign calls for rejected sends", got-calls)
	}
}

func TestSendExplicitSignature(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)

	got, err := o.SendWith(SendOptions{Return: ctype.Double, Args: []*ctype.Type{ctype.Double}}, "scaleBy:", 1.5)
	if err != nil {
		t.Fatalf("SendWith: %v", err)
	}
	if got != 3.0 {
		t.Errorf("scaleBy: = %v, want 3", got)
	}

	if _, err := o.SendWith(SendOptions{Return: ctype.Double}, "area"); !errors.Is(err, ErrSignature) {
		t.Errorf("return type without argument types: error = %v, want ErrSignature", err)
	}
	if _, err := o.SendWith(SendOptions{Return: ctype.Double, Args: []*ctype.Type{ctype.Int}}, "scaleBy:", "x"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("string for int: error = %v, want ErrTypeMismatch", err)
	}
}

func TestSendNotResponding(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)

	if _, err := o.Send("missing"); !errors.Is(err, ErrNotResponding) {
		t.Errorf("error = %v, want ErrNotResponding", err)
	}
	if n := f.rt.Sends("respondsToSelector:"); n != 1 {
		t.Errorf("respondsToSelector: sent %d times, want 1", n)
	}

	ok, err := o.RespondsTo(b.Selector("scaleBy:"))
	if err != nil || !ok {
		t.Errorf("RespondsTo(scaleBy:) = %v, %v", ok, err)
	}
}

func TestRespondsToWithoutNSObject(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.leaf)
	calls := f.rt.Calls()

	ok, err := o.RespondsTo(b.Selector("ping"))
	if err != nil || !ok {
		t.Errorf("RespondsTo(ping) = %v, %v", ok, err)
	}
	ok, err = o.RespondsTo(b.Selector("pong"))
	if err != nil || ok {
		t.Errorf("RespondsTo(pong) = %v, %v", ok, err)
	}
	if got := f.rt.Calls(); got != calls {
		t.Errorf("%d foreign calls, want the runtime API only", got-calls)
	}
}

func TestSendVariadic(t *testing.T) {
	b, f := newTestBridge(t)
	var args []any
	f.rt.AddMethod(f.shape, "logFormat:", "v24@0:8r*16", func(c *objctest.Call) (any, error) {
		args = c.Args
		return nil, nil
	})
	o := f.object(t, b, f.shape)

	_, err := b.Send(o.Address(), b.Selector("logFormat:"), []any{"%d %f", 7, float32(0.5)},
		ctype.Void, []*ctype.Type{ctype.CString, ctype.Variadic})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(args) != 3 {
		t.Fatalf("implementation got %d arguments, want 3", len(args))
	}
	if args[0] != "%d %f" || args[1] != int64(7) || args[2] != 0.5 {
		t.Errorf("arguments = %#v", args)
	}

	_, err = b.Send(o.Address(), b.Selector("logFormat:"), nil, ctype.Void, []*ctype.Type{ctype.CString, ctype.Variadic})
	if !errors.Is(err, ErrArity) {
		t.Errorf("missing fixed argument: error = %v, want ErrArity", err)
	}
}

func TestSendSuper(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)
	shape := mustClass(t, b, "Shape")

	v, err := b.SendSuper(o, shape, b.Selector("area"), nil, ctype.Double, noArgs)
	if err != nil {
		t.Fatalf("SendSuper: %v", err)
	}
	if v.Data != 12.5 {
		t.Errorf("super area = %v, want 12.5", v.Data)
	}
	if f.rt.LastEntryPoint() != abi.MsgSendSuper {
		t.Errorf("entry point = %s", f.rt.LastEntryPoint())
	}

	if _, err := b.SendSuper(o, o, b.Selector("area"), nil, ctype.Double, noArgs); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("super send through an instance: error = %v, want ErrTypeMismatch", err)
	}
}

func TestSendToNilReturnsZero(t *testing.T) {
	b, _ := newTestBridge(t)
	v, err := b.Send(0, b.Selector("area"), nil, ctype.Double, noArgs)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if v.Data != float64(0) {
		t.Errorf("result = %v, want 0", v.Data)
	}
}

func TestMethodInvoke(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)
	shape := mustClass(t, b, "Shape")

	m, ok := shape.InstanceMethodsDeclared().Get(b.Selector("area"))
	if !ok {
		t.Fatalf("Shape declares no area method")
	}
	got, err := m.Invoke(o, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != 12.5 {
		t.Errorf("Invoke = %v, want 12.5", got)
	}
	if f.rt.LastEntryPoint() != abi.MethodInvoke {
		t.Errorf("entry point = %s", f.rt.LastEntryPoint())
	}

	scale, _ := shape.InstanceMethods().Get(b.Selector("scaleBy:"))
	if _, err := scale.Invoke(o, nil); !errors.Is(err, ErrArity) {
		t.Errorf("Invoke without arguments: error = %v, want ErrArity", err)
	}
}

func TestMethodMetadata(t *testing.T) {
	b, _ := newTestBridge(t)
	shape := mustClass(t, b, "Shape")

	m, ok := shape.InstanceMethods().Get(b.Selector("scaleBy:"))
	if !ok {
		t.Fatalf("no scaleBy:")
	}
	if m.TypeEncoding() != "d24@0:8d16" {
		t.Errorf("TypeEncoding = %q", m.TypeEncoding())
	}
	if m.ArgumentCount() != 3 {
		t.Errorf("ArgumentCount = %d, want 3", m.ArgumentCount())
	}
	ret, args, err := m.DecodeSignature()
	if err != nil {
		t.Fatalf("DecodeSignature: %v", err)
	}
	if ret != ctype.Double || len(args) != 1 || args[0] != ctype.Double {
		t.Errorf("DecodeSignature = %s, %v", ret, args)
	}
	if m.Selector().Name() != "scaleBy:" {
		t.Errorf("Selector = %s", m.Selector())
	}
}

func TestExchangeImplementations(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)
	square := mustClass(t, b, "Square")

	area, _ := square.InstanceMethodsDeclared().Get(b.Selector("area"))
	side, _ := square.InstanceMethodsDeclared().Get(b.Selector("side"))
	area.ExchangeImplementations(side)

	got, err := o.Send("area")
	if err != nil {
		t.Fatalf("Send(area): %v", err)
	}
	if got != 2.0 {
		t.Errorf("area after exchange = %v, want 2", got)
	}

	old := area.SetImplementation(side.Implementation())
	if old == side.Implementation() {
		t.Errorf("SetImplementation returned the new implementation")
	}
}
