package bridge

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
	"github.com/chazu/objcbridge/objcrt/objctest"
)

func TestBlockCall(t *testing.T) {
	b, _ := newTestBridge(t)
	sum, err := b.NewBlock(ctype.Int, []*ctype.Type{ctype.Int, ctype.Int}, func(args ...any) (any, error) {
		return args[0].(int64) + args[1].(int64), nil
	})
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if got := sum.Object().ClassName(); got != "__NSGlobalBlock__" {
		t.Errorf("block class = %q, want __NSGlobalBlock__", got)
	}
	got, err := sum.Call(2, 3)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != int64(5) {
		t.Errorf("Call(2, 3) = %v, want 5", got)
	}
	if _, err := sum.Call(1); !errors.Is(err, ErrArity) {
		t.Errorf("Call(1) error = %v, want ErrArity", err)
	}
}

func TestBlockLiteralLayout(t *testing.T) {
	b, f := newTestBridge(t)
	blk, err := b.NewBlockEncoded("i@?ii", func(args ...any) (any, error) { return 0, nil })
	if err != nil {
		t.Fatalf("NewBlockEncoded: %v", err)
	}
	lit := blk.Address()
	load := func(addr objcrt.Address, typ *ctype.Type) any {
		t.Helper()
		v, err := f.rt.Load(addr, typ)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return v
	}

	if isa := load(lit, ctype.ClassPtr); isa != f.rt.LookUpClass("__NSGlobalBlock__") {
		t.Errorf("isa = %v", isa)
	}
	if flags := load(lit+8, ctype.Int); flags != int64(1<<28|1<<30) {
		t.Errorf("flags = %#x, want global with signature", flags)
	}
	desc := load(lit+24, ctype.VoidPtr).(objcrt.Address)
	if size := load(desc+8, ctype.ULong); size != uint64(32) {
		t.Errorf("descriptor size = %v, want 32", size)
	}
	sig := load(desc+16, ctype.CString).(objcrt.Address)
	if got := f.rt.CString(sig); got != "i@?ii" {
		t.Errorf("descriptor signature = %q", got)
	}
	if blk.TypeEncoding() != "i@?ii" {
		t.Errorf("TypeEncoding = %q", blk.TypeEncoding())
	}

	plain, err := b.NewBlock(ctype.Void, nil, func(args ...any) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if flags := load(plain.Address()+8, ctype.Int); flags != int64(1<<28) {
		t.Errorf("flags without signature = %#x", flags)
	}
}

func TestBlockInvokedByRuntime(t *testing.T) {
	b, f := newTestBridge(t)
	each, err := ctype.NewFunc(ctype.Void, []*ctype.Type{ctype.VoidPtr, ctype.ID})
	if err != nil {
		t.Fatalf("NewFunc: %v", err)
	}
	list := f.rt.DefineClass("List", "NSObject")
	f.rt.AddMethod(list, "each:", "v24@0:8@?16", func(c *objctest.Call) (any, error) {
		blk := c.Args[0].(objcrt.Address)
		invoke, err := c.RT.Load(blk+16, ctype.VoidPtr)
		if err != nil {
			return nil, err
		}
		for _, e := range c.RT.Payload(c.Self).([]objcrt.Address) {
			if _, err := c.RT.Call(invoke.(objcrt.Address), each, []any{blk, e}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	items := []objcrt.Address{
		f.rt.NewInstance("NSString", "a"),
		f.rt.NewInstance("NSString", "b"),
	}
	o, err := b.ObjectAt(f.rt.NewObject(list, items), false)
	if err != nil {
		t.Fatalf("ObjectAt: %v", err)
	}

	var seen []any
	blk, err := b.NewBlockEncoded("v@?@", func(args ...any) (any, error) {
		item := args[0].(*Object)
		defer item.Release()
		s, err := b.ToNative(item)
		seen = append(seen, s)
		return nil, err
	})
	if err != nil {
		t.Fatalf("NewBlockEncoded: %v", err)
	}
	if _, err := o.Send("each:", blk); err != nil {
		t.Fatalf("Send(each:): %v", err)
	}
	if diff := cmp.Diff([]any{"a", "b"}, seen); diff != "" {
		t.Errorf("block arguments (-want +got):\n%s", diff)
	}
	for _, a := range items {
		if r, rel := f.rt.Retains(a), f.rt.Releases(a); r != rel {
			t.Errorf("%s retains, releases = %d, %d", a, r, rel)
		}
	}
}

func TestBlockResults(t *testing.T) {
	b, f := newTestBridge(t)
	shape := f.object(t, b, f.shape)
	ident, err := b.NewBlock(ctype.ID, []*ctype.Type{ctype.ID}, func(args ...any) (any, error) {
		return args[0], nil
	})
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	got, err := ident.Call(shape)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != shape {
		t.Errorf("Call returned %v, want the same proxy", got)
	}

	bad, err := b.NewBlock(ctype.ID, nil, func(args ...any) (any, error) { return 3, nil })
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if _, err := bad.Call(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("non-object result error = %v, want ErrTypeMismatch", err)
	}

	boom := errors.New("boom")
	failing, err := b.NewBlock(ctype.Void, nil, func(args ...any) (any, error) { return nil, boom })
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if _, err := failing.Call(); !errors.Is(err, boom) {
		t.Errorf("Call error = %v, want %v", err, boom)
	}
}

func TestCoerceBlock(t *testing.T) {
	b, _ := newTestBridge(t)
	blk, err := b.NewBlock(ctype.Void, nil, func(args ...any) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	o, err := b.Coerce(blk, nil)
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if o != blk.Object() {
		t.Errorf("Coerce(block) = %v, want the literal's proxy", o)
	}
	if _, err := b.Coerce(blk, mustClass(t, b, "NSBlock")); err != nil {
		t.Errorf("Coerce(block, NSBlock): %v", err)
	}
	if _, err := b.Coerce(blk, mustClass(t, b, "NSString")); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Coerce(block, NSString) error = %v, want ErrTypeMismatch", err)
	}
}

func TestNewBlockEncodedRejects(t *testing.T) {
	b, _ := newTestBridge(t)
	noop := func(args ...any) (any, error) { return nil, nil }
	for _, enc := range []string{"v", "v@", "v:"} {
		if _, err := b.NewBlockEncoded(enc, noop); !errors.Is(err, ErrSignature) {
			t.Errorf("NewBlockEncoded(%q) error = %v, want ErrSignature", enc, err)
		}
	}
	if _, err := b.NewBlockEncoded("v@?[", noop); err == nil {
		t.Errorf("NewBlockEncoded accepted a malformed encoding")
	}
}

type noCallbacks struct{ objcrt.FFI }

func TestNewBlockNeedsCallbacks(t *testing.T) {
	rt := objctest.New()
	b, err := New(rt, noCallbacks{rt})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = b.NewBlock(ctype.Void, nil, func(args ...any) (any, error) { return nil, nil })
	if !errors.Is(err, ErrNoCallbacks) {
		t.Errorf("NewBlock error = %v, want ErrNoCallbacks", err)
	}
}
