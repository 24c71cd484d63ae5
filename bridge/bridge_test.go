package bridge

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/objcbridge/abi"
	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
	"github.com/chazu/objcbridge/objcrt/objctest"
)

// fixture holds the classes defined by newFixture:
//
//	Shape : NSObject   ivars _sides (int), _name (id)
//	                   properties name (NSString, strong), sides (int, readonly)
//	                   methods name, setName:, sides, area, scaleBy:, _private
//	Square : Shape     ivar _side (double), property side (double, readonly)
//	                   methods area, side, bounds (CGRect)
//	Root               root class without NSObject behavior
//	Leaf : Root        method ping
//
// Root adopts P1, which incorporates P2, which incorporates P3.
type fixture struct {
	rt     *objctest.Runtime
	shape  objcrt.Address
	square objcrt.Address
	root   objcrt.Address
	leaf   objcrt.Address
	p1     objcrt.Address
	p2     objcrt.Address
	p3     objcrt.Address
}

func newFixture(rt *objctest.Runtime) *fixture {
	f := &fixture{rt: rt}

	f.shape = rt.DefineClass("Shape", "NSObject")
	sides := rt.IvarOffset(rt.AddIvar(f.shape, "_sides", "i"))
	name := rt.IvarOffset(rt.AddIvar(f.shape, "_name", "@\"NSString\""))
	rt.AddProperty(f.shape, "name", "T@\"NSString\",&,N,V_name")
	rt.AddProperty(f.shape, "sides", "Ti,R,N,V_sides")
	rt.AddMethod(f.shape, "name", "@16@0:8", func(c *objctest.Call) (any, error) {
		return c.RT.Load(c.Self+objcrt.Address(name), ctype.ID)
	})
	rt.AddMethod(f.shape, "setName:", "v24@0:8@16", func(c *objctest.Call) (any, error) {
		return nil, c.RT.Store(c.Self+objcrt.Address(name), ctype.ID, c.Args[0])
	})
	rt.AddMethod(f.shape, "sides", "i16@0:8", func(c *objctest.Call) (any, error) {
		return c.RT.Load(c.Self+objcrt.Address(sides), ctype.Int)
	})
	rt.AddMethod(f.shape, "area", "d16@0:8", func(c *objctest.Call) (any, error) {
		return 12.5, nil
	})
	rt.AddMethod(f.shape, "scaleBy:", "d24@0:8d16", func(c *objctest.Call) (any, error) {
		return c.Args[0].(float64) * 2, nil
	})
	rt.AddMethod(f.shape, "_private", "v16@0:8", func(c *objctest.Call) (any, error) {
		return nil, nil
	})

	f.square = rt.DefineClass("Square", "Shape")
	rt.AddIvar(f.square, "_side", "d")
	rt.AddProperty(f.square, "side", "Td,R,N,V_side")
	rt.AddMethod(f.square, "area", "d16@0:8", func(c *objctest.Call) (any, error) {
		return 4.0, nil
	})
	rt.AddMethod(f.square, "side", "d16@0:8", func(c *objctest.Call) (any, error) {
		return 2.0, nil
	})
	rt.AddMethod(f.square, "bounds", "{CGRect={CGPoint=dd}{CGSize=dd}}16@0:8", func(c *objctest.Call) (any, error) {
		return make([]byte, 32), nil
	})

	f.p3 = rt.DefineProtocol("P3")
	f.p2 = rt.DefineProtocol("P2", "P3")
	f.p1 = rt.DefineProtocol("P1", "P2")
	f.root = rt.DefineClass("Root", "")
	rt.AdoptProtocol(f.root, f.p1)
	f.leaf = rt.DefineClass("Leaf", "Root")
	rt.AddMethod(f.leaf, "ping", "i16@0:8", func(c *objctest.Call) (any, error) {
		return int64(1), nil
	})
	return f
}

func newTestBridge(t *testing.T, opts ...Option) (*Bridge, *fixture) {
	t.Helper()
	rt := objctest.New()
	f := newFixture(rt)
	b, err := New(rt, rt, append([]Option{WithArch(abi.AMD64)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, f
}

// object returns a proxy for a new instance of cls.
func (f *fixture) object(t *testing.T, b *Bridge, cls objcrt.Address) *Object {
	t.Helper()
	o, err := b.ObjectAt(f.rt.NewObject(cls, nil), false)
	if err != nil {
		t.Fatalf("ObjectAt: %v", err)
	}
	return o
}

func mustClass(t *testing.T, b *Bridge, name string) *Object {
	t.Helper()
	c, err := b.Class(name)
	if err != nil {
		t.Fatalf("Class(%q): %v", name, err)
	}
	return c
}

func mustProtocol(t *testing.T, b *Bridge, name string) *Object {
	t.Helper()
	p, err := b.Protocol(name)
	if err != nil {
		t.Fatalf("Protocol(%q): %v", name, err)
	}
	return p
}

type noSymbols struct{ *objctest.Runtime }

func (noSymbols) Symbol(name string) (objcrt.Address, error) {
	return 0, errors.New("no symbols")
}

func TestNewRequiresMsgSend(t *testing.T) {
	rt := objctest.New()
	_, err := New(rt, noSymbols{rt})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("New error = %v, want ErrNotFound", err)
	}
}

func TestLookupByName(t *testing.T) {
	b, _ := newTestBridge(t)

	cls := mustClass(t, b, "Shape")
	if cls.Kind() != KindClass {
		t.Errorf("Kind = %s, want Class", cls.Kind())
	}
	if cls.Name() != "Shape" {
		t.Errorf("Name = %q, want Shape", cls.Name())
	}
	if !strings.HasPrefix(cls.String(), "<Class Shape at 0x") {
		t.Errorf("String = %q", cls.String())
	}

	meta, err := b.MetaClass("Shape")
	if err != nil {
		t.Fatalf("MetaClass: %v", err)
	}
	if !meta.IsMetaClass() || meta.Kind() != KindMetaClass {
		t.Errorf("MetaClass kind = %s", meta.Kind())
	}
	metaSuper, err := meta.Superclass()
	if err != nil {
		t.Fatalf("Superclass: %v", err)
	}
	if metaSuper.Name() != "NSObject" || metaSuper.Kind() != KindMetaClass {
		t.Errorf("metaclass superclass = %s", metaSuper)
	}

	p := mustProtocol(t, b, "P1")
	if p.Kind() != KindProtocol || p.Name() != "P1" {
		t.Errorf("Protocol = %s", p)
	}

	if _, err := b.Class("Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Class(Missing) error = %v, want ErrNotFound", err)
	}
	if _, err := b.MetaClass("Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MetaClass(Missing) error = %v, want ErrNotFound", err)
	}
	if _, err := b.Protocol("Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Protocol(Missing) error = %v, want ErrNotFound", err)
	}
}

func TestNamespaces(t *testing.T) {
	b, _ := newTestBridge(t)

	if _, err := b.Classes().Lookup("Square"); err != nil {
		t.Fatalf("Lookup(Square): %v", err)
	}
	if _, err := b.Classes().Lookup("Shape"); err != nil {
		t.Fatalf("Lookup(Shape): %v", err)
	}
	if _, err := b.Classes().Lookup("Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(Nope) error = %v, want ErrNotFound", err)
	}
	known := b.Classes().Known()
	if len(known) != 2 || known[0] != "Shape" || known[1] != "Square" {
		t.Errorf("Known = %v, want [Shape Square]", known)
	}

	if _, err := b.Protocols().Lookup("P2"); err != nil {
		t.Fatalf("Lookup(P2): %v", err)
	}
	if known := b.Protocols().Known(); len(known) != 1 || known[0] != "P2" {
		t.Errorf("protocol Known = %v, want [P2]", known)
	}
}

func TestSelectors(t *testing.T) {
	b, f := newTestBridge(t)

	s1 := b.Selector("setValue:forKey:")
	s2 := b.Selector("setValue:forKey:")
	if s1 != s2 {
		t.Errorf("Selector not interned")
	}
	if s1.NumArgs() != 2 {
		t.Errorf("NumArgs = %d, want 2", s1.NumArgs())
	}
	s3, err := b.SelectorAt(s1.Address())
	if err != nil {
		t.Fatalf("SelectorAt: %v", err)
	}
	if s3 != s1 {
		t.Errorf("SelectorAt returned a different proxy")
	}
	if _, err := b.SelectorAt(0); !errors.Is(err, ErrNilAddress) {
		t.Errorf("SelectorAt(0) error = %v, want ErrNilAddress", err)
	}
	if _, err := b.SelectorAt(f.shape); !errors.Is(err, ErrInvalidSelector) {
		t.Errorf("SelectorAt(class) error = %v, want ErrInvalidSelector", err)
	}
	if b.CacheStats().Selectors == 0 {
		t.Errorf("CacheStats().Selectors = 0")
	}
}
