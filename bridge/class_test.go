package bridge

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/objcbridge/objcrt/objctest"
)

func TestClassInfo(t *testing.T) {
	b, _ := newTestBridge(t)
	square := mustClass(t, b, "Square")

	sup, err := square.Superclass()
	if err != nil {
		t.Fatalf("Superclass: %v", err)
	}
	if sup.Name() != "Shape" {
		t.Errorf("Superclass = %s, want Shape", sup)
	}
	if square.InstanceSize() != 32 {
		t.Errorf("InstanceSize = %d, want 32", square.InstanceSize())
	}
	root := mustClass(t, b, "Root")
	if sup, err := root.Superclass(); sup != nil || err != nil {
		t.Errorf("Superclass of root = %v, %v, want nil, nil", sup, err)
	}
}

func TestIvarTables(t *testing.T) {
	b, _ := newTestBridge(t)
	square := mustClass(t, b, "Square")
	st := square.classState()

	// Single lookups do not enumerate the class.
	if _, ok := square.InstanceIvarsDeclared().Get("_side"); !ok {
		t.Fatalf("_side not declared by Square")
	}
	if _, ok := square.InstanceIvarsDeclared().Get("_sides"); ok {
		t.Errorf("inherited _sides reported as declared by Square")
	}
	if st.ivars.materialized() {
		t.Errorf("ivar table materialized by single lookups")
	}

	if diff := cmp.Diff([]string{"_side"}, square.InstanceIvarsDeclared().Keys()); diff != "" {
		t.Errorf("declared ivars (-want +got):\n%s", diff)
	}
	if !st.ivars.materialized() {
		t.Errorf("ivar table not materialized after Keys")
	}
	if diff := cmp.Diff([]string{"_side", "_sides", "_name"}, square.InstanceIvars().Keys()); diff != "" {
		t.Errorf("instance ivars (-want +got):\n%s", diff)
	}

	iv, ok := square.InstanceIvars().Get("_sides")
	if !ok {
		t.Fatalf("inherited _sides not found")
	}
	if iv.Name() != "_sides" || iv.TypeEncoding() != "i" || iv.Offset() != 8 {
		t.Errorf("ivar = %s", iv)
	}
	if iv2, _ := mustClass(t, b, "Shape").InstanceIvarsDeclared().Get("_sides"); iv2 != iv {
		t.Errorf("ivar proxies not interned")
	}
}

func TestIvarGetSet(t *testing.T) {
	b, f := newTestBridge(t)
	o := f.object(t, b, f.square)
	square := mustClass(t, b, "Square")

	sides, _ := square.InstanceIvars().Get("_sides")
	if err := sides.Set(o, 4); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := sides.Get(o)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != int64(4) {
		t.Errorf("_sides = %#v, want 4", got)
	}
	if got, _ := o.Send("sides"); got != int64(4) {
		t.Errorf("sides = %#v, want 4", got)
	}
	if err := sides.Set(o, "four"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Set(string) error = %v, want ErrTypeMismatch", err)
	}

	name, _ := square.InstanceIvars().Get("_name")
	other := f.object(t, b, f.shape)
	if err := name.Set(o, other); err != nil {
		t.Fatalf("Set(object): %v", err)
	}
	got, err = name.Get(o)
	if err != nil {
		t.Fatalf("Get(object): %v", err)
	}
	if got != other {
		t.Errorf("_name = %v, want %v", got, other)
	}
}

func TestMethodTables(t *testing.T) {
	b, _ := newTestBridge(t)
	square := mustClass(t, b, "Square")

	methods := square.InstanceMethods()
	for _, sel := range []string{"area", "side", "scaleBy:", "respondsToSelector:"} {
		if !methods.Has(b.Selector(sel)) {
			t.Errorf("InstanceMethods has no %s", sel)
		}
	}
	if methods.Has(b.Selector("alloc")) {
		t.Errorf("instance methods include the class method alloc")
	}

	m, _ := methods.Get(b.Selector("area"))
	own, _ := square.InstanceMethodsDeclared().Get(b.Selector("area"))
	if m != own {
		t.Errorf("area resolved to %s, want Square's override", m)
	}

	count := 0
	for _, sel := range methods.Keys() {
		if sel.Name() == "area" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("area listed %d times", count)
	}
	if methods.Len() != len(methods.Keys()) {
		t.Errorf("Len = %d, Keys = %d", methods.Len(), len(methods.Keys()))
	}

	meta, err := b.MetaClass("Square")
	if err != nil {
		t.Fatalf("MetaClass: %v", err)
	}
	if !meta.InstanceMethods().Has(b.Selector("alloc")) {
		t.Errorf("metaclass methods do not include alloc")
	}
}

func TestPropertyTables(t *testing.T) {
	b, _ := newTestBridge(t)
	square := mustClass(t, b, "Square")

	if diff := cmp.Diff([]string{"side", "name", "sides"}, square.InstanceProperties().Keys()); diff != "" {
		t.Errorf("instance properties (-want +got):\n%s", diff)
	}
	p, ok := square.InstanceProperties().Get("name")
	if !ok {
		t.Fatalf("no name property")
	}
	typ, err := p.Type()
	if err != nil {
		t.Fatalf("Type: %v", err)
	}
	if !typ.IsObject() {
		t.Errorf("name type = %s, want id", typ)
	}
	setter, err := p.Setter()
	if err != nil || setter.Name() != "setName:" {
		t.Errorf("Setter = %v, %v", setter, err)
	}

	sides, _ := square.InstanceProperties().Get("sides")
	if ro, _ := sides.ReadOnly(); !ro {
		t.Errorf("sides not read-only")
	}
	if setter, _ := sides.Setter(); setter != nil {
		t.Errorf("read-only property has setter %s", setter)
	}
	getter, _ := sides.Getter()
	if getter.Name() != "sides" {
		t.Errorf("Getter = %s", getter)
	}
}

func TestInheritanceChecks(t *testing.T) {
	b, f := newTestBridge(t)
	square := mustClass(t, b, "Square")
	shape := mustClass(t, b, "Shape")
	root := mustClass(t, b, "Root")
	leaf := mustClass(t, b, "Leaf")

	tests := []struct {
		cls, other *Object
		want       bool
	}{
		{square, shape, true},
		{square, square, true},
		{shape, square, false},
		{leaf, root, true},
		{root, leaf, false},
		{leaf, shape, false},
	}
	for _, tt := range tests {
		got, err := tt.cls.IsSubclassOf(tt.other)
		if err != nil {
			t.Fatalf("IsSubclassOf: %v", err)
		}
		if got != tt.want {
			t.Errorf("%s IsSubclassOf %s = %v, want %v", tt.cls.Name(), tt.other.Name(), got, tt.want)
		}
	}
	if n := f.rt.Sends("isSubclassOfClass:"); n != 3 {
		t.Errorf("isSubclassOfClass: sent %d times, want 3", n)
	}

	o := f.object(t, b, f.square)
	if ok, err := o.IsKindOf(shape); err != nil || !ok {
		t.Errorf("IsKindOf(Shape) = %v, %v", ok, err)
	}
	l := f.object(t, b, f.leaf)
	if ok, err := l.IsKindOf(root); err != nil || !ok {
		t.Errorf("Leaf IsKindOf(Root) = %v, %v", ok, err)
	}
	if _, err := o.IsSubclassOf(shape); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("IsSubclassOf on an instance: error = %v, want ErrTypeMismatch", err)
	}
}

func TestInstancesRespondTo(t *testing.T) {
	b, f := newTestBridge(t)
	square := mustClass(t, b, "Square")
	leaf := mustClass(t, b, "Leaf")

	if ok, err := square.InstancesRespondTo(b.Selector("scaleBy:")); err != nil || !ok {
		t.Errorf("Square InstancesRespondTo(scaleBy:) = %v, %v", ok, err)
	}
	if n := f.rt.Sends("instancesRespondToSelector:"); n != 1 {
		t.Errorf("instancesRespondToSelector: sent %d times, want 1", n)
	}
	if ok, err := leaf.InstancesRespondTo(b.Selector("ping")); err != nil || !ok {
		t.Errorf("Leaf InstancesRespondTo(ping) = %v, %v", ok, err)
	}
	if leaf.InstancesRespondToAPI(b.Selector("area")) {
		t.Errorf("Leaf instances respond to area")
	}
}

func TestConformance(t *testing.T) {
	b, f := newTestBridge(t)
	leaf := mustClass(t, b, "Leaf")
	p1 := mustProtocol(t, b, "P1")
	p3 := mustProtocol(t, b, "P3")
	calls := f.rt.Calls()

	// Leaf inherits P1 from Root; P1 reaches P3 through P2.
	for _, p := range []*Object{p1, p3} {
		ok, err := p.ConformedBy(leaf)
		if err != nil {
			t.Fatalf("ConformedBy: %v", err)
		}
		if !ok {
			t.Errorf("Leaf does not conform to %s", p.Name())
		}
	}
	if got := f.rt.Calls(); got != calls {
		t.Errorf("%d foreign calls for a root class without conformsToProtocol:", got-calls)
	}

	if ok, _ := p3.ConformedBy(p1); !ok {
		t.Errorf("P1 does not conform to P3")
	}
	if ok, _ := p1.ConformedBy(p3); ok {
		t.Errorf("P3 conforms to P1")
	}
	if _, err := leaf.ConformedBy(p1); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("ConformedBy on a class: error = %v, want ErrTypeMismatch", err)
	}

	// Classes implementing conformsToProtocol: are asked.
	f.rt.AdoptProtocol(f.shape, f.p2)
	square := mustClass(t, b, "Square")
	ok, err := p3.ConformedBy(square)
	if err != nil || !ok {
		t.Errorf("Square ConformedBy P3 = %v, %v", ok, err)
	}
	if n := f.rt.Sends("conformsToProtocol:"); n != 1 {
		t.Errorf("conformsToProtocol: sent %d times, want 1", n)
	}
	o := f.object(t, b, f.square)
	if ok, err := p1.ConformedByInstance(o); err != nil || ok {
		t.Errorf("Square instance ConformedByInstance P1 = %v, %v", ok, err)
	}
}

func TestProtocolInfo(t *testing.T) {
	b, _ := newTestBridge(t)
	p1 := mustProtocol(t, b, "P1")

	protos, err := p1.Protocols()
	if err != nil {
		t.Fatalf("Protocols: %v", err)
	}
	if len(protos) != 1 || protos[0].Name() != "P2" {
		t.Errorf("P1 protocols = %v", protos)
	}
	again := mustProtocol(t, b, "P1")
	if !p1.ProtocolEqual(again) || p1.ProtocolEqual(protos[0]) {
		t.Errorf("ProtocolEqual inconsistent")
	}

	adopted, err := mustClass(t, b, "Root").Protocols()
	if err != nil {
		t.Fatalf("class Protocols: %v", err)
	}
	if len(adopted) != 1 || adopted[0] != p1 {
		t.Errorf("Root protocols = %v", adopted)
	}
}

func TestInstanceAttrNames(t *testing.T) {
	b, _ := newTestBridge(t)
	names := mustClass(t, b, "Square").InstanceAttrNames()

	for _, want := range []string{"area", "side", "scaleBy_", "setName_", "name", "sides", "respondsToSelector_"} {
		if !slices.Contains(names, want) {
			t.Errorf("InstanceAttrNames lacks %s", want)
		}
	}
	if slices.Contains(names, "_private") {
		t.Errorf("InstanceAttrNames lists private selector")
	}
	if !slices.IsSorted(names) {
		t.Errorf("InstanceAttrNames not sorted")
	}
}

type registry map[string][]string

func (r registry) PublicMethods(className string) ([]string, []string, bool) {
	m, ok := r[className]
	return nil, m, ok
}

func TestInstanceAttrNamesFromRegistry(t *testing.T) {
	b, _ := newTestBridge(t, WithNameRegistry(registry{"Shape": {"area"}}))
	names := mustClass(t, b, "Shape").InstanceAttrNames()

	if !slices.Contains(names, "area") || !slices.Contains(names, "name") {
		t.Errorf("InstanceAttrNames = %v", names)
	}
	if slices.Contains(names, "scaleBy_") {
		t.Errorf("InstanceAttrNames lists a method the registry omits")
	}
}

func TestInheritedOverridesNearestFirst(t *testing.T) {
	b, f := newTestBridge(t)
	ret := func(n int64) objctest.Impl {
		return func(c *objctest.Call) (any, error) { return n, nil }
	}
	base := f.rt.DefineClass("Base", "NSObject")
	f.rt.AddMethod(base, "greet", "i16@0:8", ret(1))
	f.rt.AddMethod(base, "wave", "i16@0:8", ret(1))
	f.rt.AddProperty(base, "label", "T@\"NSString\",R,N")
	mid := f.rt.DefineClass("Middle", "Base")
	f.rt.AddMethod(mid, "greet", "i16@0:8", ret(2))
	f.rt.AddMethod(mid, "level", "i16@0:8", ret(2))
	f.rt.AddProperty(mid, "level", "Ti,R,N")
	f.rt.DefineClass("Tail", "Middle")

	tail := mustClass(t, b, "Tail")
	middle := mustClass(t, b, "Middle")
	if n := tail.InstanceMethodsDeclared().Len(); n != 0 {
		t.Errorf("Tail declares %d methods, want 0", n)
	}

	methods := tail.InstanceMethods()
	greet := b.Selector("greet")
	got, ok := methods.Get(greet)
	want, _ := middle.InstanceMethodsDeclared().Get(greet)
	if !ok || got != want {
		t.Errorf("greet resolved to %v, want Middle's override", got)
	}
	pos := make(map[string]int)
	for i, sel := range methods.Keys() {
		if _, dup := pos[sel.Name()]; dup {
			t.Errorf("%s listed twice", sel.Name())
		}
		pos[sel.Name()] = i
	}
	if !(pos["greet"] < pos["wave"] && pos["level"] < pos["wave"]) {
		t.Errorf("method order %v, want Middle's methods before Base's", pos)
	}

	if diff := cmp.Diff([]string{"level", "label"}, tail.InstanceProperties().Keys()); diff != "" {
		t.Errorf("instance properties (-want +got):\n%s", diff)
	}

	o := f.object(t, b, tail.Address())
	for sel, want := range map[string]int64{"greet": 2, "wave": 1, "level": 2} {
		if got, err := o.Send(sel); err != nil || got != want {
			t.Errorf("Send(%s) = %v, %v, want %d", sel, got, err, want)
		}
	}
}
