package bridge

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// classState holds the lazily computed tables of a class or metaclass.
type classState struct {
	ivars      *lazyTable[string, *Ivar]
	methods    *lazyTable[*Selector, *Method]
	properties *lazyTable[string, *Property]

	propertyNames atomic.Pointer[map[string]struct{}]
}

func newClassState(o *Object) *classState {
	b, cls := o.b, o.addr
	name := b.rt.ClassName(cls)
	return &classState{
		ivars: &lazyTable[string, *Ivar]{
			label: name + " ivars",
			load: func() ([]string, []*Ivar) {
				addrs := b.rt.ClassIvars(cls)
				keys := make([]string, len(addrs))
				vals := make([]*Ivar, len(addrs))
				for i, a := range addrs {
					vals[i] = b.ivarAt(a)
					keys[i] = vals[i].name
				}
				return keys, vals
			},
			direct: func(key string) (*Ivar, bool) {
				a := b.rt.ClassInstanceVariable(cls, key)
				if a == 0 {
					return nil, false
				}
				// The lookup also finds inherited ivars.
				if !b.declaresIvar(cls, a) {
					return nil, false
				}
				return b.ivarAt(a), true
			},
		},
		methods: &lazyTable[*Selector, *Method]{
			label: name + " methods",
			load: func() ([]*Selector, []*Method) {
				addrs := b.rt.ClassMethods(cls)
				keys := make([]*Selector, len(addrs))
				vals := make([]*Method, len(addrs))
				for i, a := range addrs {
					vals[i] = b.methodAt(a)
					keys[i] = vals[i].sel
				}
				return keys, vals
			},
		},
		properties: &lazyTable[string, *Property]{
			label: name + " properties",
			load: func() ([]string, []*Property) {
				addrs := b.rt.ClassProperties(cls)
				keys := make([]string, len(addrs))
				vals := make([]*Property, len(addrs))
				for i, a := range addrs {
					vals[i] = b.propertyAt(a)
					keys[i] = vals[i].name
				}
				return keys, vals
			},
			direct: func(key string) (*Property, bool) {
				a := b.rt.ClassProperty(cls, key)
				if a == 0 || !b.declaresProperty(cls, a) {
					return nil, false
				}
				return b.propertyAt(a), true
			},
		},
	}
}

// declaresIvar reports whether ivar is declared by cls itself rather than
// a superclass.
func (b *Bridge) declaresIvar(cls, ivar objcrt.Address) bool {
	sup := b.rt.ClassSuperclass(cls)
	if sup == 0 {
		return true
	}
	return b.rt.ClassInstanceVariable(sup, b.rt.IvarName(ivar)) != ivar
}

func (b *Bridge) declaresProperty(cls, prop objcrt.Address) bool {
	sup := b.rt.ClassSuperclass(cls)
	if sup == 0 {
		return true
	}
	return b.rt.ClassProperty(sup, b.rt.PropertyName(prop)) != prop
}

func (o *Object) classState() *classState {
	if o.cls == nil {
		panic(fmt.Sprintf("bridge: %s is not a class", o.kind))
	}
	return o.cls
}

// ---------------------------------------------------------------------------
// Class information
// ---------------------------------------------------------------------------

// Name returns the class or protocol name.
func (o *Object) Name() string {
	switch o.kind {
	case KindClass, KindMetaClass:
		return o.b.rt.ClassName(o.addr)
	case KindProtocol:
		return o.b.rt.ProtocolName(o.addr)
	}
	return ""
}

// Superclass returns the superclass proxy, or nil for a root class.
func (o *Object) Superclass() (*Object, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	if !o.kind.IsClass() {
		return nil, fmt.Errorf("superclass of %s: %w", o.kind, ErrTypeMismatch)
	}
	return o.b.ClassAt(o.b.rt.ClassSuperclass(o.addr), true)
}

// InstanceSize returns the size of instances of the class.
func (o *Object) InstanceSize() uintptr { return o.b.rt.ClassInstanceSize(o.addr) }

// Version returns the class version.
func (o *Object) Version() int { return o.b.rt.ClassVersion(o.addr) }

// IsMetaClass reports whether o is a metaclass.
func (o *Object) IsMetaClass() bool { return o.kind == KindMetaClass }

// Protocols returns the protocols adopted directly by a class, or
// incorporated by a protocol.
func (o *Object) Protocols() ([]*Object, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	var addrs []objcrt.Address
	switch o.kind {
	case KindClass, KindMetaClass:
		addrs = o.b.rt.ClassProtocols(o.addr)
	case KindProtocol:
		addrs = o.b.rt.ProtocolProtocols(o.addr)
	default:
		return nil, fmt.Errorf("protocols of %s: %w", o.kind, ErrTypeMismatch)
	}
	protos := make([]*Object, 0, len(addrs))
	for _, a := range addrs {
		p, err := o.b.ProtocolAt(a, true)
		if err != nil {
			return nil, err
		}
		protos = append(protos, p)
	}
	return protos, nil
}

// ---------------------------------------------------------------------------
// Member tables
// ---------------------------------------------------------------------------

// InstanceIvarsDeclared returns the ivars declared by this class only.
func (o *Object) InstanceIvarsDeclared() Mapping[string, *Ivar] {
	return o.classState().ivars
}

// InstanceMethodsDeclared returns the methods declared by this class only.
func (o *Object) InstanceMethodsDeclared() Mapping[*Selector, *Method] {
	return o.classState().methods
}

// InstancePropertiesDeclared returns the properties declared by this class
// only.
func (o *Object) InstancePropertiesDeclared() Mapping[string, *Property] {
	return o.classState().properties
}

// lineage calls f with o and then each of its superclasses, nearest
// first. The superclass proxies are released once f has seen them all.
func (o *Object) lineage(f func(cls *Object)) {
	var held []*Object
	defer func() { releaseAll(held) }()
	f(o)
	for c := o; ; {
		sup, err := c.Superclass()
		if err != nil || sup == nil {
			return
		}
		held = append(held, sup)
		f(sup)
		c = sup
	}
}

// InstanceIvars returns the ivars of this class and its superclasses.
func (o *Object) InstanceIvars() Mapping[string, *Ivar] {
	c := &chain[string, *Ivar]{}
	o.lineage(func(cls *Object) {
		c.links = append(c.links, cls.classState().ivars)
	})
	return c
}

// InstanceProperties returns the properties of this class and its
// superclasses.
func (o *Object) InstanceProperties() Mapping[string, *Property] {
	c := &chain[string, *Property]{}
	o.lineage(func(cls *Object) {
		c.links = append(c.links, cls.classState().properties)
	})
	return c
}

// InstanceMethods returns the methods of this class and its superclasses.
// Lookups by selector go straight to the runtime's method resolution.
func (o *Object) InstanceMethods() Mapping[*Selector, *Method] {
	c := &methodChain{cls: o}
	o.lineage(func(cls *Object) {
		c.links = append(c.links, cls.classState().methods)
	})
	return c
}

type methodChain struct {
	chain[*Selector, *Method]
	cls *Object
}

func (c *methodChain) Get(sel *Selector) (*Method, bool) {
	m := c.cls.b.rt.ClassInstanceMethod(c.cls.addr, sel.addr)
	runtime.KeepAlive(c.cls)
	if m == 0 {
		return nil, false
	}
	return c.cls.b.methodAt(m), true
}

func (c *methodChain) Has(sel *Selector) bool {
	_, ok := c.Get(sel)
	return ok
}

// instancePropertyNames returns the names of all instance properties,
// computed once per class.
func (o *Object) instancePropertyNames() map[string]struct{} {
	st := o.classState()
	if names := st.propertyNames.Load(); names != nil {
		return *names
	}
	names := make(map[string]struct{})
	for _, k := range o.InstanceProperties().Keys() {
		names[k] = struct{}{}
	}
	if !st.propertyNames.CompareAndSwap(nil, &names) {
		return *st.propertyNames.Load()
	}
	return names
}

// ---------------------------------------------------------------------------
// Responding and inheritance
// ---------------------------------------------------------------------------

// InstancesRespondToAPI reports whether instances of the class respond to
// sel according to the runtime API alone.
func (o *Object) InstancesRespondToAPI(sel *Selector) bool {
	return o.b.rt.ClassRespondsToSelector(o.addr, sel.addr)
}

// InstancesRespondTo reports whether instances of the class respond to
// sel, asking the class through instancesRespondToSelector: when it
// implements it.
func (o *Object) InstancesRespondTo(sel *Selector) (bool, error) {
	if err := o.live(); err != nil {
		return false, err
	}
	ask := o.b.Selector("instancesRespondToSelector:")
	if o.b.rt.ClassRespondsToSelector(o.b.rt.ObjectClass(o.addr), ask.addr) {
		return o.b.sendBool(o.addr, ask, ctype.SEL, sel.addr)
	}
	return o.InstancesRespondToAPI(sel), nil
}

// IsSubclassOf reports whether o is other or inherits from it.
func (o *Object) IsSubclassOf(other *Object) (bool, error) {
	if err := o.live(); err != nil {
		return false, err
	}
	if err := other.live(); err != nil {
		return false, err
	}
	if !o.kind.IsClass() || !other.kind.IsClass() {
		return false, fmt.Errorf("subclass check on %s and %s: %w", o.kind, other.kind, ErrTypeMismatch)
	}
	ask := o.b.Selector("isSubclassOfClass:")
	if o.b.rt.ClassRespondsToSelector(o.b.rt.ObjectClass(o.addr), ask.addr) {
		return o.b.sendBool(o.addr, ask, ctype.ClassPtr, other.addr)
	}
	return o.b.inheritsFrom(o.addr, other.addr), nil
}

// IsKindOf reports whether o is an instance of cls or of a subclass.
func (o *Object) IsKindOf(cls *Object) (bool, error) {
	if err := o.live(); err != nil {
		return false, err
	}
	if err := cls.live(); err != nil {
		return false, err
	}
	ask := o.b.Selector("isKindOfClass:")
	own := o.b.rt.ObjectClass(o.addr)
	if o.b.rt.ClassRespondsToSelector(own, ask.addr) {
		return o.b.sendBool(o.addr, ask, ctype.ClassPtr, cls.addr)
	}
	return o.b.inheritsFrom(own, cls.addr), nil
}

// ---------------------------------------------------------------------------
// Attribute names
// ---------------------------------------------------------------------------

// publicAttrNames returns the public selector names of instances of the
// class: from the name registry when it knows the class, else the declared
// selectors that do not start with an underscore.
func (o *Object) publicAttrNames() []string {
	if o.b.names != nil {
		name := o.b.rt.ClassName(o.addr)
		if o.kind == KindMetaClass {
			if classMethods, _, ok := o.b.names.PublicMethods(name); ok {
				return classMethods
			}
		} else if _, instanceMethods, ok := o.b.names.PublicMethods(name); ok {
			return instanceMethods
		}
	}
	var names []string
	o.InstanceMethodsDeclared().Each(func(sel *Selector, _ *Method) bool {
		if !strings.HasPrefix(sel.name, "_") {
			names = append(names, sel.name)
		}
		return true
	})
	return names
}

// InstanceAttrNames returns the attribute names available on instances of
// the class and its superclasses, sorted.
func (o *Object) InstanceAttrNames() []string {
	seen := make(map[string]struct{})
	o.lineage(func(cls *Object) {
		for _, sel := range cls.publicAttrNames() {
			seen[selectorToAttr(sel)] = struct{}{}
		}
		cls.InstancePropertiesDeclared().Each(func(name string, _ *Property) bool {
			seen[name] = struct{}{}
			return true
		})
	})
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
