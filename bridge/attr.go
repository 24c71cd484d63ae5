package bridge

import (
	"fmt"
	"sort"
)

// AttrKind says how an attribute name resolves on an object.
type AttrKind int

const (
	AttrNotFound AttrKind = iota
	AttrLocal
	AttrProperty
	AttrMethod
)

func (k AttrKind) String() string {
	switch k {
	case AttrLocal:
		return "local"
	case AttrProperty:
		return "property"
	case AttrMethod:
		return "method"
	}
	return "not found"
}

// Attr is the resolution of an attribute name.
type Attr struct {
	Kind     AttrKind
	Property *Property // AttrProperty
	Selector *Selector // AttrMethod
}

// ResolveAttr resolves name against o: host-side attributes first, then
// the properties of o's class, then methods, where underscores in name
// stand for colons in the selector ("objectForKey_" is "objectForKey:").
func (o *Object) ResolveAttr(name string) (Attr, error) {
	if err := o.live(); err != nil {
		return Attr{}, err
	}
	if _, ok := o.localAttr(name); ok {
		return Attr{Kind: AttrLocal}, nil
	}
	cls, err := o.Class()
	if err != nil {
		return Attr{}, err
	}
	defer cls.Release()
	if p, ok := cls.InstanceProperties().Get(name); ok {
		return Attr{Kind: AttrProperty, Property: p}, nil
	}
	sel := o.b.Selector(attrToSelector(name))
	if cls.InstanceMethods().Has(sel) {
		return Attr{Kind: AttrMethod, Selector: sel}, nil
	}
	return Attr{Kind: AttrNotFound}, nil
}

// GetAttr returns the value of attribute name: a host-side attribute, the
// result of a property getter, or a *BoundMethod.
func (o *Object) GetAttr(name string) (any, error) {
	a, err := o.ResolveAttr(name)
	if err != nil {
		return nil, err
	}
	switch a.Kind {
	case AttrLocal:
		v, _ := o.localAttr(name)
		return v, nil
	case AttrProperty:
		return a.Property.Get(o)
	case AttrMethod:
		return &BoundMethod{Receiver: o, Selector: a.Selector}, nil
	}
	return nil, fmt.Errorf("%s has no attribute %q: %w", o, name, ErrAttributeNotFound)
}

// SetAttr assigns attribute name. Existing host-side attributes are
// reassigned; names of instance properties go through the property setter;
// anything else becomes a new host-side attribute.
func (o *Object) SetAttr(name string, value any) error {
	if err := o.live(); err != nil {
		return err
	}
	if _, ok := o.localAttr(name); ok {
		o.setLocalAttr(name, value)
		return nil
	}
	cls, err := o.Class()
	if err != nil {
		return err
	}
	defer cls.Release()
	if _, ok := cls.instancePropertyNames()[name]; ok {
		p, _ := cls.InstanceProperties().Get(name)
		return p.Set(o, value)
	}
	o.setLocalAttr(name, value)
	return nil
}

// AttrNames lists the attribute names of o, sorted: host-side attributes
// together with the public selectors and properties of its class.
func (o *Object) AttrNames() ([]string, error) {
	cls, err := o.Class()
	if err != nil {
		return nil, err
	}
	defer cls.Release()
	seen := make(map[string]struct{})
	for _, n := range cls.InstanceAttrNames() {
		seen[n] = struct{}{}
	}
	for _, n := range o.localAttrNames() {
		seen[n] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
