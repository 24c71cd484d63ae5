package bridge

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/encoding"
	"github.com/chazu/objcbridge/objcrt"
)

// Property is a declared property of a class.
type Property struct {
	b          *Bridge
	addr       objcrt.Address
	name       string
	attrString string

	attrs atomic.Pointer[encoding.PropertyAttributes]
	typ   atomic.Pointer[ctype.Type]
}

func (b *Bridge) propertyAt(addr objcrt.Address) *Property {
	return b.properties.internValue(addr, func() *Property {
		return &Property{
			b:          b,
			addr:       addr,
			name:       b.rt.PropertyName(addr),
			attrString: b.rt.PropertyAttributes(addr),
		}
	})
}

func (p *Property) Address() objcrt.Address { return p.addr }
func (p *Property) Kind() Kind              { return KindProperty }
func (p *Property) Name() string            { return p.name }

// AttributeEncoding returns the raw attribute string.
func (p *Property) AttributeEncoding() string { return p.attrString }

func (p *Property) String() string {
	return fmt.Sprintf("<Property %s %q>", p.name, p.attrString)
}

// Attributes returns the decoded attributes, decoding them on first use.
func (p *Property) Attributes() (*encoding.PropertyAttributes, error) {
	if a := p.attrs.Load(); a != nil {
		return a, nil
	}
	a, err := p.b.decoder.DecodeProperty(p.attrString)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", p.name, err)
	}
	if !p.attrs.CompareAndSwap(nil, a) {
		a = p.attrs.Load()
	}
	return a, nil
}

// Type returns the property's native type.
func (p *Property) Type() (*ctype.Type, error) {
	if t := p.typ.Load(); t != nil {
		return t, nil
	}
	a, err := p.Attributes()
	if err != nil {
		return nil, err
	}
	t, err := ConvertType(a.Type)
	if err != nil {
		return nil, err
	}
	if !p.typ.CompareAndSwap(nil, t) {
		t = p.typ.Load()
	}
	return t, nil
}

// ReadOnly reports whether the property has no setter.
func (p *Property) ReadOnly() (bool, error) {
	a, err := p.Attributes()
	if err != nil {
		return false, err
	}
	return a.ReadOnly, nil
}

// Getter returns the getter selector: the custom getter if declared,
// otherwise the property name.
func (p *Property) Getter() (*Selector, error) {
	a, err := p.Attributes()
	if err != nil {
		return nil, err
	}
	if a.Getter != "" {
		return p.b.Selector(a.Getter), nil
	}
	return p.b.Selector(p.name), nil
}

// Setter returns the setter selector, or nil for read-only properties. The
// default setter of "title" is "setTitle:".
func (p *Property) Setter() (*Selector, error) {
	a, err := p.Attributes()
	if err != nil {
		return nil, err
	}
	switch {
	case a.ReadOnly:
		return nil, nil
	case a.Setter != "":
		return p.b.Selector(a.Setter), nil
	}
	return p.b.Selector(defaultSetter(p.name)), nil
}

func defaultSetter(name string) string {
	if name == "" {
		return "set:"
	}
	return "set" + strings.ToUpper(name[:1]) + name[1:] + ":"
}

// Get sends the getter to obj.
func (p *Property) Get(obj *Object) (any, error) {
	getter, err := p.Getter()
	if err != nil {
		return nil, err
	}
	return obj.SendSelector(getter, nil)
}

// Set sends the setter to obj with value.
func (p *Property) Set(obj *Object, value any) error {
	setter, err := p.Setter()
	if err != nil {
		return err
	}
	if setter == nil {
		return fmt.Errorf("property %s: %w", p.name, ErrReadOnly)
	}
	_, err = obj.SendSelector(setter, nil, value)
	return err
}
