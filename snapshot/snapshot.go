// Package snapshot captures the reflective metadata of a class hierarchy
// into plain values and encodes them as canonical CBOR.
package snapshot

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/objcbridge/bridge"
)

// FormatVersion is the snapshot encoding version written by Marshal.
const FormatVersion = 1

var (
	ErrNotClass = errors.New("snapshot: not a class")
	ErrVersion  = errors.New("snapshot: unsupported format version")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is a captured class hierarchy, nearest class first.
type Snapshot struct {
	Version int     `cbor:"1,keyasint"`
	Classes []Class `cbor:"2,keyasint"`
}

// Class describes one class. Only members the class declares itself are
// listed; inherited members appear under the superclass entry.
type Class struct {
	Name            string     `cbor:"1,keyasint"`
	Superclass      string     `cbor:"2,keyasint,omitempty"`
	InstanceSize    uint64     `cbor:"3,keyasint"`
	Ivars           []Ivar     `cbor:"4,keyasint,omitempty"`
	InstanceMethods []Method   `cbor:"5,keyasint,omitempty"`
	ClassMethods    []Method   `cbor:"6,keyasint,omitempty"`
	Properties      []Property `cbor:"7,keyasint,omitempty"`
	Protocols       []string   `cbor:"8,keyasint,omitempty"`
}

type Ivar struct {
	Name     string `cbor:"1,keyasint"`
	Encoding string `cbor:"2,keyasint"`
	Offset   uint64 `cbor:"3,keyasint"`
}

type Method struct {
	Selector string `cbor:"1,keyasint"`
	Encoding string `cbor:"2,keyasint"`
}

type Property struct {
	Name       string `cbor:"1,keyasint"`
	Attributes string `cbor:"2,keyasint"`
}

// Capture walks cls and its superclasses.
func Capture(cls *bridge.Object) (*Snapshot, error) {
	if cls == nil || cls.Kind() != bridge.KindClass {
		return nil, fmt.Errorf("%v: %w", cls, ErrNotClass)
	}
	var held []*bridge.Object
	defer func() {
		for _, o := range held {
			o.Release()
		}
	}()

	s := &Snapshot{Version: FormatVersion}
	for cur := cls; cur != nil; {
		sup, err := cur.Superclass()
		if err != nil {
			return nil, err
		}
		if sup != nil {
			held = append(held, sup)
		}
		c, err := captureClass(cur, sup)
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", cur.Name(), err)
		}
		s.Classes = append(s.Classes, *c)
		cur = sup
	}
	return s, nil
}

func captureClass(cls, sup *bridge.Object) (*Class, error) {
	c := &Class{
		Name:         cls.Name(),
		InstanceSize: uint64(cls.InstanceSize()),
	}
	if sup != nil {
		c.Superclass = sup.Name()
	}

	cls.InstanceIvarsDeclared().Each(func(_ string, v *bridge.Ivar) bool {
		c.Ivars = append(c.Ivars, Ivar{Name: v.Name(), Encoding: v.TypeEncoding(), Offset: uint64(v.Offset())})
		return true
	})
	c.InstanceMethods = methods(cls)
	cls.InstancePropertiesDeclared().Each(func(_ string, p *bridge.Property) bool {
		c.Properties = append(c.Properties, Property{Name: p.Name(), Attributes: p.AttributeEncoding()})
		return true
	})

	meta, err := cls.Class()
	if err != nil {
		return nil, err
	}
	c.ClassMethods = methods(meta)
	meta.Release()

	protos, err := cls.Protocols()
	if err != nil {
		return nil, err
	}
	for _, p := range protos {
		c.Protocols = append(c.Protocols, p.Name())
		p.Release()
	}
	return c, nil
}

func methods(cls *bridge.Object) []Method {
	var ms []Method
	cls.InstanceMethodsDeclared().Each(func(sel *bridge.Selector, m *bridge.Method) bool {
		ms = append(ms, Method{Selector: sel.Name(), Encoding: m.TypeEncoding()})
		return true
	})
	return ms
}

// Class returns the entry for the named class.
func (s *Snapshot) Class(name string) (*Class, bool) {
	for i := range s.Classes {
		if s.Classes[i].Name == name {
			return &s.Classes[i], true
		}
	}
	return nil, false
}

// PublicSelectors returns the sorted selectors of the class's instance
// methods, or of its class methods when meta is set, that do not start
// with an underscore.
func (c *Class) PublicSelectors(meta bool) []string {
	src := c.InstanceMethods
	if meta {
		src = c.ClassMethods
	}
	var names []string
	for _, m := range src {
		if !strings.HasPrefix(m.Selector, "_") {
			names = append(names, m.Selector)
		}
	}
	sort.Strings(names)
	return names
}

// Marshal serializes a Snapshot to canonical CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if s.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return &s, nil
}
