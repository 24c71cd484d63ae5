package bridge

import (
	"fmt"
	"strings"

	"github.com/chazu/objcbridge/objcrt"
)

// Selector is an interned method name.
type Selector struct {
	b    *Bridge
	addr objcrt.Address
	name string
}

// Address returns the runtime's selector pointer.
func (s *Selector) Address() objcrt.Address { return s.addr }

// Kind returns KindSelector.
func (s *Selector) Kind() Kind { return KindSelector }

// Name returns the selector's name, e.g. "objectForKey:".
func (s *Selector) Name() string { return s.name }

// NumArgs returns the number of arguments the selector takes.
func (s *Selector) NumArgs() int { return strings.Count(s.name, ":") }

func (s *Selector) String() string { return s.name }

// Selector returns the selector registered under name. The runtime
// canonicalizes names, so equal names yield the same *Selector.
func (b *Bridge) Selector(name string) *Selector {
	return b.selectorAt(b.rt.RegisterSelector(name))
}

// SelectorAt wraps an existing selector pointer. Pointers the runtime does
// not know fail with ErrInvalidSelector.
func (b *Bridge) SelectorAt(addr objcrt.Address) (*Selector, error) {
	if addr == 0 {
		return nil, ErrNilAddress
	}
	if !b.rt.SelectorIsMapped(addr) {
		return nil, fmt.Errorf("%s: %w", b.formatAddress(addr), ErrInvalidSelector)
	}
	return b.selectorAt(addr), nil
}

func (b *Bridge) selectorAt(addr objcrt.Address) *Selector {
	return b.selectors.internValue(addr, func() *Selector {
		return &Selector{b: b, addr: addr, name: b.rt.SelectorName(addr)}
	})
}
