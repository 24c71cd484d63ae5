package bridge

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/objcbridge/objcrt"
)

// Object is a proxy for a foreign object, class, metaclass or protocol.
//
// Proxies are interned: every lookup of the same address returns the same
// *Object while it is live. Each lookup also hands the caller a handle;
// Release gives one back. When the last handle is released, or the proxy is
// garbage collected, the proxy is evicted from the cache and its retention
// of the foreign object is released.
type Object struct {
	b       *Bridge
	addr    objcrt.Address
	kind    Kind
	tok     *token
	handles atomic.Int64

	// cls is set for classes and metaclasses only.
	cls *classState

	attrMu sync.RWMutex
	attrs  map[string]any
}

// Address returns the foreign address.
func (o *Object) Address() objcrt.Address { return o.addr }

// Kind returns Object, Class, MetaClass or Protocol.
func (o *Object) Kind() Kind { return o.kind }

// Bridge returns the bridge the proxy belongs to.
func (o *Object) Bridge() *Bridge { return o.b }

// Released reports whether the proxy has been retired.
func (o *Object) Released() bool { return o.tok.retired.Load() }

// Equal reports whether o and other wrap the same address.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.addr == other.addr
}

func (o *Object) String() string {
	if o == nil {
		return "<nil>"
	}
	switch o.kind {
	case KindClass, KindMetaClass:
		return fmt.Sprintf("<%s %s at %s>", o.kind, o.b.rt.ClassName(o.addr), o.b.formatAddress(o.addr))
	case KindProtocol:
		return fmt.Sprintf("<Protocol %s at %s>", o.b.rt.ProtocolName(o.addr), o.b.formatAddress(o.addr))
	}
	return fmt.Sprintf("<%s wrapping %s at %s>", o.kind,
		o.b.rt.ClassName(o.b.rt.ObjectClass(o.addr)), o.b.formatAddress(o.addr))
}

func (o *Object) tryAcquire() bool {
	for {
		n := o.handles.Load()
		if n <= 0 {
			return false
		}
		if o.handles.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release gives back one handle. Releasing the last handle retires the
// proxy and releases its foreign retention; later calls are no-ops.
func (o *Object) Release() error {
	for {
		n := o.handles.Load()
		if n <= 0 {
			return nil
		}
		if o.handles.CompareAndSwap(n, n-1) {
			if n == 1 {
				return o.b.retire(o.tok)
			}
			return nil
		}
	}
}

func (o *Object) live() error {
	if o == nil {
		return ErrNilAddress
	}
	if o.Released() {
		return fmt.Errorf("%s: %w", o.b.formatAddress(o.addr), ErrReleased)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Interning
// ---------------------------------------------------------------------------

// ObjectAt returns the proxy for an object-family address, classifying it
// as a class, metaclass, protocol or plain object. retain states whether the
// caller wants a new retention taken; without it the caller's retention is
// handed over. The zero address yields nil.
func (b *Bridge) ObjectAt(addr objcrt.Address, retain bool) (*Object, error) {
	if addr == 0 {
		return nil, nil
	}
	return b.intern(addr, b.kindOf(addr), retain)
}

// ClassAt returns the proxy for a class or metaclass address.
func (b *Bridge) ClassAt(addr objcrt.Address, retain bool) (*Object, error) {
	if addr == 0 {
		return nil, nil
	}
	if !b.rt.ObjectIsClass(addr) {
		return nil, fmt.Errorf("%s is not a class: %w", b.formatAddress(addr), ErrTypeMismatch)
	}
	kind := KindClass
	if b.rt.ClassIsMetaClass(addr) {
		kind = KindMetaClass
	}
	return b.intern(addr, kind, retain)
}

// MetaClassAt returns the proxy for a metaclass address.
func (b *Bridge) MetaClassAt(addr objcrt.Address, retain bool) (*Object, error) {
	if addr == 0 {
		return nil, nil
	}
	if !b.rt.ObjectIsClass(addr) || !b.rt.ClassIsMetaClass(addr) {
		return nil, fmt.Errorf("%s is not a metaclass: %w", b.formatAddress(addr), ErrTypeMismatch)
	}
	return b.intern(addr, KindMetaClass, retain)
}

// ProtocolAt returns the proxy for a protocol address.
func (b *Bridge) ProtocolAt(addr objcrt.Address, retain bool) (*Object, error) {
	if addr == 0 {
		return nil, nil
	}
	if b.rt.ObjectIsClass(addr) || !b.isProtocolAddr(addr) {
		return nil, fmt.Errorf("%s is not a protocol: %w", b.formatAddress(addr), ErrTypeMismatch)
	}
	return b.intern(addr, KindProtocol, retain)
}

func (b *Bridge) intern(addr objcrt.Address, kind Kind, retain bool) (*Object, error) {
	o, created, err := b.objects.intern(addr, (*Object).tryAcquire, func() (*Object, *token, error) {
		if retain {
			if err := b.retainAddr(addr); err != nil {
				return nil, nil, err
			}
		}
		o := &Object{b: b, addr: addr, kind: kind, tok: &token{addr: addr}}
		o.handles.Store(1)
		if kind.IsClass() {
			o.cls = newClassState(o)
		}
		return o, o.tok, nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		runtime.AddCleanup(o, b.collect, o.tok)
		log.Debugf("%s proxy created for %s", kind, b.formatAddress(addr))
		return o, nil
	}
	if !retain {
		// The cached proxy already owns a retention.
		if err := b.releaseAddr(addr); err != nil {
			o.Release()
			return nil, err
		}
	}
	return o, nil
}

// retire evicts the proxy registered under tok and releases its retention.
// It runs at most once per proxy.
func (b *Bridge) retire(tok *token) error {
	if !tok.retired.CompareAndSwap(false, true) {
		return nil
	}
	b.objects.evict(tok)
	if err := b.releaseAddr(tok.addr); err != nil {
		return err
	}
	log.Debugf("proxy retired for %s", b.formatAddress(tok.addr))
	return nil
}

// collect is the cleanup for proxies that became unreachable.
func (b *Bridge) collect(tok *token) {
	if err := b.retire(tok); err != nil {
		log.Errorf("collecting proxy: %s", err)
	}
}

// ---------------------------------------------------------------------------
// Class and identity
// ---------------------------------------------------------------------------

// Class returns the proxy for the object's class; for a class this is its
// metaclass.
func (o *Object) Class() (*Object, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	return o.b.ClassAt(o.b.rt.ObjectClass(o.addr), true)
}

// ClassName returns the name of the object's class.
func (o *Object) ClassName() string {
	return o.b.rt.ClassName(o.b.rt.ObjectClass(o.addr))
}

// ---------------------------------------------------------------------------
// Local attributes
// ---------------------------------------------------------------------------

// localAttr returns a host-side attribute stored on the proxy.
func (o *Object) localAttr(name string) (any, bool) {
	o.attrMu.RLock()
	defer o.attrMu.RUnlock()
	v, ok := o.attrs[name]
	return v, ok
}

func (o *Object) setLocalAttr(name string, v any) {
	o.attrMu.Lock()
	defer o.attrMu.Unlock()
	if o.attrs == nil {
		o.attrs = make(map[string]any)
	}
	o.attrs[name] = v
}

func (o *Object) localAttrNames() []string {
	o.attrMu.RLock()
	defer o.attrMu.RUnlock()
	names := make([]string, 0, len(o.attrs))
	for name := range o.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Associated objects
// ---------------------------------------------------------------------------

// Associated returns the object associated with o under key, or nil.
func (o *Object) Associated(key objcrt.Address) (*Object, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	return o.b.ObjectAt(o.b.rt.AssociatedObject(o.addr, key), true)
}

// SetAssociated associates value with o under key. A nil value removes the
// association.
func (o *Object) SetAssociated(key objcrt.Address, value *Object, policy objcrt.AssociationPolicy) error {
	if err := o.live(); err != nil {
		return err
	}
	var v objcrt.Address
	if value != nil {
		if err := value.live(); err != nil {
			return err
		}
		v = value.addr
	}
	o.b.rt.SetAssociatedObject(o.addr, key, v, policy)
	runtime.KeepAlive(value)
	return nil
}

// selectorToAttr turns "setValue:forKey:" into "setValue_forKey_".
func selectorToAttr(sel string) string {
	return strings.ReplaceAll(sel, ":", "_")
}

func attrToSelector(name string) string {
	return strings.ReplaceAll(name, "_", ":")
}
