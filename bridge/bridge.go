// Package bridge exposes the objects, classes, protocols and methods of an
// external dynamically dispatched runtime as Go values.
//
// A Bridge wraps a Runtime and an FFI (see package objcrt). Foreign objects
// are represented by interned proxies: for any address there is at most one
// live *Object, and each live proxy owns exactly one retention of the
// foreign object. Messages are sent dynamically using signatures derived
// from the runtime's type encodings.
package bridge

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/objcbridge/abi"
	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/encoding"
	"github.com/chazu/objcbridge/objcrt"
)

var log = commonlog.GetLogger("objcbridge.bridge")

// Decoder turns the runtime's encoding strings into structured types.
type Decoder interface {
	DecodeType(s string) (encoding.Type, error)
	DecodeMethodSignature(s string) (ret encoding.Type, args []encoding.Type, err error)
	DecodeProperty(s string) (*encoding.PropertyAttributes, error)
}

type standardDecoder struct{}

func (standardDecoder) DecodeType(s string) (encoding.Type, error) {
	return encoding.Decode(s)
}

func (standardDecoder) DecodeMethodSignature(s string) (encoding.Type, []encoding.Type, error) {
	return encoding.DecodeMethodSignature(s)
}

func (standardDecoder) DecodeProperty(s string) (*encoding.PropertyAttributes, error) {
	return encoding.DecodeProperty(s)
}

// NameRegistry supplies curated public method names per class. It is only
// used to list attribute names.
type NameRegistry interface {
	PublicMethods(className string) (classMethods, instanceMethods []string, ok bool)
}

// Option configures a Bridge.
type Option func(*config)

type config struct {
	arch    abi.Arch
	decoder Decoder
	names   NameRegistry
}

// WithArch sets the target architecture. The default is abi.Host().
func WithArch(a abi.Arch) Option {
	return func(c *config) { c.arch = a }
}

// WithDecoder replaces the encoding decoder.
func WithDecoder(d Decoder) Option {
	return func(c *config) { c.decoder = d }
}

// WithNameRegistry sets the registry consulted by AttrNames.
func WithNameRegistry(r NameRegistry) Option {
	return func(c *config) { c.names = r }
}

// wellKnown holds class addresses the coercion layer dispatches on. Any of
// them may be zero when Foundation is not loaded.
type wellKnown struct {
	NSObject     objcrt.Address
	NSString     objcrt.Address
	NSData       objcrt.Address
	NSArray      objcrt.Address
	NSDictionary objcrt.Address
	NSSet        objcrt.Address
	NSNumber     objcrt.Address
	Protocol     objcrt.Address
}

// Bridge is the entry point to a foreign runtime. It is safe for concurrent
// use.
type Bridge struct {
	rt      objcrt.Runtime
	ffi     objcrt.FFI
	arch    abi.Arch
	decoder Decoder
	names   NameRegistry

	// entry maps entry point symbol names to addresses. Read-only after New.
	entry map[string]objcrt.Address

	objects    internTable[Object]
	selectors  internTable[Selector]
	ivars      internTable[Ivar]
	methods    internTable[Method]
	properties internTable[Property]

	// Resolved once so that releasing a proxy never needs a table lookup.
	retainSel  objcrt.Address
	releaseSel objcrt.Address
	retainSig  *ctype.Func
	releaseSig *ctype.Func

	known wellKnown

	classes   *Namespace
	protocols *Namespace
}

// New creates a Bridge over rt and ffi.
func New(rt objcrt.Runtime, ffi objcrt.FFI, opts ...Option) (*Bridge, error) {
	cfg := &config{
		arch:    abi.Host(),
		decoder: standardDecoder{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := &Bridge{
		rt:      rt,
		ffi:     ffi,
		arch:    cfg.arch,
		decoder: cfg.decoder,
		names:   cfg.names,
		entry:   make(map[string]objcrt.Address),
	}
	b.objects.name = "object"
	b.selectors.name = "selector"
	b.ivars.name = "ivar"
	b.methods.name = "method"
	b.properties.name = "property"

	for _, name := range []string{abi.MsgSend, abi.MsgSendSuper, abi.MethodInvoke} {
		for _, sym := range []string{name, name + "_stret"} {
			addr, err := ffi.Symbol(sym)
			if err != nil || addr == 0 {
				continue
			}
			b.entry[sym] = addr
		}
	}
	if b.entry[abi.MsgSend] == 0 {
		return nil, fmt.Errorf("bridge: resolve %s: %w", abi.MsgSend, ErrNotFound)
	}
	log.Debugf("resolved %d entry points for %s", len(b.entry), b.arch.Name)

	var err error
	b.retainSel = rt.RegisterSelector("retain")
	b.releaseSel = rt.RegisterSelector("release")
	if b.retainSig, err = ctype.NewFunc(ctype.ID, []*ctype.Type{ctype.ID, ctype.SEL}); err != nil {
		return nil, err
	}
	if b.releaseSig, err = ctype.NewFunc(ctype.Void, []*ctype.Type{ctype.ID, ctype.SEL}); err != nil {
		return nil, err
	}

	b.known = wellKnown{
		NSObject:     rt.LookUpClass("NSObject"),
		NSString:     rt.LookUpClass("NSString"),
		NSData:       rt.LookUpClass("NSData"),
		NSArray:      rt.LookUpClass("NSArray"),
		NSDictionary: rt.LookUpClass("NSDictionary"),
		NSSet:        rt.LookUpClass("NSSet"),
		NSNumber:     rt.LookUpClass("NSNumber"),
		Protocol:     rt.LookUpClass("Protocol"),
	}

	b.classes = newNamespace("class", b.Class)
	b.protocols = newNamespace("protocol", b.Protocol)
	return b, nil
}

// Arch returns the target architecture.
func (b *Bridge) Arch() abi.Arch { return b.arch }

// Runtime returns the underlying runtime API.
func (b *Bridge) Runtime() objcrt.Runtime { return b.rt }

// Classes returns the class namespace.
func (b *Bridge) Classes() *Namespace { return b.classes }

// Protocols returns the protocol namespace.
func (b *Bridge) Protocols() *Namespace { return b.protocols }

// ---------------------------------------------------------------------------
// Lookup by name
// ---------------------------------------------------------------------------

// Class looks up a class by name.
func (b *Bridge) Class(name string) (*Object, error) {
	addr := b.rt.LookUpClass(name)
	if addr == 0 {
		return nil, fmt.Errorf("class %q: %w", name, ErrNotFound)
	}
	return b.ClassAt(addr, true)
}

// MetaClass looks up the metaclass of the named class.
func (b *Bridge) MetaClass(name string) (*Object, error) {
	cls := b.rt.LookUpClass(name)
	if cls == 0 {
		return nil, fmt.Errorf("metaclass %q: %w", name, ErrNotFound)
	}
	return b.MetaClassAt(b.rt.ObjectClass(cls), true)
}

// Protocol looks up a protocol by name.
func (b *Bridge) Protocol(name string) (*Object, error) {
	addr := b.rt.LookUpProtocol(name)
	if addr == 0 {
		return nil, fmt.Errorf("protocol %q: %w", name, ErrNotFound)
	}
	return b.ProtocolAt(addr, true)
}

// ---------------------------------------------------------------------------
// Ownership primitives
// ---------------------------------------------------------------------------

func (b *Bridge) retainAddr(addr objcrt.Address) error {
	_, err := b.ffi.Call(b.entry[abi.MsgSend], b.retainSig, []any{addr, b.retainSel})
	if err != nil {
		return fmt.Errorf("retain %s: %w", addr, err)
	}
	return nil
}

func (b *Bridge) releaseAddr(addr objcrt.Address) error {
	_, err := b.ffi.Call(b.entry[abi.MsgSend], b.releaseSig, []any{addr, b.releaseSel})
	if err != nil {
		return fmt.Errorf("release %s: %w", addr, err)
	}
	return nil
}

// CacheStats reports the number of entries in each identity cache. Entries
// for collected proxies are counted until their cleanup runs.
type CacheStats struct {
	Objects    int
	Selectors  int
	Ivars      int
	Methods    int
	Properties int
}

// CacheStats returns the current cache sizes.
func (b *Bridge) CacheStats() CacheStats {
	return CacheStats{
		Objects:    b.objects.len(),
		Selectors:  b.selectors.len(),
		Ivars:      b.ivars.len(),
		Methods:    b.methods.len(),
		Properties: b.properties.len(),
	}
}
