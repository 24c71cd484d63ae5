// Package objctest provides an in-memory runtime for tests. It implements
// both objcrt.Runtime and objcrt.FFI, supports defining classes, methods,
// ivars, properties and protocols from Go, and installs a small Foundation
// (NSObject, NSString, NSData, NSArray, NSDictionary, NSSet, NSNumber,
// NSBlock and Protocol). Callbacks and allocations make it an
// objcrt.Callbacks too.
//
// The runtime counts every foreign call and every retain and release
// message so tests can check ownership and the absence of calls.
package objctest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/objcbridge/encoding"
	"github.com/chazu/objcbridge/objcrt"
)

// Address is shorthand for objcrt.Address.
type Address = objcrt.Address

// Impl implements a method. Args hold the message arguments in canonical
// form, without the receiver and selector.
type Impl func(c *Call) (any, error)

// Call describes one method invocation.
type Call struct {
	RT   *Runtime
	Self Address
	Sel  string
	Args []any
}

type class struct {
	addr      Address
	name      string
	super     *class
	meta      *class // nil for metaclasses
	isMeta    bool
	size      uintptr
	version   int
	ivars     []*ivar
	methods   []*method
	props     []*property
	protocols []*protocol
}

type method struct {
	addr  Address
	sel   Address
	types string
	imp   Address
}

type ivar struct {
	addr   Address
	name   string
	types  string
	offset uintptr
}

type property struct {
	addr  Address
	name  string
	attrs string
}

type protocol struct {
	addr      Address
	name      string
	protocols []*protocol
}

type object struct {
	addr    Address
	cls     *class
	rc      int
	payload any
}

type assocKey struct{ obj, key Address }

// Runtime is the in-memory runtime. It is safe for concurrent use.
type Runtime struct {
	mu   sync.Mutex
	next Address

	classes     map[string]*class
	classAddrs  map[Address]*class
	protocols   map[string]*protocol
	protoAddrs  map[Address]*protocol
	selectors   map[string]Address
	selNames    map[Address]string
	objects     map[Address]*object
	methods     map[Address]*method
	ivars       map[Address]*ivar
	props       map[Address]*property
	impls       map[Address]Impl
	memory      map[Address]any
	cstrings    map[Address]string
	buffers     map[Address][]byte
	assoc       map[assocKey]Address
	symbols     map[string]Address
	symbolNames map[Address]string
	callbacks   map[Address]callback
	allocs      map[Address]int

	calls     int
	sends     map[string]int
	retains   map[Address]int
	releases  map[Address]int
	lastEntry string
}

// New returns a runtime with the mini Foundation installed.
func New() *Runtime {
	rt := &Runtime{
		next:        0x10000,
		classes:     make(map[string]*class),
		classAddrs:  make(map[Address]*class),
		protocols:   make(map[string]*protocol),
		protoAddrs:  make(map[Address]*protocol),
		selectors:   make(map[string]Address),
		selNames:    make(map[Address]string),
		objects:     make(map[Address]*object),
		methods:     make(map[Address]*method),
		ivars:       make(map[Address]*ivar),
		props:       make(map[Address]*property),
		impls:       make(map[Address]Impl),
		memory:      make(map[Address]any),
		cstrings:    make(map[Address]string),
		buffers:     make(map[Address][]byte),
		assoc:       make(map[assocKey]Address),
		symbols:     make(map[string]Address),
		symbolNames: make(map[Address]string),
		callbacks:   make(map[Address]callback),
		allocs:      make(map[Address]int),
		sends:       make(map[string]int),
		retains:     make(map[Address]int),
		releases:    make(map[Address]int),
	}
	for _, name := range entryPoints {
		addr := rt.allocLocked()
		rt.symbols[name] = addr
		rt.symbolNames[addr] = name
	}
	installFoundation(rt)
	return rt
}

var entryPoints = []string{
	"objc_msgSend", "objc_msgSend_stret",
	"objc_msgSendSuper", "objc_msgSendSuper_stret",
	"method_invoke", "method_invoke_stret",
}

// allocLocked hands out a fresh address. Addresses are spaced so that
// ivar offsets within an object never collide with another object.
func (rt *Runtime) allocLocked() Address {
	a := rt.next
	rt.next += 0x100
	return a
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// DefineClass creates a class and its metaclass. An empty super makes a
// root class.
func (rt *Runtime) DefineClass(name, super string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.classes[name]; ok {
		panic(fmt.Sprintf("objctest: class %s already defined", name))
	}
	var sup *class
	if super != "" {
		sup = rt.classes[super]
		if sup == nil {
			panic(fmt.Sprintf("objctest: unknown superclass %s", super))
		}
	}
	cls := &class{addr: rt.allocLocked(), name: name, super: sup, size: 8}
	meta := &class{addr: rt.allocLocked(), name: name, isMeta: true, size: 8}
	cls.meta = meta
	if sup != nil {
		cls.size = sup.size
		meta.super = sup.meta
	} else {
		meta.super = cls
	}
	rt.classes[name] = cls
	rt.classAddrs[cls.addr] = cls
	rt.classAddrs[meta.addr] = meta
	return cls.addr
}

// Meta returns the metaclass of cls.
func (rt *Runtime) Meta(cls Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.mustClassLocked(cls).meta.addr
}

func (rt *Runtime) mustClassLocked(addr Address) *class {
	c := rt.classAddrs[addr]
	if c == nil {
		panic(fmt.Sprintf("objctest: %s is not a class", addr))
	}
	return c
}

// AddMethod adds an instance method to cls, or a class method when cls is a
// metaclass.
func (rt *Runtime) AddMethod(cls Address, sel, types string, impl Impl) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c := rt.mustClassLocked(cls)
	m := &method{
		addr:  rt.allocLocked(),
		sel:   rt.registerLocked(sel),
		types: types,
		imp:   rt.allocLocked(),
	}
	rt.impls[m.imp] = impl
	rt.methods[m.addr] = m
	c.methods = append(c.methods, m)
	return m.addr
}

// AddClassMethod adds a class method to cls.
func (rt *Runtime) AddClassMethod(cls Address, sel, types string, impl Impl) Address {
	return rt.AddMethod(rt.Meta(cls), sel, types, impl)
}

// AddIvar adds an instance variable. Every ivar occupies eight bytes.
func (rt *Runtime) AddIvar(cls Address, name, types string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c := rt.mustClassLocked(cls)
	iv := &ivar{addr: rt.allocLocked(), name: name, types: types, offset: c.size}
	c.size += 8
	rt.ivars[iv.addr] = iv
	c.ivars = append(c.ivars, iv)
	return iv.addr
}

// AddProperty declares a property with the given attribute string.
func (rt *Runtime) AddProperty(cls Address, name, attrs string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c := rt.mustClassLocked(cls)
	p := &property{addr: rt.allocLocked(), name: name, attrs: attrs}
	rt.props[p.addr] = p
	c.props = append(c.props, p)
	return p.addr
}

// DefineProtocol creates a protocol incorporating the named protocols.
func (rt *Runtime) DefineProtocol(name string, incorporates ...string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p := &protocol{addr: rt.allocLocked(), name: name}
	for _, in := range incorporates {
		q := rt.protocols[in]
		if q == nil {
			panic(fmt.Sprintf("objctest: unknown protocol %s", in))
		}
		p.protocols = append(p.protocols, q)
	}
	rt.protocols[name] = p
	rt.protoAddrs[p.addr] = p
	rt.objects[p.addr] = &object{addr: p.addr, cls: rt.classes["Protocol"], rc: 1}
	return p.addr
}

// AdoptProtocol records that cls adopts proto.
func (rt *Runtime) AdoptProtocol(cls, proto Address) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c := rt.mustClassLocked(cls)
	c.protocols = append(c.protocols, rt.protoAddrs[proto])
}

// NewObject creates an instance of cls holding payload, with a reference
// count of one.
func (rt *Runtime) NewObject(cls Address, payload any) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.newObjectLocked(rt.mustClassLocked(cls), payload)
}

func (rt *Runtime) newObjectLocked(c *class, payload any) Address {
	o := &object{addr: rt.allocLocked(), cls: c, rc: 1, payload: payload}
	rt.objects[o.addr] = o
	return o.addr
}

// NewInstance creates an instance of the named class.
func (rt *Runtime) NewInstance(className string, payload any) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c := rt.classes[className]
	if c == nil {
		panic(fmt.Sprintf("objctest: unknown class %s", className))
	}
	return rt.newObjectLocked(c, payload)
}

// Payload returns the Go value stored with an object.
func (rt *Runtime) Payload(obj Address) any {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if o := rt.objects[obj]; o != nil {
		return o.payload
	}
	return nil
}

// NewCString stores s and returns its address.
func (rt *Runtime) NewCString(s string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	a := rt.allocLocked()
	rt.cstrings[a] = s
	return a
}

// NewBuffer stores a copy of data and returns its address.
func (rt *Runtime) NewBuffer(data []byte) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	a := rt.allocLocked()
	rt.buffers[a] = append([]byte(nil), data...)
	return a
}

// Dealloc forgets an object, as if it had been freed.
func (rt *Runtime) Dealloc(obj Address) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.objects, obj)
}

// ---------------------------------------------------------------------------
// Counters
// ---------------------------------------------------------------------------

// Calls returns the number of FFI calls made so far.
func (rt *Runtime) Calls() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.calls
}

// Sends returns how many times sel was sent.
func (rt *Runtime) Sends(sel string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.sends[sel]
}

// Retains returns the number of retain messages sent to obj.
func (rt *Runtime) Retains(obj Address) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.retains[obj]
}

// Releases returns the number of release messages sent to obj.
func (rt *Runtime) Releases(obj Address) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.releases[obj]
}

// RefCount returns obj's current reference count.
func (rt *Runtime) RefCount(obj Address) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if o := rt.objects[obj]; o != nil {
		return o.rc
	}
	return 0
}

// LastEntryPoint returns the symbol name of the most recent call.
func (rt *Runtime) LastEntryPoint() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastEntry
}

// ---------------------------------------------------------------------------
// objcrt.Runtime
// ---------------------------------------------------------------------------

func (rt *Runtime) LookUpClass(name string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c := rt.classes[name]; c != nil {
		return c.addr
	}
	return 0
}

func (rt *Runtime) LookUpProtocol(name string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if p := rt.protocols[name]; p != nil {
		return p.addr
	}
	return 0
}

func (rt *Runtime) RegisterSelector(name string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.registerLocked(name)
}

func (rt *Runtime) registerLocked(name string) Address {
	if a, ok := rt.selectors[name]; ok {
		return a
	}
	a := rt.allocLocked()
	rt.selectors[name] = a
	rt.selNames[a] = name
	return a
}

func (rt *Runtime) SelectorName(sel Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.selNames[sel]
}

func (rt *Runtime) SelectorIsMapped(sel Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.selNames[sel]
	return ok
}

func (rt *Runtime) ObjectClass(obj Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c := rt.isaLocked(obj); c != nil {
		return c.addr
	}
	return 0
}

// isaLocked returns the class an address dispatches through.
func (rt *Runtime) isaLocked(addr Address) *class {
	if c := rt.classAddrs[addr]; c != nil {
		if !c.isMeta {
			return c.meta
		}
		root := c
		for root.super != nil && root.super.isMeta {
			root = root.super
		}
		return root
	}
	if o := rt.objects[addr]; o != nil {
		return o.cls
	}
	// Allocated memory whose first word is a class is an object laid out
	// by the caller, such as a block literal.
	if _, ok := rt.allocs[addr]; ok {
		if isa, ok := rt.memory[addr].(Address); ok {
			if c := rt.classAddrs[isa]; c != nil && !c.isMeta {
				return c
			}
		}
	}
	return nil
}

func (rt *Runtime) ObjectIsClass(obj Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.classAddrs[obj]
	return ok
}

func (rt *Runtime) ClassName(cls Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c := rt.classAddrs[cls]; c != nil {
		return c.name
	}
	return ""
}

func (rt *Runtime) ClassSuperclass(cls Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c := rt.classAddrs[cls]; c != nil && c.super != nil {
		return c.super.addr
	}
	return 0
}

func (rt *Runtime) ClassIsMetaClass(cls Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c := rt.classAddrs[cls]
	return c != nil && c.isMeta
}

func (rt *Runtime) ClassInstanceSize(cls Address) uintptr {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c := rt.classAddrs[cls]; c != nil {
		return c.size
	}
	return 0
}

func (rt *Runtime) ClassVersion(cls Address) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c := rt.classAddrs[cls]; c != nil {
		return c.version
	}
	return 0
}

func (rt *Runtime) ClassIvars(cls Address) []Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []Address
	if c := rt.classAddrs[cls]; c != nil {
		for _, iv := range c.ivars {
			out = append(out, iv.addr)
		}
	}
	return out
}

func (rt *Runtime) ClassMethods(cls Address) []Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []Address
	if c := rt.classAddrs[cls]; c != nil {
		for _, m := range c.methods {
			out = append(out, m.addr)
		}
	}
	return out
}

func (rt *Runtime) ClassProperties(cls Address) []Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []Address
	if c := rt.classAddrs[cls]; c != nil {
		for _, p := range c.props {
			out = append(out, p.addr)
		}
	}
	return out
}

func (rt *Runtime) ClassProtocols(cls Address) []Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []Address
	if c := rt.classAddrs[cls]; c != nil {
		for _, p := range c.protocols {
			out = append(out, p.addr)
		}
	}
	return out
}

func (rt *Runtime) ClassInstanceVariable(cls Address, name string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for c := rt.classAddrs[cls]; c != nil; c = c.super {
		for _, iv := range c.ivars {
			if iv.name == name {
				return iv.addr
			}
		}
	}
	return 0
}

func (rt *Runtime) ClassInstanceMethod(cls, sel Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if m := rt.findMethodLocked(rt.classAddrs[cls], sel); m != nil {
		return m.addr
	}
	return 0
}

func (rt *Runtime) findMethodLocked(c *class, sel Address) *method {
	for ; c != nil; c = c.super {
		for _, m := range c.methods {
			if m.sel == sel {
				return m
			}
		}
	}
	return nil
}

func (rt *Runtime) ClassProperty(cls Address, name string) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for c := rt.classAddrs[cls]; c != nil; c = c.super {
		for _, p := range c.props {
			if p.name == name {
				return p.addr
			}
		}
	}
	return 0
}

func (rt *Runtime) ClassRespondsToSelector(cls, sel Address) bool {
	return rt.ClassInstanceMethod(cls, sel) != 0
}

// ClassConformsToProtocol only reports protocols adopted by cls itself.
func (rt *Runtime) ClassConformsToProtocol(cls, proto Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c := rt.classAddrs[cls]; c != nil {
		for _, p := range c.protocols {
			if p.addr == proto {
				return true
			}
		}
	}
	return false
}

func (rt *Runtime) IvarName(iv Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.ivars[iv]; v != nil {
		return v.name
	}
	return ""
}

func (rt *Runtime) IvarOffset(iv Address) uintptr {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.ivars[iv]; v != nil {
		return v.offset
	}
	return 0
}

func (rt *Runtime) IvarTypeEncoding(iv Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.ivars[iv]; v != nil {
		return v.types
	}
	return ""
}

func (rt *Runtime) MethodSelector(m Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.methods[m]; v != nil {
		return v.sel
	}
	return 0
}

func (rt *Runtime) MethodTypeEncoding(m Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.methods[m]; v != nil {
		return v.types
	}
	return ""
}

func (rt *Runtime) MethodArgumentCount(m Address) int {
	_, args, err := encoding.DecodeMethodSignature(rt.MethodTypeEncoding(m))
	if err != nil {
		return 0
	}
	return len(args)
}

func (rt *Runtime) MethodImplementation(m Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.methods[m]; v != nil {
		return v.imp
	}
	return 0
}

func (rt *Runtime) SetMethodImplementation(m, imp Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	v := rt.methods[m]
	if v == nil {
		return 0
	}
	old := v.imp
	v.imp = imp
	return old
}

func (rt *Runtime) ExchangeImplementations(m1, m2 Address) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	a, b := rt.methods[m1], rt.methods[m2]
	if a == nil || b == nil {
		return
	}
	a.imp, b.imp = b.imp, a.imp
}

func (rt *Runtime) PropertyName(p Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.props[p]; v != nil {
		return v.name
	}
	return ""
}

func (rt *Runtime) PropertyAttributes(p Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.props[p]; v != nil {
		return v.attrs
	}
	return ""
}

func (rt *Runtime) ProtocolName(p Address) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if v := rt.protoAddrs[p]; v != nil {
		return v.name
	}
	return ""
}

func (rt *Runtime) ProtocolProtocols(p Address) []Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []Address
	if v := rt.protoAddrs[p]; v != nil {
		for _, q := range v.protocols {
			out = append(out, q.addr)
		}
	}
	return out
}

// ProtocolConformsToProtocol only looks at directly incorporated protocols.
func (rt *Runtime) ProtocolConformsToProtocol(p, other Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if p == other {
		return true
	}
	if v := rt.protoAddrs[p]; v != nil {
		for _, q := range v.protocols {
			if q.addr == other {
				return true
			}
		}
	}
	return false
}

func (rt *Runtime) ProtocolIsEqual(p, other Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if p == other {
		return true
	}
	a, b := rt.protoAddrs[p], rt.protoAddrs[other]
	return a != nil && b != nil && a.name == b.name
}

func (rt *Runtime) AssociatedObject(obj, key Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.assoc[assocKey{obj, key}]
}

func (rt *Runtime) SetAssociatedObject(obj, key, value Address, policy objcrt.AssociationPolicy) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	k := assocKey{obj, key}
	if old := rt.assoc[k]; old != 0 && policy != objcrt.AssociationAssign {
		if o := rt.objects[old]; o != nil {
			o.rc--
		}
	}
	if value == 0 {
		delete(rt.assoc, k)
		return
	}
	rt.assoc[k] = value
	if policy != objcrt.AssociationAssign {
		if o := rt.objects[value]; o != nil {
			o.rc++
		}
	}
}

// ClassNames returns the names of all defined classes, sorted.
func (rt *Runtime) ClassNames() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.classes))
	for name := range rt.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
