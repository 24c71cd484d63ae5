//go:build darwin

// Package darwin binds the Objective-C runtime library with purego.
package darwin

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/tliron/commonlog"

	"github.com/chazu/objcbridge/abi"
	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

const libSystem = "/usr/lib/libSystem.B.dylib"

var log = commonlog.GetLogger("objcbridge.darwin")

// Runtime is the libobjc-backed implementation of objcrt.Runtime and
// objcrt.FFI.
type Runtime struct {
	memory
	lib uintptr

	// calls caches the compiled trampolines, keyed by address and Go type.
	calls sync.Map

	lookUpClass           func(name string) uintptr
	getProtocol           func(name string) uintptr
	selRegisterName       func(name string) uintptr
	selGetName            func(sel uintptr) string
	selIsMapped           func(sel uintptr) bool
	objectGetClass        func(obj uintptr) uintptr
	objectIsClass         func(obj uintptr) bool
	classGetName          func(cls uintptr) string
	classGetSuperclass    func(cls uintptr) uintptr
	classIsMetaClass      func(cls uintptr) bool
	classGetInstanceSize  func(cls uintptr) uintptr
	classGetVersion       func(cls uintptr) int32
	classCopyIvarList     func(cls uintptr, n *uint32) uintptr
	classCopyMethodList   func(cls uintptr, n *uint32) uintptr
	classCopyPropertyList func(cls uintptr, n *uint32) uintptr
	classCopyProtocolList func(cls uintptr, n *uint32) uintptr
	classGetIvar          func(cls uintptr, name string) uintptr
	classGetMethod        func(cls, sel uintptr) uintptr
	classGetProperty      func(cls uintptr, name string) uintptr
	classRespondsTo       func(cls, sel uintptr) bool
	classConformsTo       func(cls, proto uintptr) bool
	ivarGetName           func(iv uintptr) string
	ivarGetOffset         func(iv uintptr) uintptr
	ivarGetTypeEncoding   func(iv uintptr) string
	methodGetName         func(m uintptr) uintptr
	methodGetTypeEncoding func(m uintptr) string
	methodGetArgCount     func(m uintptr) uint32
	methodGetImp          func(m uintptr) uintptr
	methodSetImp          func(m, imp uintptr) uintptr
	methodExchangeImps    func(m1, m2 uintptr)
	propertyGetName       func(p uintptr) string
	propertyGetAttributes func(p uintptr) string
	protocolGetName       func(p uintptr) string
	protocolCopyList      func(p uintptr, n *uint32) uintptr
	protocolConformsTo    func(p, other uintptr) bool
	protocolIsEqual       func(p, other uintptr) bool
	getAssociatedObject   func(obj, key uintptr) uintptr
	setAssociatedObject   func(obj, key, value, policy uintptr)
	free                  func(p uintptr)
	calloc                func(n, size uintptr) uintptr
}

var (
	_ objcrt.Runtime   = (*Runtime)(nil)
	_ objcrt.FFI       = (*Runtime)(nil)
	_ objcrt.Callbacks = (*Runtime)(nil)
)

// Open loads the runtime library and any frameworks whose classes should be
// registered, such as Foundation.
func Open(library string, frameworks ...string) (objcrt.Runtime, objcrt.FFI, error) {
	r, err := open(library, frameworks)
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}

func open(library string, frameworks []string) (*Runtime, error) {
	lib, err := purego.Dlopen(library, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", library, err)
	}
	sys, err := purego.Dlopen(libSystem, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", libSystem, err)
	}
	for _, fw := range frameworks {
		if _, err := purego.Dlopen(fw, purego.RTLD_NOW|purego.RTLD_GLOBAL); err != nil {
			return nil, fmt.Errorf("loading %s: %w", fw, err)
		}
		log.Debugf("loaded %s", fw)
	}

	r := &Runtime{memory: memory{model: abi.Host().Model}, lib: lib}
	bindings := []struct {
		fptr any
		name string
	}{
		{&r.lookUpClass, "objc_lookUpClass"},
		{&r.getProtocol, "objc_getProtocol"},
		{&r.selRegisterName, "sel_registerName"},
		{&r.selGetName, "sel_getName"},
		{&r.selIsMapped, "sel_isMapped"},
		{&r.objectGetClass, "object_getClass"},
		{&r.objectIsClass, "object_isClass"},
		{&r.classGetName, "class_getName"},
		{&r.classGetSuperclass, "class_getSuperclass"},
		{&r.classIsMetaClass, "class_isMetaClass"},
		{&r.classGetInstanceSize, "class_getInstanceSize"},
		{&r.classGetVersion, "class_getVersion"},
		{&r.classCopyIvarList, "class_copyIvarList"},
		{&r.classCopyMethodList, "class_copyMethodList"},
		{&r.classCopyPropertyList, "class_copyPropertyList"},
		{&r.classCopyProtocolList, "class_copyProtocolList"},
		{&r.classGetIvar, "class_getInstanceVariable"},
		{&r.classGetMethod, "class_getInstanceMethod"},
		{&r.classGetProperty, "class_getProperty"},
		{&r.classRespondsTo, "class_respondsToSelector"},
		{&r.classConformsTo, "class_conformsToProtocol"},
		{&r.ivarGetName, "ivar_getName"},
		{&r.ivarGetOffset, "ivar_getOffset"},
		{&r.ivarGetTypeEncoding, "ivar_getTypeEncoding"},
		{&r.methodGetName, "method_getName"},
		{&r.methodGetTypeEncoding, "method_getTypeEncoding"},
		{&r.methodGetArgCount, "method_getNumberOfArguments"},
		{&r.methodGetImp, "method_getImplementation"},
		{&r.methodSetImp, "method_setImplementation"},
		{&r.methodExchangeImps, "method_exchangeImplementations"},
		{&r.propertyGetName, "property_getName"},
		{&r.propertyGetAttributes, "property_getAttributes"},
		{&r.protocolGetName, "protocol_getName"},
		{&r.protocolCopyList, "protocol_copyProtocolList"},
		{&r.protocolConformsTo, "protocol_conformsToProtocol"},
		{&r.protocolIsEqual, "protocol_isEqual"},
		{&r.getAssociatedObject, "objc_getAssociatedObject"},
		{&r.setAssociatedObject, "objc_setAssociatedObject"},
	}
	for _, b := range bindings {
		if err := register(b.fptr, lib, b.name); err != nil {
			return nil, err
		}
	}
	if err := register(&r.free, sys, "free"); err != nil {
		return nil, err
	}
	if err := register(&r.calloc, sys, "calloc"); err != nil {
		return nil, err
	}
	log.Debugf("bound %d runtime functions from %s", len(bindings), library)
	return r, nil
}

func register(fptr any, lib uintptr, name string) error {
	sym, err := purego.Dlsym(lib, name)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", name, err)
	}
	purego.RegisterFunc(fptr, sym)
	return nil
}

// copyList drains a runtime-allocated array of n pointers and frees it.
func (r *Runtime) copyList(list uintptr, n uint32) []objcrt.Address {
	if list == 0 {
		return nil
	}
	defer r.free(list)
	words := unsafe.Slice((*uintptr)(ptr(objcrt.Address(list))), n)
	out := make([]objcrt.Address, n)
	for i, w := range words {
		out[i] = objcrt.Address(w)
	}
	return out
}

// ---------------------------------------------------------------------------
// FFI
// ---------------------------------------------------------------------------

func (r *Runtime) Symbol(name string) (objcrt.Address, error) {
	sym, err := purego.Dlsym(r.lib, name)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", name, err)
	}
	return objcrt.Address(sym), nil
}

func (r *Runtime) Call(fn objcrt.Address, sig *ctype.Func, args []any) (result objcrt.Value, err error) {
	switch {
	case len(args) < len(sig.Params), !sig.Variadic && len(args) != len(sig.Params):
		return objcrt.Value{}, fmt.Errorf("call %s: %d arguments", sig, len(args))
	case sig.Variadic && len(args) > len(sig.Params) && runtime.GOARCH == "arm64":
		// Apple arm64 passes variadic arguments on the stack.
		return objcrt.Value{}, fmt.Errorf("%w: variadic call on arm64", ErrUnsupported)
	}

	ft, err := funcType(sig, args[len(sig.Params):], r.model)
	if err != nil {
		return objcrt.Value{}, err
	}
	f, err := r.trampoline(fn, ft)
	if err != nil {
		return objcrt.Value{}, err
	}

	var held pins
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if in[i], err = toValue(a, ft.In(i), &held); err != nil {
			return objcrt.Value{}, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	out := f.Call(in)
	runtime.KeepAlive(held)

	if sig.Return.Kind() == ctype.KindVoid {
		return objcrt.Value{Type: ctype.Void}, nil
	}
	return objcrt.Value{Type: sig.Return, Data: fromValue(out[0], sig.Return)}, nil
}

type trampolineKey struct {
	fn objcrt.Address
	ft reflect.Type
}

func (r *Runtime) trampoline(fn objcrt.Address, ft reflect.Type) (f reflect.Value, err error) {
	key := trampolineKey{fn, ft}
	if v, ok := r.calls.Load(key); ok {
		return v.(reflect.Value), nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrUnsupported, p)
		}
	}()
	fptr := reflect.New(ft)
	purego.RegisterFunc(fptr.Interface(), uintptr(fn))
	v, _ := r.calls.LoadOrStore(key, fptr.Elem())
	return v.(reflect.Value), nil
}

// ---------------------------------------------------------------------------
// Runtime
// ---------------------------------------------------------------------------

func (r *Runtime) LookUpClass(name string) objcrt.Address {
	return objcrt.Address(r.lookUpClass(name))
}

func (r *Runtime) LookUpProtocol(name string) objcrt.Address {
	return objcrt.Address(r.getProtocol(name))
}

func (r *Runtime) RegisterSelector(name string) objcrt.Address {
	return objcrt.Address(r.selRegisterName(name))
}

func (r *Runtime) SelectorName(sel objcrt.Address) string { return r.selGetName(uintptr(sel)) }
func (r *Runtime) SelectorIsMapped(sel objcrt.Address) bool {
	return sel != 0 && r.selIsMapped(uintptr(sel))
}

func (r *Runtime) ObjectClass(obj objcrt.Address) objcrt.Address {
	if obj == 0 {
		return 0
	}
	return objcrt.Address(r.objectGetClass(uintptr(obj)))
}

func (r *Runtime) ObjectIsClass(obj objcrt.Address) bool {
	return obj != 0 && r.objectIsClass(uintptr(obj))
}

func (r *Runtime) ClassName(cls objcrt.Address) string { return r.classGetName(uintptr(cls)) }
func (r *Runtime) ClassSuperclass(cls objcrt.Address) objcrt.Address {
	return objcrt.Address(r.classGetSuperclass(uintptr(cls)))
}
func (r *Runtime) ClassIsMetaClass(cls objcrt.Address) bool {
	return r.classIsMetaClass(uintptr(cls))
}
func (r *Runtime) ClassInstanceSize(cls objcrt.Address) uintptr {
	return r.classGetInstanceSize(uintptr(cls))
}
func (r *Runtime) ClassVersion(cls objcrt.Address) int { return int(r.classGetVersion(uintptr(cls))) }

func (r *Runtime) ClassIvars(cls objcrt.Address) []objcrt.Address {
	var n uint32
	return r.copyList(r.classCopyIvarList(uintptr(cls), &n), n)
}

func (r *Runtime) ClassMethods(cls objcrt.Address) []objcrt.Address {
	var n uint32
	return r.copyList(r.classCopyMethodList(uintptr(cls), &n), n)
}

func (r *Runtime) ClassProperties(cls objcrt.Address) []objcrt.Address {
	var n uint32
	return r.copyList(r.classCopyPropertyList(uintptr(cls), &n), n)
}

func (r *Runtime) ClassProtocols(cls objcrt.Address) []objcrt.Address {
	var n uint32
	return r.copyList(r.classCopyProtocolList(uintptr(cls), &n), n)
}

func (r *Runtime) ClassInstanceVariable(cls objcrt.Address, name string) objcrt.Address {
	return objcrt.Address(r.classGetIvar(uintptr(cls), name))
}

func (r *Runtime) ClassInstanceMethod(cls, sel objcrt.Address) objcrt.Address {
	return objcrt.Address(r.classGetMethod(uintptr(cls), uintptr(sel)))
}

func (r *Runtime) ClassProperty(cls objcrt.Address, name string) objcrt.Address {
	return objcrt.Address(r.classGetProperty(uintptr(cls), name))
}

func (r *Runtime) ClassRespondsToSelector(cls, sel objcrt.Address) bool {
	return r.classRespondsTo(uintptr(cls), uintptr(sel))
}

func (r *Runtime) ClassConformsToProtocol(cls, proto objcrt.Address) bool {
	return r.classConformsTo(uintptr(cls), uintptr(proto))
}

func (r *Runtime) IvarName(iv objcrt.Address) string       { return r.ivarGetName(uintptr(iv)) }
func (r *Runtime) IvarOffset(iv objcrt.Address) uintptr     { return r.ivarGetOffset(uintptr(iv)) }
func (r *Runtime) IvarTypeEncoding(iv objcrt.Address) string { return r.ivarGetTypeEncoding(uintptr(iv)) }

func (r *Runtime) MethodSelector(m objcrt.Address) objcrt.Address {
	return objcrt.Address(r.methodGetName(uintptr(m)))
}
func (r *Runtime) MethodTypeEncoding(m objcrt.Address) string {
	return r.methodGetTypeEncoding(uintptr(m))
}
func (r *Runtime) MethodArgumentCount(m objcrt.Address) int {
	return int(r.methodGetArgCount(uintptr(m)))
}
func (r *Runtime) MethodImplementation(m objcrt.Address) objcrt.Address {
	return objcrt.Address(r.methodGetImp(uintptr(m)))
}
func (r *Runtime) SetMethodImplementation(m, imp objcrt.Address) objcrt.Address {
	return objcrt.Address(r.methodSetImp(uintptr(m), uintptr(imp)))
}
func (r *Runtime) ExchangeImplementations(m1, m2 objcrt.Address) {
	r.methodExchangeImps(uintptr(m1), uintptr(m2))
}

func (r *Runtime) PropertyName(p objcrt.Address) string { return r.propertyGetName(uintptr(p)) }
func (r *Runtime) PropertyAttributes(p objcrt.Address) string {
	return r.propertyGetAttributes(uintptr(p))
}

func (r *Runtime) ProtocolName(p objcrt.Address) string { return r.protocolGetName(uintptr(p)) }

func (r *Runtime) ProtocolProtocols(p objcrt.Address) []objcrt.Address {
	var n uint32
	return r.copyList(r.protocolCopyList(uintptr(p), &n), n)
}

func (r *Runtime) ProtocolConformsToProtocol(p, other objcrt.Address) bool {
	return r.protocolConformsTo(uintptr(p), uintptr(other))
}

func (r *Runtime) ProtocolIsEqual(p, other objcrt.Address) bool {
	return r.protocolIsEqual(uintptr(p), uintptr(other))
}

func (r *Runtime) AssociatedObject(obj, key objcrt.Address) objcrt.Address {
	return objcrt.Address(r.getAssociatedObject(uintptr(obj), uintptr(key)))
}

func (r *Runtime) SetAssociatedObject(obj, key, value objcrt.Address, policy objcrt.AssociationPolicy) {
	r.setAssociatedObject(uintptr(obj), uintptr(key), uintptr(value), uintptr(policy))
}
