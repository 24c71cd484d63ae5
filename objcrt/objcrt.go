// Package objcrt defines the boundary between the bridge and the external
// runtime: the introspection API (Runtime) and the foreign-function layer
// (FFI). Implementations live in objcrt/darwin (the real runtime) and
// objcrt/objctest (an in-memory stand-in for tests).
//
// Values crossing the boundary use a small set of canonical Go
// representations, chosen by the descriptor's ctype.Class:
//
//	ClassSigned    int64
//	ClassUnsigned  uint64
//	ClassChar      byte
//	ClassFloat     float64
//	ClassBool      bool
//	ClassPointer   Address
//
// Pointer parameters additionally accept a Go string (char *), a []byte and
// an []Address, which the FFI passes as a pointer to a temporary copy valid
// for the duration of the call. Structs, unions and arrays are passed as
// []byte holding their native layout.
package objcrt

import (
	"fmt"

	"github.com/chazu/objcbridge/ctype"
)

// Address is an opaque foreign pointer. The zero Address is nil.
type Address uintptr

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uintptr(a))
}

// Value is a raw call result or memory load: data in its canonical
// representation together with the descriptor it was read as.
type Value struct {
	Type *ctype.Type
	Data any
}

// AssociationPolicy mirrors objc_AssociationPolicy.
type AssociationPolicy uintptr

const (
	AssociationAssign          AssociationPolicy = 0
	AssociationRetainNonatomic AssociationPolicy = 1
	AssociationCopyNonatomic   AssociationPolicy = 3
	AssociationRetain          AssociationPolicy = 01401
	AssociationCopy            AssociationPolicy = 01403
)

// FFI calls C functions by address and accesses typed memory.
type FFI interface {
	// Symbol resolves an exported function.
	Symbol(name string) (Address, error)

	// Call invokes fn with the exact signature sig. args are in canonical
	// form, one per parameter (plus any variadic extras).
	Call(fn Address, sig *ctype.Func, args []any) (Value, error)

	// Load reads a value of type t at addr.
	Load(addr Address, t *ctype.Type) (any, error)

	// Store writes v, in canonical form, as type t at addr.
	Store(addr Address, t *ctype.Type, v any) error

	// CString copies the NUL-terminated string at addr.
	CString(addr Address) string

	// Bytes copies n bytes starting at addr.
	Bytes(addr Address, n int) []byte
}

// Runtime is the runtime's introspection API. Methods never fail: lookups
// that find nothing return the zero Address, an empty string or a nil slice.
// List methods return Go-owned copies; implementations free any C storage.
type Runtime interface {
	LookUpClass(name string) Address
	LookUpProtocol(name string) Address

	RegisterSelector(name string) Address
	SelectorName(sel Address) string
	SelectorIsMapped(sel Address) bool

	ObjectClass(obj Address) Address
	ObjectIsClass(obj Address) bool

	ClassName(cls Address) string
	ClassSuperclass(cls Address) Address
	ClassIsMetaClass(cls Address) bool
	ClassInstanceSize(cls Address) uintptr
	ClassVersion(cls Address) int
	ClassIvars(cls Address) []Address
	ClassMethods(cls Address) []Address
	ClassProperties(cls Address) []Address
	ClassProtocols(cls Address) []Address
	ClassInstanceVariable(cls Address, name string) Address
	ClassInstanceMethod(cls, sel Address) Address
	ClassProperty(cls Address, name string) Address
	ClassRespondsToSelector(cls, sel Address) bool
	ClassConformsToProtocol(cls, proto Address) bool

	IvarName(ivar Address) string
	IvarOffset(ivar Address) uintptr
	IvarTypeEncoding(ivar Address) string

	MethodSelector(m Address) Address
	MethodTypeEncoding(m Address) string
	MethodArgumentCount(m Address) int
	MethodImplementation(m Address) Address
	SetMethodImplementation(m, imp Address) Address
	ExchangeImplementations(m1, m2 Address)

	PropertyName(p Address) string
	PropertyAttributes(p Address) string

	ProtocolName(p Address) string
	ProtocolProtocols(p Address) []Address
	ProtocolConformsToProtocol(p, other Address) bool
	ProtocolIsEqual(p, other Address) bool

	AssociatedObject(obj, key Address) Address
	SetAssociatedObject(obj, key, value Address, policy AssociationPolicy)
}

// CallbackFunc receives the arguments of a foreign call in canonical form
// and returns its result, nil for void.
type CallbackFunc func(args []any) (any, error)

// Callbacks is implemented by FFIs that can hand Go functions and
// long-lived memory to foreign code.
type Callbacks interface {
	// NewCallback returns a function pointer with signature sig that runs
	// fn. Callbacks are never freed.
	NewCallback(sig *ctype.Func, fn CallbackFunc) (Address, error)

	// Alloc returns n zeroed bytes of foreign memory that are never freed.
	Alloc(n int) (Address, error)
}
