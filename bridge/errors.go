package bridge

import "errors"

// Lookup errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrNilAddress        = errors.New("nil address")
)

// Type errors.
var (
	ErrTypeMismatch = errors.New("type mismatch")
	ErrInternalType = errors.New("internal type cannot be used at top level")
	ErrReadOnly     = errors.New("property is read-only")
)

// Call errors.
var (
	ErrArity           = errors.New("argument count mismatch")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrSignature       = errors.New("cannot determine method signature")
	ErrNotResponding   = errors.New("receiver does not respond to selector")
	ErrNoCallbacks     = errors.New("FFI cannot create callbacks")
)

// ErrReleased is returned when using an object proxy after its last handle
// was released.
var ErrReleased = errors.New("object proxy has been released")
