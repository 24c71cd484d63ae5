package objcrt

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/objcbridge/ctype"
)

// ErrBadValue is returned when a Go value cannot represent a parameter of
// the requested type.
var ErrBadValue = errors.New("value does not fit type")

// Canonical converts v to the canonical representation for t. Integer
// values are range checked against their target class; nil is accepted for
// pointers.
func Canonical(t *ctype.Type, v any) (any, error) {
	switch t.Kind() {
	case ctype.KindStruct, ctype.KindUnion, ctype.KindArray:
		if _, ok := v.([]byte); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %T as %s", ErrBadValue, v, t)
	case ctype.KindVoid, ctype.KindOpaque, ctype.KindVariadic:
		return nil, fmt.Errorf("%w: no value of type %s", ErrBadValue, t)
	}

	switch t.Class() {
	case ctype.ClassSigned:
		if n, ok := asInt(v); ok && fitsSigned(t, n) {
			return n, nil
		}
	case ctype.ClassUnsigned:
		if n, ok := asUint(v); ok && fitsUnsigned(t, n) {
			return n, nil
		}
	case ctype.ClassChar:
		switch c := v.(type) {
		case byte:
			return c, nil
		case int8:
			return byte(c), nil
		}
		if n, ok := asInt(v); ok && n >= math.MinInt8 && n <= math.MaxUint8 {
			return byte(n), nil
		}
	case ctype.ClassFloat:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
		if n, ok := asInt(v); ok {
			return float64(n), nil
		}
	case ctype.ClassBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ctype.ClassPointer:
		switch p := v.(type) {
		case nil:
			return Address(0), nil
		case Address:
			return p, nil
		case uintptr:
			return Address(p), nil
		case string, []byte, []Address:
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %T as %s", ErrBadValue, v, t)
}

// width returns the size in bits of an integer type. Model dependent
// types are measured at their widest.
func width(t *ctype.Type) int {
	size, err := t.Size(ctype.LP64)
	if err != nil || size <= 0 || size >= 8 {
		return 64
	}
	return size * 8
}

func fitsSigned(t *ctype.Type, n int64) bool {
	w := width(t)
	if w == 64 {
		return true
	}
	return n >= -1<<(w-1) && n < 1<<(w-1)
}

func fitsUnsigned(t *ctype.Type, n uint64) bool {
	w := width(t)
	return w == 64 || n < 1<<w
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uintptr:
		return uint64(n), true
	}
	if n, ok := asInt(v); ok && n >= 0 {
		return uint64(n), true
	}
	return 0, false
}
