package ctype

import (
	"fmt"
	"strings"
)

// Func is a callable C function signature.
type Func struct {
	Return *Type
	Params []*Type
	// Variadic is set when the declared parameter list ended with the
	// Variadic marker. The marker itself is not kept in Params.
	Variadic bool
}

// NewFunc validates a signature and returns it. params may end with
// Variadic; the marker anywhere else is an error, as is an array or
// incomplete return type and an incomplete by-value parameter.
func NewFunc(ret *Type, params []*Type) (*Func, error) {
	switch {
	case ret == nil:
		return nil, fmt.Errorf("%w: missing return type", ErrInvalidSignature)
	case ret.kind == KindArray:
		return nil, fmt.Errorf("%w: cannot return array %s", ErrInvalidSignature, ret)
	case ret.kind == KindVariadic:
		return nil, fmt.Errorf("%w: cannot return %s", ErrInvalidSignature, ret)
	case ret.kind != KindVoid && !ret.complete:
		return nil, fmt.Errorf("%w: return type %s: %w", ErrInvalidSignature, ret, ErrIncomplete)
	}

	fn := &Func{Return: ret}
	for i, p := range params {
		if p == Variadic {
			if i != len(params)-1 {
				return nil, fmt.Errorf("%w: '...' must be the last parameter", ErrInvalidSignature)
			}
			fn.Variadic = true
			break
		}
		if p.kind == KindVoid {
			return nil, fmt.Errorf("%w: parameter %d is void", ErrInvalidSignature, i)
		}
		if !p.complete {
			return nil, fmt.Errorf("%w: parameter %d %s: %w", ErrInvalidSignature, i, p, ErrIncomplete)
		}
		fn.Params = append(fn.Params, p)
	}
	return fn, nil
}

// String returns the C spelling of a pointer to the function type, for
// example "id (*)(id, SEL, int)".
func (f *Func) String() string {
	parts := make([]string, 0, len(f.Params)+1)
	for _, p := range f.Params {
		parts = append(parts, p.String())
	}
	if f.Variadic {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("%s (*)(%s)", f.Return, strings.Join(parts, ", "))
}
