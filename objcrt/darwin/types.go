package darwin

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// ErrUnsupported is returned for types and calls the backend cannot marshal.
var ErrUnsupported = errors.New("darwin: unsupported")

var uintptrType = reflect.TypeFor[uintptr]()

// goType returns the Go type the call layer uses for t under m. Struct
// layouts are checked against the C layout.
func goType(t *ctype.Type, m ctype.Model) (reflect.Type, error) {
	switch t.Kind() {
	case ctype.KindPrimitive:
		return primitiveType(t, m)
	case ctype.KindPointer:
		return uintptrType, nil
	case ctype.KindArray:
		elem, err := goType(t.Elem(), m)
		if err != nil {
			return nil, err
		}
		return reflect.ArrayOf(t.Len(), elem), nil
	case ctype.KindStruct:
		return structType(t, m)
	case ctype.KindUnion:
		return nil, fmt.Errorf("%w: union %s by value", ErrUnsupported, t)
	}
	return nil, fmt.Errorf("%w: %s by value", ErrUnsupported, t)
}

func primitiveType(t *ctype.Type, m ctype.Model) (reflect.Type, error) {
	size, err := t.Size(m)
	if err != nil {
		return nil, err
	}
	switch t.Class() {
	case ctype.ClassSigned:
		switch size {
		case 1:
			return reflect.TypeFor[int8](), nil
		case 2:
			return reflect.TypeFor[int16](), nil
		case 4:
			return reflect.TypeFor[int32](), nil
		case 8:
			return reflect.TypeFor[int64](), nil
		}
	case ctype.ClassUnsigned:
		switch size {
		case 1:
			return reflect.TypeFor[uint8](), nil
		case 2:
			return reflect.TypeFor[uint16](), nil
		case 4:
			return reflect.TypeFor[uint32](), nil
		case 8:
			return reflect.TypeFor[uint64](), nil
		}
	case ctype.ClassChar:
		return reflect.TypeFor[uint8](), nil
	case ctype.ClassFloat:
		switch size {
		case 4:
			return reflect.TypeFor[float32](), nil
		case 8:
			return reflect.TypeFor[float64](), nil
		}
	case ctype.ClassBool:
		return reflect.TypeFor[bool](), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
}

func structType(t *ctype.Type, m ctype.Model) (reflect.Type, error) {
	if !t.Complete() {
		return nil, fmt.Errorf("%s: %w", t, ctype.ErrIncomplete)
	}
	fields := make([]reflect.StructField, 0, len(t.Fields()))
	for i, f := range t.Fields() {
		if f.Bits > 0 {
			return nil, fmt.Errorf("%w: bit field %s in %s", ErrUnsupported, f.Name, t)
		}
		ft, err := goType(f.Type, m)
		if err != nil {
			return nil, err
		}
		fields = append(fields, reflect.StructField{Name: fmt.Sprintf("F%d", i), Type: ft})
	}
	st := reflect.StructOf(fields)

	size, err := t.Size(m)
	if err != nil {
		return nil, err
	}
	if int(st.Size()) != size {
		return nil, fmt.Errorf("%w: layout of %s (%d bytes, host %d)", ErrUnsupported, t, size, st.Size())
	}
	return st, nil
}

// funcType returns the Go function type for sig. extra holds the variadic
// arguments, whose types follow their canonical Go values.
func funcType(sig *ctype.Func, extra []any, m ctype.Model) (reflect.Type, error) {
	in := make([]reflect.Type, 0, len(sig.Params)+len(extra))
	for _, p := range sig.Params {
		t, err := goType(p, m)
		if err != nil {
			return nil, err
		}
		in = append(in, t)
	}
	for _, v := range extra {
		t, err := variadicType(v)
		if err != nil {
			return nil, err
		}
		in = append(in, t)
	}

	var out []reflect.Type
	if sig.Return.Kind() != ctype.KindVoid {
		t, err := goType(sig.Return, m)
		if err != nil {
			return nil, err
		}
		out = []reflect.Type{t}
	}
	return reflect.FuncOf(in, out, false), nil
}

func variadicType(v any) (reflect.Type, error) {
	switch v.(type) {
	case int64:
		return reflect.TypeFor[int64](), nil
	case uint64:
		return reflect.TypeFor[uint64](), nil
	case float64:
		return reflect.TypeFor[float64](), nil
	case byte, bool:
		return reflect.TypeFor[int32](), nil
	case objcrt.Address, string, []byte, []objcrt.Address, nil:
		return uintptrType, nil
	}
	return nil, fmt.Errorf("%w: variadic %T", ErrUnsupported, v)
}

// ---------------------------------------------------------------------------
// Value conversion
// ---------------------------------------------------------------------------

// pins keeps Go memory handed to C reachable until the call returns.
type pins []any

func (p *pins) pointer(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	*p = append(*p, buf)
	return uintptr(unsafe.Pointer(&buf[0]))
}

// toValue converts a canonical value to the Go call type gt.
func toValue(v any, gt reflect.Type, p *pins) (reflect.Value, error) {
	switch x := v.(type) {
	case nil:
		if gt == uintptrType {
			return reflect.Zero(gt), nil
		}
	case objcrt.Address:
		if gt == uintptrType {
			return reflect.ValueOf(uintptr(x)), nil
		}
	case string:
		if gt == uintptrType {
			return reflect.ValueOf(p.pointer(append([]byte(x), 0))), nil
		}
	case []objcrt.Address:
		if gt == uintptrType {
			words := make([]uintptr, len(x))
			for i, a := range x {
				words[i] = uintptr(a)
			}
			if len(words) == 0 {
				return reflect.ValueOf(uintptr(0)), nil
			}
			*p = append(*p, words)
			return reflect.ValueOf(uintptr(unsafe.Pointer(&words[0]))), nil
		}
	case []byte:
		switch gt.Kind() {
		case reflect.Uintptr:
			return reflect.ValueOf(p.pointer(append([]byte(nil), x...))), nil
		case reflect.Struct, reflect.Array:
			if len(x) != int(gt.Size()) {
				return reflect.Value{}, fmt.Errorf("%w: %d bytes for %s", objcrt.ErrBadValue, len(x), gt)
			}
			rv := reflect.New(gt)
			copy(unsafe.Slice((*byte)(rv.UnsafePointer()), gt.Size()), x)
			return rv.Elem(), nil
		}
	case bool:
		switch gt.Kind() {
		case reflect.Bool:
			return reflect.ValueOf(x), nil
		case reflect.Int32:
			if x {
				return reflect.ValueOf(int32(1)), nil
			}
			return reflect.ValueOf(int32(0)), nil
		}
	case int64, uint64, byte, float64:
		rv := reflect.ValueOf(x)
		if rv.CanConvert(gt) && gt.Kind() != reflect.Bool {
			return rv.Convert(gt), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: %T as %s", objcrt.ErrBadValue, v, gt)
}

// fromValue converts a call result to the canonical value for t.
func fromValue(v reflect.Value, t *ctype.Type) any {
	switch t.Kind() {
	case ctype.KindStruct, ctype.KindUnion, ctype.KindArray:
		rv := reflect.New(v.Type())
		rv.Elem().Set(v)
		return append([]byte(nil), unsafe.Slice((*byte)(rv.UnsafePointer()), v.Type().Size())...)
	}
	switch t.Class() {
	case ctype.ClassSigned:
		return v.Int()
	case ctype.ClassUnsigned:
		return v.Uint()
	case ctype.ClassChar:
		return byte(v.Uint())
	case ctype.ClassFloat:
		return v.Float()
	case ctype.ClassBool:
		return v.Bool()
	case ctype.ClassPointer:
		return objcrt.Address(v.Uint())
	}
	panic(fmt.Sprintf("darwin: unhandled result type %s", t))
}
