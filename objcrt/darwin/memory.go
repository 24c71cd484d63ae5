package darwin

import (
	"fmt"
	"unsafe"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// memory reads and writes foreign memory in place. Addresses must point to
// live memory of the requested size.
type memory struct {
	model ctype.Model
}

// ptr reinterprets a foreign address as a pointer without an integer to
// pointer conversion, which the pointer checker rejects for memory outside
// the Go heap.
func ptr(addr objcrt.Address) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

func (m memory) Load(addr objcrt.Address, t *ctype.Type) (any, error) {
	if addr == 0 {
		return nil, fmt.Errorf("load %s: nil address", t)
	}
	size, err := t.Size(m.model)
	if err != nil {
		return nil, err
	}
	p := ptr(addr)

	switch t.Kind() {
	case ctype.KindStruct, ctype.KindUnion, ctype.KindArray:
		return m.Bytes(addr, size), nil
	case ctype.KindPointer:
		if size == 4 {
			return objcrt.Address(*(*uint32)(p)), nil
		}
		return objcrt.Address(*(*uintptr)(p)), nil
	case ctype.KindPrimitive:
	default:
		return nil, fmt.Errorf("%w: load of %s", ErrUnsupported, t)
	}

	switch t.Class() {
	case ctype.ClassSigned:
		switch size {
		case 1:
			return int64(*(*int8)(p)), nil
		case 2:
			return int64(*(*int16)(p)), nil
		case 4:
			return int64(*(*int32)(p)), nil
		case 8:
			return *(*int64)(p), nil
		}
	case ctype.ClassUnsigned:
		switch size {
		case 1:
			return uint64(*(*uint8)(p)), nil
		case 2:
			return uint64(*(*uint16)(p)), nil
		case 4:
			return uint64(*(*uint32)(p)), nil
		case 8:
			return *(*uint64)(p), nil
		}
	case ctype.ClassChar:
		return *(*byte)(p), nil
	case ctype.ClassFloat:
		switch size {
		case 4:
			return float64(*(*float32)(p)), nil
		case 8:
			return *(*float64)(p), nil
		}
	case ctype.ClassBool:
		return *(*byte)(p) != 0, nil
	}
	return nil, fmt.Errorf("%w: load of %s", ErrUnsupported, t)
}

func (m memory) Store(addr objcrt.Address, t *ctype.Type, v any) error {
	if addr == 0 {
		return fmt.Errorf("store %s: nil address", t)
	}
	v, err := objcrt.Canonical(t, v)
	if err != nil {
		return err
	}
	size, err := t.Size(m.model)
	if err != nil {
		return err
	}
	p := ptr(addr)

	switch x := v.(type) {
	case []byte:
		if len(x) != size {
			return fmt.Errorf("%w: %d bytes for %s", objcrt.ErrBadValue, len(x), t)
		}
		copy(unsafe.Slice((*byte)(p), size), x)
	case objcrt.Address:
		if size == 4 {
			*(*uint32)(p) = uint32(x)
		} else {
			*(*uintptr)(p) = uintptr(x)
		}
	case bool:
		var b byte
		if x {
			b = 1
		}
		*(*byte)(p) = b
	case byte:
		*(*byte)(p) = x
	case float64:
		if size == 4 {
			*(*float32)(p) = float32(x)
		} else {
			*(*float64)(p) = x
		}
	case int64:
		storeInt(p, size, uint64(x))
	case uint64:
		storeInt(p, size, x)
	default:
		return fmt.Errorf("%w: store of %T as %s", ErrUnsupported, v, t)
	}
	return nil
}

func storeInt(p unsafe.Pointer, size int, x uint64) {
	switch size {
	case 1:
		*(*uint8)(p) = uint8(x)
	case 2:
		*(*uint16)(p) = uint16(x)
	case 4:
		*(*uint32)(p) = uint32(x)
	default:
		*(*uint64)(p) = x
	}
}

func (m memory) CString(addr objcrt.Address) string {
	if addr == 0 {
		return ""
	}
	p := (*byte)(ptr(addr))
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

func (m memory) Bytes(addr objcrt.Address, n int) []byte {
	if addr == 0 || n <= 0 {
		return []byte{}
	}
	return append([]byte(nil), unsafe.Slice((*byte)(ptr(addr)), n)...)
}
