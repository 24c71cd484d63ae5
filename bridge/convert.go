package bridge

import (
	"fmt"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/encoding"
)

var scalarTypes = map[encoding.ScalarKind]*ctype.Type{
	encoding.Char:       ctype.Char,
	encoding.Int:        ctype.Int,
	encoding.Short:      ctype.Short,
	encoding.Long:       ctype.Long,
	encoding.LongLong:   ctype.LongLong,
	encoding.UChar:      ctype.UChar,
	encoding.UInt:       ctype.UInt,
	encoding.UShort:     ctype.UShort,
	encoding.ULong:      ctype.ULong,
	encoding.ULongLong:  ctype.ULongLong,
	encoding.Float:      ctype.Float,
	encoding.Double:     ctype.Double,
	encoding.LongDouble: ctype.LongDouble,
	encoding.Bool:       ctype.Bool,
}

// ConvertType maps a decoded type encoding to a native type descriptor.
//
// Qualifiers are dropped. Object, class and selector references become the
// id, Class and SEL typedefs. Structs and unions without a member list
// become incomplete types. Bit fields and bare fields are only meaningful
// inside an aggregate and fail with ErrInternalType at top level.
func ConvertType(t encoding.Type) (*ctype.Type, error) {
	switch t := t.(type) {
	case encoding.Qualified:
		return ConvertType(t.Type)
	case encoding.Unknown:
		return ctype.Unknown, nil
	case encoding.Void:
		return ctype.Void, nil
	case encoding.Scalar:
		ct, ok := scalarTypes[t.Kind]
		if !ok {
			panic(fmt.Sprintf("bridge: unhandled scalar kind %q", byte(t.Kind)))
		}
		return ct, nil
	case encoding.Pointer:
		elem, err := ConvertType(t.Elem)
		if err != nil {
			return nil, err
		}
		return ctype.PointerTo(elem), nil
	case encoding.ID:
		return ctype.ID, nil
	case encoding.ClassRef:
		return ctype.ClassPtr, nil
	case encoding.SelectorRef:
		return ctype.SEL, nil
	case encoding.Array:
		elem, err := ConvertType(t.Elem)
		if err != nil {
			return nil, err
		}
		return ctype.ArrayOf(elem, t.Len), nil
	case encoding.Struct:
		return convertAggregate(t.Name, t.Fields, false)
	case encoding.Union:
		return convertAggregate(t.Name, t.Fields, true)
	case encoding.BitField, encoding.Field:
		return nil, fmt.Errorf("%w: %s", ErrInternalType, t.Encode())
	}
	panic(fmt.Sprintf("bridge: unhandled type encoding %T", t))
}

func convertAggregate(name string, fields []encoding.Field, union bool) (*ctype.Type, error) {
	if fields == nil {
		switch {
		case name == "" && union:
			return ctype.UnknownUnion, nil
		case name == "":
			return ctype.UnknownStruct, nil
		case union:
			return ctype.IncompleteUnion(name), nil
		}
		return ctype.IncompleteStruct(name), nil
	}

	members := make([]ctype.Field, 0, max(len(fields), 1))
	for i, f := range fields {
		m := ctype.Field{Name: f.Name}
		if m.Name == "" {
			m.Name = fmt.Sprintf("_field_%d", i)
		}
		if bf, ok := f.Type.(encoding.BitField); ok {
			m.Bits = bf.Width
			m.Type = ctype.UInt
			if bf.Width == 1 {
				m.Type = ctype.Bool
			}
		} else {
			ft, err := ConvertType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("member %s of %s: %w", m.Name, name, err)
			}
			m.Type = ft
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		members = append(members, ctype.Field{Name: "_empty", Type: ctype.ArrayOf(ctype.Char, 0)})
	}

	if union {
		return ctype.UnionOf(name, members), nil
	}
	return ctype.StructOf(name, members), nil
}
