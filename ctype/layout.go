package ctype

import "fmt"

// Model is the data model of a target: the sizes that vary between
// architectures.
type Model struct {
	PointerSize int
	LongSize    int
}

// Common data models.
var (
	ILP32 = Model{PointerSize: 4, LongSize: 4}
	LP64  = Model{PointerSize: 8, LongSize: 8}
)

// Size returns the size of t in bytes under m.
func (t *Type) Size(m Model) (int, error) {
	size, _, err := t.layout(m)
	return size, err
}

// Align returns the alignment of t in bytes under m.
func (t *Type) Align(m Model) (int, error) {
	_, align, err := t.layout(m)
	return align, err
}

// Offsets returns the byte offset of each member of a complete struct.
// Bit-field members share storage units; their offset is that of the unit.
func (t *Type) Offsets(m Model) ([]int, error) {
	if t.kind != KindStruct {
		return nil, fmt.Errorf("ctype: offsets of %s", t.kind)
	}
	if !t.complete {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, t)
	}
	offsets, _, _, err := structLayout(t.fields, m)
	return offsets, err
}

func (t *Type) layout(m Model) (size, align int, err error) {
	switch t.kind {
	case KindVoid:
		return 0, 1, nil
	case KindPrimitive:
		size = t.size
		if size == 0 {
			size = m.LongSize
		}
		return size, size, nil
	case KindPointer:
		return m.PointerSize, m.PointerSize, nil
	case KindArray:
		es, ea, err := t.elem.layout(m)
		if err != nil {
			return 0, 0, err
		}
		return es * t.length, ea, nil
	case KindStruct:
		if !t.complete {
			return 0, 0, fmt.Errorf("%w: %s", ErrIncomplete, t)
		}
		_, size, align, err := structLayout(t.fields, m)
		return size, align, err
	case KindUnion:
		if !t.complete {
			return 0, 0, fmt.Errorf("%w: %s", ErrIncomplete, t)
		}
		align = 1
		for _, f := range t.fields {
			fs, fa, err := f.Type.layout(m)
			if err != nil {
				return 0, 0, err
			}
			size = max(size, fs)
			align = max(align, fa)
		}
		return roundUp(size, align), align, nil
	case KindOpaque, KindVariadic:
		return 0, 0, fmt.Errorf("%w: %s", ErrIncomplete, t)
	}
	panic(fmt.Sprintf("ctype: unhandled kind %v", t.kind))
}

// structLayout lays out members in declaration order with natural
// alignment. Consecutive bit fields pack into storage units of their
// declared type.
func structLayout(fields []Field, m Model) (offsets []int, size, align int, err error) {
	align = 1
	offset := 0
	unitStart, unitSize, bitsUsed := 0, 0, 0
	offsets = make([]int, len(fields))
	for i, f := range fields {
		fs, fa, err := f.Type.layout(m)
		if err != nil {
			return nil, 0, 0, err
		}
		align = max(align, fa)
		if f.Bits > 0 {
			if unitSize == fs && bitsUsed+f.Bits <= fs*8 {
				offsets[i] = unitStart
				bitsUsed += f.Bits
				continue
			}
			offset = roundUp(offset, fa)
			unitStart, unitSize, bitsUsed = offset, fs, f.Bits
			offsets[i] = offset
			offset += fs
			continue
		}
		unitSize = 0
		offset = roundUp(offset, fa)
		offsets[i] = offset
		offset += fs
	}
	return offsets, roundUp(offset, align), align, nil
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
