package encoding

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrSyntax is returned for malformed encodings.
var ErrSyntax = errors.New("invalid type encoding")

// SyntaxError records where decoding failed.
type SyntaxError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s %q at offset %d: %s", ErrSyntax, e.Input, e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Decode parses a single type encoding. The whole input must be consumed.
func Decode(s string) (Type, error) {
	d := decoder{src: s}
	t, err := d.parseType(false)
	if err != nil {
		return nil, err
	}
	if !d.eof() {
		return nil, d.errorf("unexpected trailing %q", s[d.pos:])
	}
	return t, nil
}

// MustDecode is like Decode but panics on error. Intended for encodings that
// are compile-time constants.
func MustDecode(s string) Type {
	t, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return t
}

// DecodeMethodSignature parses a method type encoding such as
// "v24@0:8i16". The frame offsets after each type are skipped. The returned
// argument list includes the implicit receiver and selector.
func DecodeMethodSignature(s string) (ret Type, args []Type, err error) {
	d := decoder{src: s}
	ret, err = d.parseType(false)
	if err != nil {
		return nil, nil, err
	}
	d.skipOffset()
	for !d.eof() {
		t, err := d.parseType(false)
		if err != nil {
			return nil, nil, err
		}
		d.skipOffset()
		args = append(args, t)
	}
	return ret, args, nil
}

// ---------------------------------------------------------------------------
// Property attributes
// ---------------------------------------------------------------------------

// PropertyAttributes is the decoded form of a property attribute string such
// as `T@"NSString",&,N,V_name`.
type PropertyAttributes struct {
	Type      Type
	ReadOnly  bool
	Copy      bool
	Retain    bool
	Nonatomic bool
	Dynamic   bool
	Weak      bool
	Getter    string
	Setter    string
	Ivar      string
}

// DecodeProperty parses a property attribute string.
func DecodeProperty(s string) (*PropertyAttributes, error) {
	d := decoder{src: s}
	attrs := &PropertyAttributes{}
	for !d.eof() {
		c := d.next()
		switch c {
		case 'T':
			t, err := d.parseType(false)
			if err != nil {
				return nil, err
			}
			attrs.Type = t
		case 'R':
			attrs.ReadOnly = true
		case 'C':
			attrs.Copy = true
		case '&':
			attrs.Retain = true
		case 'N':
			attrs.Nonatomic = true
		case 'D':
			attrs.Dynamic = true
		case 'W':
			attrs.Weak = true
		case 'P':
		case 'G':
			attrs.Getter = d.until(',')
		case 'S':
			attrs.Setter = d.until(',')
		case 'V':
			attrs.Ivar = d.until(',')
		default:
			return nil, d.errorf("unknown property attribute %q", c)
		}
		if d.eof() {
			break
		}
		if d.next() != ',' {
			return nil, d.errorf("expected ',' between attributes")
		}
	}
	if attrs.Type == nil {
		return nil, d.errorf("missing type attribute")
	}
	return attrs, nil
}

// ---------------------------------------------------------------------------
// Decoder
// ---------------------------------------------------------------------------

type decoder struct {
	src string
	pos int
}

func (d *decoder) eof() bool { return d.pos >= len(d.src) }

func (d *decoder) peek() byte {
	if d.eof() {
		return 0
	}
	return d.src[d.pos]
}

func (d *decoder) next() byte {
	c := d.peek()
	d.pos++
	return c
}

func (d *decoder) errorf(format string, args ...any) error {
	return &SyntaxError{Input: d.src, Offset: d.pos, Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) until(stop byte) string {
	start := d.pos
	for !d.eof() && d.src[d.pos] != stop {
		d.pos++
	}
	return d.src[start:d.pos]
}

func (d *decoder) skipOffset() {
	if d.peek() == '-' || d.peek() == '+' {
		d.pos++
	}
	for !d.eof() && isDigit(d.peek()) {
		d.pos++
	}
}

func (d *decoder) number() (int, error) {
	start := d.pos
	n := 0
	for !d.eof() && isDigit(d.peek()) {
		n = n*10 + int(d.next()-'0')
		if n > math.MaxInt32 {
			d.pos = start
			return 0, d.errorf("number out of range")
		}
	}
	if d.pos == start {
		return 0, d.errorf("expected number")
	}
	return n, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// parseType decodes one type. inField is set while decoding the members of
// a struct or union, where a quoted string after '@' may be the next field's
// name rather than a class name.
func (d *decoder) parseType(inField bool) (Type, error) {
	if d.eof() {
		return nil, d.errorf("unexpected end of encoding")
	}

	if isQualifier(d.peek()) {
		var quals []Qualifier
		for !d.eof() && isQualifier(d.peek()) {
			quals = append(quals, Qualifier(d.next()))
		}
		inner, err := d.parseType(inField)
		if err != nil {
			return nil, err
		}
		return Qualified{Qualifiers: quals, Type: inner}, nil
	}

	c := d.next()
	switch c {
	case 'v':
		return Void{}, nil
	case '?':
		return Unknown{}, nil
	case 'c', 'i', 's', 'l', 'q', 'C', 'I', 'S', 'L', 'Q', 'f', 'd', 'D', 'B':
		return Scalar{Kind: ScalarKind(c)}, nil
	case '*':
		return Pointer{Elem: Scalar{Kind: Char}}, nil
	case '#':
		return ClassRef{}, nil
	case ':':
		return SelectorRef{}, nil
	case '^':
		elem, err := d.parseType(inField)
		if err != nil {
			return nil, err
		}
		return Pointer{Elem: elem}, nil
	case '@':
		return d.parseID(inField)
	case '[':
		n, err := d.number()
		if err != nil {
			return nil, err
		}
		elem, err := d.parseType(false)
		if err != nil {
			return nil, err
		}
		if d.next() != ']' {
			return nil, d.errorf("unterminated array")
		}
		return Array{Len: n, Elem: elem}, nil
	case '{':
		name, fields, err := d.parseAggregate('}')
		if err != nil {
			return nil, err
		}
		return Struct{Name: name, Fields: fields}, nil
	case '(':
		name, fields, err := d.parseAggregate(')')
		if err != nil {
			return nil, err
		}
		return Union{Name: name, Fields: fields}, nil
	case 'b':
		w, err := d.number()
		if err != nil {
			return nil, err
		}
		return BitField{Width: w}, nil
	}
	d.pos--
	return nil, d.errorf("unknown type code %q", c)
}

func (d *decoder) parseID(inField bool) (Type, error) {
	switch d.peek() {
	case '?':
		d.pos++
		return ID{Block: true}, nil
	case '"':
		end := strings.IndexByte(d.src[d.pos+1:], '"')
		if end < 0 {
			return nil, d.errorf("unterminated class name")
		}
		after := d.pos + 1 + end + 1
		if inField && after < len(d.src) {
			switch d.src[after] {
			case '"', '}', ')':
			default:
				// The quoted string names the next field.
				return ID{}, nil
			}
		}
		name := d.src[d.pos+1 : after-1]
		d.pos = after
		return ID{ClassName: name}, nil
	}
	return ID{}, nil
}

func (d *decoder) parseAggregate(close byte) (string, []Field, error) {
	start := d.pos
	for !d.eof() && d.peek() != '=' && d.peek() != close {
		d.pos++
	}
	if d.eof() {
		return "", nil, d.errorf("unterminated aggregate")
	}
	name := d.src[start:d.pos]
	if name == "?" {
		name = ""
	}
	if d.next() == close {
		return name, nil, nil
	}

	fields := []Field{}
	for {
		if d.eof() {
			return "", nil, d.errorf("unterminated aggregate")
		}
		if d.peek() == close {
			d.pos++
			return name, fields, nil
		}
		var f Field
		if d.peek() == '"' {
			d.pos++
			f.Name = d.until('"')
			if d.eof() {
				return "", nil, d.errorf("unterminated field name")
			}
			d.pos++
		}
		t, err := d.parseType(true)
		if err != nil {
			return "", nil, err
		}
		f.Type = t
		fields = append(fields, f)
	}
}
