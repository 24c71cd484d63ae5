package encoding

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// Single types
// ---------------------------------------------------------------------------

func TestDecodeScalars(t *testing.T) {
	for _, code := range "cislqCISLQfdDB" {
		got, err := Decode(string(code))
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", code, err)
		}
		want := Scalar{Kind: ScalarKind(code)}
		if got != want {
			t.Errorf("Decode(%q) = %#v, want %#v", code, got, want)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"v", Void{}},
		{"?", Unknown{}},
		{"@", ID{}},
		{"@?", ID{Block: true}},
		{`@"NSString"`, ID{ClassName: "NSString"}},
		{"#", ClassRef{}},
		{":", SelectorRef{}},
		{"*", Pointer{Elem: Scalar{Kind: Char}}},
		{"^v", Pointer{Elem: Void{}}},
		{"^^i", Pointer{Elem: Pointer{Elem: Scalar{Kind: Int}}}},
		{"^?", Pointer{Elem: Unknown{}}},
		{"r*", Qualified{Qualifiers: []Qualifier{Const}, Type: Pointer{Elem: Scalar{Kind: Char}}}},
		{"rn^@", Qualified{Qualifiers: []Qualifier{Const, In}, Type: Pointer{Elem: ID{}}}},
		{"[4i]", Array{Len: 4, Elem: Scalar{Kind: Int}}},
		{"[2[3f]]", Array{Len: 2, Elem: Array{Len: 3, Elem: Scalar{Kind: Float}}}},
		{"{CGPoint=dd}", Struct{Name: "CGPoint", Fields: []Field{
			{Type: Scalar{Kind: Double}},
			{Type: Scalar{Kind: Double}},
		}}},
		{"{CGRect={CGPoint=dd}{CGSize=dd}}", Struct{Name: "CGRect", Fields: []Field{
			{Type: Struct{Name: "CGPoint", Fields: []Field{{Type: Scalar{Kind: Double}}, {Type: Scalar{Kind: Double}}}}},
			{Type: Struct{Name: "CGSize", Fields: []Field{{Type: Scalar{Kind: Double}}, {Type: Scalar{Kind: Double}}}}},
		}}},
		{"{Opaque}", Struct{Name: "Opaque"}},
		{"{?}", Struct{}},
		{"{Empty=}", Struct{Name: "Empty", Fields: []Field{}}},
		{"{?=ib3b1}", Struct{Fields: []Field{
			{Type: Scalar{Kind: Int}},
			{Type: BitField{Width: 3}},
			{Type: BitField{Width: 1}},
		}}},
		{"(Value=if)", Union{Name: "Value", Fields: []Field{
			{Type: Scalar{Kind: Int}},
			{Type: Scalar{Kind: Float}},
		}}},
		{`{Pair="first"i"second"^v}`, Struct{Name: "Pair", Fields: []Field{
			{Name: "first", Type: Scalar{Kind: Int}},
			{Name: "second", Type: Pointer{Elem: Void{}}},
		}}},
	}
	for _, tt := range tests {
		got, err := Decode(tt.in)
		if err != nil {
			t.Errorf("Decode(%q) error: %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestDecodeObjectFieldsInStruct(t *testing.T) {
	// An id member followed by a named member: the quoted string after '@'
	// belongs to the next field.
	got, err := Decode(`{Box="obj"@"count"i}`)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want := Struct{Name: "Box", Fields: []Field{
		{Name: "obj", Type: ID{}},
		{Name: "count", Type: Scalar{Kind: Int}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err = Decode(`{Box="obj"@"NSString""count"i}`)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want = Struct{Name: "Box", Fields: []Field{
		{Name: "obj", Type: ID{ClassName: "NSString"}},
		{Name: "count", Type: Scalar{Kind: Int}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, in := range []string{
		"", "x", "[4i", "{CGPoint=dd", "ii", `@"NSString`, "^",
		"[99999999999999999999999i]", "[2147483648i]", "{?=b99999999999}",
	} {
		_, err := Decode(in)
		if err == nil {
			t.Errorf("Decode(%q) should fail", in)
			continue
		}
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("Decode(%q) error = %v, want ErrSyntax", in, err)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, in := range []string{
		"v", "@", `@"NSString"`, "@?", "#", ":", "*", "^v", "r*", "[4i]",
		"{CGRect={CGPoint=dd}{CGSize=dd}}", "{Opaque}", "{?=ib3}", "(Value=if)",
		`{Pair="first"i"second"^v}`,
	} {
		typ, err := Decode(in)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", in, err)
		}
		if got := typ.Encode(); got != in {
			t.Errorf("Decode(%q).Encode() = %q", in, got)
		}
	}
}

func TestIsInternal(t *testing.T) {
	if !IsInternal(BitField{Width: 2}) {
		t.Error("BitField should be internal")
	}
	if !IsInternal(Field{Type: Void{}}) {
		t.Error("Field should be internal")
	}
	if IsInternal(Scalar{Kind: Int}) {
		t.Error("Scalar should not be internal")
	}
}

// ---------------------------------------------------------------------------
// Method signatures
// ---------------------------------------------------------------------------

func TestDecodeMethodSignature(t *testing.T) {
	ret, args, err := DecodeMethodSignature("v24@0:8i16")
	if err != nil {
		t.Fatalf("DecodeMethodSignature error: %v", err)
	}
	if ret != (Void{}) {
		t.Errorf("ret = %#v, want Void", ret)
	}
	want := []Type{ID{}, SelectorRef{}, Scalar{Kind: Int}}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMethodSignatureStructReturn(t *testing.T) {
	ret, args, err := DecodeMethodSignature("{CGRect={CGPoint=dd}{CGSize=dd}}16@0:8")
	if err != nil {
		t.Fatalf("DecodeMethodSignature error: %v", err)
	}
	if _, ok := ret.(Struct); !ok {
		t.Errorf("ret = %T, want Struct", ret)
	}
	if len(args) != 2 {
		t.Errorf("len(args) = %d, want 2", len(args))
	}
}

func TestDecodeMethodSignatureNegativeOffsets(t *testing.T) {
	_, args, err := DecodeMethodSignature("@-8@0:4")
	if err != nil {
		t.Fatalf("DecodeMethodSignature error: %v", err)
	}
	if len(args) != 2 {
		t.Errorf("len(args) = %d, want 2", len(args))
	}
}

// ---------------------------------------------------------------------------
// Property attributes
// ---------------------------------------------------------------------------

func TestDecodeProperty(t *testing.T) {
	attrs, err := DecodeProperty(`T@"NSString",C,N,V_title`)
	if err != nil {
		t.Fatalf("DecodeProperty error: %v", err)
	}
	want := &PropertyAttributes{
		Type:      ID{ClassName: "NSString"},
		Copy:      true,
		Nonatomic: true,
		Ivar:      "_title",
	}
	if diff := cmp.Diff(want, attrs); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePropertyAccessors(t *testing.T) {
	attrs, err := DecodeProperty("TB,R,GisHidden,SsetHidden:")
	if err != nil {
		t.Fatalf("DecodeProperty error: %v", err)
	}
	if !attrs.ReadOnly {
		t.Error("ReadOnly should be set")
	}
	if attrs.Getter != "isHidden" {
		t.Errorf("Getter = %q, want %q", attrs.Getter, "isHidden")
	}
	if attrs.Setter != "setHidden:" {
		t.Errorf("Setter = %q, want %q", attrs.Setter, "setHidden:")
	}
}

func TestDecodePropertyErrors(t *testing.T) {
	for _, in := range []string{"", "N,C", "Ti;", "Tx"} {
		if _, err := DecodeProperty(in); !errors.Is(err, ErrSyntax) {
			t.Errorf("DecodeProperty(%q) error = %v, want ErrSyntax", in, err)
		}
	}
}

func TestDecodeNumberOutOfRange(t *testing.T) {
	_, err := Decode("[99999999999999999999999i]")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("Decode error = %v, want *SyntaxError", err)
	}
	if se.Offset != 1 || se.Msg != "number out of range" {
		t.Errorf("SyntaxError = offset %d %q", se.Offset, se.Msg)
	}
}
