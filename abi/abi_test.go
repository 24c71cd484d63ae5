package abi

import (
	"testing"

	"github.com/chazu/objcbridge/ctype"
)

func point() *ctype.Type {
	return ctype.StructOf("CGPoint", []ctype.Field{
		{Name: "x", Type: ctype.Double},
		{Name: "y", Type: ctype.Double},
	})
}

func TestMustUseStret(t *testing.T) {
	union := ctype.UnionOf("U", []ctype.Field{{Name: "i", Type: ctype.Int}})
	tests := []struct {
		name string
		arch Arch
		ret  *ctype.Type
		want bool
	}{
		{"arm32 struct", ARM32, point(), true},
		{"arm32 void", ARM32, ctype.Void, false},
		{"arm32 int", ARM32, ctype.Int, false},
		{"arm32 pointer to struct", ARM32, ctype.PointerTo(point()), false},
		{"arm32 union default", ARM32, union, false},
		{"arm32 union enabled", ARM32.WithUnionStructReturn(true), union, true},
		{"arm64 struct", ARM64, point(), false},
		{"amd64 struct", AMD64, point(), false},
	}
	for _, tt := range tests {
		if got := tt.arch.MustUseStret(tt.ret); got != tt.want {
			t.Errorf("%s: MustUseStret = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEntryPoint(t *testing.T) {
	if got := ARM32.EntryPoint(MsgSend, point()); got != "objc_msgSend_stret" {
		t.Errorf("EntryPoint = %q, want objc_msgSend_stret", got)
	}
	if got := ARM32.EntryPoint(MethodInvoke, ctype.ID); got != "method_invoke" {
		t.Errorf("EntryPoint = %q, want method_invoke", got)
	}
	if got := ARM64.EntryPoint(MsgSendSuper, point()); got != "objc_msgSendSuper" {
		t.Errorf("EntryPoint = %q, want objc_msgSendSuper", got)
	}
}

func TestByName(t *testing.T) {
	a, err := ByName("ARM32")
	if err != nil {
		t.Fatalf("ByName error: %v", err)
	}
	if a.PointerSize != 4 || !a.StructReturnInMemory {
		t.Errorf("ByName(ARM32) = %+v", a)
	}
	host, err := ByName("host")
	if err != nil {
		t.Fatalf("ByName(host) error: %v", err)
	}
	if host != Host() {
		t.Errorf("ByName(host) = %+v, want %+v", host, Host())
	}
	if _, err := ByName("sparc"); err == nil {
		t.Error("ByName(sparc) should fail")
	}
}

func TestBOOL(t *testing.T) {
	tests := []struct {
		arch Arch
		want *ctype.Type
	}{
		{ARM64, ctype.Bool},
		{ARM32, ctype.SChar},
		{AMD64, ctype.SChar},
	}
	for _, tt := range tests {
		if got := tt.arch.BOOL(); got != tt.want {
			t.Errorf("%s BOOL = %s, want %s", tt.arch.Name, got, tt.want)
		}
	}
}
