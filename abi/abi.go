// Package abi describes target architectures and selects the calling
// convention entry point for dynamic sends.
package abi

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chazu/objcbridge/ctype"
)

// Arch describes the parts of a target's ABI the bridge depends on.
type Arch struct {
	Name string
	ctype.Model

	// StructReturnInMemory is set when struct results are returned through
	// a hidden pointer, which requires the "_stret" entry points.
	StructReturnInMemory bool

	// UnionStructReturn extends StructReturnInMemory to union results.
	UnionStructReturn bool

	// SignedCharBOOL is set where BOOL is a signed char rather than a C
	// bool.
	SignedCharBOOL bool
}

// Known architectures.
var (
	ARM32 = Arch{Name: "arm32", Model: ctype.ILP32, StructReturnInMemory: true, SignedCharBOOL: true}
	ARM64 = Arch{Name: "arm64", Model: ctype.LP64}
	AMD64 = Arch{Name: "amd64", Model: ctype.LP64, SignedCharBOOL: true}
)

var byName = map[string]Arch{
	"arm32": ARM32,
	"arm":   ARM32,
	"arm64": ARM64,
	"amd64": AMD64,
}

// Host returns the architecture the program was built for.
func Host() Arch {
	if a, ok := byName[runtime.GOARCH]; ok {
		return a
	}
	// Treat unknown 64-bit targets like the other LP64 targets.
	return Arch{Name: runtime.GOARCH, Model: ctype.LP64}
}

// ByName returns a known architecture. "host" and "" resolve to Host.
func ByName(name string) (Arch, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "host" {
		return Host(), nil
	}
	a, ok := byName[name]
	if !ok {
		return Arch{}, fmt.Errorf("abi: unknown architecture %q", name)
	}
	return a, nil
}

// WithUnionStructReturn returns a copy of a with the union policy set.
func (a Arch) WithUnionStructReturn(on bool) Arch {
	a.UnionStructReturn = on
	return a
}

// LP64 reports whether longs and pointers are 64 bits wide.
func (a Arch) LP64() bool {
	return a.PointerSize == 8 && a.LongSize == 8
}

// BOOL returns the descriptor the runtime uses for BOOL on this target.
func (a Arch) BOOL() *ctype.Type {
	if a.SignedCharBOOL {
		return ctype.SChar
	}
	return ctype.Bool
}

// MustUseStret reports whether a call returning ret must go through the
// "_stret" variant of a polymorphic entry point.
func (a Arch) MustUseStret(ret *ctype.Type) bool {
	if !a.StructReturnInMemory || ret == nil {
		return false
	}
	switch ret.Kind() {
	case ctype.KindStruct:
		return true
	case ctype.KindUnion:
		return a.UnionStructReturn
	}
	return false
}

// Polymorphic entry points that have a "_stret" variant.
const (
	MsgSend      = "objc_msgSend"
	MsgSendSuper = "objc_msgSendSuper"
	MethodInvoke = "method_invoke"
)

// EntryPoint returns the symbol to call for the polymorphic function name
// given the call's return type.
func (a Arch) EntryPoint(name string, ret *ctype.Type) string {
	if a.MustUseStret(ret) {
		return name + "_stret"
	}
	return name
}
