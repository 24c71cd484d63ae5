//go:build !darwin

// Package darwin binds the Objective-C runtime library with purego.
package darwin

import (
	"fmt"
	"runtime"

	"github.com/chazu/objcbridge/objcrt"
)

// Open fails on platforms without the Apple runtime.
func Open(library string, frameworks ...string) (objcrt.Runtime, objcrt.FFI, error) {
	return nil, nil, fmt.Errorf("%w: Objective-C runtime on %s", ErrUnsupported, runtime.GOOS)
}
