// Package modules lists the images mapped into the current process and
// resolves them back to in-process handles.
package modules

import (
	"errors"
	"fmt"
)

// InitialModuleCapacity is the number of module handles requested on the
// first enumeration pass.
const InitialModuleCapacity = 1024

// ErrUnsupported is returned on platforms without a module enumeration API.
var ErrUnsupported = errors.New("module enumeration is not supported on this platform")

// Module is one image mapped into the process.
type Module struct {
	// Base is the image's load address.
	Base uintptr

	// Name is the image path. Empty means the main process image.
	Name string
}

// Enumerator lists the images currently mapped into the process.
type Enumerator interface {
	Modules() ([]Module, error)
}

// Resolver maps a module name to a handle of an image that is already loaded.
// An empty name resolves to the main process image.
type Resolver interface {
	Resolve(name string) (Handle, error)
}

// Handle is a resolved in-process image.
type Handle struct {
	Base    uintptr
	release func()
}

// NewHandle returns a handle whose Release calls release.
func NewHandle(base uintptr, release func()) Handle {
	return Handle{Base: base, release: release}
}

// Release frees whatever the resolver acquired for this handle.
func (h Handle) Release() {
	if h.release != nil {
		h.release()
	}
}

// queryFunc fills buf with module handles and reports how many bytes the
// complete list needs.
type queryFunc func(buf []uintptr) (neededBytes uint32, err error)

// collectHandles runs query with a buffer of initial entries and, if the
// reported size is larger, once more with a buffer of exactly that size.
func collectHandles(query queryFunc, initial int, handleSize uint32) ([]uintptr, error) {
	buf := make([]uintptr, initial)

	needed, err := query(buf)
	if err != nil {
		return nil, err
	}

	if uint64(len(buf))*uint64(handleSize) < uint64(needed) {
		buf = make([]uintptr, needed/handleSize)
		needed, err = query(buf)
		if err != nil {
			return nil, fmt.Errorf("retry with %d entries: %w", len(buf), err)
		}
	}

	n := int(needed / handleSize)
	if n > len(buf) {
		// The module list grew again between the two passes.
		n = len(buf)
	}
	return buf[:n], nil
}
