//go:build windows

package modules

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const handleSize = uint32(unsafe.Sizeof(windows.Handle(0)))

type enumerator struct{}

// NewEnumerator returns an Enumerator backed by the psapi module list.
func NewEnumerator() Enumerator {
	return enumerator{}
}

func (enumerator) Modules() ([]Module, error) {
	pid := windows.GetCurrentProcessId()

	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return nil, fmt.Errorf("OpenProcess(%d) failed: %w", pid, err)
	}
	defer windows.CloseHandle(proc) // nolint:errcheck

	handles, err := collectHandles(func(buf []uintptr) (uint32, error) {
		var needed uint32
		err := windows.EnumProcessModules(proc, (*windows.Handle)(unsafe.Pointer(&buf[0])), uint32(len(buf))*handleSize, &needed)
		return needed, err
	}, InitialModuleCapacity, handleSize)
	if err != nil {
		return nil, fmt.Errorf("EnumProcessModules() failed: %w", err)
	}

	mods := make([]Module, 0, len(handles))
	name := make([]uint16, windows.MAX_LONG_PATH)
	for _, h := range handles {
		if err := windows.GetModuleFileNameEx(proc, windows.Handle(h), &name[0], uint32(len(name))); err != nil {
			return nil, fmt.Errorf("GetModuleFileNameEx(0x%x) failed: %w", h, err)
		}
		mods = append(mods, Module{Base: h, Name: windows.UTF16ToString(name)})
	}

	return mods, nil
}

type resolver struct{}

// NewResolver returns a Resolver that only looks up already-loaded modules.
func NewResolver() Resolver {
	return resolver{}
}

func (resolver) Resolve(name string) (Handle, error) {
	var namePtr *uint16
	if name != "" {
		p, err := windows.UTF16PtrFromString(name)
		if err != nil {
			return Handle{}, fmt.Errorf("encode module name: %w", err)
		}
		namePtr = p
	}

	var h windows.Handle
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, namePtr, &h); err != nil {
		return Handle{}, fmt.Errorf("GetModuleHandleEx(%q) failed: %w", name, err)
	}

	// UNCHANGED_REFCOUNT leaves nothing to release.
	return NewHandle(uintptr(h), nil), nil
}

// Supported reports whether live enumeration works on this platform.
const Supported = true
