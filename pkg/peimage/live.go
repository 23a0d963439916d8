package peimage

import (
	"errors"
	"io"
	"unsafe"
)

// Live returns a reader over this process's memory starting at base.
// The caller guarantees that base is the start of a mapped image; reads are
// not bounds checked.
func Live(base uintptr) io.ReaderAt {
	return liveMemory(base)
}

type liveMemory uintptr

func (m liveMemory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("peimage: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}
	//nolint:govet // Address comes from the loader, not from Go-managed memory.
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(m)+uintptr(off))), len(p))
	return copy(p, src), nil
}
