//go:build windows

package peimage

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestLive(t *testing.T) {
	const size = 0x2000
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	require.NoError(t, err)
	t.Cleanup(func() { _ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE) })

	//nolint:govet // addr is a VirtualAlloc region outside the Go heap.
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	checkLive(t, mem, addr)
}
