package modules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHandleSize = 8

// fakeModuleList answers queries the way EnumProcessModules does: it copies
// as many handles as fit and always reports the full size.
type fakeModuleList struct {
	handles []uintptr
	calls   []int
	failOn  int
}

func (f *fakeModuleList) query(buf []uintptr) (uint32, error) {
	f.calls = append(f.calls, len(buf))
	if f.failOn == len(f.calls) {
		return 0, errors.New("access denied")
	}
	copy(buf, f.handles)
	return uint32(len(f.handles) * testHandleSize), nil
}

func handles(n int) []uintptr {
	out := make([]uintptr, n)
	for i := range out {
		out[i] = uintptr(0x10000 * (i + 1))
	}
	return out
}

func TestCollectHandles_FitsFirstPass(t *testing.T) {
	list := &fakeModuleList{handles: handles(3)}

	got, err := collectHandles(list.query, 8, testHandleSize)
	require.NoError(t, err)

	assert.Equal(t, list.handles, got)
	assert.Equal(t, []int{8}, list.calls, "should query exactly once")
}

func TestCollectHandles_RegrowsToReportedSize(t *testing.T) {
	list := &fakeModuleList{handles: handles(11)}

	got, err := collectHandles(list.query, 4, testHandleSize)
	require.NoError(t, err)

	assert.Equal(t, list.handles, got, "second pass must return the complete list")
	assert.Equal(t, []int{4, 11}, list.calls, "second buffer is sized exactly to the requirement")

	seen := make(map[uintptr]bool)
	for _, h := range got {
		assert.False(t, seen[h], "duplicate handle 0x%x", h)
		seen[h] = true
	}
}

func TestCollectHandles_ExactFit(t *testing.T) {
	list := &fakeModuleList{handles: handles(4)}

	got, err := collectHandles(list.query, 4, testHandleSize)
	require.NoError(t, err)

	assert.Len(t, got, 4)
	assert.Len(t, list.calls, 1)
}

func TestCollectHandles_FirstPassFails(t *testing.T) {
	list := &fakeModuleList{handles: handles(2), failOn: 1}

	_, err := collectHandles(list.query, 4, testHandleSize)
	assert.Error(t, err)
	assert.Len(t, list.calls, 1)
}

func TestCollectHandles_RetryFails(t *testing.T) {
	list := &fakeModuleList{handles: handles(9), failOn: 2}

	_, err := collectHandles(list.query, 4, testHandleSize)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry")
	assert.Len(t, list.calls, 2, "no further retries after the second pass")
}

func TestCollectHandles_GrowsBetweenPasses(t *testing.T) {
	list := &fakeModuleList{handles: handles(6)}
	query := func(buf []uintptr) (uint32, error) {
		needed, err := list.query(buf)
		// Another module gets loaded after the first pass.
		list.handles = handles(7)
		return needed, err
	}

	got, err := collectHandles(query, 2, testHandleSize)
	require.NoError(t, err)

	// The second pass reports 7 but only 6 fit; never read past the buffer.
	assert.Len(t, got, 6)
}

func TestCollectHandles_Empty(t *testing.T) {
	list := &fakeModuleList{}

	got, err := collectHandles(list.query, 4, testHandleSize)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHandle_Release(t *testing.T) {
	released := 0
	h := NewHandle(0x400000, func() { released++ })

	h.Release()
	assert.Equal(t, 1, released)
	assert.Equal(t, uintptr(0x400000), h.Base)

	// Zero handles are safe to release.
	Handle{}.Release()
}
