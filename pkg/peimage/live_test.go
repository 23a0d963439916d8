package peimage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/imagescan/internal/testutil"
)

// checkLive copies a synthetic image into mem, which must live outside the
// Go heap, and locates its section through Live.
func checkLive(t *testing.T, mem []byte, base uintptr) {
	t.Helper()

	data := (&testutil.PEBuilder{Sections: []testutil.Section{
		{Name: ".sw2prtc", VirtualAddress: 0x1000, VirtualSize: 4, Data: []byte{1, 2, 3, 4}},
	}}).Memory()
	require.GreaterOrEqual(t, len(mem), len(data))
	copy(mem, data)

	desc, ok, err := Find(Image{Base: base, Mem: Live(base)}, ".sw2prtc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base+0x1000, desc.Address)

	got := make([]byte, desc.Size)
	_, err = Live(0).ReadAt(got, int64(desc.Address))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	_, err = Live(base).ReadAt(got, -1)
	assert.Error(t, err)
}
