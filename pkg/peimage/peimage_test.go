package peimage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/imagescan/internal/testutil"
)

const testBase = uintptr(0x140000000)

func memImage(b *testutil.PEBuilder) Image {
	return Image{Base: testBase, Mem: bytes.NewReader(b.Memory())}
}

// boundedReader fails any read that reaches past limit.
type boundedReader struct {
	data  []byte
	limit int64
}

func (r *boundedReader) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > r.limit {
		return 0, fmt.Errorf("read [0x%x, 0x%x) past limit 0x%x", off, off+int64(len(p)), r.limit)
	}
	return copy(p, r.data[off:]), nil
}

func TestFind_Scenario(t *testing.T) {
	img := memImage(&testutil.PEBuilder{Sections: []testutil.Section{
		{Name: ".sw2prtc", VirtualAddress: 0x2000, VirtualSize: 64},
		{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 4096},
	}})

	desc, ok, err := Find(img, ".sw2prtc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testBase+0x2000, desc.Address)
	assert.Equal(t, uint32(64), desc.Size)

	_, ok, err = Find(img, ".sw2tymd")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFind_OnlyMatchingRecord(t *testing.T) {
	sections := []testutil.Section{
		{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x800},
		{Name: ".rdata", VirtualAddress: 0x2000, VirtualSize: 0x300},
		{Name: ".data", VirtualAddress: 0x3000, VirtualSize: 0x100},
		{Name: ".sw2tymd", VirtualAddress: 0x4000, VirtualSize: 0x48},
		{Name: ".reloc", VirtualAddress: 0x5000, VirtualSize: 0x20},
	}
	img := memImage(&testutil.PEBuilder{Sections: sections})

	for _, s := range sections {
		t.Run(s.Name, func(t *testing.T) {
			desc, ok, err := Find(img, s.Name)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, Descriptor{Address: testBase + uintptr(s.VirtualAddress), Size: s.VirtualSize}, desc)
		})
	}
}

func TestFind_FirstMatchWins(t *testing.T) {
	img := memImage(&testutil.PEBuilder{Sections: []testutil.Section{
		{Name: ".sw2prtc", VirtualAddress: 0x1000, VirtualSize: 16},
		{Name: ".sw2prtc", VirtualAddress: 0x2000, VirtualSize: 32},
	}})

	desc, ok, err := Find(img, ".sw2prtc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testBase+0x1000, desc.Address)
	assert.Equal(t, uint32(16), desc.Size)
}

func TestFind_ExactNameComparison(t *testing.T) {
	img := memImage(&testutil.PEBuilder{Sections: []testutil.Section{
		{Name: "ab", VirtualAddress: 0x1000, VirtualSize: 8},
	}})

	tests := []struct {
		query string
		want  bool
	}{
		{"ab", true},
		{"abc", false},
		{"a", false},
		{"", false},
		{"ab\x00", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.query), func(t *testing.T) {
			_, ok, err := Find(img, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFind_FullWidthName(t *testing.T) {
	// Eight characters leave no room for a terminating NUL.
	img := memImage(&testutil.PEBuilder{Sections: []testutil.Section{
		{Name: ".sw2prtcEXTRA", VirtualAddress: 0x1000, VirtualSize: 8},
	}})

	_, ok, err := Find(img, ".sw2prtc")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = Find(img, ".sw2prtcE")
	require.NoError(t, err)
	assert.False(t, ok, "queries longer than the name field never match")
}

func TestFind_NoSections(t *testing.T) {
	img := memImage(&testutil.PEBuilder{})

	_, ok, err := Find(img, ".sw2prtc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFind_StaysInsideSectionTable(t *testing.T) {
	b := &testutil.PEBuilder{Sections: []testutil.Section{
		{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x100},
		{Name: ".data", VirtualAddress: 0x2000, VirtualSize: 0x100},
		{Name: ".rsrc", VirtualAddress: 0x3000, VirtualSize: 0x100},
	}}
	data := b.Memory()

	// DOS header, signature, file header, PE32+ optional header, 3 records.
	tableEnd := int64(0x80 + 4 + 20 + 240 + 3*40)

	desc, ok, err := Find(Image{Base: testBase, Mem: &boundedReader{data: data, limit: tableEnd}}, ".sw2prtc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, desc)
}

func TestFind_HonorsOptionalHeaderSize(t *testing.T) {
	img := memImage(&testutil.PEBuilder{
		OptionalHeaderSize: 0xE0,
		Sections: []testutil.Section{
			{Name: ".sw2tymd", VirtualAddress: 0x6000, VirtualSize: 0x30},
		},
	})

	desc, ok, err := Find(img, ".sw2tymd")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testBase+0x6000, desc.Address)
}

func TestFind_BadSignature(t *testing.T) {
	img := memImage(&testutil.PEBuilder{
		Signature: [2]byte{'N', 'E'},
		Sections: []testutil.Section{
			{Name: ".sw2prtc", VirtualAddress: 0x1000, VirtualSize: 8},
		},
	})

	desc, ok, err := Find(img, ".sw2prtc")
	require.ErrorIs(t, err, ErrBadSignature)
	assert.False(t, ok)
	assert.Zero(t, desc)
}

func TestFind_ELFImage(t *testing.T) {
	elf := make([]byte, 0x100)
	copy(elf, "\x7fELF\x02\x01\x01")

	_, _, err := Find(Image{Mem: bytes.NewReader(elf)}, ".sw2prtc")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestFind_Truncated(t *testing.T) {
	data := (&testutil.PEBuilder{Sections: []testutil.Section{
		{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 8},
		{Name: ".sw2prtc", VirtualAddress: 0x2000, VirtualSize: 8},
	}}).Memory()

	// Cut the buffer in the middle of the second section record.
	cut := 0x80 + 4 + 20 + 240 + 40 + 10

	_, _, err := Find(Image{Mem: bytes.NewReader(data[:cut])}, ".sw2prtc")
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = Find(Image{Mem: bytes.NewReader(data[:0x20])}, ".sw2prtc")
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSections(t *testing.T) {
	img := memImage(&testutil.PEBuilder{Sections: []testutil.Section{
		{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x1234},
		{Name: ".sw2prtc", VirtualAddress: 0x3000, VirtualSize: 0x40},
	}})

	headers, err := Sections(img)
	require.NoError(t, err)
	assert.Equal(t, []SectionHeader{
		{Name: ".text", VirtualSize: 0x1234, VirtualAddress: 0x1000},
		{Name: ".sw2prtc", VirtualSize: 0x40, VirtualAddress: 0x3000},
	}, headers)
}

func TestMapFile(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 64)
	b := &testutil.PEBuilder{
		ImageBase: 0x140000000,
		Sections: []testutil.Section{
			{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x10, Data: bytes.Repeat([]byte{0x90}, 0x10)},
			{Name: ".sw2prtc", VirtualAddress: 0x3000, VirtualSize: 64, Data: payload},
		},
	}

	path := filepath.Join(t.TempDir(), "app.exe")
	require.NoError(t, os.WriteFile(path, b.File(), 0644))

	m, err := MapFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.Path)
	assert.Equal(t, uint64(0x140000000), m.PreferredBase)
	assert.Equal(t, 0x3000+64, m.Size())

	desc, ok, err := Find(m.Image(), ".sw2prtc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x140003000), desc.Address)

	got := make([]byte, desc.Size)
	_, err = m.ReadAt(got, int64(desc.Address))
	require.NoError(t, err)
	assert.Equal(t, payload, got, "section bytes land at their virtual address")
}

func TestMapFile_NotPE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("hello "), 40), 0644))

	_, err := MapFile(path)
	assert.Error(t, err)
}

func TestMapFile_Missing(t *testing.T) {
	_, err := MapFile(filepath.Join(t.TempDir(), "missing.exe"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
