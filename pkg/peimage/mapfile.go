package peimage

import (
	"bytes"
	"debug/pe"
	"fmt"
	"io"
	"os"
)

// Mapped is a PE file laid out the way the loader maps it.
type Mapped struct {
	// Path is the file the image was read from.
	Path string

	// PreferredBase is the optional header's ImageBase.
	PreferredBase uint64

	data []byte
}

// MapFile reads the PE file at path and places its headers at offset 0 and
// every section's raw data at its VirtualAddress.
func MapFile(path string) (*Mapped, error) {
	// #nosec G304 -- path is supplied by the operator on the command line.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image file: %w", err)
	}
	return Map(path, raw)
}

// Map lays out raw, the contents of the PE file at path, as MapFile does.
func Map(path string, raw []byte) (*Mapped, error) {
	m, err := mapBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

func mapBytes(raw []byte) (*Mapped, error) {
	f, err := pe.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse pe: %w", err)
	}
	defer f.Close() // nolint:errcheck

	var (
		headerSize uint32
		imageSize  uint32
		imageBase  uint64
	)
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		headerSize, imageSize, imageBase = oh.SizeOfHeaders, oh.SizeOfImage, uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		headerSize, imageSize, imageBase = oh.SizeOfHeaders, oh.SizeOfImage, oh.ImageBase
	default:
		// Object files carry no optional header; size the image from the sections.
		headerSize = uint32(len(raw))
		for _, s := range f.Sections {
			if end := s.VirtualAddress + max(s.VirtualSize, s.Size); end > imageSize {
				imageSize = end
			}
		}
	}

	if headerSize > uint32(len(raw)) {
		headerSize = uint32(len(raw))
	}
	if imageSize < headerSize {
		imageSize = headerSize
	}

	data := make([]byte, imageSize)
	copy(data, raw[:headerSize])

	for _, s := range f.Sections {
		if s.Size == 0 {
			continue
		}
		n := s.Size
		if s.VirtualSize != 0 && s.VirtualSize < n {
			n = s.VirtualSize
		}
		if uint64(s.VirtualAddress)+uint64(n) > uint64(len(data)) {
			return nil, fmt.Errorf("section %s exceeds image size 0x%x", s.Name, imageSize)
		}
		if _, err := io.ReadFull(io.NewSectionReader(s, 0, int64(n)), data[s.VirtualAddress:s.VirtualAddress+n]); err != nil {
			return nil, fmt.Errorf("read section %s: %w", s.Name, err)
		}
	}

	return &Mapped{PreferredBase: imageBase, data: data}, nil
}

// Image returns the mapped bytes as an Image based at the preferred base.
func (m *Mapped) Image() Image {
	return Image{Base: uintptr(m.PreferredBase), Mem: bytes.NewReader(m.data)}
}

// Size returns the mapped image size in bytes.
func (m *Mapped) Size() int {
	return len(m.data)
}

// ReadAt reads from the mapped image at an absolute address based at PreferredBase.
func (m *Mapped) ReadAt(p []byte, addr int64) (int, error) {
	off := addr - int64(m.PreferredBase)
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
