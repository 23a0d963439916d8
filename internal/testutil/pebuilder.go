package testutil

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
)

const (
	dosHeaderSize = 0x80
	fileAlignment = 0x200
)

// Section describes one section of a synthetic PE image.
type Section struct {
	// Name is copied into the 8-byte name field and truncated or NUL padded.
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
	// Data is the section's raw contents. Optional.
	Data []byte
}

// PEBuilder assembles minimal PE32+ images for tests.
type PEBuilder struct {
	Sections []Section

	// Signature overrides the two signature bytes. Zero value means "PE".
	Signature [2]byte

	// OptionalHeaderSize overrides the declared optional header size when non-zero.
	// The optional header bytes are still a full PE32+ header.
	OptionalHeaderSize uint16

	ImageBase uint64
}

// Memory returns the image laid out the way the loader maps it: headers at
// offset 0 and each section's data at its VirtualAddress.
func (b *PEBuilder) Memory() []byte {
	headers := b.headers(nil)

	size := uint32(len(headers))
	for _, s := range b.Sections {
		if end := s.VirtualAddress + max(s.VirtualSize, uint32(len(s.Data))); end > size {
			size = end
		}
	}

	img := make([]byte, size)
	copy(img, headers)
	for _, s := range b.Sections {
		copy(img[s.VirtualAddress:], s.Data)
	}
	return img
}

// File returns the image as it is stored on disk: section data packed after
// the headers at FileAlignment boundaries.
func (b *PEBuilder) File() []byte {
	offsets := make([]uint32, len(b.Sections))
	next := align(uint32(len(b.headers(nil))), fileAlignment)
	for i, s := range b.Sections {
		if len(s.Data) == 0 {
			continue
		}
		offsets[i] = next
		next = align(next+uint32(len(s.Data)), fileAlignment)
	}

	out := make([]byte, next)
	copy(out, b.headers(offsets))
	for i, s := range b.Sections {
		copy(out[offsets[i]:], s.Data)
	}
	return out
}

func (b *PEBuilder) headers(rawOffsets []uint32) []byte {
	var buf bytes.Buffer

	dos := make([]byte, dosHeaderSize)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3C:], dosHeaderSize)
	buf.Write(dos)

	sig := b.Signature
	if sig == [2]byte{} {
		sig = [2]byte{'P', 'E'}
	}
	buf.Write([]byte{sig[0], sig[1], 0, 0})

	var oh pe.OptionalHeader64
	optSize := uint16(binary.Size(oh))
	if b.OptionalHeaderSize != 0 {
		optSize = b.OptionalHeaderSize
	}

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     uint16(len(b.Sections)),
		SizeOfOptionalHeader: optSize,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	}
	_ = binary.Write(&buf, binary.LittleEndian, fh)

	headerEnd := uint32(buf.Len()) + uint32(optSize) + uint32(len(b.Sections))*40
	sizeOfHeaders := align(headerEnd, fileAlignment)

	imageSize := sizeOfHeaders
	for _, s := range b.Sections {
		if end := s.VirtualAddress + max(s.VirtualSize, uint32(len(s.Data))); end > imageSize {
			imageSize = end
		}
	}

	oh = pe.OptionalHeader64{
		Magic:               0x20b,
		ImageBase:           b.ImageBase,
		SectionAlignment:    0x1000,
		FileAlignment:       fileAlignment,
		SizeOfImage:         imageSize,
		SizeOfHeaders:       sizeOfHeaders,
		NumberOfRvaAndSizes: 16,
	}
	ohBuf := new(bytes.Buffer)
	_ = binary.Write(ohBuf, binary.LittleEndian, oh)
	opt := ohBuf.Bytes()
	if int(optSize) > len(opt) {
		opt = append(opt, make([]byte, int(optSize)-len(opt))...)
	}
	buf.Write(opt[:optSize])

	for i, s := range b.Sections {
		var sh pe.SectionHeader32
		copy(sh.Name[:], s.Name)
		sh.VirtualSize = s.VirtualSize
		sh.VirtualAddress = s.VirtualAddress
		sh.SizeOfRawData = align(uint32(len(s.Data)), fileAlignment)
		if rawOffsets != nil {
			sh.PointerToRawData = rawOffsets[i]
		}
		_ = binary.Write(&buf, binary.LittleEndian, sh)
	}

	return buf.Bytes()
}

func align(v, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}
