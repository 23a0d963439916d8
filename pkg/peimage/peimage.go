package peimage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// ntHeaderOffsetLocation is where the DOS stub stores e_lfanew.
	ntHeaderOffsetLocation = 0x3C

	signatureSize      = 4
	fileHeaderSize     = 20
	sectionRecordSize  = 40
	sectionNameSize    = 8
	numSectionsOffset  = 2
	optHeaderSizeField = 16
	virtualSizeOffset  = 8
	virtualAddrOffset  = 12
)

var (
	// ErrBadSignature is returned when the bytes at the NT header offset are not "PE".
	ErrBadSignature = errors.New("image does not carry a PE signature")

	// ErrTruncated is returned when the reader ends before the declared headers do.
	ErrTruncated = errors.New("image headers are truncated")
)

// Image is a PE image resident in memory. Mem is addressed relative to Base.
type Image struct {
	Base uintptr
	Mem  io.ReaderAt
}

// Descriptor is the memory range of a located section.
type Descriptor struct {
	// Address is the absolute address of the section's first byte.
	Address uintptr

	// Size is the section's virtual size in bytes.
	Size uint32
}

// SectionHeader is one decoded record of the section table.
type SectionHeader struct {
	Name           string `json:"name"`
	VirtualSize    uint32 `json:"virtual_size"`
	VirtualAddress uint32 `json:"virtual_address"`
}

// Find returns the first section whose name equals name.
// The boolean is false when no section matches; that is not an error.
func Find(img Image, name string) (Descriptor, bool, error) {
	var (
		found Descriptor
		ok    bool
	)

	err := walkSections(img.Mem, func(hdr SectionHeader) bool {
		if hdr.Name != name {
			return true
		}
		found = Descriptor{
			Address: img.Base + uintptr(hdr.VirtualAddress),
			Size:    hdr.VirtualSize,
		}
		ok = true
		return false
	})
	if err != nil {
		return Descriptor{}, false, err
	}

	return found, ok, nil
}

// Sections decodes the full section table in table order.
func Sections(img Image) ([]SectionHeader, error) {
	var headers []SectionHeader
	err := walkSections(img.Mem, func(hdr SectionHeader) bool {
		headers = append(headers, hdr)
		return true
	})
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// walkSections calls fn for each section record until fn returns false or
// the declared count is exhausted.
func walkSections(mem io.ReaderAt, fn func(SectionHeader) bool) error {
	d := decoder{r: mem}

	ntOffset, err := d.u32(ntHeaderOffsetLocation)
	if err != nil {
		return fmt.Errorf("read nt header offset: %w", err)
	}

	sig, err := d.bytes(int64(ntOffset), 2)
	if err != nil {
		return fmt.Errorf("read signature: %w", err)
	}
	if sig[0] != 'P' || sig[1] != 'E' {
		return fmt.Errorf("%w: found %q at 0x%x", ErrBadSignature, sig, ntOffset)
	}

	coff := int64(ntOffset) + signatureSize

	count, err := d.u16(coff + numSectionsOffset)
	if err != nil {
		return fmt.Errorf("read section count: %w", err)
	}
	optSize, err := d.u16(coff + optHeaderSizeField)
	if err != nil {
		return fmt.Errorf("read optional header size: %w", err)
	}

	record := coff + fileHeaderSize + int64(optSize)
	for i := 0; i < int(count); i++ {
		raw, err := d.bytes(record, sectionRecordSize)
		if err != nil {
			return fmt.Errorf("read section record %d: %w", i, err)
		}

		hdr := SectionHeader{
			Name:           sectionName(raw[:sectionNameSize]),
			VirtualSize:    binary.LittleEndian.Uint32(raw[virtualSizeOffset:]),
			VirtualAddress: binary.LittleEndian.Uint32(raw[virtualAddrOffset:]),
		}
		if !fn(hdr) {
			return nil
		}
		record += sectionRecordSize
	}

	return nil
}

// sectionName re-terminates an 8-byte name field at its first NUL.
func sectionName(field []byte) string {
	for i, c := range field {
		if c == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

// decoder reads fixed-width little-endian fields at byte offsets.
type decoder struct {
	r io.ReaderAt
}

func (d decoder) bytes(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := d.r.ReadAt(buf, off)
	if read == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: want %d bytes at 0x%x, got %d", ErrTruncated, n, off, read)
	}
	return nil, err
}

func (d decoder) u16(off int64) (uint16, error) {
	b, err := d.bytes(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d decoder) u32(off int64) (uint32, error) {
	b, err := d.bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
