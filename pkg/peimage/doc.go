// Package peimage locates named sections inside PE/COFF images that are
// already laid out in memory.
//
// # Overview
//
// An Image is a base address plus a reader over the bytes starting at that
// address. Find walks the image's headers the same way the Windows loader
// does:
//
//	0x3C          uint32 offset of the "PE\0\0" signature
//	sig+4         COFF file header (20 bytes)
//	  +2          uint16 NumberOfSections
//	  +16         uint16 SizeOfOptionalHeader
//	sig+24+opt    section table, 40-byte records
//	  +0          [8]byte Name (NUL padded)
//	  +8          uint32 VirtualSize
//	  +12         uint32 VirtualAddress
//
// # Usage
//
//	img := peimage.Image{Base: base, Mem: peimage.Live(base)}
//	desc, ok, err := peimage.Find(img, ".sw2prtc")
//	if err != nil {
//		return err
//	}
//	if ok {
//		fmt.Printf("section at 0x%x, %d bytes\n", desc.Address, desc.Size)
//	}
//
// For binaries on disk, MapFile produces the loader layout so the same
// lookup works on any OS.
package peimage
