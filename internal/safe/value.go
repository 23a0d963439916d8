// Package safe holds checked conversions and bounded file reads.
package safe

import (
	"math"
)

// Uint64ToInt64 converts val to int64, clamping to math.MaxInt64.
// The boolean reports whether clamping occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}

// UintptrToOffset converts an address to an io.ReaderAt offset.
// ok is false when the address does not fit in an int64.
func UintptrToOffset(addr uintptr) (off int64, ok bool) {
	off, clamped := Uint64ToInt64(uint64(addr))
	return off, !clamped
}
