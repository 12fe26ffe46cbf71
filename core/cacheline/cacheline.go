// Package cacheline provides cache line sizing and aligned allocation.
package cacheline

import "unsafe"

// Size is the assumed cache line size.
const Size = 64

// Pad occupies one cache line.
type Pad [Size]byte

// IsAligned determines whether a pointer is cache line aligned.
func IsAligned(ptr unsafe.Pointer) bool {
	return uintptr(ptr)%Size == 0
}

// Slice allocates a zeroed slice of n elements whose first element is cache line aligned.
// T must not contain pointers, because the backing array is allocated as octets.
func Slice[T any](n int) []T {
	if n == 0 {
		return nil
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	buf := make([]byte, n*elemSize+Size-1)
	offset := 0
	if mod := int(uintptr(unsafe.Pointer(&buf[0])) % Size); mod != 0 {
		offset = Size - mod
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[offset])), n)
}
