// Package frame provides the descriptor model and the pre-allocated frame pool.
package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unsafe"
)

// DescriptorSize is the size of a Descriptor in octets.
const DescriptorSize = 16

// Descriptor references a span [Offset, Offset+Len) of a HugeBlob.
type Descriptor struct {
	Offset uint64
	Len    uint32
	// Flags is reserved. Bits that are not interpreted must be preserved.
	// The channel producer stores a frame sequence number in Flags of the first descriptor.
	Flags uint32
}

var (
	_ [DescriptorSize - unsafe.Sizeof(Descriptor{})]byte
	_ [unsafe.Sizeof(Descriptor{}) - DescriptorSize]byte
)

// End returns the exclusive end offset.
func (d Descriptor) End() uint64 {
	return d.Offset + uint64(d.Len)
}

// Valid determines whether the descriptor lies entirely within a blob of the given size.
func (d Descriptor) Valid(blobSize uint64) bool {
	return d.Offset < blobSize && uint64(d.Len) <= blobSize-d.Offset
}

// Clamp returns the in-bounds portion of the span within a blob of the given size.
// n is zero if nothing is in bounds.
func (d Descriptor) Clamp(blobSize uint64) (offset, n uint64) {
	if d.Offset >= blobSize {
		return d.Offset, 0
	}
	n = uint64(d.Len)
	if rem := blobSize - d.Offset; n > rem {
		n = rem
	}
	return d.Offset, n
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%d+%d", d.Offset, d.Len)
}

// ErrDescriptorSyntax indicates a descriptor cannot be parsed.
var ErrDescriptorSyntax = errors.New("descriptor must be OFFSET+LEN or OFFSET:LEN")

// ParseDescriptor parses "OFFSET+LEN" or "OFFSET:LEN".
// Flags are zero.
func ParseDescriptor(input string) (d Descriptor, e error) {
	off, n, ok := strings.Cut(input, "+")
	if !ok {
		off, n, ok = strings.Cut(input, ":")
	}
	if !ok {
		return d, ErrDescriptorSyntax
	}
	if d.Offset, e = strconv.ParseUint(off, 0, 64); e != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrDescriptorSyntax, e)
	}
	l, e := strconv.ParseUint(n, 0, 32)
	if e != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrDescriptorSyntax, e)
	}
	d.Len = uint32(l)
	return d, nil
}

// Frame is a fixed-length sequence of descriptors owned by one slot.
type Frame []Descriptor

// EffBytes returns the sum of descriptor lengths.
func (f Frame) EffBytes() (sum uint64) {
	for _, d := range f {
		sum += uint64(d.Len)
	}
	return sum
}
