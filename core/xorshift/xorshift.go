// Package xorshift implements the xorshift64* pseudo-random number generator.
//
// The generator is deterministic given its seed, so byte streams produced by Fill are reproducible
// across runs and machines. It is not suitable for cryptographic use.
package xorshift

import "encoding/binary"

// Multiplier is the xorshift64* output multiplier.
const Multiplier = 0x2545F4914F6CDD1D

// ZeroSeedReplacement replaces a zero seed, because zero is a fixed point of xorshift.
const ZeroSeedReplacement = 0x9E3779B97F4A7C15

// Rand is a xorshift64* generator.
// Zero value is not usable; use New or Seed.
type Rand struct {
	x uint64
}

// New creates a generator.
func New(seed uint64) (r *Rand) {
	r = &Rand{}
	r.Seed(seed)
	return r
}

// Seed resets the generator state.
func (r *Rand) Seed(seed uint64) {
	if seed == 0 {
		seed = ZeroSeedReplacement
	}
	r.x = seed
}

// Uint64 returns the next output.
func (r *Rand) Uint64() uint64 {
	x := r.x
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	r.x = x
	return x * Multiplier
}

// Uint64n returns a value in [0,n).
// n must be positive.
func (r *Rand) Uint64n(n uint64) uint64 {
	if n&(n-1) == 0 {
		return r.Uint64() & (n - 1)
	}
	return r.Uint64() % n
}

// Fill writes the output stream into p, 8 octets per output in little endian.
// A trailing partial word takes the low octets of one more output.
func (r *Rand) Fill(p []byte) {
	for len(p) >= 8 {
		binary.LittleEndian.PutUint64(p, r.Uint64())
		p = p[8:]
	}
	if len(p) > 0 {
		var last [8]byte
		binary.LittleEndian.PutUint64(last[:], r.Uint64())
		copy(p, last[:])
	}
}
