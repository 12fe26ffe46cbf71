package pcpu

import (
	"time"

	"github.com/usnistgov/hugeplane/mem/frame"
	"github.com/usnistgov/hugeplane/pcpu/ops"
)

// Apply runs a single op over descriptors.
// seed is the initial FNV64 accumulator, normally ops.FNVOffsetBasis.
func Apply(blob []byte, descs []frame.Descriptor, op Op, imm uint8, seed uint64) Metrics {
	prog := [1]Step{{Op: op, Imm: imm}}
	return ApplyProgram(blob, descs, prog[:], seed)
}

// ApplyProgram runs a program over descriptors.
//
// Each descriptor is clamped to the blob; a descriptor starting beyond the blob, or with zero length, is
// skipped. Every step has its own accumulator: FNV64 starts from seed, others start from zero.
// CRC32C and HIST8 state carries across descriptors. If no step produces a checksum, ChecksumOut is seed.
//
// The result is a pure function of blob contents, descriptors, program, and seed, except for Ns.
func ApplyProgram(blob []byte, descs []frame.Descriptor, prog Program, seed uint64) (m Metrics) {
	if len(prog) > MaxSteps {
		panic(ErrTooManySteps)
	}
	t0 := time.Now()
	var acc [MaxSteps]uint64
	checksumStep := -1
	for i, st := range prog {
		if st.Op == OpFNV64 {
			acc[i] = seed
		}
		if st.Op.Valid() && !st.Op.Mutates() {
			checksumStep = i
		}
	}

	size := uint64(len(blob))
	for _, d := range descs {
		m.BytesTotal += uint64(d.Len)
		off, n := d.Clamp(size)
		if n == 0 {
			continue
		}
		span := blob[off : off+n : off+n]
		for i, st := range prog {
			switch st.Op {
			case OpFNV64:
				acc[i] = ops.FNV64(acc[i], span)
			case OpXOR8:
				ops.XOR8(span, st.Imm)
			case OpCRC32C:
				acc[i] = uint64(ops.CRC32C(uint32(acc[i]), span))
			case OpADD8:
				ops.ADD8(span, st.Imm)
			case OpCountEq8:
				acc[i] += ops.CountEq8(span, st.Imm)
			case OpHist8:
				acc[i] ^= ops.Hist8(span, st.Imm)
			}
		}
		m.BytesTouched += n
		m.DescCount++
	}

	m.ChecksumOut = seed
	if checksumStep >= 0 {
		m.ChecksumOut = acc[checksumStep]
	}
	m.Ns = uint64(time.Since(t0))
	return m
}
