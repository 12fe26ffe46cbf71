// Package ops contains the byte operations executed by the pCPU applicator.
//
// Each function processes one span and carries its state in and out, so that a computation over
// several spans equals the computation over their concatenation.
// Functions only touch the slice they are given.
package ops

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// FNV-1a 64-bit parameters.
const (
	FNVOffsetBasis = 0xcbf29ce484222325
	FNVPrime       = 0x100000001b3
)

// HistChunk is the chunk size of Hist8.
const HistChunk = 4096

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// FNV64 continues an FNV-1a 64-bit hash over p.
func FNV64(h uint64, p []byte) uint64 {
	for _, b := range p {
		h ^= uint64(b)
		h *= FNVPrime
	}
	return h
}

// CRC32C continues a CRC-32C (Castagnoli) checksum over p.
// Pass zero to start a new checksum.
func CRC32C(crc uint32, p []byte) uint32 {
	return crc32.Update(crc, castagnoli, p)
}

// XOR8 XORs every octet of p with imm.
func XOR8(p []byte, imm uint8) {
	word := uint64(imm) * 0x0101010101010101
	for len(p) >= 8 {
		binary.LittleEndian.PutUint64(p, binary.LittleEndian.Uint64(p)^word)
		p = p[8:]
	}
	for i := range p {
		p[i] ^= imm
	}
}

// ADD8 adds imm to every octet of p, modulo 256.
func ADD8(p []byte, imm uint8) {
	for i := range p {
		p[i] += imm
	}
}

// CountEq8 counts octets of p that equal imm.
func CountEq8(p []byte, imm uint8) uint64 {
	return uint64(bytes.Count(p, []byte{imm}))
}

// Hist8 computes the fold of one span.
// Each HistChunk-sized chunk (the last may be shorter) is hashed with FNV64 from the offset basis,
// then folded as (h^imm)*FNVPrime. The span fold is the XOR of chunk folds.
func Hist8(p []byte, imm uint8) (fold uint64) {
	for len(p) > 0 {
		n := HistChunk
		if len(p) < n {
			n = len(p)
		}
		h := FNV64(FNVOffsetBasis, p[:n])
		fold ^= (h ^ uint64(imm)) * FNVPrime
		p = p[n:]
	}
	return fold
}
