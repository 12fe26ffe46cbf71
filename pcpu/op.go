// Package pcpu implements the pCPU applicator, a deterministic byte-op engine over blob spans.
package pcpu

import (
	"errors"
	"strings"
)

// ErrOp indicates an unknown op name.
var ErrOp = errors.New("unknown op")

// Op identifies a byte operation.
type Op uint8

// Op values.
const (
	OpNone Op = iota
	OpFNV64
	OpCRC32C
	OpXOR8
	OpADD8
	OpCountEq8
	OpHist8
	nOps
)

var opNames = [nOps]string{
	OpNone:     "NONE",
	OpFNV64:    "FNV64",
	OpCRC32C:   "CRC32C",
	OpXOR8:     "XOR8",
	OpADD8:     "ADD8",
	OpCountEq8: "COUNTEQ8",
	OpHist8:    "HIST8",
}

// Valid determines whether op is a known operation other than OpNone.
func (op Op) Valid() bool {
	return op > OpNone && op < nOps
}

// Mutates determines whether op writes to the blob.
func (op Op) Mutates() bool {
	return op == OpXOR8 || op == OpADD8
}

func (op Op) String() string {
	if op < nOps {
		return opNames[op]
	}
	return "INVALID"
}

// MarshalText implements encoding.TextMarshaler interface.
func (op Op) MarshalText() (text []byte, e error) {
	if !op.Valid() {
		return nil, ErrOp
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (op *Op) UnmarshalText(text []byte) (e error) {
	*op, e = ParseOp(string(text))
	return e
}

// ParseOp parses an op name, case insensitive.
func ParseOp(input string) (Op, error) {
	for op := OpFNV64; op < nOps; op++ {
		if strings.EqualFold(input, opNames[op]) {
			return op, nil
		}
	}
	return OpNone, ErrOp
}
