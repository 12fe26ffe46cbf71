// Package lcore provides logical CPU and NUMA socket value types.
package lcore

import (
	"encoding/json"
	"strconv"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// MaxID is the maximum logical CPU ID that fits in unix.CPUSet.
const MaxID = int(unsafe.Sizeof(unix.CPUSet{}))*8 - 1

// LCore represents a logical CPU.
// Zero value is invalid lcore.
type LCore struct {
	v int // CPU ID + 1
}

// FromID converts CPU ID to LCore.
func FromID(id int) (lc LCore) {
	if id < 0 || id > MaxID {
		return lc
	}
	lc.v = id + 1
	return lc
}

// ID returns CPU ID.
func (lc LCore) ID() int {
	return lc.v - 1
}

// Valid returns true if this is a valid lcore (not zero value).
func (lc LCore) Valid() bool {
	return lc.v != 0
}

func (lc LCore) String() string {
	if !lc.Valid() {
		return "invalid"
	}
	return strconv.Itoa(lc.ID())
}

// MarshalJSON encodes lcore as number.
// Invalid lcore is encoded as null.
func (lc LCore) MarshalJSON() ([]byte, error) {
	if !lc.Valid() {
		return json.Marshal(nil)
	}
	return json.Marshal(lc.ID())
}

// ZapField returns a zap.Field for logging.
func (lc LCore) ZapField(key string) zap.Field {
	if !lc.Valid() {
		return zap.String(key, "invalid")
	}
	return zap.Int(key, lc.ID())
}

// Pin restricts the calling OS thread to this lcore.
// The caller should have invoked runtime.LockOSThread.
func (lc LCore) Pin() error {
	var set unix.CPUSet
	set.Set(lc.ID())
	return unix.SchedSetaffinity(0, &set)
}

// LCores is a slice of LCore.
type LCores []LCore

// IDs returns CPU IDs.
func (lcs LCores) IDs() (list []int) {
	for _, lc := range lcs {
		list = append(list, lc.ID())
	}
	return list
}
