// Package spscring provides a lock-free single-producer single-consumer ring of slot indices.
package spscring

import (
	"errors"
	"sync/atomic"
	"unsafe"

	binutils "github.com/jfoster/binary-utilities"
	"github.com/pkg/math"
	"github.com/usnistgov/hugeplane/core/cacheline"
)

// Limits and defaults.
const (
	MinCapacity     = 2
	MaxCapacity     = 1 << 22
	DefaultCapacity = 1024
)

// ErrCapacity indicates the capacity is not a power of two within limits.
var ErrCapacity = errors.New("ring capacity must be a power of two between 2 and 4194304")

// AlignCapacity adjusts Ring capacity to a power of two between minimum and maximum.
// Optional arguments: minimum capacity, default capacity, maximum capacity.
// Default capacity is used if input is zero.
func AlignCapacity(capacity int, opts ...int) int {
	min, dflt, max := MinCapacity, DefaultCapacity, MaxCapacity
	switch len(opts) {
	case 0:
	case 1:
		min, dflt = opts[0], opts[0]
	case 2:
		min, dflt = opts[0], opts[1]
	case 3:
		min, dflt, max = opts[0], opts[1], opts[2]
	default:
		panic("unexpected opts count")
	}
	if dflt < min || dflt > max || !IsPowerOfTwo(min) || !IsPowerOfTwo(dflt) || !IsPowerOfTwo(max) {
		panic("invalid min, dflt, max")
	}

	if capacity <= 0 {
		capacity = dflt
	} else {
		capacity = int(binutils.NextPowerOfTwo(int64(capacity)))
	}
	return math.MinInt(math.MaxInt(min, capacity), max)
}

// IsPowerOfTwo determines whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && binutils.NextPowerOfTwo(int64(n)) == int64(n)
}

// Ring is a bounded SPSC queue of uint32 slot indices.
// One slot is reserved as sentinel, so a ring of capacity C holds at most C-1 items.
//
// TryPush may only be called by the producer, and TryPop may only be called by the consumer.
// The tail store in TryPush publishes every write the producer made before it, including writes to the
// frame named by the pushed index; the head store in TryPop does the same for the consumer.
type Ring struct {
	head  *atomic.Uint32
	tail  *atomic.Uint32
	slots []uint32
	mask  uint32
}

type indices struct {
	_    cacheline.Pad
	head atomic.Uint32
	_    [cacheline.Size - 4]byte
	tail atomic.Uint32
	_    [cacheline.Size - 4]byte
}

// New creates a Ring in Go heap memory.
// head and tail are on separate cache lines, and the slots array starts on a cache line.
func New(capacity int) (*Ring, error) {
	if !IsPowerOfTwo(capacity) || capacity < MinCapacity || capacity > MaxCapacity {
		return nil, ErrCapacity
	}
	idx := &indices{}
	return &Ring{
		head:  &idx.head,
		tail:  &idx.tail,
		slots: cacheline.Slice[uint32](capacity),
		mask:  uint32(capacity - 1),
	}, nil
}

// FromMemory creates a Ring over externally owned memory, such as a shared memory region.
// len(slots) is the capacity. head and tail must be 4-octet aligned.
// Index values are not trusted: they are masked before use.
func FromMemory(head, tail *uint32, slots []uint32) (*Ring, error) {
	capacity := len(slots)
	if !IsPowerOfTwo(capacity) || capacity < MinCapacity || capacity > MaxCapacity {
		return nil, ErrCapacity
	}
	return &Ring{
		head:  (*atomic.Uint32)(unsafe.Pointer(head)),
		tail:  (*atomic.Uint32)(unsafe.Pointer(tail)),
		slots: slots,
		mask:  uint32(capacity - 1),
	}, nil
}

// Capacity returns the size of the slots array.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Count returns number of items in the ring.
// The result is exact only when called by the producer or the consumer while the other side is idle.
func (r *Ring) Count() int {
	return int((r.tail.Load() - r.head.Load()) & r.mask)
}

// Free returns number of items that could be pushed.
func (r *Ring) Free() int {
	return int(r.mask) - r.Count()
}

// TryPush enqueues v, returns false if the ring is full.
func (r *Ring) TryPush(v uint32) bool {
	tail := r.tail.Load() & r.mask
	next := (tail + 1) & r.mask
	if next == r.head.Load()&r.mask {
		return false
	}
	r.slots[tail] = v
	r.tail.Store(next)
	return true
}

// TryPop dequeues an item, returns false if the ring is empty.
func (r *Ring) TryPop() (v uint32, ok bool) {
	if v, ok = r.Peek(); ok {
		r.Advance()
	}
	return v, ok
}

// Peek returns the oldest item without dequeuing it, returns false if the ring is empty.
// The consumer may read the frame named by the item until it calls Advance.
func (r *Ring) Peek() (v uint32, ok bool) {
	head := r.head.Load() & r.mask
	if head == r.tail.Load()&r.mask {
		return 0, false
	}
	return r.slots[head], true
}

// Advance dequeues the item returned by the last successful Peek.
// This acknowledges that the consumer no longer needs the frame named by the item.
func (r *Ring) Advance() {
	r.head.Store((r.head.Load() + 1) & r.mask)
}

// Reset empties the ring.
// This must not be called while a producer or a consumer is active.
func (r *Ring) Reset() {
	r.head.Store(0)
	r.tail.Store(0)
}
