package frame

import (
	"errors"
	"fmt"

	"github.com/usnistgov/hugeplane/core/cacheline"
)

// Limits.
const (
	MinDpf = 1
	MaxDpf = 1024
)

// ErrDpf indicates descriptors-per-frame is out of range.
var ErrDpf = fmt.Errorf("descriptors per frame must be between %d and %d", MinDpf, MaxDpf)

// ErrNoFrames indicates a pool without frames.
var ErrNoFrames = errors.New("frame count must be positive")

// Pool is a flat cache-line aligned array of nFrames×dpf descriptors, plus one effective-octets
// counter per frame.
//
// A frame is written only by the producer that owns its slot, and read by the consumer after the slot
// index has been popped from a ring. The ring provides the happens-before edge, so Pool itself has no
// synchronization.
type Pool struct {
	desc []Descriptor
	eff  []uint64
	dpf  int
	n    int
}

// NewPool creates a Pool.
func NewPool(nFrames, dpf int) (*Pool, error) {
	if dpf < MinDpf || dpf > MaxDpf {
		return nil, ErrDpf
	}
	if nFrames <= 0 {
		return nil, ErrNoFrames
	}
	return &Pool{
		desc: cacheline.Slice[Descriptor](nFrames * dpf),
		eff:  cacheline.Slice[uint64](nFrames),
		dpf:  dpf,
		n:    nFrames,
	}, nil
}

// PoolFromMemory creates a Pool over externally owned descriptors, such as a shared memory region.
// len(desc) must be a positive multiple of dpf.
// The pool has no effective-octets counters: EffBytes sums descriptor lengths instead.
func PoolFromMemory(desc []Descriptor, dpf int) (*Pool, error) {
	if dpf < MinDpf || dpf > MaxDpf {
		return nil, ErrDpf
	}
	if len(desc) == 0 || len(desc)%dpf != 0 {
		return nil, ErrNoFrames
	}
	return &Pool{
		desc: desc,
		dpf:  dpf,
		n:    len(desc) / dpf,
	}, nil
}

// Sub returns a view of nFrames frames starting at frame first.
func (p *Pool) Sub(first, nFrames int) *Pool {
	if first < 0 || nFrames <= 0 || first+nFrames > p.n {
		panic("frame range out of bounds")
	}
	sub := &Pool{
		desc: p.desc[first*p.dpf : (first+nFrames)*p.dpf],
		dpf:  p.dpf,
		n:    nFrames,
	}
	if p.eff != nil {
		sub.eff = p.eff[first : first+nFrames]
	}
	return sub
}

// Dpf returns descriptors per frame.
func (p *Pool) Dpf() int {
	return p.dpf
}

// Len returns number of frames.
func (p *Pool) Len() int {
	return p.n
}

// Frame returns the i-th frame.
func (p *Pool) Frame(i int) Frame {
	first := i * p.dpf
	return p.desc[first : first+p.dpf : first+p.dpf]
}

// EffBytes returns the recorded effective octets of the i-th frame.
func (p *Pool) EffBytes(i int) uint64 {
	if p.eff == nil {
		return p.Frame(i).EffBytes()
	}
	return p.eff[i]
}

// SetEffBytes records the effective octets of the i-th frame.
// It has no effect on a pool without counters.
func (p *Pool) SetEffBytes(i int, n uint64) {
	if p.eff != nil {
		p.eff[i] = n
	}
}
