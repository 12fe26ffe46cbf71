// Package runningstat implements Knuth and Welford's method for computing the standard deviation.
package runningstat

import (
	"math"
	"sync"
	"sync/atomic"

	binutils "github.com/jfoster/binary-utilities"
	"github.com/zyedidia/generic"
)

// IntStat collects statistics of unsigned integer inputs, and allows computing min, max, mean, and variance.
// Algorithm comes from https://www.johndcook.com/blog/standard_deviation/ .
//
// Push is called by one writer. Read may be called concurrently from other goroutines.
// Only sampled inputs acquire the lock.
type IntStat struct {
	mask uint64
	i    atomic.Uint64

	mu  sync.Mutex
	n   uint64
	m1  float64
	m2  float64
	min uint64
	max uint64
}

// Init initializes the instance and clears existing data.
// sampleInterval: how often to collect sample, will be adjusted to nearest power of two and truncated between 1 and 2^30.
func (s *IntStat) Init(sampleInterval int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mask = generic.Clamp(uint64(binutils.NearPowerOfTwo(int64(sampleInterval))), 1, 1<<30) - 1
	s.i.Store(0)
	s.n, s.m1, s.m2 = 0, 0, 0
	s.min, s.max = math.MaxUint64, 0
}

// SampleInterval returns the adjusted sample interval.
func (s *IntStat) SampleInterval() int {
	return int(s.mask + 1)
}

// Push adds an input.
func (s *IntStat) Push(x uint64) {
	if (s.i.Add(1)-1)&s.mask != 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	s.min, s.max = generic.Min(s.min, x), generic.Max(s.max, x)
	xf := float64(x)
	if s.n == 1 {
		s.m1, s.m2 = xf, 0
		return
	}
	delta := xf - s.m1
	s.m1 += delta / float64(s.n)
	s.m2 += delta * (xf - s.m1)
}

// Read returns current counters as Snapshot.
func (s *IntStat) Read() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := makeSnapshot(s.i.Load(), s.n, s.m1, s.m2)
	if s.n > 0 {
		snap.Min, snap.Max = s.min, s.max
	}
	return snap
}
