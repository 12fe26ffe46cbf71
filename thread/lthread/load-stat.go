package lthread

import (
	"fmt"
	"sync/atomic"
)

// LoadStat contains statistics of a polling thread.
type LoadStat struct {
	EmptyPolls uint64 `json:"emptyPolls"`
	ValidPolls uint64 `json:"validPolls"`
}

// Add computes the sum.
func (s LoadStat) Add(other LoadStat) (sum LoadStat) {
	sum.EmptyPolls = s.EmptyPolls + other.EmptyPolls
	sum.ValidPolls = s.ValidPolls + other.ValidPolls
	return sum
}

// Sub computes the difference.
func (s LoadStat) Sub(prev LoadStat) (diff LoadStat) {
	diff.EmptyPolls = s.EmptyPolls - prev.EmptyPolls
	diff.ValidPolls = s.ValidPolls - prev.ValidPolls
	return diff
}

func (s LoadStat) String() string {
	return fmt.Sprintf("%dE %dV", s.EmptyPolls, s.ValidPolls)
}

// LoadCounter collects LoadStat within a running thread.
type LoadCounter struct {
	nPolls [2]atomic.Uint64
}

// Poll records one poll.
func (c *LoadCounter) Poll(valid bool) {
	if valid {
		c.nPolls[1].Add(1)
	} else {
		c.nPolls[0].Add(1)
	}
}

// Read returns a snapshot.
func (c *LoadCounter) Read() LoadStat {
	return LoadStat{
		EmptyPolls: c.nPolls[0].Load(),
		ValidPolls: c.nPolls[1].Load(),
	}
}

// ThreadWithLoadStat is an object that tracks thread load statistics.
type ThreadWithLoadStat interface {
	Thread
	ThreadLoadStat() LoadStat
}
