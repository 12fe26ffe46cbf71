package runningstat

import (
	"fmt"
	"math"

	"github.com/zyedidia/generic"
)

// Snapshot is a reading of IntStat.
type Snapshot struct {
	// Count is the number of pushed inputs.
	Count uint64 `json:"count"`
	// Len is the number of sampled inputs.
	Len uint64 `json:"len"`

	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`

	// Min and Max are zero when unknown, including in a difference.
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`

	m2 float64
}

func makeSnapshot(count, n uint64, mean, m2 float64) (s Snapshot) {
	s.Count, s.Len = count, n
	if n == 0 {
		return s
	}
	s.Mean, s.m2 = mean, math.Max(m2, 0)
	s.Stdev = math.Sqrt(s.Variance())
	return s
}

// Variance returns sample variance.
func (s Snapshot) Variance() float64 {
	if s.Len < 2 {
		return 0
	}
	return s.m2 / float64(s.Len-1)
}

// Add merges readings of disjoint inputs, such as from several consumers.
func (s Snapshot) Add(o Snapshot) Snapshot {
	switch {
	case o.Len == 0:
		s.Count += o.Count
		return s
	case s.Len == 0:
		o.Count += s.Count
		return o
	}

	na, nb := float64(s.Len), float64(o.Len)
	n := na + nb
	delta := o.Mean - s.Mean
	r := makeSnapshot(s.Count+o.Count, s.Len+o.Len, s.Mean+delta*nb/n, s.m2+o.m2+delta*delta*na*nb/n)
	r.Min, r.Max = generic.Min(s.Min, o.Min), generic.Max(s.Max, o.Max)
	return r
}

// Sub computes statistics of inputs pushed after o was read from the same IntStat.
func (s Snapshot) Sub(o Snapshot) Snapshot {
	if s.Len <= o.Len {
		return makeSnapshot(s.Count-o.Count, 0, 0, 0)
	}

	n, na := float64(s.Len), float64(o.Len)
	nb := n - na
	mean := (n*s.Mean - na*o.Mean) / nb
	delta := mean - o.Mean
	return makeSnapshot(s.Count-o.Count, s.Len-o.Len, mean, s.m2-o.m2-delta*delta*na*nb/n)
}

func (s Snapshot) String() string {
	if s.Len == 0 {
		return fmt.Sprintf("%d inputs", s.Count)
	}
	return fmt.Sprintf("%.0f±%.0f [%d,%d] (%d/%d)", s.Mean, s.Stdev, s.Min, s.Max, s.Len, s.Count)
}
