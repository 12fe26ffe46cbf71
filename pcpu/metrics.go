package pcpu

import (
	"fmt"
)

// Metrics is the accounting record of one apply.
type Metrics struct {
	// BytesTotal is the sum of descriptor lengths before clamping.
	BytesTotal uint64 `json:"bytesTotal"`
	// BytesTouched is the sum of clamped lengths.
	BytesTouched uint64 `json:"bytesTouched"`
	// DescCount is the number of descriptors with non-empty clamped span.
	DescCount uint64 `json:"descCount"`
	// ChecksumOut is the accumulator of the last checksum-producing step.
	ChecksumOut uint64 `json:"checksumOut"`
	// Ns is the elapsed monotonic time in nanoseconds.
	Ns uint64 `json:"ns"`
	// Cycles is not measured and always zero.
	Cycles uint64 `json:"cycles"`
}

// BytesClamped returns octets skipped due to out-of-bounds descriptors.
func (m Metrics) BytesClamped() uint64 {
	return m.BytesTotal - m.BytesTouched
}

// Add accumulates byte and timing totals of another record.
// ChecksumOut is taken from other.
func (m *Metrics) Add(other Metrics) {
	m.BytesTotal += other.BytesTotal
	m.BytesTouched += other.BytesTouched
	m.DescCount += other.DescCount
	m.ChecksumOut = other.ChecksumOut
	m.Ns += other.Ns
	m.Cycles += other.Cycles
}

func (m Metrics) String() string {
	return fmt.Sprintf("%dB total, %dB touched, %d desc, checksum %016x, %dns",
		m.BytesTotal, m.BytesTouched, m.DescCount, m.ChecksumOut, m.Ns)
}
