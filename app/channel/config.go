package channel

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/usnistgov/hugeplane/container/spscring"
	"github.com/usnistgov/hugeplane/core/nnduration"
	"github.com/usnistgov/hugeplane/mem/frame"
	"github.com/usnistgov/hugeplane/pcpu"
	"github.com/usnistgov/hugeplane/thread/lcore"
	"github.com/usnistgov/hugeplane/thread/lthread"
	"go.uber.org/multierr"
)

// Limits and defaults.
const (
	MinRingPow2 = 4
	MaxRingPow2 = 22
	MaxAlign    = 4096
	MaxSegLen   = math.MaxUint32

	// MaxScatterLen is the maximum descriptor length in scatter mode.
	MaxScatterLen = 256 << 10

	DefaultRingPow2            = 10
	DefaultDpf                 = 32
	DefaultAlign               = 64
	DefaultSegLen              = 4096
	DefaultIdleSleep           = 200 * time.Microsecond
	DefaultApplySampleInterval = 64
)

// Error conditions.
var (
	ErrPorts    = errors.New("ports and queues must be positive")
	ErrRingPow2 = fmt.Errorf("ringPow2 must be between %d and %d", MinRingPow2, MaxRingPow2)
	ErrAlign    = fmt.Errorf("align must be a power of two between 1 and %d", MaxAlign)
	ErrSegLen   = fmt.Errorf("segLen must be between 1 and %d", uint64(MaxSegLen))
	ErrMode     = errors.New("mode must be contig or scatter")
	ErrPace     = errors.New("pps and burst must be non-negative")
	ErrRange    = errors.New("ring range out of bounds")
	ErrOverlap  = errors.New("ring range overlaps another thread of the same kind")
	ErrBlob     = errors.New("blob is smaller than one segment")
	ErrLane     = errors.New("lane geometry does not match config")
	ErrStopped  = errors.New("channel is stopped")
)

// Mode selects how producers generate descriptors.
type Mode string

// Mode values.
const (
	ModeContig  Mode = "contig"
	ModeScatter Mode = "scatter"
)

// Valid determines whether the mode is known.
func (m Mode) Valid() bool {
	return m == ModeContig || m == ModeScatter
}

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (m *Mode) UnmarshalText(text []byte) error {
	mode := Mode(text)
	if !mode.Valid() {
		return ErrMode
	}
	*m = mode
	return nil
}

// Config contains channel configuration.
type Config struct {
	// Ports and Queues determine the number of rings, Ports×Queues.
	Ports  int `json:"ports"`
	Queues int `json:"queues"`

	// RingPow2 is log2 of ring capacity; each ring also owns this many frames.
	RingPow2 int `json:"ringPow2"`

	// Dpf is descriptors per frame.
	Dpf int `json:"dpf"`

	// Align is descriptor offset alignment, a power of two.
	Align int `json:"align"`

	// SegLen is descriptor length in contiguous mode, rounded up to Align.
	SegLen int `json:"segLen"`

	// Mode is the default producer mode.
	Mode Mode `json:"mode"`

	// CqEnable enables completion rings.
	CqEnable bool `json:"cqEnable"`

	// Seed is the channel-wide seed of scatter mode generators.
	Seed uint64 `json:"seed"`

	// IdleSleep is the sleep duration when every assigned ring is empty or full.
	IdleSleep nnduration.Nanoseconds `json:"idleSleep"`

	// ApplySampleInterval is how often apply duration is sampled, rounded to a power of two.
	ApplySampleInterval int `json:"applySampleInterval"`

	// PinFirstCPU, if set, pins the i-th spawned thread to CPU PinFirstCPU+i.
	PinFirstCPU *int `json:"pinFirstCpu,omitempty"`

	// Threads, if not empty, allocates CPUs per role from this config.
	// It is ignored when PinFirstCPU is set. If both are absent, threads are not pinned.
	Threads lthread.Config `json:"threads,omitempty"`

	// NumaSocket, if set, is the preferred NUMA socket of threads allocated from Threads.
	NumaSocket *int `json:"numaSocket,omitempty"`
}

func (cfg Config) numaSocket() lcore.NumaSocket {
	if cfg.NumaSocket == nil {
		return lcore.NumaSocket{}
	}
	return lcore.NumaSocketFromID(*cfg.NumaSocket)
}

// ApplyDefaults replaces zero values with defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Ports == 0 {
		cfg.Ports = 1
	}
	if cfg.Queues == 0 {
		cfg.Queues = 1
	}
	if cfg.RingPow2 == 0 {
		cfg.RingPow2 = DefaultRingPow2
	}
	if cfg.Dpf == 0 {
		cfg.Dpf = DefaultDpf
	}
	if cfg.Align == 0 {
		cfg.Align = DefaultAlign
	}
	if cfg.SegLen == 0 {
		cfg.SegLen = DefaultSegLen
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeContig
	}
	if cfg.IdleSleep == 0 {
		cfg.IdleSleep = nnduration.Nanoseconds(DefaultIdleSleep)
	}
	if cfg.ApplySampleInterval == 0 {
		cfg.ApplySampleInterval = DefaultApplySampleInterval
	}
}

// Validate checks the configuration and reports every violation.
func (cfg Config) Validate() error {
	errs := []error{}
	if cfg.Ports <= 0 || cfg.Queues <= 0 {
		errs = append(errs, ErrPorts)
	}
	if cfg.RingPow2 < MinRingPow2 || cfg.RingPow2 > MaxRingPow2 {
		errs = append(errs, ErrRingPow2)
	}
	if cfg.Dpf < frame.MinDpf || cfg.Dpf > frame.MaxDpf {
		errs = append(errs, frame.ErrDpf)
	}
	if cfg.Align < 1 || cfg.Align > MaxAlign || !spscring.IsPowerOfTwo(cfg.Align) {
		errs = append(errs, ErrAlign)
	}
	if cfg.SegLen <= 0 || uint64(cfg.SegLen) > MaxSegLen-MaxAlign {
		errs = append(errs, ErrSegLen)
	}
	if !cfg.Mode.Valid() {
		errs = append(errs, ErrMode)
	}
	return multierr.Combine(errs...)
}

// RingsN returns number of rings.
func (cfg Config) RingsN() int {
	return cfg.Ports * cfg.Queues
}

// RingSize returns ring capacity.
func (cfg Config) RingSize() int {
	return 1 << cfg.RingPow2
}

// RoundedSegLen returns SegLen rounded up to Align.
func (cfg Config) RoundedSegLen() uint64 {
	align := uint64(cfg.Align)
	return (uint64(cfg.SegLen) + align - 1) &^ (align - 1)
}

// Range is a contiguous range of ring indices [First, First+Count).
type Range struct {
	First int `json:"first"`
	Count int `json:"count"`
}

// End returns the exclusive end.
func (r Range) End() int {
	return r.First + r.Count
}

// Overlaps determines whether two ranges share a ring.
func (r Range) Overlaps(o Range) bool {
	return r.First < o.End() && o.First < r.End()
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.First, r.End())
}

// Partition divides n rings into at most parts contiguous disjoint ranges of nearly equal size.
func Partition(n, parts int) (list []Range) {
	if parts > n {
		parts = n
	}
	first := 0
	for i := 0; i < parts; i++ {
		count := n / parts
		if i < n%parts {
			count++
		}
		list = append(list, Range{First: first, Count: count})
		first += count
	}
	return list
}

// PaceConfig configures a token bucket that limits published frames per second.
type PaceConfig struct {
	// PPS is frames per second; zero disables pacing.
	PPS float64 `json:"pps"`
	// Burst caps accumulated tokens; minimum is 1.
	Burst int `json:"burst"`
}

// Enabled determines whether pacing is enabled.
func (pc PaceConfig) Enabled() bool {
	return pc.PPS > 0
}

// ProducerConfig contains producer thread configuration.
type ProducerConfig struct {
	Rings Range      `json:"rings"`
	Pace  PaceConfig `json:"pace"`

	// Mode overrides channel Mode if not empty.
	Mode Mode `json:"mode,omitempty"`

	// Seed is the scatter mode generator seed.
	// If zero, it is derived from channel Seed and producer index.
	Seed uint64 `json:"seed,omitempty"`
}

// ConsumerConfig contains consumer thread configuration.
type ConsumerConfig struct {
	Rings Range `json:"rings"`

	// Program is executed over each frame. If empty, frames are only accounted.
	Program pcpu.Program `json:"program,omitempty"`

	// ApplySeed is the initial FNV64 accumulator; zero means ops.FNVOffsetBasis.
	ApplySeed uint64 `json:"applySeed,omitempty"`

	// VerifySeq enables checking sequence numbers stamped by producers.
	VerifySeq bool `json:"verifySeq,omitempty"`

	// Role is the CPU allocation role; default is lthread.RoleConsumer.
	Role string `json:"role,omitempty"`
}
