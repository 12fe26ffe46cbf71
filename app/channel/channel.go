// Package channel implements the data plane channel: rings of slot indices, a frame pool, producers, and consumers.
package channel

import (
	"fmt"

	"github.com/usnistgov/hugeplane/container/spscring"
	"github.com/usnistgov/hugeplane/core/hwinfo"
	"github.com/usnistgov/hugeplane/core/logging"
	"github.com/usnistgov/hugeplane/mem/frame"
	"github.com/usnistgov/hugeplane/mem/hugeblob"
	"github.com/usnistgov/hugeplane/thread/lcore"
	"github.com/usnistgov/hugeplane/thread/lthread"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("channel")

// Channel is a set of lanes over one HugeBlob, plus the producer and consumer threads serving them.
//
// Rings are assigned to threads in contiguous disjoint ranges: each ring has at most one producer and one
// consumer. Spawn functions, Stop, Join, and Close must be called from one goroutine.
type Channel struct {
	cfg   Config
	blob  *hugeblob.Blob
	lanes []*Lane
	alloc *lthread.Allocator

	producers []*Producer
	consumers []*Consumer
	stopP     lthread.StopFlag
	stopC     lthread.StopFlag
	stopped   bool
	joined    bool
}

// New creates a Channel with rings and frames in Go memory.
func New(blob *hugeblob.Blob, cfg Config) (*Channel, error) {
	cfg.ApplyDefaults()
	if e := cfg.Validate(); e != nil {
		return nil, e
	}

	ringsN, ringSize := cfg.RingsN(), cfg.RingSize()
	pool, e := frame.NewPool(ringsN*ringSize, cfg.Dpf)
	if e != nil {
		return nil, e
	}

	lanes := make([]*Lane, ringsN)
	for r := range lanes {
		lane := &Lane{Frames: pool.Sub(r*ringSize, ringSize)}
		if lane.Ring, e = spscring.New(ringSize); e != nil {
			return nil, e
		}
		if cfg.CqEnable {
			if lane.Cq, e = spscring.New(ringSize); e != nil {
				return nil, e
			}
		}
		lanes[r] = lane
	}
	return Compose(blob, cfg, lanes)
}

// Compose creates a Channel from existing lanes, such as rings and frames in shared memory regions.
// Ports×Queues must equal len(lanes), and each lane must match RingPow2 and Dpf.
func Compose(blob *hugeblob.Blob, cfg Config, lanes []*Lane) (*Channel, error) {
	cfg.ApplyDefaults()
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	if len(lanes) != cfg.RingsN() {
		return nil, fmt.Errorf("%w: %d lanes for %d rings", ErrLane, len(lanes), cfg.RingsN())
	}
	for i, lane := range lanes {
		if e := lane.check(cfg.RingSize(), cfg.Dpf); e != nil {
			return nil, fmt.Errorf("lane %d: %w", i, e)
		}
	}
	if cfg.Mode == ModeContig && cfg.RoundedSegLen() > blob.Size() {
		return nil, ErrBlob
	}
	if len(cfg.Threads) > 0 {
		if e := cfg.Threads.Validate(hwinfo.Default.Cores().IDs()); e != nil {
			return nil, fmt.Errorf("threads: %w", e)
		}
	}

	ch := &Channel{
		cfg:   cfg,
		blob:  blob,
		lanes: lanes,
	}
	ch.initCursors()

	switch {
	case cfg.PinFirstCPU != nil:
		ch.alloc = lthread.NewAllocator(hwinfo.Default)
		ch.alloc.SetPinFirst(lcore.FromID(*cfg.PinFirstCPU))
	case len(cfg.Threads) > 0:
		ch.alloc = lthread.NewAllocator(hwinfo.Default)
		ch.alloc.Config = cfg.Threads
	}

	logger.Info("channel created",
		zap.Int("rings", len(lanes)),
		zap.Int("ring-size", cfg.RingSize()),
		zap.Int("dpf", cfg.Dpf),
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("cq", cfg.CqEnable),
		zap.Stringer("blob", blob),
	)
	return ch, nil
}

// initCursors spreads contiguous cursors of the rings across the blob.
func (ch *Channel) initCursors() {
	size, align := ch.blob.Size(), uint64(ch.cfg.Align)
	for r, lane := range ch.lanes {
		lane.cursor = (size / uint64(len(ch.lanes)) * uint64(r)) &^ (align - 1)
	}
}

// Config returns the effective configuration.
func (ch *Channel) Config() Config {
	return ch.cfg
}

// Blob returns the HugeBlob.
func (ch *Channel) Blob() *hugeblob.Blob {
	return ch.blob
}

// Lanes returns the lanes.
func (ch *Channel) Lanes() []*Lane {
	return ch.lanes
}

// Producers returns spawned producers.
func (ch *Channel) Producers() []*Producer {
	return ch.producers
}

// Consumers returns spawned consumers.
func (ch *Channel) Consumers() []*Consumer {
	return ch.consumers
}

func (ch *Channel) checkRange(r Range, taken []Range) error {
	if r.First < 0 || r.Count <= 0 || r.End() > len(ch.lanes) {
		return fmt.Errorf("%w: %s of %d rings", ErrRange, r, len(ch.lanes))
	}
	for _, t := range taken {
		if r.Overlaps(t) {
			return fmt.Errorf("%w: %s and %s", ErrOverlap, r, t)
		}
	}
	return nil
}

func (ch *Channel) launch(th lthread.ThreadWithRole) error {
	if ch.alloc != nil {
		if e := ch.alloc.AllocThread(th); e != nil {
			return e
		}
	}
	th.Launch()
	return nil
}

// SpawnProducer creates and launches a producer thread.
func (ch *Channel) SpawnProducer(cfg ProducerConfig) (*Producer, error) {
	if ch.stopped {
		return nil, ErrStopped
	}
	taken := []Range{}
	for _, p := range ch.producers {
		taken = append(taken, p.cfg.Rings)
	}
	if e := ch.checkRange(cfg.Rings, taken); e != nil {
		return nil, e
	}

	p, e := newProducer(ch, len(ch.producers), cfg)
	if e != nil {
		return nil, e
	}
	if e := ch.launch(p); e != nil {
		return nil, e
	}
	ch.producers = append(ch.producers, p)
	logger.Info("producer launched", zap.Int("index", p.index), zap.Stringer("rings", cfg.Rings),
		zap.String("mode", string(p.mode)), zap.Float64("pps", cfg.Pace.PPS), p.LCore().ZapField("lc"))
	return p, nil
}

// SpawnConsumer creates and launches a consumer thread.
func (ch *Channel) SpawnConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if ch.stopped {
		return nil, ErrStopped
	}
	taken := []Range{}
	for _, c := range ch.consumers {
		taken = append(taken, c.cfg.Rings)
	}
	if e := ch.checkRange(cfg.Rings, taken); e != nil {
		return nil, e
	}

	c, e := newConsumer(ch, len(ch.consumers), cfg)
	if e != nil {
		return nil, e
	}
	if e := ch.launch(c); e != nil {
		return nil, e
	}
	ch.consumers = append(ch.consumers, c)
	logger.Info("consumer launched", zap.Int("index", c.index), zap.Stringer("rings", cfg.Rings),
		zap.Stringer("program", cfg.Program), c.LCore().ZapField("lc"))
	return c, nil
}

// Stop requests producers to stop.
// Consumers keep draining until Join.
func (ch *Channel) Stop() {
	ch.stopped = true
	ch.stopP.RequestStop()
}

// Join waits for producers to exit, then lets consumers drain their rings and waits for them to exit.
// Join must follow Stop.
func (ch *Channel) Join() (e error) {
	if ch.joined {
		return nil
	}
	if !ch.stopped {
		logger.Panic("Join called before Stop")
	}
	ch.joined = true

	errs := []error{}
	for _, p := range ch.producers {
		errs = append(errs, p.Wait())
	}
	ch.stopC.RequestStop()
	for _, c := range ch.consumers {
		errs = append(errs, c.Wait())
	}

	if ch.alloc != nil {
		for _, p := range ch.producers {
			ch.alloc.FreeThread(p)
		}
		for _, c := range ch.consumers {
			ch.alloc.FreeThread(c)
		}
	}
	cnt := ch.Counters()
	logger.Info("channel joined", zap.Uint64("frames-prod", cnt.FramesProd), zap.Uint64("frames-cons", cnt.FramesCons),
		zap.Uint64("cq-drop", cnt.CqDrop), zap.Uint64("seq-errors", cnt.SeqErrors))
	return multierr.Combine(errs...)
}

// Close stops and joins all threads.
// The blob is not closed.
func (ch *Channel) Close() error {
	if !ch.stopped {
		ch.Stop()
	}
	return ch.Join()
}
