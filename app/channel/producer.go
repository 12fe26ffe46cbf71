package channel

import (
	"time"

	"github.com/pkg/math"
	"github.com/usnistgov/hugeplane/core/xorshift"
	"github.com/usnistgov/hugeplane/mem/frame"
	"github.com/usnistgov/hugeplane/thread/lcore"
	"github.com/usnistgov/hugeplane/thread/lthread"
	"golang.org/x/time/rate"
)

// starveSleep is the sleep duration when the token bucket is empty.
const starveSleep = 50 * time.Microsecond

// Producer is a thread that fills frames and publishes their slot indices.
type Producer struct {
	lthread.Thread
	ch      *Channel
	index   int
	cfg     ProducerConfig
	mode    Mode
	lanes   []*Lane
	rng     *xorshift.Rand
	limiter *rate.Limiter

	blobSize uint64
	align    uint64
	segLen   uint64
	restart  uint64

	cnt producerCounters
}

var (
	_ lthread.ThreadWithRole     = (*Producer)(nil)
	_ lthread.ThreadWithLoadStat = (*Producer)(nil)
	_ lcore.WithNumaSocket       = (*Producer)(nil)
)

func newProducer(ch *Channel, index int, cfg ProducerConfig) (*Producer, error) {
	p := &Producer{
		ch:       ch,
		index:    index,
		cfg:      cfg,
		mode:     cfg.Mode,
		lanes:    ch.lanes[cfg.Rings.First:cfg.Rings.End()],
		blobSize: ch.blob.Size(),
		align:    uint64(ch.cfg.Align),
		segLen:   ch.cfg.RoundedSegLen(),
	}
	if p.mode == "" {
		p.mode = ch.cfg.Mode
	}
	if !p.mode.Valid() {
		return nil, ErrMode
	}
	if p.mode == ModeContig && p.segLen > p.blobSize {
		return nil, ErrBlob
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = ch.cfg.Seed + uint64(index+1)*xorshift.ZeroSeedReplacement
	}
	p.rng = xorshift.New(seed)

	if cfg.Pace.PPS < 0 || cfg.Pace.Burst < 0 {
		return nil, ErrPace
	}
	if cfg.Pace.Enabled() {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.Pace.PPS), math.MaxInt(1, cfg.Pace.Burst))
	}

	p.restart = (p.blobSize / 4) &^ (p.align - 1)
	if p.restart+p.segLen > p.blobSize {
		p.restart = 0
	}

	p.Thread = lthread.New(p.main, &ch.stopP)
	return p, nil
}

// ThreadRole implements lthread.ThreadWithRole interface.
func (*Producer) ThreadRole() string {
	return lthread.RoleProducer
}

// NumaSocket implements lcore.WithNumaSocket interface.
func (p *Producer) NumaSocket() lcore.NumaSocket {
	return p.ch.cfg.numaSocket()
}

// ThreadLoadStat implements lthread.ThreadWithLoadStat interface.
func (p *Producer) ThreadLoadStat() lthread.LoadStat {
	return p.cnt.load.Read()
}

// Config returns producer config.
func (p *Producer) Config() ProducerConfig {
	return p.cfg
}

func (p *Producer) main() error {
	idleSleep := p.ch.cfg.IdleSleep.Duration()
	for p.ch.stopP.Continue() {
		nValid, starved := 0, false
		for _, lane := range p.lanes {
			p.recycle(lane)
			hasRoom := lane.Ring.Free() > 0
			p.cnt.load.Poll(hasRoom)
			if !hasRoom {
				continue
			}
			if p.limiter != nil && !p.limiter.Allow() {
				starved = true
				continue
			}

			eff := p.fill(lane)
			// only this producer consumes free space; a failure means a foreign consumer corrupted head
			if !lane.Ring.TryPush(lane.nextSlot) {
				p.cnt.framesProd.Add(^uint64(0))
				p.cnt.bytesProd.Add(-eff)
				continue
			}
			lane.nextSlot = (lane.nextSlot + 1) & uint32(lane.Frames.Len()-1)
			nValid++
		}

		switch {
		case nValid > 0:
		case starved:
			time.Sleep(starveSleep)
		default:
			time.Sleep(idleSleep)
		}
	}
	return nil
}

// recycle drains the completion ring.
// Slots are reused in ring order, so completions serve as accounting only.
func (p *Producer) recycle(lane *Lane) {
	if lane.Cq == nil {
		return
	}
	n := uint64(0)
	for {
		if _, ok := lane.Cq.TryPop(); !ok {
			break
		}
		n++
	}
	if n > 0 {
		p.cnt.cqRecycled.Add(n)
	}
}

// fill writes descriptors of the next slot.
// The slot is free: the ring has room, so its previous use has been acknowledged.
func (p *Producer) fill(lane *Lane) (eff uint64) {
	slot := int(lane.nextSlot)
	f := lane.Frames.Frame(slot)
	for i := range f {
		var d frame.Descriptor
		if p.mode == ModeContig {
			d = p.nextContig(lane)
		} else {
			d = p.nextScatter()
		}
		f[i] = d
		eff += uint64(d.Len)
	}
	f[0].Flags = lane.seq
	lane.seq++
	lane.Frames.SetEffBytes(slot, eff)

	// counted before publication, so that framesProd >= framesCons at every observation
	p.cnt.framesProd.Add(1)
	p.cnt.bytesProd.Add(eff)
	return eff
}

func (p *Producer) nextContig(lane *Lane) frame.Descriptor {
	if lane.cursor+p.segLen > p.blobSize {
		lane.cursor = p.restart
	}
	d := frame.Descriptor{Offset: lane.cursor, Len: uint32(p.segLen)}
	lane.cursor += p.segLen
	return d
}

func (p *Producer) nextScatter() frame.Descriptor {
	n := p.align + p.rng.Uint64n(3*p.align+1)
	n = min(n, MaxScatterLen, p.blobSize)
	offset := p.rng.Uint64n(p.blobSize) &^ (p.align - 1)
	if offset+n > p.blobSize {
		offset = (p.blobSize - n) &^ (p.align - 1)
	}
	return frame.Descriptor{Offset: offset, Len: uint32(n)}
}

// Counters returns producer counters.
func (p *Producer) Counters() (cnt Counters) {
	cnt.FramesProd = p.cnt.framesProd.Load()
	cnt.BytesProd = p.cnt.bytesProd.Load()
	cnt.CqRecycled = p.cnt.cqRecycled.Load()
	cnt.ProducerLoad = p.cnt.load.Read()
	return cnt
}
