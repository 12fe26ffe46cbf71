package channel

import (
	"time"

	"github.com/usnistgov/hugeplane/core/runningstat"
	"github.com/usnistgov/hugeplane/pcpu"
	"github.com/usnistgov/hugeplane/pcpu/ops"
	"github.com/usnistgov/hugeplane/thread/lcore"
	"github.com/usnistgov/hugeplane/thread/lthread"
)

// Consumer is a thread that pops slot indices round-robin across its rings and processes their frames.
type Consumer struct {
	lthread.Thread
	ch    *Channel
	index int
	cfg   ConsumerConfig
	lanes []*Lane
	seed  uint64

	cnt consumerCounters
}

var (
	_ lthread.ThreadWithRole     = (*Consumer)(nil)
	_ lthread.ThreadWithLoadStat = (*Consumer)(nil)
	_ lcore.WithNumaSocket       = (*Consumer)(nil)
)

func newConsumer(ch *Channel, index int, cfg ConsumerConfig) (*Consumer, error) {
	if e := cfg.Program.Validate(); e != nil {
		return nil, e
	}
	c := &Consumer{
		ch:    ch,
		index: index,
		cfg:   cfg,
		lanes: ch.lanes[cfg.Rings.First:cfg.Rings.End()],
		seed:  cfg.ApplySeed,
	}
	if c.seed == 0 {
		c.seed = ops.FNVOffsetBasis
	}
	if c.cfg.Role == "" {
		c.cfg.Role = lthread.RoleConsumer
	}
	c.cnt.apply.Init(ch.cfg.ApplySampleInterval)
	c.Thread = lthread.New(c.main, &ch.stopC)
	return c, nil
}

// ThreadRole implements lthread.ThreadWithRole interface.
func (c *Consumer) ThreadRole() string {
	return c.cfg.Role
}

// NumaSocket implements lcore.WithNumaSocket interface.
func (c *Consumer) NumaSocket() lcore.NumaSocket {
	return c.ch.cfg.numaSocket()
}

// ThreadLoadStat implements lthread.ThreadWithLoadStat interface.
func (c *Consumer) ThreadLoadStat() lthread.LoadStat {
	return c.cnt.load.Read()
}

// Config returns consumer config.
func (c *Consumer) Config() ConsumerConfig {
	return c.cfg
}

func (c *Consumer) main() error {
	idleSleep := c.ch.cfg.IdleSleep.Duration()
	blob := c.ch.blob.Bytes()
	for c.ch.stopC.Continue() {
		nValid := 0
		for _, lane := range c.lanes {
			slot, ok := lane.Ring.Peek()
			c.cnt.load.Poll(ok)
			if ok {
				c.process(blob, lane, slot)
				nValid++
			}
		}

		if nValid == 0 {
			time.Sleep(idleSleep)
		}
	}
	c.drain(blob)
	return nil
}

// drain processes the frames present in each ring when called, and no more.
// Local producers have exited at this point, so nothing is left behind; a producer in another process may
// keep pushing, and those frames are left for the next consumer of the region.
func (c *Consumer) drain(blob []byte) {
	for _, lane := range c.lanes {
		for n := lane.Ring.Count(); n > 0; n-- {
			slot, ok := lane.Ring.Peek()
			if !ok {
				break
			}
			c.process(blob, lane, slot)
		}
	}
}

func (c *Consumer) process(blob []byte, lane *Lane, slot uint32) {
	// slot values may come from another process
	i := int(slot) & (lane.Frames.Len() - 1)
	f := lane.Frames.Frame(i)
	eff := lane.Frames.EffBytes(i)

	if c.cfg.VerifySeq {
		seq := f[0].Flags
		if lane.seqKnown && seq != lane.expectSeq {
			c.cnt.seqErrors.Add(1)
		}
		lane.expectSeq, lane.seqKnown = seq+1, true
	}

	if len(c.cfg.Program) > 0 {
		m := pcpu.ApplyProgram(blob, f, c.cfg.Program, c.seed)
		c.cnt.apply.Push(m.Ns)
		c.cnt.bytesTotal.Add(m.BytesTotal)
		c.cnt.bytesTouched.Add(m.BytesTouched)
		c.cnt.descCount.Add(m.DescCount)
		c.cnt.checksum.Store(m.ChecksumOut)
	}

	// counted before the acknowledgment, so that a producer never counts a reused slot ahead of this frame
	c.cnt.bytesEff.Add(eff)
	c.cnt.framesCons.Add(1)
	lane.Ring.Advance()
	if lane.Cq != nil && !lane.Cq.TryPush(slot) {
		c.cnt.cqDrop.Add(1)
	}
}

// Counters returns consumer counters.
func (c *Consumer) Counters() (cnt Counters) {
	cnt.FramesCons = c.cnt.framesCons.Load()
	cnt.BytesEff = c.cnt.bytesEff.Load()
	cnt.CqDrop = c.cnt.cqDrop.Load()
	cnt.SeqErrors = c.cnt.seqErrors.Load()
	cnt.BytesTotal = c.cnt.bytesTotal.Load()
	cnt.BytesTouched = c.cnt.bytesTouched.Load()
	cnt.DescCount = c.cnt.descCount.Load()
	cnt.LastChecksum = c.cnt.checksum.Load()
	cnt.Apply = c.cnt.apply.Read()
	cnt.ConsumerLoad = c.cnt.load.Read()
	return cnt
}

// ApplyStat returns apply duration statistics in nanoseconds.
func (c *Consumer) ApplyStat() runningstat.Snapshot {
	return c.cnt.apply.Read()
}
