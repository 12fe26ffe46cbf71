package channel

import (
	"fmt"
	"sync/atomic"

	"github.com/usnistgov/hugeplane/core/runningstat"
	"github.com/usnistgov/hugeplane/thread/lthread"
)

type producerCounters struct {
	framesProd atomic.Uint64
	bytesProd  atomic.Uint64
	cqRecycled atomic.Uint64
	load       lthread.LoadCounter
}

type consumerCounters struct {
	framesCons   atomic.Uint64
	bytesEff     atomic.Uint64
	cqDrop       atomic.Uint64
	seqErrors    atomic.Uint64
	bytesTotal   atomic.Uint64
	bytesTouched atomic.Uint64
	descCount    atomic.Uint64
	checksum     atomic.Uint64
	apply        runningstat.IntStat
	load         lthread.LoadCounter
}

// Counters contains channel counters.
type Counters struct {
	FramesProd uint64 `json:"framesProd"`
	BytesProd  uint64 `json:"bytesProd"`
	CqRecycled uint64 `json:"cqRecycled"`

	FramesCons uint64 `json:"framesCons"`
	BytesEff   uint64 `json:"bytesEff"`
	CqDrop     uint64 `json:"cqDrop"`
	SeqErrors  uint64 `json:"seqErrors"`

	// pCPU totals, zero when consumers have no program.
	BytesTotal   uint64              `json:"bytesTotal"`
	BytesTouched uint64              `json:"bytesTouched"`
	DescCount    uint64              `json:"descCount"`
	LastChecksum uint64              `json:"lastChecksum"`
	Apply        runningstat.Snapshot `json:"apply"`

	ProducerLoad lthread.LoadStat `json:"producerLoad"`
	ConsumerLoad lthread.LoadStat `json:"consumerLoad"`
}

// Add combines counters, such as from several threads.
// LastChecksum is taken from o if o has processed any descriptor.
func (cnt Counters) Add(o Counters) Counters {
	cnt.FramesProd += o.FramesProd
	cnt.BytesProd += o.BytesProd
	cnt.CqRecycled += o.CqRecycled
	cnt.FramesCons += o.FramesCons
	cnt.BytesEff += o.BytesEff
	cnt.CqDrop += o.CqDrop
	cnt.SeqErrors += o.SeqErrors
	cnt.BytesTotal += o.BytesTotal
	cnt.BytesTouched += o.BytesTouched
	cnt.DescCount += o.DescCount
	if o.DescCount > 0 {
		cnt.LastChecksum = o.LastChecksum
	}
	cnt.Apply = cnt.Apply.Add(o.Apply)
	cnt.ProducerLoad = cnt.ProducerLoad.Add(o.ProducerLoad)
	cnt.ConsumerLoad = cnt.ConsumerLoad.Add(o.ConsumerLoad)
	return cnt
}

// Sub computes the difference from an earlier reading.
// LastChecksum is taken from cnt.
func (cnt Counters) Sub(o Counters) Counters {
	cnt.FramesProd -= o.FramesProd
	cnt.BytesProd -= o.BytesProd
	cnt.CqRecycled -= o.CqRecycled
	cnt.FramesCons -= o.FramesCons
	cnt.BytesEff -= o.BytesEff
	cnt.CqDrop -= o.CqDrop
	cnt.SeqErrors -= o.SeqErrors
	cnt.BytesTotal -= o.BytesTotal
	cnt.BytesTouched -= o.BytesTouched
	cnt.DescCount -= o.DescCount
	cnt.Apply = cnt.Apply.Sub(o.Apply)
	cnt.ProducerLoad = cnt.ProducerLoad.Sub(o.ProducerLoad)
	cnt.ConsumerLoad = cnt.ConsumerLoad.Sub(o.ConsumerLoad)
	return cnt
}

// InFlight returns frames published or being filled but not yet consumed.
func (cnt Counters) InFlight() uint64 {
	return cnt.FramesProd - cnt.FramesCons
}

func (cnt Counters) String() string {
	return fmt.Sprintf("%dP %dC %dB-eff %dcq-recycled %dcq-drop %dseq-err touched=%d/%dB apply=%sns",
		cnt.FramesProd, cnt.FramesCons, cnt.BytesEff, cnt.CqRecycled, cnt.CqDrop, cnt.SeqErrors,
		cnt.BytesTouched, cnt.BytesTotal, cnt.Apply)
}

// Counters reads counters of every thread.
// Consumers are read before producers, so that FramesCons <= FramesProd.
func (ch *Channel) Counters() (cnt Counters) {
	for _, c := range ch.consumers {
		cnt = cnt.Add(c.Counters())
	}
	for _, p := range ch.producers {
		cnt = cnt.Add(p.Counters())
	}
	return cnt
}
