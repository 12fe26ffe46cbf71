package channel_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/usnistgov/hugeplane/app/channel"
	"github.com/usnistgov/hugeplane/core/testenv"
	"github.com/usnistgov/hugeplane/mem/hugeblob"
	"github.com/usnistgov/hugeplane/pcpu"
	"github.com/usnistgov/hugeplane/thread/lthread"
)

var makeAR = testenv.MakeAR

func makeBlob(t testing.TB, size uint64) *hugeblob.Blob {
	blob, e := hugeblob.Map(size, hugeblob.Config{Anonymous: true})
	if e != nil {
		t.Fatal(e)
	}
	blob.Fill(7)
	t.Cleanup(func() { blob.Close() })
	return blob
}

func TestSPSCStress(t *testing.T) {
	assert, require := makeAR(t)

	blob := makeBlob(t, 16<<20)
	ch, e := channel.New(blob, channel.Config{
		RingPow2: 10,
		Dpf:      32,
		Align:    64,
		SegLen:   4096,
		Mode:     channel.ModeContig,
	})
	require.NoError(e)

	_, e = ch.SpawnConsumer(channel.ConsumerConfig{Rings: channel.Range{First: 0, Count: 1}, VerifySeq: true})
	require.NoError(e)
	_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}})
	require.NoError(e)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		cnt := ch.Counters()
		assert.LessOrEqual(cnt.FramesCons, cnt.FramesProd)
		time.Sleep(10 * time.Millisecond)
	}

	ch.Stop()
	require.NoError(ch.Join())
	require.NoError(ch.Close())

	cnt := ch.Counters()
	assert.Greater(cnt.FramesCons, uint64(0))
	assert.Equal(cnt.FramesProd, cnt.FramesCons)
	assert.Equal(cnt.BytesProd, cnt.BytesEff)
	assert.Equal(cnt.FramesCons*32*4096, cnt.BytesEff)
	assert.Zero(cnt.SeqErrors)
	assert.Zero(cnt.InFlight())
	assert.Greater(cnt.ConsumerLoad.ValidPolls, uint64(0))
	assert.Zero(ch.Lanes()[0].Ring.Count())

	_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}})
	assert.ErrorIs(e, channel.ErrStopped)
}

func TestInFlightBound(t *testing.T) {
	assert, require := makeAR(t)

	const ringPow2 = 4
	blob := makeBlob(t, 1<<20)
	ch, e := channel.New(blob, channel.Config{RingPow2: ringPow2, Dpf: 8, SegLen: 8192})
	require.NoError(e)

	prog, e := pcpu.ParseProgram("HIST8 FNV64 CRC32C")
	require.NoError(e)
	c, e := ch.SpawnConsumer(channel.ConsumerConfig{Rings: channel.Range{First: 0, Count: 1}, Program: prog})
	require.NoError(e)
	p, e := ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}})
	require.NoError(e)

	ring := ch.Lanes()[0].Ring
	nFull := 0
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		// producer first: its count can only be overtaken by the consumer read afterwards
		prod := p.Counters().FramesProd
		cons := c.Counters().FramesCons
		if !assert.LessOrEqual(prod, cons+uint64(1<<ringPow2-1)) {
			break
		}
		if ring.Free() == 0 {
			nFull++
		}
		runtime.Gosched()
	}
	require.NoError(ch.Close())
	t.Logf("ring observed full %d times", nFull)

	cnt := ch.Counters()
	assert.Equal(cnt.FramesProd, cnt.FramesCons)
}

func TestMultiRing(t *testing.T) {
	assert, require := makeAR(t)

	const dpf = 4
	blob := makeBlob(t, 4<<20)
	ch, e := channel.New(blob, channel.Config{
		Ports:    2,
		Queues:   3,
		RingPow2: 6,
		Dpf:      dpf,
		SegLen:   1000,
		CqEnable: true,
	})
	require.NoError(e)
	assert.Len(ch.Lanes(), 6)
	assert.NotNil(ch.Lanes()[5].Cq)

	prog, e := pcpu.ParseProgram("FNV64 CRC32C")
	require.NoError(e)
	for _, r := range channel.Partition(6, 2) {
		_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: r})
		require.NoError(e)
	}
	for _, r := range channel.Partition(6, 3) {
		_, e = ch.SpawnConsumer(channel.ConsumerConfig{Rings: r, Program: prog, VerifySeq: true})
		require.NoError(e)
	}
	assert.Len(ch.Producers(), 2)
	assert.Len(ch.Consumers(), 3)

	_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 2, Count: 1}})
	assert.ErrorIs(e, channel.ErrOverlap)
	_, e = ch.SpawnConsumer(channel.ConsumerConfig{Rings: channel.Range{First: 5, Count: 2}})
	assert.ErrorIs(e, channel.ErrRange)
	_, e = ch.SpawnConsumer(channel.ConsumerConfig{Rings: channel.Range{First: 0, Count: 0}})
	assert.ErrorIs(e, channel.ErrRange)

	time.Sleep(300 * time.Millisecond)
	require.NoError(ch.Close())

	cnt := ch.Counters()
	assert.Greater(cnt.FramesCons, uint64(0))
	assert.Equal(cnt.FramesProd, cnt.FramesCons)
	assert.Equal(cnt.FramesCons*dpf*1024, cnt.BytesEff)
	assert.Equal(cnt.BytesEff, cnt.BytesTotal)
	assert.Equal(cnt.BytesTotal, cnt.BytesTouched)
	assert.Equal(cnt.FramesCons*dpf, cnt.DescCount)
	assert.Zero(cnt.SeqErrors)
	assert.LessOrEqual(cnt.CqRecycled+cnt.CqDrop, cnt.FramesCons)
	assert.Greater(cnt.CqRecycled, uint64(0))
	assert.Greater(cnt.Apply.Count, uint64(0))
	assert.GreaterOrEqual(cnt.Apply.Max, cnt.Apply.Min)
	assert.Greater(cnt.Apply.Len, uint64(0))
	assert.Contains(cnt.String(), "P ")
}

func TestProducerOnly(t *testing.T) {
	assert, require := makeAR(t)

	blob := makeBlob(t, 64<<10)
	ch, e := channel.New(blob, channel.Config{RingPow2: 4, Dpf: 32, Align: 64, SegLen: 4000})
	require.NoError(e)
	_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}})
	require.NoError(e)

	lane := ch.Lanes()[0]
	require.Eventually(func() bool { return lane.Ring.Count() == 15 }, time.Second, time.Millisecond)
	require.NoError(ch.Close())

	cnt := ch.Counters()
	assert.EqualValues(15, cnt.FramesProd)
	assert.EqualValues(15*32*4032, cnt.BytesProd)
	assert.Greater(cnt.ProducerLoad.EmptyPolls, uint64(0))

	// a frame of 32 segments exceeds the blob, so the cursor restarts at a quarter of the blob
	restarted := false
	for i := 0; i < 15; i++ {
		for _, d := range lane.Frames.Frame(i) {
			assert.True(d.Valid(blob.Size()), "%d %s", i, d)
			assert.EqualValues(4032, d.Len)
			if d.Offset == 16384 {
				restarted = true
			}
		}
		assert.EqualValues(i, lane.Frames.Frame(i)[0].Flags)
	}
	assert.True(restarted)
}

func TestScatter(t *testing.T) {
	assert, require := makeAR(t)

	const align = 256
	blob := makeBlob(t, 1<<20+100)
	ch, e := channel.New(blob, channel.Config{RingPow2: 5, Dpf: 16, Align: align, Mode: channel.ModeScatter, Seed: 3})
	require.NoError(e)
	_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}})
	require.NoError(e)

	lane := ch.Lanes()[0]
	require.Eventually(func() bool { return lane.Ring.Count() == 31 }, time.Second, time.Millisecond)
	require.NoError(ch.Close())

	for i := 0; i < 31; i++ {
		f := lane.Frames.Frame(i)
		assert.Equal(f.EffBytes(), lane.Frames.EffBytes(i))
		for _, d := range f {
			assert.True(d.Valid(blob.Size()))
			assert.Zero(d.Offset % align)
			assert.GreaterOrEqual(d.Len, uint32(align))
			assert.LessOrEqual(d.Len, uint32(4*align))
		}
	}
}

func TestScatterDeterministic(t *testing.T) {
	assert, require := makeAR(t)

	blob := makeBlob(t, 1<<20)
	collect := func(seed uint64) (list []uint64) {
		ch, e := channel.New(blob, channel.Config{RingPow2: 4, Dpf: 8, Mode: channel.ModeScatter})
		require.NoError(e)
		_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}, Seed: seed})
		require.NoError(e)
		lane := ch.Lanes()[0]
		require.Eventually(func() bool { return lane.Ring.Count() == 15 }, time.Second, time.Millisecond)
		require.NoError(ch.Close())
		for i := 0; i < 15; i++ {
			for _, d := range lane.Frames.Frame(i) {
				list = append(list, d.Offset, uint64(d.Len))
			}
		}
		return list
	}
	a, b, c := collect(11), collect(11), collect(12)
	assert.Equal(a, b)
	assert.NotEqual(a, c)
}

func TestPacing(t *testing.T) {
	assert, require := makeAR(t)

	blob := makeBlob(t, 1<<20)
	ch, e := channel.New(blob, channel.Config{RingPow2: 4, Dpf: 1})
	require.NoError(e)
	_, e = ch.SpawnConsumer(channel.ConsumerConfig{Rings: channel.Range{First: 0, Count: 1}})
	require.NoError(e)
	_, e = ch.SpawnProducer(channel.ProducerConfig{
		Rings: channel.Range{First: 0, Count: 1},
		Pace:  channel.PaceConfig{PPS: 200, Burst: 1},
	})
	require.NoError(e)

	time.Sleep(500 * time.Millisecond)
	require.NoError(ch.Close())

	cnt := ch.Counters()
	assert.Greater(cnt.FramesProd, uint64(20))
	assert.Less(cnt.FramesProd, uint64(200))
	assert.Equal(cnt.FramesProd, cnt.FramesCons)
}

func TestCompose(t *testing.T) {
	assert, require := makeAR(t)

	blob := makeBlob(t, 1<<20)
	src, e := channel.New(blob, channel.Config{Ports: 2, RingPow2: 5, Dpf: 4})
	require.NoError(e)

	_, e = channel.Compose(blob, channel.Config{Ports: 2, RingPow2: 6, Dpf: 4}, src.Lanes())
	assert.ErrorIs(e, channel.ErrLane)
	_, e = channel.Compose(blob, channel.Config{Ports: 3, RingPow2: 5, Dpf: 4}, src.Lanes())
	assert.ErrorIs(e, channel.ErrLane)
	_, e = channel.Compose(blob, channel.Config{Ports: 2, RingPow2: 5, Dpf: 8}, src.Lanes())
	assert.ErrorIs(e, channel.ErrLane)

	small := makeBlob(t, 1000)
	_, e = channel.New(small, channel.Config{SegLen: 1001})
	assert.ErrorIs(e, channel.ErrBlob)

	_, e = channel.Compose(blob, channel.Config{
		Ports: 2, RingPow2: 5, Dpf: 4,
		Threads: lthread.Config{lthread.RoleProducer: {CPUs: []int{1 << 20}}},
	}, src.Lanes())
	assert.Error(e)

	ch, e := channel.Compose(blob, channel.Config{Ports: 2, RingPow2: 5, Dpf: 4}, src.Lanes())
	require.NoError(e)
	assert.Equal(2, ch.Config().RingsN())
	assert.Same(blob, ch.Blob())
	require.NoError(ch.Close())
}

func TestSpawnInvalid(t *testing.T) {
	assert, require := makeAR(t)

	blob := makeBlob(t, 1<<20)
	ch, e := channel.New(blob, channel.Config{RingPow2: 4, Dpf: 1})
	require.NoError(e)
	_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}, Pace: channel.PaceConfig{PPS: -1}})
	assert.ErrorIs(e, channel.ErrPace)
	_, e = ch.SpawnProducer(channel.ProducerConfig{Rings: channel.Range{First: 0, Count: 1}, Mode: "x"})
	assert.ErrorIs(e, channel.ErrMode)
	_, e = ch.SpawnConsumer(channel.ConsumerConfig{Rings: channel.Range{First: 0, Count: 1}, Program: pcpu.Program{{Op: 99}}})
	assert.ErrorIs(e, pcpu.ErrOp)
	require.NoError(ch.Close())
}
