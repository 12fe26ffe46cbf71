package lthread_test

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/usnistgov/hugeplane/core/hwinfo"
	"github.com/usnistgov/hugeplane/core/testenv"
	"github.com/usnistgov/hugeplane/thread/lcore"
	"github.com/usnistgov/hugeplane/thread/lthread"
)

var makeAR = testenv.MakeAR

var fixedCores = hwinfo.Fixed{
	{ID: 0, NumaSocket: 0, Core: 0},
	{ID: 1, NumaSocket: 0, Core: 1},
	{ID: 2, NumaSocket: 0, Core: 2},
	{ID: 3, NumaSocket: 0, Core: 3},
	{ID: 4, NumaSocket: 1, Package: 1, Core: 0},
	{ID: 5, NumaSocket: 1, Package: 1, Core: 1},
	{ID: 6, NumaSocket: 1, Package: 1, Core: 2},
	{ID: 7, NumaSocket: 1, Package: 1, Core: 3},
}

type testThread struct {
	lthread.Thread
	role   string
	socket lcore.NumaSocket
}

func (th testThread) ThreadRole() string {
	return th.role
}

func (th testThread) NumaSocket() lcore.NumaSocket {
	return th.socket
}

func newTestThread(role string, socket lcore.NumaSocket) *testThread {
	var stop lthread.StopFlag
	return &testThread{
		Thread: lthread.New(func() error { return nil }, &stop),
		role:   role,
		socket: socket,
	}
}

func TestThread(t *testing.T) {
	assert, require := makeAR(t)

	var stop lthread.StopFlag
	var nLoops atomic.Int64
	errStopped := errors.New("stopped")
	th := lthread.New(func() error {
		for stop.Continue() {
			nLoops.Add(1)
		}
		return errStopped
	}, &stop)
	assert.Same(th, lthread.ThreadOf(th))
	assert.Nil(lthread.ThreadOf(1))

	assert.False(th.IsRunning())
	assert.NoError(th.Stop())

	th.Launch()
	assert.True(th.IsRunning())
	assert.Panics(func() { th.SetLCore(lcore.FromID(0)) })
	assert.Panics(func() { th.Launch() })
	require.Eventually(func() bool { return nLoops.Load() > 0 }, 5*time.Second, time.Millisecond)
	assert.ErrorIs(th.Stop(), errStopped)
	assert.False(th.IsRunning())

	stop.Reset()
	assert.True(stop.Continue())
	th.Launch()
	stop.RequestStop()
	assert.ErrorIs(th.Wait(), errStopped)
	assert.NoError(th.Wait())
}

func TestThreadPinned(t *testing.T) {
	assert, _ := makeAR(t)

	ids := hwinfo.Default.Cores().IDs()
	var stop lthread.StopFlag
	th := lthread.New(func() error { return nil }, &stop)
	th.SetLCore(lcore.FromID(ids[0]))
	th.Launch()
	assert.NoError(th.Wait())
	assert.Equal(ids[0], th.LCore().ID())
}

func TestAllocNoConfig(t *testing.T) {
	assert, _ := makeAR(t)

	la := lthread.NewAllocator(fixedCores)
	assert.Equal(4, la.Alloc(lthread.RoleProducer, lcore.NumaSocketFromID(1)).ID())
	assert.Equal(0, la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).ID())
	assert.Equal(1, la.Alloc(lthread.RoleConsumer, lcore.NumaSocketFromID(0)).ID())
	assert.Equal([]int{0, 1}, la.Allocated(lthread.RoleConsumer).IDs())

	for i := 0; i < 5; i++ {
		assert.True(la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).Valid())
	}
	assert.False(la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).Valid())

	la.Free(lcore.FromID(4))
	assert.Panics(func() { la.Free(lcore.FromID(4)) })
	assert.Equal(4, la.Alloc(lthread.RoleAggregator, lcore.NumaSocketFromID(0)).ID())

	la.Clear()
	assert.Empty(la.Allocated(lthread.RoleConsumer))
}

func TestAllocPinFirst(t *testing.T) {
	assert, _ := makeAR(t)

	la := lthread.NewAllocator(fixedCores)
	la.SetPinFirst(lcore.FromID(5))
	assert.Equal(5, la.Alloc(lthread.RoleProducer, lcore.NumaSocketFromID(0)).ID())
	assert.Equal(6, la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).ID())
	assert.Equal(7, la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).ID())
	assert.False(la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).Valid())

	la.SetPinFirst(lcore.LCore{})
	assert.Equal(0, la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).ID())
}

func TestAllocConfig(t *testing.T) {
	assert, require := makeAR(t)

	var cfg lthread.Config
	require.NoError(json.Unmarshal([]byte(`{"PRODUCER":[5,6],"CONSUMER":{"0":2}}`), &cfg))
	assert.Equal(2, cfg[lthread.RoleProducer].Count())
	assert.Equal(2, cfg[lthread.RoleConsumer].Count())
	assert.NoError(cfg.Validate(fixedCores.Cores().IDs()))
	assert.Error(cfg.Validate([]int{0, 1, 2, 3}))

	j, e := json.Marshal(cfg)
	require.NoError(e)
	assert.JSONEq(`{"PRODUCER":[5,6],"CONSUMER":{"0":2}}`, string(j))

	var bad lthread.RoleConfig
	assert.Error(json.Unmarshal([]byte(`"x"`), &bad))
	assert.Error(lthread.Config{"A": {CPUs: []int{1}}, "B": {CPUs: []int{1}}}.Validate([]int{1}))

	la := lthread.NewAllocator(fixedCores)
	la.Config = cfg
	assert.Equal(5, la.Alloc(lthread.RoleProducer, lcore.NumaSocketFromID(0)).ID())
	assert.Equal(6, la.Alloc(lthread.RoleProducer, lcore.NumaSocket{}).ID())
	assert.False(la.Alloc(lthread.RoleProducer, lcore.NumaSocket{}).Valid())

	assert.Equal(0, la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).ID())
	assert.Equal(1, la.Alloc(lthread.RoleConsumer, lcore.NumaSocketFromID(1)).ID())
	assert.False(la.Alloc(lthread.RoleConsumer, lcore.NumaSocket{}).Valid())

	assert.False(la.Alloc(lthread.RoleAggregator, lcore.NumaSocket{}).Valid())
}

func TestAllocThread(t *testing.T) {
	assert, _ := makeAR(t)

	la := lthread.NewAllocator(fixedCores[:3])
	p := newTestThread(lthread.RoleProducer, lcore.NumaSocketFromID(0))
	c := newTestThread(lthread.RoleConsumer, lcore.NumaSocket{})
	assert.NoError(la.AllocThread(p, c))
	assert.Equal(0, p.LCore().ID())
	assert.Equal(1, c.LCore().ID())
	assert.NoError(la.AllocThread(p, c))

	x, y := newTestThread(lthread.RoleConsumer, lcore.NumaSocket{}), newTestThread(lthread.RoleConsumer, lcore.NumaSocket{})
	assert.ErrorIs(la.AllocThread(x, y), lthread.ErrNoLCore)
	assert.False(x.LCore().Valid())
	assert.False(y.LCore().Valid())

	la.FreeThread(c)
	assert.False(c.LCore().Valid())
	assert.NoError(la.AllocThread(x, y))
}

func TestLoadStat(t *testing.T) {
	assert, _ := makeAR(t)

	var c lthread.LoadCounter
	c.Poll(true)
	c.Poll(false)
	c.Poll(false)
	s := c.Read()
	assert.Equal(lthread.LoadStat{EmptyPolls: 2, ValidPolls: 1}, s)
	assert.Equal(lthread.LoadStat{EmptyPolls: 1}, s.Sub(lthread.LoadStat{EmptyPolls: 1, ValidPolls: 1}))
	assert.Equal(lthread.LoadStat{EmptyPolls: 4, ValidPolls: 2}, s.Add(s))
	assert.Equal("2E 1V", s.String())
}
