// Package lthread provides a thread abstraction: a goroutine locked to an OS thread, optionally pinned to an LCore.
package lthread

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/usnistgov/hugeplane/core/logging"
	"github.com/usnistgov/hugeplane/thread/lcore"
	"go.uber.org/zap"
)

// ErrRunning indicates an error condition when a function expects the thread to be stopped.
var ErrRunning = errors.New("operation not permitted when thread is running")

var logger = logging.New("lthread")

// Thread represents a procedure running on an OS thread.
type Thread interface {
	// LCore returns assigned lcore.
	// If invalid, the thread is not pinned.
	LCore() lcore.LCore

	// SetLCore assigns an lcore.
	// This can only be used when the thread is stopped.
	SetLCore(lc lcore.LCore)

	// IsRunning indicates whether the thread has been launched and not yet waited.
	IsRunning() bool

	// Launch launches the thread.
	Launch()

	// Stop requests the thread to stop and waits for its completion.
	Stop() error

	// Wait waits for thread completion without requesting a stop.
	Wait() error
}

// New creates a Thread.
// main should return soon after stop is requested.
func New(main func() error, stop Stopper) Thread {
	return &threadImpl{
		main: main,
		stop: stop,
	}
}

type threadImpl struct {
	lc      lcore.LCore
	main    func() error
	stop    Stopper
	running atomic.Bool
	done    chan error
}

func (th *threadImpl) LCore() lcore.LCore {
	return th.lc
}

func (th *threadImpl) SetLCore(lc lcore.LCore) {
	if th.IsRunning() {
		panic(ErrRunning)
	}
	th.lc = lc
}

func (th *threadImpl) IsRunning() bool {
	return th.running.Load()
}

func (th *threadImpl) Launch() {
	if th.IsRunning() {
		logger.Panic("thread is running", th.lc.ZapField("lc"))
	}
	th.running.Store(true)
	th.done = make(chan error, 1)
	go th.run(th.lc, th.done)
}

func (th *threadImpl) run(lc lcore.LCore, done chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if lc.Valid() {
		if e := lc.Pin(); e != nil {
			logger.Warn("cannot pin thread, running unpinned", lc.ZapField("lc"), zap.Error(e))
		}
	}
	done <- th.main()
}

func (th *threadImpl) Stop() error {
	if !th.IsRunning() {
		return nil
	}
	th.stop.RequestStop()
	return th.Wait()
}

func (th *threadImpl) Wait() error {
	if !th.IsRunning() {
		return nil
	}
	e := <-th.done
	th.running.Store(false)
	return e
}

// WithThread is an object that encloses a Thread.
type WithThread interface {
	Thread() Thread
}

// ThreadOf retrieves Thread from Thread or WithThread.
func ThreadOf(obj any) Thread {
	switch obj := obj.(type) {
	case Thread:
		return obj
	case WithThread:
		return obj.Thread()
	}
	return nil
}
