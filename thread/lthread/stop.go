package lthread

import (
	"sync/atomic"
)

// Stopper abstracts how to tell a thread to stop.
type Stopper interface {
	RequestStop()
}

// StopFlag is an atomic stop flag, checked by the running thread on each outer iteration.
// One StopFlag may be shared by several threads.
type StopFlag struct {
	v atomic.Bool
}

// Continue returns true if the thread should continue.
func (stop *StopFlag) Continue() bool {
	return !stop.v.Load()
}

// RequestStop requests a stop.
func (stop *StopFlag) RequestStop() {
	stop.v.Store(true)
}

// Reset clears a stop request, so that threads can be launched again.
func (stop *StopFlag) Reset() {
	stop.v.Store(false)
}

var _ Stopper = (*StopFlag)(nil)
