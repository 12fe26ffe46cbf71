package lthread

import (
	"errors"

	"github.com/usnistgov/hugeplane/thread/lcore"
)

// ErrNoLCore indicates no lcore is available for a role.
var ErrNoLCore = errors.New("no lcore available")

// ThreadWithRole is a thread that identifies itself with a role.
type ThreadWithRole interface {
	Thread
	ThreadRole() string
}

// AllocThread allocates lcores to threads.
// Threads that already have an lcore are skipped.
// If a thread implements lcore.WithNumaSocket, its lcore comes from the preferred NUMA socket when possible.
// Either every thread receives an lcore, or no allocation is made.
func (la *Allocator) AllocThread(threads ...ThreadWithRole) error {
	var allocated []ThreadWithRole
	for _, th := range threads {
		if th.LCore().Valid() {
			continue
		}

		var socket lcore.NumaSocket
		if thn, ok := th.(lcore.WithNumaSocket); ok {
			socket = thn.NumaSocket()
		}

		lc := la.Alloc(th.ThreadRole(), socket)
		if !lc.Valid() {
			for _, th := range allocated {
				la.Free(th.LCore())
				th.SetLCore(lcore.LCore{})
			}
			return ErrNoLCore
		}
		th.SetLCore(lc)
		allocated = append(allocated, th)
	}
	return nil
}

// FreeThread releases the lcore of a stopped thread, if any.
func (la *Allocator) FreeThread(th Thread) {
	if lc := th.LCore(); lc.Valid() {
		la.Free(lc)
		th.SetLCore(lcore.LCore{})
	}
}
