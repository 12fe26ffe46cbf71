package channel

import (
	"github.com/usnistgov/hugeplane/container/spscring"
	"github.com/usnistgov/hugeplane/mem/frame"
)

// Lane is one ring together with the frames its slot indices refer to, and an optional completion ring.
//
// The unexported fields are cursor state: producer fields are written only by the producer that owns the
// lane, and consumer fields only by the consumer that owns it.
type Lane struct {
	Ring   *spscring.Ring
	Frames *frame.Pool
	Cq     *spscring.Ring

	// producer state
	cursor   uint64
	seq      uint32
	nextSlot uint32

	// consumer state
	expectSeq uint32
	seqKnown  bool
}

func (lane *Lane) check(ringSize, dpf int) error {
	if lane.Ring == nil || lane.Frames == nil ||
		lane.Ring.Capacity() != ringSize || lane.Frames.Len() != ringSize || lane.Frames.Dpf() != dpf ||
		(lane.Cq != nil && lane.Cq.Capacity() != ringSize) {
		return ErrLane
	}
	return nil
}
