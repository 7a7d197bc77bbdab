// Package handoff carries admitted (Flow, Frame) pairs from receive
// cores to the packet store over a sharded set of many-producer,
// single-consumer channels.
package handoff

import (
	"errors"

	"github.com/pavelkim/flowtap/internal/flow"
	"github.com/pavelkim/flowtap/internal/frame"
)

// ErrFull is returned when a shard's channel is saturated. The
// contract is explicit: a receive core must never block on hand-off,
// so a full channel is a drop, not a retry.
var ErrFull = errors.New("handoff: channel full")

// Message pairs an admitted frame with the flow it belongs to.
type Message struct {
	Flow  flow.Flow
	Frame *frame.Frame
}

// Shards is a fixed set of buffered channels, one per persistence
// consumer. A flow's messages always land on the same shard so a
// single consumer sees that flow's packets in arrival order.
type Shards struct {
	chans []chan Message
}

// NewShards builds n shards, each buffered to capacity.
func NewShards(n, capacity int) *Shards {
	if n < 1 {
		n = 1
	}
	s := &Shards{chans: make([]chan Message, n)}
	for i := range s.chans {
		s.chans[i] = make(chan Message, capacity)
	}
	return s
}

// Len reports the number of shards.
func (s *Shards) Len() int { return len(s.chans) }

// Send routes msg to the shard selected by the flow's hash. It never
// blocks: a saturated shard returns ErrFull immediately so the caller
// can drop the frame and account the failure.
func (s *Shards) Send(f flow.Flow, fr *frame.Frame) error {
	idx := f.Hash() % uint64(len(s.chans))
	select {
	case s.chans[idx] <- Message{Flow: f, Frame: fr}:
		return nil
	default:
		return ErrFull
	}
}

// Receiver returns the receive-only channel for shard i, for a
// persistence consumer to range over.
func (s *Shards) Receiver(i int) <-chan Message {
	return s.chans[i]
}

// Close closes every shard's channel. Callers must guarantee no
// producer calls Send after Close; it is meant to run once all receive
// cores have stopped.
func (s *Shards) Close() {
	for _, ch := range s.chans {
		close(ch)
	}
}
