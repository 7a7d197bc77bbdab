// Package queue defines the consumed contract for a bound NIC receive
// queue. Driver initialization and queue binding happen outside this
// module; flowtap only needs a pollable burst-receive handle.
package queue

import "github.com/pavelkim/flowtap/internal/frame"

// Kind selects how a ReceiveCore treats the frames a queue yields.
type Kind int

const (
	// Receive queues are parsed and acted on.
	Receive Kind = iota
	// Sink queues are consumed and discarded, counted but never parsed.
	// They absorb traffic the NIC has steered away from processing.
	Sink
)

func (k Kind) String() string {
	if k == Sink {
		return "sink"
	}
	return "receive"
}

// Queue is a bound, pollable receive queue.
type Queue interface {
	// Name identifies the queue for logging and stats.
	Name() string
	// Kind reports whether the queue is a Receive or Sink queue. All
	// queues owned by one core must report the same Kind.
	Kind() Kind
	// RecvBurst requests up to len(out) frames without blocking,
	// writing the received frames into out and returning how many
	// were filled. A return of 0 is not an error; the core spins.
	RecvBurst(out []*frame.Frame) (int, error)
}
