package queue

import "github.com/pavelkim/flowtap/internal/frame"

// Noop is a Queue that never yields a frame. It is the seam a real NIC
// driver binding (AF_XDP, a DPDK PMD, ...) plugs into in place of;
// useful as a placeholder wiring and in tests that don't need live
// traffic.
type Noop struct {
	name string
	kind Kind
}

// NewNoop returns a Queue of the given name and kind that always
// reports zero received frames.
func NewNoop(name string, kind Kind) *Noop {
	return &Noop{name: name, kind: kind}
}

func (n *Noop) Name() string { return n.name }
func (n *Noop) Kind() Kind   { return n.kind }

func (n *Noop) RecvBurst(out []*frame.Frame) (int, error) {
	return 0, nil
}
