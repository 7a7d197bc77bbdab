// Package receive implements the busy-poll loop a pinned core runs:
// burst-receive from its queues, parse, screen against the flow table
// and rule cell, hand off admitted frames, and account everything.
package receive

import (
	"fmt"
	"sync/atomic"

	"github.com/pavelkim/flowtap/internal/filter"
	"github.com/pavelkim/flowtap/internal/flow"
	"github.com/pavelkim/flowtap/internal/frame"
	"github.com/pavelkim/flowtap/internal/logger"
	"github.com/pavelkim/flowtap/internal/protocol"
	"github.com/pavelkim/flowtap/internal/queue"
	"github.com/pavelkim/flowtap/internal/subscription"
)

// Stats are the per-core accounting counters the runtime monitor
// reports periodically. All fields are updated with atomic ops from
// the core's own goroutine and read by the monitor from another.
type Stats struct {
	Parsed        atomic.Uint64
	ParseErrors   atomic.Uint64
	Matched       atomic.Uint64
	Admitted      atomic.Uint64
	ChannelErrors atomic.Uint64
	Bytes         atomic.Uint64
	SinkPackets   atomic.Uint64
	SinkBytes     atomic.Uint64
}

// Core is one pinned receive core: a set of homogeneous queues (all
// Receive or all Sink), its own zero-alloc parser, and a per-core
// filter.Context clone.
type Core struct {
	ID     int
	Pin    bool
	queues []queue.Queue
	kind   queue.Kind
	fc     *filter.Context
	parser *protocol.Parser
	sub    *subscription.Subscription
	burst  int
	log    *logger.Logger
	Stats  Stats
}

// New builds a Core. All of queues must report the same Kind.
func New(id int, pin bool, queues []queue.Queue, fc *filter.Context, sub *subscription.Subscription, burst int, log *logger.Logger) (*Core, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("receive: core %d has no queues", id)
	}
	kind := queues[0].Kind()
	for _, q := range queues[1:] {
		if q.Kind() != kind {
			return nil, fmt.Errorf("receive: core %d mixes receive and sink queues", id)
		}
	}
	if burst < 1 {
		burst = 32
	}
	return &Core{
		ID:     id,
		Pin:    pin,
		queues: queues,
		kind:   kind,
		fc:     fc,
		parser: protocol.NewParser(),
		sub:    sub,
		burst:  burst,
		log:    log,
	}, nil
}

// Run busy-polls its queues until running reports false. It never
// sleeps or blocks: an empty burst is simply the signal to poll again.
func (c *Core) Run(running *atomic.Bool) {
	buf := make([]*frame.Frame, c.burst)

	if c.kind == queue.Sink {
		c.runSink(running, buf)
		return
	}
	c.runReceive(running, buf)
}

func (c *Core) runReceive(running *atomic.Bool, buf []*frame.Frame) {
	for running.Load() {
		for _, q := range c.queues {
			n, err := q.RecvBurst(buf)
			if err != nil {
				c.log.Debug("receive: burst failed", "core", c.ID, "queue", q.Name(), "error", err)
				continue
			}
			for i := 0; i < n; i++ {
				c.handle(buf[i])
			}
		}
	}
}

func (c *Core) runSink(running *atomic.Bool, buf []*frame.Frame) {
	for running.Load() {
		for _, q := range c.queues {
			n, err := q.RecvBurst(buf)
			if err != nil {
				continue
			}
			for i := 0; i < n; i++ {
				c.Stats.SinkPackets.Add(1)
				c.Stats.SinkBytes.Add(uint64(buf[i].Len()))
				buf[i].Release()
			}
		}
	}
}

// handle runs one frame through parse, flow-table check, rule screen,
// and hand-off, in the order the data plane requires: an already
// tracked flow is refreshed and admitted without consulting the rule
// cell at all; a flow not yet tracked only gets in by matching the
// current ruleset, at which point it is inserted so subsequent packets
// skip the rule check too.
func (c *Core) handle(fr *frame.Frame) {
	c.Stats.Bytes.Add(uint64(fr.Len()))

	ctx, err := c.parser.Parse(fr.Bytes())
	if err != nil {
		c.Stats.ParseErrors.Add(1)
		fr.Release()
		return
	}
	c.Stats.Parsed.Add(1)

	fl := flow.FromL4Context(ctx)

	if c.fc.Table.CheckAndRefresh(fl) {
		c.admit(fl, fr)
		return
	}

	if c.fc.Cell.Match(ctx.Payload(fr.Bytes())) {
		c.Stats.Matched.Add(1)
		c.fc.Table.Insert(fl)
		c.admit(fl, fr)
		return
	}

	fr.Release()
}

// admit hands fr to the packet store over the hand-off channel and,
// if a subscription is wired in, to its callback as well. The store
// may concurrently write and Release fr the instant the send
// succeeds, so when both consumers exist fr is retained before the
// send: the store's Release and the post-dispatch Release here each
// drop one reference, and the underlying buffer only returns to its
// pool once both are accounted for. Neither consumer ever observes a
// buffer the other has already freed.
func (c *Core) admit(fl flow.Flow, fr *frame.Frame) {
	c.Stats.Admitted.Add(1)

	if c.sub != nil {
		fr.Retain()
	}

	if err := c.fc.SendPacket(fl, fr); err != nil {
		c.Stats.ChannelErrors.Add(1)
		c.log.Debug("receive: hand-off dropped frame", "core", c.ID, "error", err)
		fr.Release()
		if c.sub != nil {
			fr.Release()
		}
		return
	}

	if c.sub != nil {
		subj := subscription.FrameSubscription{Flow: fl, Frame: fr}
		subj.ProcessPacket(c.fc, c.sub)
		fr.Release()
	}
}
