// Package filter bundles everything a receive core needs to admit a
// packet: the shared flow table, its compiled rule cell, and a handle
// to send accepted frames downstream.
package filter

import (
	"time"

	"github.com/pavelkim/flowtap/internal/flow"
	"github.com/pavelkim/flowtap/internal/flowtable"
	"github.com/pavelkim/flowtap/internal/frame"
	"github.com/pavelkim/flowtap/internal/handoff"
	"github.com/pavelkim/flowtap/internal/ruleset"
)

// Context is the per-core replica of the filtering state. The flow
// table and hand-off shards are shared across every core's Context;
// only the rule Cell is per-core so the rule daemon can swap it
// without any core blocking on another core's lock.
type Context struct {
	Table   *flowtable.Table
	Timeout time.Duration
	Cell    *ruleset.Cell
	handoff *handoff.Shards
}

// New builds the template Context a runtime clones once per core.
func New(table *flowtable.Table, timeout time.Duration, cell *ruleset.Cell, shards *handoff.Shards) *Context {
	return &Context{Table: table, Timeout: timeout, Cell: cell, handoff: shards}
}

// Clone returns a per-core Context: the flow table and hand-off shards
// are aliased (they are the shared, concurrency-safe collaborators),
// while the rule cell is cloned so each core owns an independent lock.
func (c *Context) Clone() *Context {
	return &Context{
		Table:   c.Table,
		Timeout: c.Timeout,
		Cell:    c.Cell.Clone(),
		handoff: c.handoff,
	}
}

// SendPacket hands an admitted frame off to the packet store. Never
// blocks; a saturated shard surfaces as an error the receive core
// accounts and responds to by dropping the frame.
func (c *Context) SendPacket(f flow.Flow, fr *frame.Frame) error {
	return c.handoff.Send(f, fr)
}
