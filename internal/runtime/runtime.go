// Package runtime assembles the flow table, filter contexts, receive
// cores, rule daemon, and packet store into one running pipeline and
// owns its start/stop lifecycle.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelkim/flowtap/internal/affinity"
	"github.com/pavelkim/flowtap/internal/config"
	"github.com/pavelkim/flowtap/internal/filter"
	"github.com/pavelkim/flowtap/internal/flowtable"
	"github.com/pavelkim/flowtap/internal/handoff"
	"github.com/pavelkim/flowtap/internal/logger"
	"github.com/pavelkim/flowtap/internal/queue"
	"github.com/pavelkim/flowtap/internal/receive"
	"github.com/pavelkim/flowtap/internal/ruledaemon"
	"github.com/pavelkim/flowtap/internal/ruleset"
	"github.com/pavelkim/flowtap/internal/store"
	"github.com/pavelkim/flowtap/internal/subscription"
)

// QueueResolver binds a configured queue name to a live queue.Queue.
// Driver initialization is an external concern; flowtap only consumes
// the resulting handle.
type QueueResolver func(name string, kind queue.Kind) (queue.Queue, error)

// Runtime owns every long-lived component of one flowtap instance.
type Runtime struct {
	cfg *config.Config
	log *logger.Logger

	table   *flowtable.Table
	handoff *handoff.Shards
	daemon  *ruledaemon.Daemon
	cores   []*receive.Core
	stores  []*store.Store

	running atomic.Bool
	coreWg  sync.WaitGroup
	storeWg sync.WaitGroup
}

// New builds a Runtime from cfg. resolve is called once per configured
// queue; sub, if non-nil, is invoked for every admitted frame.
func New(cfg *config.Config, log *logger.Logger, resolve QueueResolver, sub *subscription.Subscription) (*Runtime, error) {
	evictionTimeout := cfg.DataPlane.EvictionTimeout.Duration()
	table := flowtable.New(cfg.DataPlane.FlowTableShards, evictionTimeout)
	handoffShards := handoff.NewShards(cfg.DataPlane.HandoffShards, cfg.DataPlane.HandoffBufferSize)

	initial, err := ruleset.Compile(nil)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	template := filter.New(table, evictionTimeout, ruleset.NewCell(initial), handoffShards)

	r := &Runtime{cfg: cfg, log: log, table: table, handoff: handoffShards}

	var cells []*ruleset.Cell
	for _, cc := range cfg.DataPlane.Cores {
		fc := template.Clone()
		cells = append(cells, fc.Cell)

		queues := make([]queue.Queue, 0, len(cc.Queues))
		for _, qc := range cc.Queues {
			kind := queue.Receive
			if qc.Kind == "sink" {
				kind = queue.Sink
			}
			q, err := resolve(qc.Name, kind)
			if err != nil {
				return nil, fmt.Errorf("runtime: resolve queue %q: %w", qc.Name, err)
			}
			queues = append(queues, q)
		}

		core, err := receive.New(cc.ID, cc.Pin, queues, fc, sub, cfg.DataPlane.BurstSize, log)
		if err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
		r.cores = append(r.cores, core)
	}

	r.daemon = ruledaemon.New(cfg.Rules.ControlSocketPath, cells, log)

	for i := 0; i < handoffShards.Len(); i++ {
		st, err := store.New(cfg.Store.OutputDir, cfg.Store.LRUCapacity, log)
		if err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
		r.stores = append(r.stores, st)
	}

	return r, nil
}

// Start binds the control socket, then launches the packet store
// consumers, receive cores, and stats monitor. A failure to bind the
// control socket is a fatal startup error, returned synchronously
// before anything else starts.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.daemon.Listen(); err != nil {
		return err
	}
	go r.daemon.Serve(ctx)

	r.running.Store(true)

	for i, st := range r.stores {
		r.storeWg.Add(1)
		go func(st *store.Store, i int) {
			defer r.storeWg.Done()
			st.Run(r.handoff.Receiver(i))
		}(st, i)
	}

	for _, core := range r.cores {
		r.coreWg.Add(1)
		go func(core *receive.Core) {
			defer r.coreWg.Done()
			if core.Pin {
				if err := affinity.Pin(core.ID); err != nil {
					r.log.Warn("runtime: cpu pin failed, continuing unpinned", "core", core.ID, "error", err)
				}
			}
			core.Run(&r.running)
		}(core)
	}

	go r.monitor(ctx)

	return nil
}

// Stop signals every receive core to exit, waits for them, then closes
// the hand-off channels so the packet stores drain and finish.
func (r *Runtime) Stop() {
	r.running.Store(false)
	r.coreWg.Wait()
	r.handoff.Close()
	r.storeWg.Wait()
}

func (r *Runtime) monitor(ctx context.Context) {
	interval := r.cfg.Stats.ReportInterval.Duration()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reportStats()
		}
	}
}

func (r *Runtime) reportStats() {
	for _, core := range r.cores {
		r.log.Info("stats",
			"core", core.ID,
			"parsed", core.Stats.Parsed.Load(),
			"parse_errors", core.Stats.ParseErrors.Load(),
			"matched", core.Stats.Matched.Load(),
			"admitted", core.Stats.Admitted.Load(),
			"channel_errors", core.Stats.ChannelErrors.Load(),
			"bytes", core.Stats.Bytes.Load(),
			"sink_packets", core.Stats.SinkPackets.Load(),
			"sink_bytes", core.Stats.SinkBytes.Load(),
			"flows", r.table.Len(),
		)
	}
	pruned := r.table.Prune(time.Now())
	if pruned > 0 {
		r.log.Debug("runtime: pruned idle flows", "count", pruned)
	}
}
