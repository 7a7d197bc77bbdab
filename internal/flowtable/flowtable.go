// Package flowtable tracks which flows are currently admitted,
// independent of the regex screen: once a flow is inserted it is
// refreshed on every subsequent packet until it goes idle past the
// eviction timeout, at which point it is pruned and must pass the
// rule screen again.
package flowtable

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/pavelkim/flowtap/internal/flow"
)

// Table is a sharded, lock-free-per-shard map from Flow to its
// last-seen timestamp. Shards are independent xsync.MapOf instances so
// that no single lock serializes cores touching unrelated flows.
type Table struct {
	shards  []*xsync.MapOf[flow.Flow, int64]
	timeout time.Duration
}

// New builds a Table with the given shard count and eviction timeout.
func New(shards int, timeout time.Duration) *Table {
	if shards < 1 {
		shards = 1
	}
	t := &Table{
		shards:  make([]*xsync.MapOf[flow.Flow, int64], shards),
		timeout: timeout,
	}
	for i := range t.shards {
		t.shards[i] = xsync.NewMapOf[flow.Flow, int64]()
	}
	return t
}

func (t *Table) shardFor(f flow.Flow) *xsync.MapOf[flow.Flow, int64] {
	return t.shards[f.Hash()%uint64(len(t.shards))]
}

// CheckAndRefresh reports whether f is currently tracked, and if so
// atomically bumps its last-seen timestamp to now. A flow absent from
// the table is left untouched — the caller is expected to run the
// rule screen and call Insert itself if it matches.
func (t *Table) CheckAndRefresh(f flow.Flow) bool {
	shard := t.shardFor(f)
	now := time.Now().UnixNano()

	present := false
	shard.Compute(f, func(oldValue int64, loaded bool) (int64, bool) {
		if !loaded {
			return oldValue, true // leave absent
		}
		present = true
		return now, false
	})
	return present
}

// Insert admits f, recording now as its last-seen timestamp.
func (t *Table) Insert(f flow.Flow) {
	t.shardFor(f).Store(f, time.Now().UnixNano())
}

// Prune removes every flow whose last-seen timestamp is older than the
// table's eviction timeout as of now. Safe to call concurrently with
// CheckAndRefresh/Insert from any core; a flow refreshed concurrently
// with a Prune pass is never pruned out from under the refresh because
// the per-key read and delete both go through the shard's own atomic
// operations.
func (t *Table) Prune(now time.Time) int {
	cutoff := now.Add(-t.timeout).UnixNano()
	pruned := 0

	for _, shard := range t.shards {
		var stale []flow.Flow
		shard.Range(func(key flow.Flow, value int64) bool {
			if value < cutoff {
				stale = append(stale, key)
			}
			return true
		})
		for _, key := range stale {
			deleted := false
			shard.Compute(key, func(oldValue int64, loaded bool) (int64, bool) {
				if loaded && oldValue < cutoff {
					deleted = true
					return oldValue, true // delete, still stale
				}
				return oldValue, false // refreshed since the scan, keep
			})
			if deleted {
				pruned++
			}
		}
	}
	return pruned
}

// Len returns the total number of tracked flows across all shards.
func (t *Table) Len() int {
	n := 0
	for _, shard := range t.shards {
		n += shard.Size()
	}
	return n
}
