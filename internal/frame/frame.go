// Package frame defines the opaque handle the data plane uses to refer
// to a pool-allocated packet buffer. Allocation and freeing of the
// backing pool are an external collaborator's concern; frame only
// carries the handle and its free-on-drop contract.
package frame

import "sync/atomic"

// Pool is the consumed contract for whatever owns the backing memory.
// A Frame's Release call is forwarded here exactly once, when its last
// reference goes away.
type Pool interface {
	// Free returns the buffer identified by mark to the pool.
	Free(mark uint64)
}

// Frame is a reference-counted handle to a pool-allocated packet. It
// must not outlive the Pool that produced it. New frames start with a
// single reference, owned by whichever receive core produced them.
// Handing the same Frame to more than one consumer, such as the
// hand-off channel and a subscription callback, requires a Retain per
// extra consumer first, so the buffer is only returned to the pool
// once every consumer has released its reference; a consumer never
// reads a buffer another consumer may already have freed.
type Frame struct {
	pool    Pool
	data    []byte
	rssHash uint32
	mark    uint64
	refs    atomic.Int32
}

// New wraps a pool-owned byte slice into a Frame. mark is an opaque
// driver-assigned identifier the pool uses to locate the buffer again
// on Release; rssHash is the NIC's computed receive-side-scaling hash,
// carried through for callers that want it (e.g. an alternative shard
// selection strategy) without recomputing it.
func New(pool Pool, data []byte, rssHash uint32, mark uint64) *Frame {
	f := &Frame{pool: pool, data: data, rssHash: rssHash, mark: mark}
	f.refs.Store(1)
	return f
}

// Len returns the payload length.
func (f *Frame) Len() int { return len(f.data) }

// Bytes returns the readable payload. The slice is only valid until
// the caller's own Release call.
func (f *Frame) Bytes() []byte { return f.data }

// RSSHash returns the NIC-computed receive-side-scaling hash.
func (f *Frame) RSSHash() uint32 { return f.rssHash }

// Retain adds one reference to f and returns f, for handing the same
// Frame to an additional concurrent consumer. Each Retain must be
// matched by exactly one later Release.
func (f *Frame) Retain() *Frame {
	f.refs.Add(1)
	return f
}

// Release drops one reference. The underlying buffer is returned to
// its pool only when the last reference is released, so it is safe to
// call once per Retain (including the implicit one New grants) without
// coordinating with other holders.
func (f *Frame) Release() {
	if f.refs.Add(-1) != 0 {
		return
	}
	f.data = nil
	if f.pool != nil {
		f.pool.Free(f.mark)
	}
}
