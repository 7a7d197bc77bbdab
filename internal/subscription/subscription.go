// Package subscription forwards accepted packets to a user callback,
// with optional timing instrumentation around the call.
package subscription

import (
	"time"

	"github.com/pavelkim/flowtap/internal/filter"
	"github.com/pavelkim/flowtap/internal/flow"
	"github.com/pavelkim/flowtap/internal/frame"
	"github.com/pavelkim/flowtap/internal/logger"
)

// Subscribable is implemented by anything a Subscription can dispatch
// a packet through. The built-in FrameSubscription is a direct
// forwarder; other implementations could reshape or copy the frame
// before invoking the callback.
type Subscribable interface {
	ProcessPacket(fc *filter.Context, sub *Subscription)
}

// Callback receives the accepted Subscribable and the filter context
// it arrived on. It must not retain either argument beyond the call:
// the frame it wraps is only guaranteed live for the duration of the
// call, and its buffer may be returned to the pool the moment the
// callback returns.
type Callback func(s Subscribable, fc *filter.Context)

// Subscription owns a user callback and, when timing is enabled,
// records how long each invocation takes.
type Subscription struct {
	callback Callback
	timing   bool
	log      *logger.Logger
}

// New builds a Subscription. timing enables per-call duration logging
// at debug level; it costs a clock read per packet, so it is meant for
// diagnosis, not steady-state operation.
func New(cb Callback, timing bool, log *logger.Logger) *Subscription {
	return &Subscription{callback: cb, timing: timing, log: log}
}

// Invoke calls the user callback, optionally timing it.
func (s *Subscription) Invoke(subj Subscribable, fc *filter.Context) {
	if !s.timing {
		s.callback(subj, fc)
		return
	}
	start := time.Now()
	s.callback(subj, fc)
	if s.log != nil {
		s.log.Debug("subscription callback", "duration", time.Since(start))
	}
}

// FrameSubscription is the built-in Subscribable: it wraps the admitted
// frame and its flow for the duration of the callback, and
// ProcessPacket is a direct forwarder to Invoke with no reshaping.
type FrameSubscription struct {
	Flow  flow.Flow
	Frame *frame.Frame
}

// ProcessPacket forwards straight to sub.Invoke.
func (fs FrameSubscription) ProcessPacket(fc *filter.Context, sub *Subscription) {
	sub.Invoke(fs, fc)
}
