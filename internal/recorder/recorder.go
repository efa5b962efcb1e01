// Package recorder persists terminal dispatch outcomes to the delivery log.
// It observes the eventbus so the engine never blocks on storage.
package recorder

import (
	"context"
	"time"

	"meetmail/internal/dispatch"
	"meetmail/internal/eventbus"
	"meetmail/internal/storage"
	logx "meetmail/pkg/logx"
)

type Recorder struct {
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
}

// New wires a recorder. Store may be nil (persistence disabled); Run is then
// a no-op that returns immediately.
func New(log logx.Logger, bus eventbus.Bus, store storage.Store) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{log: log, bus: bus, store: store}
}

// Run consumes terminal dispatch events until ctx is canceled.
func (r *Recorder) Run(ctx context.Context) {
	if r.store == nil || r.bus == nil {
		return
	}
	events, unsub := r.bus.Subscribe(128,
		dispatch.TopicDelivered, dispatch.TopicRejected, dispatch.TopicFailed)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			r.handle(ctx, e)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, e eventbus.Event) {
	out, ok := e.Payload.(dispatch.OutcomeEvent)
	if !ok {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := r.store.AppendDelivery(wctx, storage.DeliveryEntry{
		At:        e.Time,
		RequestID: out.RequestID,
		Recipient: out.Recipient,
		Outcome:   string(out.Status),
		Reason:    out.Reason,
		Attempts:  out.Attempts,
		TookMS:    out.TookMS,
	})
	if err != nil {
		r.log.Warn("delivery log append failed",
			logx.String("request_id", out.RequestID),
			logx.Err(err))
	}
}
