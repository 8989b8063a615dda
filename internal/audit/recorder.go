package audit

import (
	"context"
	"log/slog"
	"time"
)

// Recorder buffers audit events from domain logic and drains them to a sink
// on a background goroutine, keeping request paths free of sink latency.
// Emit is safe on a nil Recorder so services can run unaudited in tests.
type Recorder struct {
	sink   Sink
	inbox  chan Event
	logger *slog.Logger
}

// NewRecorder builds a recorder draining into sink. buffer bounds the number
// of events held while the sink is slow; further events are dropped with a
// warning rather than blocking callers.
func NewRecorder(sink Sink, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{sink: sink, inbox: make(chan Event, buffer), logger: logger}
}

// Emit enqueues an event, stamping the time if unset.
func (r *Recorder) Emit(event Event) {
	if r == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case r.inbox <- event:
	default:
		if r.logger != nil {
			r.logger.Warn("audit buffer full, dropping event", "action", event.Action, "subject", event.Subject)
		}
	}
}

// Run consumes events until ctx is cancelled, then drains whatever is still
// buffered before returning.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case event := <-r.inbox:
			r.append(event)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case event := <-r.inbox:
			r.append(event)
		default:
			return
		}
	}
}

func (r *Recorder) append(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.sink.Append(ctx, event); err != nil && r.logger != nil {
		r.logger.Error("audit append failed", "action", event.Action, "error", err)
	}
}
