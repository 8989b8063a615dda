package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is emitted from domain logic to capture one state transition. Keep it
// transport-agnostic so sinks can fan out to logs or a broker.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// LogSink writes audit events to the structured logger. It is the fallback
// when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a logging sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Append writes the event to the structured logger.
func (s *LogSink) Append(_ context.Context, event Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.Info("audit",
		"action", event.Action,
		"subject", event.Subject,
		"user_id", event.UserID,
		"outcome", event.Outcome,
		"reason", event.Reason,
		"at", event.Timestamp,
	)
	return nil
}
