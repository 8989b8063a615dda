package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestRecorderDeliversAndDrains(t *testing.T) {
	sink := &captureSink{}
	recorder := NewRecorder(sink, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- recorder.Run(ctx)
	}()

	recorder.Emit(Event{Subject: "deposit-1", Action: "deposit.opened"})
	recorder.Emit(Event{Subject: "deposit-1", Action: "deposit.verified", Outcome: "verified"})

	deadline := time.After(2 * time.Second)
	for len(sink.snapshot()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 events, got %d", len(sink.snapshot()))
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	events := sink.snapshot()
	if events[0].Action != "deposit.opened" {
		t.Fatalf("expected first action deposit.opened, got %s", events[0].Action)
	}
	if events[0].Timestamp.IsZero() {
		t.Fatal("expected recorder to stamp event time")
	}
}

func TestNilRecorderEmitIsNoop(t *testing.T) {
	var recorder *Recorder
	recorder.Emit(Event{Subject: "deposit-1", Action: "deposit.opened"})
}
