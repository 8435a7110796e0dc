package integrity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-server-go/internal/domain/events"
	"sentinel-server-go/internal/platform/storage"
)

type captured struct {
	eventType string
	data      map[string]any
	level     events.Level
}

type captureSink struct {
	events []captured
}

func (s *captureSink) Log(_ context.Context, eventType string, data map[string]any, level events.Level) {
	s.events = append(s.events, captured{eventType: eventType, data: data, level: level})
}

func newStateRepo(t *testing.T) *storage.StateRepository {
	t.Helper()
	db, err := storage.Open(t.TempDir(), "integrity_test.db")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	return storage.NewStateRepository(db)
}

func newMonitor(t *testing.T, opts Options) *Monitor {
	t.Helper()
	if opts.State == nil {
		opts.State = newStateRepo(t)
	}
	if opts.SessionID == "" {
		opts.SessionID = "session_test"
	}
	if opts.Baseline == (Baseline{}) {
		opts.Baseline = Baseline{Title: "My Site", BodyLength: 1000}
	}
	m, err := NewMonitor(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewMonitor returned error: %v", err)
	}
	return m
}

func TestInspectBenignBatch(t *testing.T) {
	sink := &captureSink{}
	m := newMonitor(t, Options{Sink: sink})

	reasons := m.Inspect(context.Background(), MutationBatch{
		Title:      "My Site",
		BodyLength: 1100,
		BodyText:   "welcome back",
		AddedNodes: []string{"div", "p"},
	})
	if len(reasons) != 0 {
		t.Fatalf("benign batch flagged: %v", reasons)
	}
	if len(sink.events) != 0 {
		t.Fatalf("benign batch emitted %d events", len(sink.events))
	}
	if m.Triggered() {
		t.Fatalf("benign batch tripped the alarm")
	}
}

func TestInspectHardSignals(t *testing.T) {
	cases := []struct {
		name  string
		batch MutationBatch
	}{
		{"body size", MutationBatch{Title: "My Site", BodyLength: 100, BodyText: "x"}},
		{"defaced title", MutationBatch{Title: "HACKED by someone", BodyLength: 1000}},
		{"defacement phrase", MutationBatch{Title: "My Site", BodyLength: 1000, BodyText: "this site was Pwned today"}},
		{"injected script", MutationBatch{Title: "My Site", BodyLength: 1000, AddedNodes: []string{"SCRIPT"}}},
		{"injected iframe", MutationBatch{Title: "My Site", BodyLength: 1000, AddedNodes: []string{"iframe"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &captureSink{}
			m := newMonitor(t, Options{Sink: sink})

			reasons := m.Inspect(context.Background(), tc.batch)
			if len(reasons) == 0 {
				t.Fatalf("batch not flagged")
			}
			if len(sink.events) != 1 {
				t.Fatalf("want 1 event, got %d", len(sink.events))
			}
			evt := sink.events[0]
			if evt.eventType != events.TypeDomTamper || evt.level != events.LevelWarning {
				t.Fatalf("unexpected event %s/%s", evt.eventType, evt.level)
			}
			if _, ok := evt.data["reasons"].([]string); !ok {
				t.Fatalf("event data has no reasons slice: %v", evt.data)
			}
		})
	}
}

func TestAlarmFiresOnce(t *testing.T) {
	sink := &captureSink{}
	m := newMonitor(t, Options{Sink: sink})

	tampered := MutationBatch{Title: "defaced", BodyLength: 1000}
	if reasons := m.Inspect(context.Background(), tampered); len(reasons) == 0 {
		t.Fatalf("first batch not flagged")
	}
	if reasons := m.Inspect(context.Background(), tampered); len(reasons) == 0 {
		t.Fatalf("repeat inspection should still report reasons")
	}

	if len(sink.events) != 1 {
		t.Fatalf("alarm fired %d times, want once", len(sink.events))
	}
	if !m.Triggered() {
		t.Fatalf("alarm state not latched")
	}
}

func TestAlarmStatePersistsAcrossMonitors(t *testing.T) {
	state := newStateRepo(t)
	sink := &captureSink{}
	ctx := context.Background()

	first := newMonitor(t, Options{State: state, Sink: sink, SessionID: "session_a"})
	first.Inspect(ctx, MutationBatch{Title: "pwned", BodyLength: 1000})
	if len(sink.events) != 1 {
		t.Fatalf("first monitor should alarm once, got %d", len(sink.events))
	}

	// same session reconnecting: alarm stays latched
	second := newMonitor(t, Options{State: state, Sink: sink, SessionID: "session_a"})
	if !second.Triggered() {
		t.Fatalf("latched state not restored for the session")
	}
	second.Inspect(ctx, MutationBatch{Title: "pwned", BodyLength: 1000})
	if len(sink.events) != 1 {
		t.Fatalf("restored monitor re-alarmed")
	}

	// a different session is unaffected
	other := newMonitor(t, Options{State: state, Sink: sink, SessionID: "session_b"})
	if other.Triggered() {
		t.Fatalf("latch leaked across sessions")
	}
}

func TestRemediationRunsAfterDelay(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	m := newMonitor(t, Options{
		Sink:  &captureSink{},
		Delay: 5 * time.Millisecond,
		Remediate: func() {
			calls.Add(1)
			close(done)
		},
	})

	m.Inspect(context.Background(), MutationBatch{Title: "hacked", BodyLength: 1000})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("remediation callback never ran")
	}
	if calls.Load() != 1 {
		t.Fatalf("remediation ran %d times, want 1", calls.Load())
	}
}
