package formguard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sentinel-server-go/internal/domain/events"
	"sentinel-server-go/internal/domain/session"
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

func newGuard(t *testing.T) (*Guard, *session.Context, *captureSink) {
	t.Helper()
	db, err := storage.Open(t.TempDir(), "guard_test.db")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	sess, err := session.New(context.Background(), storage.NewStateRepository(db))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sink := &captureSink{}
	return NewGuard(sess, sink), sess, sink
}

func TestValidateCleanFields(t *testing.T) {
	guard, sess, sink := newGuard(t)

	sanitized, err := guard.Validate(context.Background(), Submission{
		FormID: "contact",
		Token:  sess.CSRFToken(),
		Fields: map[string]string{
			"name":    "hello world",
			"message": "just saying hi",
		},
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if sanitized["name"] != "hello world" {
		t.Fatalf("clean field altered: %q", sanitized["name"])
	}
	if len(sink.events) != 0 {
		t.Fatalf("clean submission emitted %d events", len(sink.events))
	}
}

func TestValidateEscapesMarkup(t *testing.T) {
	guard, sess, _ := newGuard(t)

	sanitized, err := guard.Validate(context.Background(), Submission{
		FormID: "contact",
		Token:  sess.CSRFToken(),
		Fields: map[string]string{"message": `a < b & "c"`},
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if got := sanitized["message"]; got != "a &lt; b &amp; &#34;c&#34;" {
		t.Fatalf("unexpected escaping: %q", got)
	}
}

func TestValidateRejectsBadToken(t *testing.T) {
	guard, _, sink := newGuard(t)

	_, err := guard.Validate(context.Background(), Submission{
		FormID: "contact",
		Token:  "stale-token",
		Fields: map[string]string{"name": "fine"},
	})
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("want ErrTokenMismatch, got %v", err)
	}

	if len(sink.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(sink.events))
	}
	evt := sink.events[0]
	if evt.eventType != events.TypeCSRFAttack || evt.level != events.LevelError {
		t.Fatalf("unexpected event %s/%s", evt.eventType, evt.level)
	}
	if evt.data["form"] != "contact" {
		t.Fatalf("event form = %v, want contact", evt.data["form"])
	}
}

func TestValidateRejectsSuspiciousInput(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"script tag", `<script>alert(1)</script>`},
		{"javascript uri", `javascript:alert(document.cookie)`},
		{"inline handler", `<img src=x onerror=alert(1)>`},
		{"iframe", `<IFRAME src="https://evil.example">`},
		{"eval call", `eval(atob("payload"))`},
		{"css expression", `width: expression(alert(1))`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			guard, sess, sink := newGuard(t)

			_, err := guard.Validate(context.Background(), Submission{
				FormID: "contact",
				Token:  sess.CSRFToken(),
				Fields: map[string]string{"message": tc.value},
			})
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("want ErrInvalidInput, got %v", err)
			}

			if len(sink.events) != 1 {
				t.Fatalf("want 1 event, got %d", len(sink.events))
			}
			evt := sink.events[0]
			if evt.eventType != events.TypeXSSAttempt || evt.level != events.LevelWarning {
				t.Fatalf("unexpected event %s/%s", evt.eventType, evt.level)
			}
			if evt.data["field"] != "message" {
				t.Fatalf("event field = %v, want message", evt.data["field"])
			}
		})
	}
}

func TestValidateSampleIsCapped(t *testing.T) {
	guard, sess, sink := newGuard(t)

	payload := "<script>" + strings.Repeat("a", 500) + "</script>"
	_, err := guard.Validate(context.Background(), Submission{
		FormID: "contact",
		Token:  sess.CSRFToken(),
		Fields: map[string]string{"message": payload},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}

	value, _ := sink.events[0].data["value"].(string)
	if len(value) != sampleLimit {
		t.Fatalf("sample length = %d, want %d", len(value), sampleLimit)
	}
}

func TestValidateTokenCheckedBeforeFields(t *testing.T) {
	guard, _, sink := newGuard(t)

	_, err := guard.Validate(context.Background(), Submission{
		FormID: "contact",
		Token:  "wrong",
		Fields: map[string]string{"message": `<script>alert(1)</script>`},
	})
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("want ErrTokenMismatch, got %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].eventType != events.TypeCSRFAttack {
		t.Fatalf("csrf check must run before field screening")
	}
}
