package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sentinel-server-go/internal/domain/eventbus"
	"sentinel-server-go/internal/relay"
)

func newForwardCapture(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	received := make(chan string, 16)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(upstream.Close)
	return upstream, received
}

func waitForward(t *testing.T, received chan string) string {
	t.Helper()
	select {
	case payload := <-received:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a forwarded message")
		return ""
	}
}

func expectNoForward(t *testing.T, received chan string) {
	t.Helper()
	select {
	case payload := <-received:
		t.Fatalf("unexpected forward: %s", payload)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestLoggerForwardingPolicy(t *testing.T) {
	upstream, received := newForwardCapture(t)

	logger := NewLogger(Options{
		Relay:      relay.NewClient(nil),
		WebhookURL: upstream.URL,
	})
	ctx := context.Background()

	// plain info events outside the allow-list stay local
	logger.Log(ctx, "scroll_depth", map[string]any{"depth": 42}, LevelInfo)
	expectNoForward(t, received)

	// warnings always forward
	logger.Log(ctx, TypeRateLimitExceeded, map[string]any{"identifier": "form_submit"}, LevelWarning)
	payload := waitForward(t, received)
	if !strings.Contains(payload, "RATE_LIMIT_EXCEEDED") {
		t.Fatalf("forwarded payload missing type title: %s", payload)
	}

	// allow-listed info events forward too
	logger.Log(ctx, TypePageLoad, map[string]any{"visitCount": 1}, LevelInfo)
	payload = waitForward(t, received)
	if !strings.Contains(payload, "PAGE_LOAD") {
		t.Fatalf("forwarded payload missing page_load title: %s", payload)
	}
}

func TestLoggerForwardFailureStaysLocal(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer upstream.Close()

	logger := NewLogger(Options{
		Relay:      relay.NewClient(nil),
		WebhookURL: upstream.URL,
	})

	// must not panic or surface the failure
	logger.Log(context.Background(), TypeCSRFAttack, map[string]any{"form": "checkout"}, LevelError)
	time.Sleep(100 * time.Millisecond)
}

func TestLoggerPublishesTypedTopics(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Close()

	broad := make(chan Event, 8)
	if err := bus.Subscribe(eventbus.TopicSecurityEvent, func(evt Event) { broad <- evt }); err != nil {
		t.Fatalf("subscribe broad: %v", err)
	}
	tamper := make(chan Event, 8)
	if err := bus.Subscribe(eventbus.TopicTamper, func(evt Event) { tamper <- evt }); err != nil {
		t.Fatalf("subscribe tamper: %v", err)
	}

	logger := NewLogger(Options{Bus: bus})
	ctx := context.Background()

	logger.Log(ctx, TypeDomTamper, map[string]any{"reasons": []string{"injected script element"}}, LevelWarning)
	select {
	case evt := <-tamper:
		if evt.Type != TypeDomTamper {
			t.Fatalf("tamper topic delivered %q", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tamper topic never delivered")
	}

	// other types stay off the typed topic but reach the broad one
	logger.Log(ctx, TypePageLoad, map[string]any{"visitCount": 1}, LevelInfo)
	for received := 0; received < 2; {
		select {
		case <-broad:
			received++
		case <-time.After(2 * time.Second):
			t.Fatalf("broad topic delivered %d of 2 events", received)
		}
	}
	if len(tamper) != 0 {
		t.Fatalf("page_load leaked onto the tamper topic")
	}
}

func TestLoggerWithPageScope(t *testing.T) {
	upstream, received := newForwardCapture(t)

	root := NewLogger(Options{
		Relay:      relay.NewClient(nil),
		WebhookURL: upstream.URL,
	})
	scoped := root.WithPage("/store", "https://example.com/store", "abcdef1234567890", ClientInfo{
		UserAgent: "Mozilla/5.0",
		Language:  "es-MX",
		Platform:  "iPhone",
		Screen:    "390x844",
		Timezone:  "America/Mexico_City",
	})

	scoped.Log(context.Background(), TypeXSSAttempt, map[string]any{
		"field": "comment",
		"value": "<script>alert(1)</script>",
	}, LevelWarning)

	payload := waitForward(t, received)
	for _, want := range []string{
		"Session: abcdef12",
		"**Page:** /store",
		"es-MX",
		`"Field"`, // data keys become title-cased field names
	} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q: %s", want, payload)
		}
	}

	// the parent scope must be unaffected
	if root.sessionID != "" {
		t.Fatalf("WithPage mutated parent logger")
	}
}

func TestBuildMessageTruncatesLongValues(t *testing.T) {
	logger := NewLogger(Options{})
	evt := Event{
		Type:      TypeXSSAttempt,
		Level:     LevelWarning,
		Page:      "/",
		Timestamp: time.Now(),
		Data:      map[string]any{"value": strings.Repeat("a", 2000)},
	}

	msg := logger.buildMessage(evt)
	if len(msg.Embeds) != 1 {
		t.Fatalf("expected one embed")
	}
	field := msg.Embeds[0].Fields[0]
	if field.Name != "Value" {
		t.Errorf("field name = %q", field.Name)
	}
	if len(field.Value) != 1023 {
		t.Errorf("field value length = %d, want 1023", len(field.Value))
	}
}

func TestVisitDescription(t *testing.T) {
	first := visitDescription(map[string]any{"visitCount": 1})
	if !strings.Contains(first, "Visit #1") || strings.Contains(first, "Last visit") {
		t.Errorf("first visit description wrong: %q", first)
	}

	last := time.Now().Add(-3 * time.Hour).UTC().Format(time.RFC3339)
	repeat := visitDescription(map[string]any{"visitCount": 5, "lastVisit": last})
	if !strings.Contains(repeat, "Visit #5") || !strings.Contains(repeat, "3 hours ago") {
		t.Errorf("repeat visit description wrong: %q", repeat)
	}

	if visitDescription(map[string]any{}) != "" {
		t.Errorf("missing visit count should produce empty description")
	}
}

func TestHumanizeSince(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "moments ago"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{time.Hour, "1 hour ago"},
		{26 * time.Hour, "1 day ago"},
		{3 * 24 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		if got := humanizeSince(tt.in); got != tt.want {
			t.Errorf("humanizeSince(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
