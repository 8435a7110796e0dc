package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sentinel-server-go/internal/platform/errors"
)

func TestClientPostMessage(t *testing.T) {
	var received string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	client := NewClient(nil)
	msg := Message{
		Embeds:   []Embed{{Title: "🚨 CSRF_ATTACK", Color: 0xe74c3c}},
		Username: "Sentinel Security Logger",
	}
	if err := client.PostMessage(context.Background(), upstream.URL, msg); err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	if !strings.Contains(received, "CSRF_ATTACK") {
		t.Fatalf("upstream did not receive embed: %s", received)
	}
}

func TestClientPostMessageUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	client := NewClient(nil)
	err := client.PostMessage(context.Background(), upstream.URL, Message{})
	if err == nil {
		t.Fatalf("expected error for non-2xx upstream response")
	}
	if !errors.IsKind(err, errors.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestClientPostMessageMissingURL(t *testing.T) {
	client := NewClient(nil)
	err := client.PostMessage(context.Background(), "", Message{})
	if !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("expected config error for empty url, got %v", err)
	}
}

func TestClientPostFile(t *testing.T) {
	imageBytes := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "receipt.png" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("unexpected file content type %q", ct)
		}
		data, _ := io.ReadAll(file)
		if string(data) != string(imageBytes) {
			t.Errorf("file bytes corrupted in transit")
		}

		payload := r.FormValue("payload_json")
		if !strings.Contains(payload, "Payment Receipt") {
			t.Errorf("payload_json missing embed: %s", payload)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	client := NewClient(nil)
	msg := Message{Embeds: []Embed{{Title: "📸 Payment Receipt"}}}
	err := client.PostFile(context.Background(), upstream.URL, "receipt.png", "image/png", imageBytes, msg)
	if err != nil {
		t.Fatalf("PostFile returned error: %v", err)
	}
}
