package integrity

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"sentinel-server-go/internal/domain/events"
	"sentinel-server-go/internal/platform/storage"
)

// DefaultReloadDelay is how long a tampered page is given before the
// remediation callback fires.
const DefaultReloadDelay = 1500 * time.Millisecond

// sizeDeltaRatio is the body growth/shrink fraction that counts as structural
// tampering.
const sizeDeltaRatio = 0.5

var defacedTitle = regexp.MustCompile(`(?i)hacked|h4cked|defaced|pwned|owned`)

var defacedPhrases = []string{
	"hacked by",
	"h4cked",
	"defaced",
	"pwned",
	"owned by",
}

// injectedNodes are element kinds whose appearance in a mutation batch is a
// hard tamper signal on its own.
var injectedNodes = map[string]bool{
	"script": true,
	"iframe": true,
}

// Baseline is the page snapshot taken at load time, before any mutation is
// observed.
type Baseline struct {
	Title      string
	BodyLength int
}

// MutationBatch is one reported change-set against the baseline.
type MutationBatch struct {
	Title            string
	BodyLength       int
	BodyText         string
	AddedNodes       []string
	AttributeTargets []string
}

// Monitor watches mutation batches for one page session and fires at most one
// tamper alarm. The alarm state is persisted per session so a tampered page
// that reconnects does not re-alarm.
type Monitor struct {
	state     *storage.StateRepository
	sink      events.Sink
	sessionID string
	baseline  Baseline
	delay     time.Duration
	remediate func()

	mu        sync.Mutex
	triggered bool
}

// Options configures a monitor. Remediate, if set, runs once after Delay when
// tampering is confirmed.
type Options struct {
	State     *storage.StateRepository
	Sink      events.Sink
	SessionID string
	Baseline  Baseline
	Delay     time.Duration
	Remediate func()
}

// NewMonitor builds a monitor, restoring the persisted alarm state for the
// session.
func NewMonitor(ctx context.Context, opts Options) (*Monitor, error) {
	if opts.Delay <= 0 {
		opts.Delay = DefaultReloadDelay
	}
	m := &Monitor{
		state:     opts.State,
		sink:      opts.Sink,
		sessionID: opts.SessionID,
		baseline:  opts.Baseline,
		delay:     opts.Delay,
		remediate: opts.Remediate,
	}
	if m.state != nil && m.sessionID != "" {
		flag, err := m.state.GetInt(ctx, m.sessionID, storage.KeyTamperTriggered)
		if err != nil {
			return nil, err
		}
		m.triggered = flag == 1
	}
	return m, nil
}

// Triggered reports whether the alarm has already fired this session.
func (m *Monitor) Triggered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered
}

// Inspect evaluates one mutation batch. The returned reasons are the hard
// signals found; an empty slice means the batch looks benign. The alarm fires
// on the first batch with at least one hard signal and never again for the
// session.
func (m *Monitor) Inspect(ctx context.Context, batch MutationBatch) []string {
	reasons := m.hardSignals(batch)
	if len(reasons) == 0 {
		return nil
	}

	m.mu.Lock()
	if m.triggered {
		m.mu.Unlock()
		return reasons
	}
	m.triggered = true
	m.mu.Unlock()

	if m.state != nil && m.sessionID != "" {
		// the in-memory latch still holds if persistence fails
		_ = m.state.SetInt(ctx, m.sessionID, storage.KeyTamperTriggered, 1)
	}

	data := map[string]any{
		"reasons":    reasons,
		"bodyLength": batch.BodyLength,
	}
	if len(batch.AttributeTargets) > 0 {
		data["attributeTargets"] = batch.AttributeTargets
	}
	if m.sink != nil {
		m.sink.Log(ctx, events.TypeDomTamper, data, events.LevelWarning)
	}

	if m.remediate != nil {
		time.AfterFunc(m.delay, m.remediate)
	}
	return reasons
}

func (m *Monitor) hardSignals(batch MutationBatch) []string {
	var reasons []string

	if m.baseline.BodyLength > 0 && batch.BodyLength > 0 {
		delta := batch.BodyLength - m.baseline.BodyLength
		if delta < 0 {
			delta = -delta
		}
		if float64(delta) > float64(m.baseline.BodyLength)*sizeDeltaRatio {
			reasons = append(reasons, "body size changed drastically")
		}
	}

	if batch.Title != "" && batch.Title != m.baseline.Title && defacedTitle.MatchString(batch.Title) {
		reasons = append(reasons, "title replaced with defacement text")
	}

	body := strings.ToLower(batch.BodyText)
	for _, phrase := range defacedPhrases {
		if strings.Contains(body, phrase) {
			reasons = append(reasons, "defacement phrase in body: "+phrase)
			break
		}
	}

	for _, node := range batch.AddedNodes {
		if injectedNodes[strings.ToLower(node)] {
			reasons = append(reasons, "injected "+strings.ToLower(node)+" element")
			break
		}
	}

	return reasons
}
