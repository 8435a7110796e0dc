package antidebug

import (
	"context"
	"strings"
	"sync"
	"time"

	"sentinel-server-go/internal/domain/events"
)

const (
	// DefaultInterval is how often the page samples itself, and the minimum
	// gap between devtools alarms.
	DefaultInterval = 4 * time.Second
	// DefaultThreshold is the probe delay above which an attached inspector
	// is assumed.
	DefaultThreshold = 200 * time.Millisecond
)

// Probe raises a devtools alarm when reported timing samples stall past the
// threshold. The page measures itself on the interval; the server only
// evaluates what the page reports. The interval doubles as the alarm
// cooldown so a permanently attached inspector does not flood the channel.
type Probe struct {
	sink      events.Sink
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastAlarm time.Time
}

// Options configures a probe. Zero Interval and Threshold take the defaults.
type Options struct {
	Sink      events.Sink
	Interval  time.Duration
	Threshold time.Duration
}

// NewProbe builds a probe.
func NewProbe(opts Options) *Probe {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Probe{
		sink:      opts.Sink,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		now:       time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (p *Probe) WithClock(now func() time.Time) *Probe {
	p.now = now
	return p
}

// Observe evaluates one measured probe delay and reports whether it tripped
// the threshold. Alarms within one interval of the previous one are
// swallowed.
func (p *Probe) Observe(ctx context.Context, delay time.Duration) bool {
	if delay <= p.threshold {
		return false
	}

	p.mu.Lock()
	at := p.now()
	cooled := p.lastAlarm.IsZero() || at.Sub(p.lastAlarm) >= p.interval
	if cooled {
		p.lastAlarm = at
	}
	p.mu.Unlock()

	if cooled && p.sink != nil {
		p.sink.Log(ctx, events.TypeDevtoolsDetected, map[string]any{
			"delayMs": delay.Milliseconds(),
		}, events.LevelWarning)
	}
	return true
}

// SuppressChord reports whether a key chord is one of the inspector shortcuts
// the page should swallow: F12, Ctrl+Shift+I/J/C and Ctrl+U.
func SuppressChord(key string, ctrl, shift bool) bool {
	key = strings.ToUpper(key)
	if key == "F12" {
		return true
	}
	if ctrl && shift {
		switch key {
		case "I", "J", "C":
			return true
		}
	}
	if ctrl && !shift && key == "U" {
		return true
	}
	return false
}
