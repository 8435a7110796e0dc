package ratelimit

import (
	"context"
	"time"

	"sentinel-server-go/internal/domain/events"
)

// Defaults mirror the page-side limiter: 30 requests per sliding minute.
const (
	DefaultLimit  = 30
	DefaultWindow = time.Minute
)

// Limiter applies a true sliding window per identifier. Identifiers never
// interact with each other. This is a soft deterrent, not a security
// boundary.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	sink   events.Sink
	now    func() time.Time
}

// NewLimiter builds a limiter; non-positive limit or window fall back to the
// defaults.
func NewLimiter(store Store, limit int, window time.Duration, sink events.Sink) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		sink:   sink,
		now:    time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow checks and records one request for the identifier. At or above the
// limit it emits a rate_limit_exceeded warning and returns false. Store
// failures fail open: a broken backing store must not lock users out.
func (l *Limiter) Allow(ctx context.Context, identifier string) bool {
	if identifier == "" {
		identifier = "default"
	}

	count, allowed, err := l.store.Take(ctx, identifier, l.now(), l.window, l.limit)
	if err != nil {
		return true
	}

	if !allowed && l.sink != nil {
		l.sink.Log(ctx, events.TypeRateLimitExceeded, map[string]any{
			"identifier": identifier,
			"requests":   count,
		}, events.LevelWarning)
	}
	return allowed
}
