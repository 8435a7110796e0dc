package ratelimit

import (
	"context"
	"fmt"
	"time"

	"sentinel-server-go/internal/platform/config"
)

// Store keeps per-identifier request instants. Take performs the identifier's
// check-and-record operation: prune entries older than the window, report the
// in-window count, and record the new instant only when under the limit.
type Store interface {
	Take(
		ctx context.Context,
		identifier string,
		now time.Time,
		window time.Duration,
		limit int,
	) (count int, allowed bool, err error)
	Close(ctx context.Context) error
}

// NewStore builds a store from configuration. The default is the in-process
// memory store; redis is for deployments that want the window to survive
// restarts.
func NewStore(cfg config.RateStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown rate limit store type: %s", cfg.Type)
	}
}
