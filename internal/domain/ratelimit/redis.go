package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sentinel-server-go/internal/platform/config"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed store. Windows live in sorted sets keyed
// by identifier, scored by the instant in unix milliseconds.
func NewRedis(cfg *config.RedisConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(identifier string) string {
	return s.prefix + identifier
}

func (s *redisStore) Take(
	ctx context.Context,
	identifier string,
	now time.Time,
	window time.Duration,
	limit int,
) (int, bool, error) {
	key := s.key(identifier)
	cutoff := now.Add(-window).UnixMilli()

	if err := s.client.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return 0, false, err
	}

	count, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if int(count) >= limit {
		return int(count), false, nil
	}

	member := redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	}
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, member)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return int(count), false, err
	}
	return int(count) + 1, true, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
