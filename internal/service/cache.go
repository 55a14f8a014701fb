package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// SessionCache is the best-effort read-through cache in front of the attempt
// store. Every user of the cache must tolerate a miss; PostgreSQL remains
// the source of truth.
type SessionCache interface {
	SetDeadline(ctx context.Context, attemptID uuid.UUID, deadline time.Time)
	GetDeadline(ctx context.Context, attemptID uuid.UUID) (time.Time, bool)
	SetBundle(ctx context.Context, packageID uuid.UUID, payload []byte)
	GetBundle(ctx context.Context, packageID uuid.UUID) ([]byte, bool)
	DropAttempt(ctx context.Context, attemptID uuid.UUID)
}

// RedisSessionCache implements SessionCache on go-redis.
type RedisSessionCache struct {
	rdb *redis.Client
}

// NewRedisSessionCache creates a RedisSessionCache.
func NewRedisSessionCache(rdb *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{rdb: rdb}
}

// SetDeadline caches an attempt's server deadline as a Unix timestamp.
// Keyed per attempt; kept until the attempt is dropped.
func (c *RedisSessionCache) SetDeadline(ctx context.Context, attemptID uuid.UUID, deadline time.Time) {
	_ = c.rdb.Set(ctx, config.CacheKey.AttemptDeadlineKey(attemptID.String()), deadline.Unix(), 0).Err()
}

// GetDeadline returns the cached deadline, ok=false on any miss or error.
func (c *RedisSessionCache) GetDeadline(ctx context.Context, attemptID uuid.UUID) (time.Time, bool) {
	unix, err := c.rdb.Get(ctx, config.CacheKey.AttemptDeadlineKey(attemptID.String())).Int64()
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

// SetBundle caches a package's question payload (correct answers already
// stripped by the builder).
func (c *RedisSessionCache) SetBundle(ctx context.Context, packageID uuid.UUID, payload []byte) {
	_ = c.rdb.Set(ctx, config.CacheKey.PackageBundleKey(packageID.String()), payload, 0).Err()
}

// GetBundle returns the cached question payload, ok=false on any miss or error.
func (c *RedisSessionCache) GetBundle(ctx context.Context, packageID uuid.UUID) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.PackageBundleKey(packageID.String())).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

// DropAttempt clears per-attempt keys after the attempt reaches a terminal
// state.
func (c *RedisSessionCache) DropAttempt(ctx context.Context, attemptID uuid.UUID) {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptDeadlineKey(attemptID.String()))
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()))
	_, _ = pipe.Exec(ctx)
}
