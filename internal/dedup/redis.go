package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard is a Guard backed by Redis, for deployments where multiple
// replicas receive the same webhook. SET NX gives the atomic insert-if-absent
// and the TTL bounds retention.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisGuard creates a Redis-backed guard with the given retention window.
func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) ShouldProcess(ctx context.Context, requestID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, dedupKey(requestID), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Forget(ctx context.Context, requestID string) {
	g.rdb.Del(ctx, dedupKey(requestID))
}

func dedupKey(requestID string) string { return fmt.Sprintf("dedup:%s", requestID) }
