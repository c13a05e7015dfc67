package destination

import (
	"context"
	"fmt"
	"time"

	"github.com/alfreddev/fusegate/fuse"
	"github.com/redis/go-redis/v9"
)

// RedisClient wraps go-redis construction the way the teacher's
// redisclient.New does: parse REDIS_URL, build a client, surface parse
// errors to the caller instead of panicking.
type RedisClient struct {
	c *redis.Client
}

// NewRedisClient parses rawURL (a redis:// or rediss:// URL) and
// returns a client handle. It does not contact the server; use Ping to
// check connectivity.
func NewRedisClient(rawURL string) (*RedisClient, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &RedisClient{c: redis.NewClient(opt)}, nil
}

// Ping checks connectivity, matching the teacher's health-check shape.
func (r *RedisClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisClient) Close() error {
	return r.c.Close()
}

// TriggerFactory returns a destination.TriggerFactory backed by this
// Redis client, so every process pointed at the same Redis instance
// shares one recovery_triggered flag per destination key.
func (r *RedisClient) TriggerFactory(keyPrefix string) TriggerFactory {
	return func(dest string) fuse.SharedTrigger {
		return &RedisTrigger{
			client: r.c,
			key:    keyPrefix + ":fuse:" + dest,
			ttl:    5 * time.Minute,
		}
	}
}

// RedisTrigger implements fuse.SharedTrigger using a Redis key as the
// tripped flag, coordinating the single-recovery-worker invariant
// across process instances via SetNX.
type RedisTrigger struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// TryTrip attempts to set key if absent, returning true only to the
// caller that wins the race — the local analogue of LocalTrigger's
// CompareAndSwap(false, true), implemented with SETNX so a restarted
// process doesn't both believe it owns recovery.
func (t *RedisTrigger) TryTrip() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := t.client.SetNX(ctx, t.key, "1", t.ttl).Result()
	if err != nil {
		// Fail closed: if Redis is unreachable, behave as already
		// tripped so no caller spawns a second, uncoordinated prober.
		return false
	}
	return ok
}

// IsTripped reports whether the key currently exists.
func (t *RedisTrigger) IsTripped() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := t.client.Exists(ctx, t.key).Result()
	if err != nil {
		return true // fail closed, see TryTrip
	}
	return n > 0
}

// Reset deletes the key, allowing a future TryTrip to succeed.
func (t *RedisTrigger) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	t.client.Del(ctx, t.key)
}
