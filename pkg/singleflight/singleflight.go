// Package singleflight provides an in-progress guard keyed by an
// arbitrary string, here a booking id. At most one holder exists per key
// at a time; a second acquire while the first is held reports "already
// running" rather than blocking or erroring. The guard must be released
// on every exit path.
package singleflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard is the single-flight coordination point
type Guard interface {
	// TryAcquire attempts to take the in-flight flag for key.
	// It returns false, without error, when another run holds it.
	TryAcquire(ctx context.Context, key string) (bool, error)
	// Release gives the flag back. Releasing an unheld key is a no-op.
	Release(ctx context.Context, key string) error
}

// MemoryGuard is a process-local Guard for tests and standalone mode
type MemoryGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewMemoryGuard creates an in-memory guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{inFlight: make(map[string]struct{})}
}

// TryAcquire takes the flag if no run holds it
func (g *MemoryGuard) TryAcquire(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.inFlight[key]; held {
		return false, nil
	}
	g.inFlight[key] = struct{}{}
	return true, nil
}

// Release gives the flag back
func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
	return nil
}

// RedisGuard is a Guard backed by Redis SETNX, so the flag holds across
// replicas of the service. The TTL is a safety net against a lost
// release; it must comfortably exceed the longest possible run.
type RedisGuard struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisGuard creates a Redis-backed guard
func NewRedisGuard(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisGuard {
	if keyPrefix == "" {
		keyPrefix = "fulfillment:inflight:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisGuard{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (g *RedisGuard) key(k string) string {
	return g.keyPrefix + k
}

// TryAcquire takes the flag via SETNX
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("singleflight acquire failed for %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the flag
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("singleflight release failed for %s: %w", key, err)
	}
	return nil
}
