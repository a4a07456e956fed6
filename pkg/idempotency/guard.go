// Package idempotency provides a duplicate-delivery guard for the
// orchestrator worker. The guard is a fast path only: the ledger's guarded
// transitions remain the correctness seam, the guard just spares redelivered
// events a round trip to the database.
package idempotency

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Guard remembers event ids it has seen recently.
type Guard interface {
	// MarkIfNew records the event id and reports whether it was new.
	MarkIfNew(ctx context.Context, eventID string) (bool, error)
	// Forget clears a mark, so a nacked redelivery of the event is
	// processed instead of skipped as a duplicate.
	Forget(ctx context.Context, eventID string) error
	Close() error
}

const keyPrefix = "approvals:event:"

// RedisGuard stores seen event ids in redis with a TTL, so the window
// survives worker restarts and is shared across consumer instances.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisGuard(redisURL string, ttl time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &RedisGuard{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

func (g *RedisGuard) MarkIfNew(ctx context.Context, eventID string) (bool, error) {
	return g.client.SetNX(ctx, keyPrefix+eventID, 1, g.ttl).Result()
}

func (g *RedisGuard) Forget(ctx context.Context, eventID string) error {
	return g.client.Del(ctx, keyPrefix+eventID).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// MemoryGuard is the in-process fallback used by tests and single-instance
// deployments without redis.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

func (g *MemoryGuard) MarkIfNew(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	for id, expiry := range g.seen {
		if now.After(expiry) {
			delete(g.seen, id)
		}
	}

	if _, ok := g.seen[eventID]; ok {
		return false, nil
	}

	g.seen[eventID] = now.Add(g.ttl)

	return true, nil
}

func (g *MemoryGuard) Forget(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.seen, eventID)

	return nil
}

func (g *MemoryGuard) Close() error { return nil }
