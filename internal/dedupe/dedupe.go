// Package dedupe makes place-bid requests idempotent: a client-supplied request id is
// claimed once, so a retried submission cannot produce a second bid.
package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "bid:request:"
	DefaultTTL = 24 * time.Hour
)

// Guard claims request ids.
type Guard interface {
	// Claim reports true the first time key is seen within the TTL.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so the client may retry after a failed attempt.
	Release(ctx context.Context, key string) error
}

// RedisGuard claims keys with SET NX so every replica sharing the Redis instance agrees.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, keyPrefix+key).Err()
}

// MemoryGuard is the single-process Guard used when no Redis address is configured.
type MemoryGuard struct {
	clock clock.Clock
	ttl   time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // key -> expiry
}

func NewMemoryGuard(clk clock.Clock, ttl time.Duration) *MemoryGuard {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGuard{clock: clk, ttl: ttl, seen: make(map[string]time.Time)}
}

func (g *MemoryGuard) Claim(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if expiry, ok := g.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	g.seen[key] = now.Add(g.ttl)

	// sweep lazily so the map stays bounded by the request rate within one TTL
	for k, expiry := range g.seen {
		if !now.Before(expiry) {
			delete(g.seen, k)
		}
	}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}
