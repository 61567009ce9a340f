package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper lets exactly one consumer act on an event that every bot replica
// receives over pub/sub.
type Deduper interface {
	// Claim returns true for the first caller with the given key within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var (
	_ Deduper = (*RedisDeduper)(nil)
	_ Deduper = (*MemoryDeduper)(nil)
)

type RedisDeduper struct {
	client *redis.Client
	prefix string
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: "shop:claimed:"}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// MemoryDeduper is the single-process counterpart of RedisDeduper.
type MemoryDeduper struct {
	mu      sync.Mutex
	claimed map[string]time.Time
	now     func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{claimed: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.claimed {
		if now.After(exp) {
			delete(d.claimed, k)
		}
	}
	if _, ok := d.claimed[key]; ok {
		return false, nil
	}
	d.claimed[key] = now.Add(ttl)
	return true, nil
}
