package worker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which notifications were already sent.
type Deduper interface {
	// FirstSeen records key for ttl and reports whether it was new.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget drops key so the next FirstSeen reports it as new again.
	Forget(ctx context.Context, key string) error
}

// RedisDeduper shares dedupe state between replicas through SET NX.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

// NewRedisDeduper builds a deduper whose keys start with prefix.
func NewRedisDeduper(client *redis.Client, prefix string) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), ttl).Result()
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}

// MemoryDeduper keeps dedupe state in process. Used when Redis is not
// configured and in tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper builds an empty deduper. A nil clock uses time.Now.
func NewMemoryDeduper(clock func() time.Time) *MemoryDeduper {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryDeduper{seen: make(map[string]time.Time), now: clock}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if expires, ok := d.seen[key]; ok && now.Before(expires) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	// Expired keys are pruned on write.
	for k, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, k)
		}
	}
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}
