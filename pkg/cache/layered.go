package cache

import (
	"context"
	"time"
)

// LayeredOption configures LayeredCache.
type LayeredOption func(*LayeredCache)

func WithLayeredMemorySize(n int) LayeredOption {
	return func(lc *LayeredCache) { lc.l1Size = n }
}

// WithLayeredMemoryTTL caps how long a value is served from L1 before
// Redis is consulted again.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) {
		if ttl > 0 {
			lc.l1TTL = ttl
		}
	}
}

// LayeredCache reads through a small in-process LRU in front of Redis and
// writes through to both. Listing and bulk reads always go to Redis so
// other replicas' writes are visible.
type LayeredCache struct {
	l1     *MemoryCache
	l2     *RedisCache
	l1Size int
	l1TTL  time.Duration
}

func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{l2: l2, l1Size: 1000, l1TTL: 30 * time.Second}
	for _, opt := range opts {
		opt(lc)
	}
	lc.l1 = NewMemoryCache(WithMemoryMaxSize(lc.l1Size))
	return lc
}

func (lc *LayeredCache) ttl(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := lc.l2.Set(ctx, key, data, expiration); err != nil {
		return err
	}
	return lc.l1.Set(ctx, key, data, lc.ttl(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	data, err := lc.l2.raw(ctx, key)
	if err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.l1TTL)
	return decode(data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	return lc.l2.Keys(ctx, pattern)
}

func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	return lc.l2.MGet(ctx, keys...)
}

// Close stops the L1 janitor. The Redis client belongs to the caller.
func (lc *LayeredCache) Close() error {
	return lc.l1.Close()
}
