package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// RedisCache stores values under "<prefix>:<key>" on a shared client.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCacheWithClient wraps a client owned by the caller, usually the
// one the alert queue also uses. Close is left to the owner.
func NewRedisCacheWithClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCache) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.key(k)
	}
	return out
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, expiration).Err()
}

func (c *RedisCache) raw(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.raw(ctx, key)
	if err != nil {
		return err
	}
	return decode(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Unlink(ctx, c.keys(keys)...).Err()
}

func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	found, err := c.scan(ctx, c.key(pattern))
	if err != nil || len(found) == 0 {
		return err
	}
	return c.client.Unlink(ctx, found...).Err()
}

// Keys lists matching keys with the prefix stripped, sorted.
func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	found, err := c.scan(ctx, c.key(pattern))
	if err != nil {
		return nil, err
	}
	for i, k := range found {
		found[i] = strings.TrimPrefix(k, c.prefix+":")
	}
	sort.Strings(found)
	return found, nil
}

func (c *RedisCache) scan(ctx context.Context, match string) ([]string, error) {
	var found []string
	iter := c.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		found = append(found, iter.Val())
	}
	return found, iter.Err()
}

func (c *RedisCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.client.MGet(ctx, c.keys(keys)...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}
