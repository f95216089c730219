package cache

import (
	"container/list"
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

const memoryDefaultTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the number of entries; the least recently used
// entry is evicted first.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(mc *MemoryCache) {
		if n > 0 {
			mc.maxSize = n
		}
	}
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(mc *MemoryCache) {
		if interval > 0 {
			mc.cleanupEvery = interval
		}
	}
}

// MemoryCache is a process-local Service. Values are encoded on write so
// reads behave like RedisCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	maxSize int
	now     func() time.Time

	cleanupEvery time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		entries:      make(map[string]*list.Element),
		lru:          list.New(),
		maxSize:      1000,
		now:          time.Now,
		cleanupEvery: 5 * time.Minute,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mc)
	}
	go mc.janitor()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = memoryDefaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	expireAt := mc.now().Add(expiration)
	if el, ok := mc.entries[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expireAt = data, expireAt
		mc.lru.MoveToFront(el)
		return nil
	}
	for len(mc.entries) >= mc.maxSize {
		mc.removeElement(mc.lru.Back())
	}
	mc.entries[key] = mc.lru.PushFront(&memoryEntry{key: key, value: data, expireAt: expireAt})
	return nil
}

// lookup returns a live entry and marks it used. Callers hold mu.
func (mc *MemoryCache) lookup(key string) (*memoryEntry, bool) {
	el, ok := mc.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if !mc.now().Before(e.expireAt) {
		mc.removeElement(el)
		return nil, false
	}
	mc.lru.MoveToFront(el)
	return e, true
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	mc.lru.Remove(el)
	delete(mc.entries, el.Value.(*memoryEntry).key)
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	e, ok := mc.lookup(key)
	var data []byte
	if ok {
		data = e.value
	}
	mc.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		mc.removeElement(mc.entries[key])
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, el := range mc.entries {
		if ok, _ := path.Match(pattern, key); ok {
			mc.removeElement(el)
		}
	}
	return nil
}

// Keys lists live keys matching pattern, sorted.
func (mc *MemoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	out := make([]string, 0)
	for key, el := range mc.entries {
		if !now.Before(el.Value.(*memoryEntry).expireAt) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (mc *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if e, ok := mc.lookup(key); ok {
			out[key] = string(e.value)
		}
	}
	return out, nil
}

// Len returns the number of stored entries, expired ones included until
// the janitor runs.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.entries)
}

func (mc *MemoryCache) purgeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	for _, el := range mc.entries {
		if !now.Before(el.Value.(*memoryEntry).expireAt) {
			mc.removeElement(el)
		}
	}
}

func (mc *MemoryCache) janitor() {
	t := time.NewTicker(mc.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-mc.done:
			return
		case <-t.C:
			mc.purgeExpired()
		}
	}
}

// Close stops the janitor.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.done) })
	return nil
}
