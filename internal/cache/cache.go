// Package cache provides byte caches with expiry, backed by Redis or process
// memory.
package cache

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cinesync/backend/internal/metrics"
)

// Cache stores opaque values with a time to live
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes a cached JSON value into v. It reports false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		// treat undecodable entries as misses
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON stores v encoded as JSON
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is an in-process Cache used when Redis is not configured
type MemoryCache struct {
	mu      sync.Mutex
	name    string
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache(name string) *MemoryCache {
	return &MemoryCache{name: name, entries: make(map[string]memEntry), now: time.Now}
}

// SetClock overrides the expiry clock
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		metrics.RecordCacheMiss(c.name)
		return nil, false, nil
	}
	metrics.RecordCacheHit(c.name)
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
