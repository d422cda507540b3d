// Package cache provides a bounded, expiring memoization table shared by the
// session provider and the review sources.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config bounds a cache. A zero Size means unbounded and a zero TTL means
// entries never expire.
type Config struct {
	Size int
	TTL  time.Duration
}

// Loader produces the value for a key on a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

// Cache memoizes values by string key. Concurrent misses for the same key
// share a single Loader call. Errors are never cached.
type Cache[V any] struct {
	name  string
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

// New creates a named cache. The name only appears in logs.
func New[V any](name string, cfg Config) *Cache[V] {
	return &Cache[V]{
		name: name,
		lru:  expirable.NewLRU[string, V](cfg.Size, nil, cfg.TTL),
	}
}

// Get returns a cached value without loading.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Add stores a value, replacing any existing entry.
func (c *Cache[V]) Add(key string, v V) {
	c.lru.Add(key, v)
}

// Len reports the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// GetOrLoad returns the cached value for key, calling load on a miss.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		zap.L().Debug("cache hit", zap.String("cache", c.name), zap.String("key", key))
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Re-check: a previous flight may have filled the entry.
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, eris.Wrapf(ctx.Err(), "cache: %s: load %q", c.name, key)
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}
