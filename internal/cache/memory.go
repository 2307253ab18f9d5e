// Package cache provides the in-memory result cache used by the lite and HTTP servers.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a size-bounded LRU cache whose entries expire after a TTL.
// It is safe for concurrent use.
type MemoryCache[V any] struct {
	lru    *expirable.LRU[string, V]
	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Items  int   `json:"items"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewMemoryCache creates a cache holding at most maxItems entries for ttl each.
func NewMemoryCache[V any](maxItems int, ttl time.Duration) (*MemoryCache[V], error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxItems)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %s", ttl)
	}

	return &MemoryCache[V]{
		lru: expirable.NewLRU[string, V](maxItems, nil, ttl),
	}, nil
}

// Get returns the cached value for key, if present and not expired.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *MemoryCache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Stats returns the current item count and hit/miss counters.
func (c *MemoryCache[V]) Stats() Stats {
	return Stats{
		Items:  c.lru.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
