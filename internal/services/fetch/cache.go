package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/stockfetch/internal/models"
)

// Cache is a bounded LRU memo keyed by string with optional expiry.
// A capacity of 0 keeps every entry; a ttl of 0 never expires entries.
// Concurrent loads of the same key share one call; failed loads are not stored.
//
// Expiry is judged by the injected clock, so the LRU is created with its own
// ttl disabled and expired entries linger until read or swept.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	lru      *expirable.LRU[string, *entry[V]]
	group    singleflight.Group
	stats    models.CacheStats
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// NewCache creates a cache. now defaults to time.Now.
func NewCache[V any](capacity int, ttl time.Duration, now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		lru:      expirable.NewLRU[string, *entry[V]](capacity, nil, 0),
	}
}

// GetOrLoad returns the cached value for key, or calls load once and stores
// its result. The boolean reports a cache hit.
//
// The shared load is detached from the caller's cancellation; a caller whose
// ctx ends stops waiting but the load completes for the others.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, bool, error) {
	c.mu.Lock()
	if v, ok := c.lookup(key); ok {
		c.stats.Hits++
		c.mu.Unlock()
		return v, true, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.mu.Lock()
		// A flight that finished between the miss and DoChan already stored it
		if v, ok := c.lookup(key); ok {
			c.mu.Unlock()
			return v, nil
		}
		c.stats.Loads++
		c.mu.Unlock()

		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}

		c.mu.Lock()
		c.store(key, v)
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, false, res.Err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// Get returns a live entry without loading.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return 0
	}
	removed := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && c.expired(e) {
			c.lru.Remove(key)
			removed++
		}
	}
	c.stats.Expired += uint64(removed)
	return removed
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	s.Capacity = c.capacity
	return s
}

// lookup returns a live value, dropping the entry when it has expired.
// Callers hold c.mu.
func (c *Cache[V]) lookup(key string) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		c.stats.Expired++
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) expired(e *entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl
}

// store adds or refreshes an entry. Callers hold c.mu.
func (c *Cache[V]) store(key string, value V) {
	if c.lru.Add(key, &entry[V]{value: value, storedAt: c.now()}) {
		c.stats.Evictions++
	}
}
