// Package cache implements the optional key-granular query-result cache
// (spec §9 "Query cache"): point-read results are memoized and invalidated
// by the exact keys a commit writes, not by dropping an entire table's
// entries.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/graphkv/kvcore/kv"
)

type cacheKey struct {
	handle kv.Handle
	key    string
}

type cacheEntry struct {
	value   []byte
	found   bool
	expires time.Time // zero means "no TTL"
}

// Cache memoizes Store.Get results. A Cache with maxEntries <= 0 behaves as
// permanently disabled: Get always misses and Put is a no-op (spec §6
// "cache_max_entries <= 0 disables the query-result cache entirely").
type Cache struct {
	mu      sync.Mutex
	inner   *lru.Cache[cacheKey, cacheEntry]
	ttl     time.Duration
	enabled bool
}

// New constructs a Cache. ttl <= 0 means entries never expire on their own
// (they are still evicted under LRU pressure or explicit invalidation).
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		return &Cache{enabled: false}
	}
	inner, _ := lru.New[cacheKey, cacheEntry](maxEntries)
	return &Cache{inner: inner, ttl: ttl, enabled: true}
}

// Get returns a cached result for (h,key) if present and unexpired. The
// second return value is the cached "found" bit from the original read; the
// third reports whether the cache had a usable entry at all.
func (c *Cache) Get(h kv.Handle, key []byte) ([]byte, bool, bool) {
	if !c.enabled {
		return nil, false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ck := cacheKey{handle: h, key: string(key)}
	e, ok := c.inner.Get(ck)
	if !ok {
		return nil, false, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.inner.Remove(ck)
		return nil, false, false
	}
	return e.value, e.found, true
}

// Put records the result of a Get call (h,key) -> (value, found).
func (c *Cache) Put(h kv.Handle, key, value []byte, found bool) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cacheEntry{value: value, found: found}
	if c.ttl > 0 {
		e.expires = time.Now().Add(c.ttl)
	}
	c.inner.Add(cacheKey{handle: h, key: string(key)}, e)
}

// Invalidate drops the cached entry for a single (h,key) pair.
func (c *Cache) Invalidate(h kv.Handle, key []byte) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(cacheKey{handle: h, key: string(key)})
}

// InvalidateKeys drops every (h,key) pair in keys; intended to run once per
// commit, over exactly the transaction's write set (spec §9 "invalidated
// by write-set key on commit").
func (c *Cache) InvalidateKeys(h kv.Handle, keys [][]byte) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.inner.Remove(cacheKey{handle: h, key: string(key)})
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
