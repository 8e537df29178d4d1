package resilience

import (
	"sync"
	"time"
)

// cacheEntry holds a cached value with its expiry deadline.
type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Cache is a thread-safe in-memory TTL cache keyed by normalized
// query+parameter strings. Entries expire lazily on read; Sweep removes
// expired entries proactively.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	name    string
	clock   func() time.Time
}

// NewCache creates an empty named cache. The name labels cache metrics.
func NewCache(name string) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		name:    name,
		clock:   time.Now,
	}
}

// Get returns the cached value for key, or false when the key is absent or
// expired. Expired entries are deleted on read.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		recordCacheMiss(c.name)
		return nil, false
	}
	if c.clock().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have renewed it.
		if current, still := c.entries[key]; still && c.clock().After(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		recordCacheMiss(c.name)
		return nil, false
	}

	recordCacheHit(c.name)
	return entry.value, true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.clock().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Name returns the cache's metric label.
func (c *Cache) Name() string {
	return c.name
}
