package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestCacheGetSet(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache("test")
	cache.clock = clock.Now

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("k", "v", time.Hour)
	value, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache("test")
	cache.clock = clock.Now

	cache.Set("k", "v", time.Hour)

	clock.Advance(59 * time.Minute)
	_, ok := cache.Get("k")
	assert.True(t, ok, "entry should survive within TTL")

	clock.Advance(2 * time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok, "entry should expire past TTL")

	// Expired entry is removed on read.
	assert.Equal(t, 0, cache.Len())
}

func TestCacheSetOverwritesTTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache("test")
	cache.clock = clock.Now

	cache.Set("k", "old", time.Minute)
	clock.Advance(30 * time.Second)
	cache.Set("k", "new", time.Hour)
	clock.Advance(45 * time.Minute)

	value, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "new", value)
}

func TestCacheNonPositiveTTLIgnored(t *testing.T) {
	cache := NewCache("test")
	cache.Set("k", "v", 0)
	cache.Set("k2", "v", -time.Minute)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheDelete(t *testing.T) {
	cache := NewCache("test")
	cache.Set("k", "v", time.Hour)
	cache.Delete("k")
	_, ok := cache.Get("k")
	assert.False(t, ok)
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache("test")
	cache.clock = clock.Now

	cache.Set("fresh", 1, 2*time.Hour)
	cache.Set("stale-a", 2, time.Minute)
	cache.Set("stale-b", 3, time.Minute)

	clock.Advance(time.Hour)

	removed := cache.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("fresh")
	assert.True(t, ok)
}

func TestCacheName(t *testing.T) {
	assert.Equal(t, "place", NewCache("place").Name())
}
