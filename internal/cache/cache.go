// Package cache is a process-wide, time-boxed memoization layer in front
// of the store. An entry past its TTL is a miss for normal reads, but
// stays physically present so it can still be served as a stale fallback
// when the store itself is unreachable.
package cache

import (
	"fmt"
	"sync"
	"time"
)

const (
	// ProfileTTL bounds freshness of cached user profiles.
	ProfileTTL = 30 * time.Second
	// ReferralTTL bounds freshness of cached referral counts.
	ReferralTTL = 30 * time.Second
	// EligibilityTTL bounds freshness of cached check-in eligibility, so
	// repeated UI refreshes do not each hit the store.
	EligibilityTTL = 60 * time.Second
)

type entry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value only while it is fresh. Expired entries
// are a miss even though they remain stored.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= e.ttl {
		return nil, false
	}
	return e.value, true
}

// GetStale returns the cached value regardless of age. Only for recovery
// after the store reported a timeout or backend failure; never a
// substitute for Get on the normal read path.
func (c *Cache) GetStale(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:    value,
		storedAt: c.now(),
		ttl:      ttl,
	}
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Key builds the canonical "<kind>:<identity>" cache key.
func Key(kind, identity string) string {
	return fmt.Sprintf("%s:%s", kind, identity)
}
