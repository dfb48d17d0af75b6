package flowgate

import (
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultCacheTTL is applied to cached entries when no TTL is given.
const DefaultCacheTTL = 5 * time.Minute

type (
	// Cache stores last-known-good results for the recovery chain. The
	// built-in implementation is [TTLCache]; external cache libraries can
	// be plugged in through this interface.
	Cache interface {
		// Get retrieves a live entry. Expired entries count as misses.
		Get(key string) (any, bool)
		// Set stores a value with the given TTL.
		Set(key string, value any, ttl time.Duration)
		// Delete removes an entry.
		Delete(key string)
		// Reset drops all entries.
		Reset()
	}

	cacheEntry struct {
		data      any
		createdAt time.Time
		ttl       time.Duration
	}

	// TTLCache is a mutex-guarded map with per-entry TTLs. Expired entries
	// are evicted lazily on read; there is no background sweeper.
	TTLCache struct {
		clock   Clock
		entries map[string]cacheEntry
		mu      sync.Mutex
	}
)

// NewTTLCache creates an empty cache using clock for expiry decisions.
func NewTTLCache(clock Clock) *TTLCache {
	return &TTLCache{
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the value for key if it has not outlived its TTL. An expired
// entry is deleted on the spot and reported as a miss.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.clock.Since(e.createdAt) > e.ttl {
		delete(c.entries, key)
		return nil, false
	}

	return e.data, true
}

// Set stores value under key. A non-positive ttl falls back to
// DefaultCacheTTL.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		data:      value,
		createdAt: c.clock.Now(),
		ttl:       ttl,
	}
}

// Delete removes the entry for key, if any.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Reset drops all entries.
func (c *TTLCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, including any not yet lazily evicted.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

var _ Cache = (*TTLCache)(nil)

// cacheKey derives the cache key for an operation invocation: the operation
// name plus the JSON serialization of its arguments, so calls with
// different arguments never collide.
func cacheKey(operation string, args any) (string, error) {
	if args == nil {
		return operation, nil
	}

	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("flowgate: serialize cache key args: %w", err)
	}

	return operation + ":" + string(data), nil
}
