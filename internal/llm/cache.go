package llm

import (
	"sync"
	"time"

	"ai-grid-trader/internal/types"
)

// Clock returns the current time. Tests swap it for a fake.
type Clock func() time.Time

type cacheEntry struct {
	advice types.Advice
	at     time.Time
}

// Cache keeps the last advice per (symbol, strategy) for a short TTL so the
// provider's rate limit is respected across cycles.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries map[string]cacheEntry
}

type CacheOption func(*Cache)

func WithClock(now Clock) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache. A non-positive ttl disables caching.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(symbol, strategy string) string {
	return symbol + "|" + strategy
}

func (c *Cache) Get(symbol, strategy string) (types.Advice, bool) {
	if c == nil || c.ttl <= 0 {
		return types.Advice{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(symbol, strategy)]
	if !ok {
		return types.Advice{}, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		delete(c.entries, cacheKey(symbol, strategy))
		return types.Advice{}, false
	}
	return e.advice, true
}

func (c *Cache) Set(symbol, strategy string, adv types.Advice) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
		}
	}
	adv.Cached = false
	c.entries[cacheKey(symbol, strategy)] = cacheEntry{advice: adv, at: now}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) TTL() time.Duration { return c.ttl }
