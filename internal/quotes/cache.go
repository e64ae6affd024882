package quotes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

// CachedProvider wraps a Provider with a fixed-TTL memo per symbol.
// Only successful fetches are cached; failures always pass through so a
// transiently unavailable symbol recovers as soon as the upstream does.
type CachedProvider struct {
	inner Provider
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	quote   models.Quote
	expires time.Time
}

// NewCachedProvider wraps a provider with a TTL quote cache
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CachedProvider{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Name returns the name of the underlying provider
func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

// Fetch returns a cached quote when fresh, otherwise fetches and memoizes
func (c *CachedProvider) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Now().Before(entry.expires) {
		quote := entry.quote
		c.mu.Unlock()
		return &quote, nil
	}
	c.mu.Unlock()

	quote, err := c.inner.Fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{quote: *quote, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return quote, nil
}

// Invalidate drops the cached quote for a symbol, if any
func (c *CachedProvider) Invalidate(symbol string) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
