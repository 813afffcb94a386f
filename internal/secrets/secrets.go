// Package secrets resolves channel credentials through an explicit cache
// object rather than process-global state, so ticks do not refetch
// credentials and rotation takes effect within one TTL.
package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider fetches the current value of a named secret.
type Provider interface {
	Fetch(ctx context.Context, name string) (string, error)
}

type entry struct {
	value     string
	fetchedAt time.Time
}

// Cache is a TTL cache over a Provider. Safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	provider Provider
	ttl      time.Duration
	entries  map[string]entry
	now      func() time.Time
}

// NewCache creates a cache with the given TTL. A TTL of zero caches
// forever (until Invalidate).
func NewCache(provider Provider, ttl time.Duration) *Cache {
	return &Cache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]entry),
		now:      time.Now,
	}
}

// Get returns the secret value, fetching through the provider when the
// cached copy is missing or stale.
func (c *Cache) Get(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()

	if ok && (c.ttl == 0 || c.now().Sub(e.fetchedAt) < c.ttl) {
		return e.value, nil
	}

	value, err := c.provider.Fetch(ctx, name)
	if err != nil {
		// A stale copy beats no copy while the provider is down.
		if ok {
			return e.value, nil
		}
		return "", fmt.Errorf("fetch secret %q: %w", name, err)
	}

	c.mu.Lock()
	c.entries[name] = entry{value: value, fetchedAt: c.now()}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops the cached copy of a secret so the next Get refetches.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
