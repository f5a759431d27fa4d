package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
)

// Cache implements ports.CacheStore in process memory.
// Expired entries are dropped lazily on read.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]ports.CacheEntry
	now     func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]ports.CacheEntry),
		now:     time.Now,
	}
}

// Get returns a copy of a fresh entry.
func (c *Cache) Get(ctx context.Context, key string) (ports.CacheEntry, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return ports.CacheEntry{}, false, nil
	}
	if !entry.Fresh(c.now()) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.FetchedAt.Equal(entry.FetchedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return ports.CacheEntry{}, false, nil
	}
	entry.Value = domain.CloneValue(entry.Value)
	return entry, true, nil
}

// Set stores entries with a positive TTL. Zero-TTL entries are not cached.
func (c *Cache) Set(ctx context.Context, key string, entry ports.CacheEntry) error {
	if entry.TTL <= 0 {
		return nil
	}
	entry.Value = domain.CloneValue(entry.Value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

// Delete removes the entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
