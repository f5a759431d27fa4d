package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/osdl/pkg/ports"
	json "github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"
)

// Cache implements ports.CacheStore using Redis, so replicas share fetched
// data. Keys expire in Redis when their TTL runs out.
type Cache struct {
	client *backend.Client
	prefix string
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCachePrefix namespaces cache keys on top of the orchestrator key prefix.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// NewCache creates a Redis-backed cache.
func NewCache(client *backend.Client, opts ...CacheOption) *Cache {
	c := &Cache{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key when it is still fresh.
func (c *Cache) Get(ctx context.Context, key string) (ports.CacheEntry, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return ports.CacheEntry{}, false, nil
		}
		return ports.CacheEntry{}, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var entry ports.CacheEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return ports.CacheEntry{}, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if !entry.Fresh(time.Now()) {
		return ports.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set stores the entry for the rest of its freshness window. Stale and
// zero-TTL entries are not written.
func (c *Cache) Set(ctx context.Context, key string, entry ports.CacheEntry) error {
	remaining := entry.TTL - time.Since(entry.FetchedAt)
	if entry.TTL <= 0 || remaining <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, remaining).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}
