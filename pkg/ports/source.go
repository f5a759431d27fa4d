package ports

import (
	"context"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
)

// DataSource fetches the value described by a source descriptor.
// Implementations are agnostic to how the descriptor was produced; queries
// arrive already interpolated.
type DataSource interface {
	Fetch(ctx context.Context, src domain.SourceDescriptor) (any, error)
}

// DataSourceFunc adapts a function to DataSource.
type DataSourceFunc func(ctx context.Context, src domain.SourceDescriptor) (any, error)

// Fetch calls f.
func (f DataSourceFunc) Fetch(ctx context.Context, src domain.SourceDescriptor) (any, error) {
	return f(ctx, src)
}

// CacheEntry is a fetched value together with its freshness window.
type CacheEntry struct {
	Value     any           `json:"value"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Fresh reports whether the entry is still valid at now. A zero TTL is never fresh.
func (e CacheEntry) Fresh(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.FetchedAt) < e.TTL
}

// CacheStore persists fetched values keyed by cache key.
type CacheStore interface {
	// Get returns the entry for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (entry CacheEntry, ok bool, err error)

	// Set stores the entry. Entries with a zero TTL may be ignored.
	Set(ctx context.Context, key string, entry CacheEntry) error

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error
}
