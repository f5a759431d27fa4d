package ports

import (
	"context"

	"github.com/aretw0/osdl/pkg/domain"
)

// PageLoader defines how the runtime retrieves page schemas.
// This allows the storage layer (Loam, directory, memory) to be decoupled.
type PageLoader interface {
	// GetPage returns the page with the given id, or domain.ErrPageNotFound.
	GetPage(ctx context.Context, id string) (*domain.Page, error)

	// ListPages returns the ids of every available page, sorted.
	ListPages(ctx context.Context) ([]string, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload in the preview server.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying pages change.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
