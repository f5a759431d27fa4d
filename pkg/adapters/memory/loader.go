package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/osdl/pkg/domain"
)

// Loader implements ports.PageLoader using an in-memory map.
type Loader struct {
	mu    sync.RWMutex
	pages map[string]*domain.Page
}

// NewLoader creates a Loader serving the given pages.
func NewLoader(pages ...*domain.Page) (*Loader, error) {
	l := &Loader{pages: make(map[string]*domain.Page)}
	for _, p := range pages {
		if err := l.Put(p); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Put adds or replaces a page.
func (l *Loader) Put(p *domain.Page) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("page missing ID")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[p.ID] = p.Clone()
	return nil
}

// GetPage returns a copy of the page.
func (l *Loader) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPageNotFound, id)
	}
	return p.Clone(), nil
}

// ListPages returns all page IDs, sorted.
func (l *Loader) ListPages(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.pages))
	for k := range l.pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
