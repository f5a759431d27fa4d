package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/schema"
)

// contentKey is the page data key receiving a markdown document body.
const contentKey = "content"

// Loader adapts a Loam repository to the ports.PageLoader interface.
// Documents may be markdown with front matter, JSON or YAML.
type Loader struct {
	Repo *loam.TypedRepository[PageMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[PageMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pages repository: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open pages repository: %w", err)
	}
	return New(loam.NewTypedRepository[PageMetadata](repo)), nil
}

// GetPage retrieves and decodes a page. The id is normalized the same way
// ListPages does, so "home" finds home.md.
func (l *Loader) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		docID, found, lerr := l.lookup(ctx, id)
		if lerr != nil || !found {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrPageNotFound, id, err)
		}
		if doc, err = l.Repo.Get(ctx, docID); err != nil {
			return nil, fmt.Errorf("loam get failed for %s: %w", id, err)
		}
	}

	raw := buildPageData(doc.ID, doc.Data, doc.Content)
	page, err := schema.FromMap(raw)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", id, err)
	}
	return page, nil
}

// lookup finds the document whose normalized id is id.
func (l *Loader) lookup(ctx context.Context, id string) (string, bool, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return "", false, err
	}
	for _, doc := range docs {
		if pageID(doc.ID, doc.Data) == id {
			return doc.ID, true, nil
		}
	}
	return "", false, nil
}

func buildPageData(docID string, meta PageMetadata, content string) map[string]any {
	raw := map[string]any{
		"id":    pageID(docID, meta),
		"nodes": meta.Nodes,
	}
	if meta.Nodes == nil {
		raw["nodes"] = []any{}
	}
	if meta.Title != "" {
		raw["title"] = meta.Title
	}
	if len(meta.DataSource) > 0 {
		raw["dataSource"] = meta.DataSource
	}

	data := make(map[string]any, len(meta.Data)+1)
	for k, v := range meta.Data {
		data[k] = v
	}
	if body := strings.TrimSpace(content); body != "" {
		if _, taken := data[contentKey]; !taken {
			data[contentKey] = body
		}
	}
	if len(data) > 0 {
		raw["data"] = data
	}
	return raw
}

func pageID(docID string, meta PageMetadata) string {
	rawID := meta.ID
	if rawID == "" {
		rawID = docID
	}
	return trimExtension(rawID)
}

// ListPages lists all pages in the repository.
func (l *Loader) ListPages(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		id := pageID(doc.ID, doc.Data)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Loam debounces; coalesce anything still queued.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
