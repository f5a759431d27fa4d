package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/schema"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of file events (editors write in several steps).
const watchDebounce = 100 * time.Millisecond

// Loader implements ports.PageLoader over a directory of .json, .yaml and .yml
// page files. Page ids come from the documents, defaulting to the file name.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for skipped files and watch errors.
func WithLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// NewLoader creates a Loader for dir.
func NewLoader(dir string, opts ...LoaderOption) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid pages directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid pages directory: %s is not a directory", dir)
	}
	l := &Loader{dir: dir, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// GetPage decodes the page with the given id.
func (l *Loader) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	pages, err := l.scan()
	if err != nil {
		return nil, err
	}
	path, ok := pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPageNotFound, id)
	}
	return schema.DecodeFile(path)
}

// ListPages returns the ids of every decodable page, sorted.
func (l *Loader) ListPages(ctx context.Context) ([]string, error) {
	pages, err := l.scan()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pages))
	for id := range pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// scan maps page ids to files. Files that fail to decode are skipped.
func (l *Loader) scan() (map[string]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages directory: %w", err)
	}
	pages := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := schema.FormatFromPath(entry.Name()); !ok {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		page, err := schema.DecodeFile(path)
		if err != nil {
			l.logger.Warn("skipping page file", "path", path, "error", err)
			continue
		}
		if prev, dup := pages[page.ID]; dup {
			l.logger.Warn("duplicate page id", "page_id", page.ID, "path", path, "previous", prev)
			continue
		}
		pages[page.ID] = path
	}
	return pages, nil
}

// Watch signals when a page file is created, written, renamed or removed.
// The channel is closed when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer w.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if _, page := schema.FormatFromPath(ev.Name); !page {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("page watcher error", "error", err)
			}
		}
	}()
	return out, nil
}
