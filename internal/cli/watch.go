package cli

import (
	"context"
	"errors"
)

// ErrWatchUnsupported is returned when the page loader cannot report changes.
var ErrWatchUnsupported = errors.New("page loader does not support watching")

// Watcher is implemented by loaders that report page source changes.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// WatchPages rebuilds live sessions whenever the loader reports a change, so
// connected clients receive a reload patch with their state kept. It blocks
// until ctx is done.
func (a *App) WatchPages(ctx context.Context) error {
	w, ok := a.Loader.(Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info("Watching pages for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			a.Logger.Info("Change detected, reloading sessions", "live", len(a.Sessions.Live()))
			if err := a.Sessions.Reload(ctx); err != nil {
				a.Logger.Error("Reload failed", "err", err)
			}
		}
	}
}
