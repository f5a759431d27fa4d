package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a session.
const DefaultLockTTL = 30 * time.Second

// Factory builds an engine for a page, restoring what snap recorded.
type Factory func(ctx context.Context, pageID string, snap *domain.Snapshot) (*osdl.Engine, error)

// LoaderFactory returns a Factory that loads pages from loader and passes
// opts to every engine. Snapshot states and ambient facts are restored.
func LoaderFactory(loader ports.PageLoader, opts ...osdl.Option) Factory {
	return func(ctx context.Context, pageID string, snap *domain.Snapshot) (*osdl.Engine, error) {
		all := append([]osdl.Option{}, opts...)
		if snap != nil {
			all = append(all, osdl.WithStates(snap.States), osdl.WithAmbient(snap.Ambient))
		}
		return osdl.Load(ctx, loader, pageID, all...)
	}
}

// ErrPageMismatch is returned when a session is reopened for another page.
var ErrPageMismatch = errors.New("session belongs to another page")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// live is an open session.
type live struct {
	engine *osdl.Engine
	pageID string
	cancel func()
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store   ports.StateStore
	factory Factory

	mu    sync.Mutex
	locks map[string]*lockEntry
	live  map[string]*live
	subs  map[string]map[int]func(domain.Patch)
	next  int

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager persisting to store and building engines with factory.
func NewManager(store ports.StateStore, factory Factory, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		factory: factory,
		locks:   make(map[string]*lockEntry),
		live:    make(map[string]*live),
		subs:    make(map[string]map[int]func(domain.Patch)),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Open returns the live engine of a session, creating it when needed. An
// existing snapshot is restored; otherwise a fresh one is persisted for
// pageID. pageID may be empty when the session already exists.
func (m *Manager) Open(ctx context.Context, sessionID, pageID string) (*osdl.Engine, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}
	var engine *osdl.Engine
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if l := m.get(sessionID); l != nil {
			if pageID != "" && pageID != l.pageID {
				return fmt.Errorf("%w: %s is on %s", ErrPageMismatch, sessionID, l.pageID)
			}
			engine = l.engine
			return nil
		}

		snap, err := m.store.Load(ctx, sessionID)
		switch {
		case err == nil:
			if pageID != "" && pageID != snap.PageID {
				return fmt.Errorf("%w: %s is on %s", ErrPageMismatch, sessionID, snap.PageID)
			}
			pageID = snap.PageID
		case errors.Is(err, domain.ErrSessionNotFound):
			if pageID == "" {
				return err
			}
			snap = nil
		default:
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		engine, err = m.factory(ctx, pageID, snap)
		if err != nil {
			return err
		}
		if snap == nil {
			if err := m.store.Save(ctx, sessionID, engine.Snapshot(sessionID)); err != nil {
				engine.Close()
				return fmt.Errorf("failed to initialize session: %w", err)
			}
		}
		m.attach(sessionID, pageID, engine)
		m.logger.Debug("session opened", "session_id", sessionID, "page_id", pageID, "restored", snap != nil)
		return nil
	})
	return engine, err
}

// Update runs fn against the live engine of a session and persists the
// resulting snapshot. The session must be open.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(*osdl.Engine) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		l := m.get(sessionID)
		if l == nil {
			return fmt.Errorf("%w: %s is not open", domain.ErrSessionNotFound, sessionID)
		}
		if err := fn(l.engine); err != nil {
			return err
		}
		return m.store.Save(ctx, sessionID, l.engine.Snapshot(sessionID))
	})
}

// Engine returns the live engine of a session.
func (m *Manager) Engine(sessionID string) (*osdl.Engine, bool) {
	l := m.get(sessionID)
	if l == nil {
		return nil, false
	}
	return l.engine, true
}

// Load retrieves the persisted snapshot of a session.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, sessionID)
		return err
	})
	return snap, err
}

// Close persists and releases the live engine of a session. The snapshot stays.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		l := m.detach(sessionID)
		if l == nil {
			return nil
		}
		defer l.engine.Close()
		return m.store.Save(ctx, sessionID, l.engine.Snapshot(sessionID))
	})
}

// Delete releases the live engine and removes the snapshot.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if l := m.detach(sessionID); l != nil {
			l.engine.Close()
		}
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Live returns the ids of the sessions with a live engine, sorted.
func (m *Manager) Live() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// Reload rebuilds every live engine from a freshly loaded page, keeping its
// local state. Subscribers receive a reload patch per session.
func (m *Manager) Reload(ctx context.Context) error {
	var errs []error
	for _, id := range m.Live() {
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			l := m.get(id)
			if l == nil {
				return nil
			}
			snap := l.engine.Snapshot(id)
			engine, err := m.factory(ctx, l.pageID, snap)
			if err != nil {
				return fmt.Errorf("reload %s: %w", id, err)
			}
			if old := m.detach(id); old != nil {
				old.engine.Close()
			}
			m.attach(id, snap.PageID, engine)
			m.publish(id, domain.Patch{Reason: domain.ReasonReload, At: time.Now()})
			return m.store.Save(ctx, id, snap)
		})
		if err != nil {
			m.logger.Warn("session reload failed", "session_id", id, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown persists and releases every live engine.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, id := range m.Live() {
		if err := m.Close(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers fn for the patches of a session. The subscription
// survives reloads.
func (m *Manager) Subscribe(sessionID string, fn func(domain.Patch)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	key := m.next
	if m.subs[sessionID] == nil {
		m.subs[sessionID] = make(map[int]func(domain.Patch))
	}
	m.subs[sessionID][key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[sessionID], key)
		if len(m.subs[sessionID]) == 0 {
			delete(m.subs, sessionID)
		}
	}
}

func (m *Manager) publish(sessionID string, p domain.Patch) {
	m.mu.Lock()
	fns := make([]func(domain.Patch), 0, len(m.subs[sessionID]))
	for _, fn := range m.subs[sessionID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (m *Manager) get(sessionID string) *live {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[sessionID]
}

func (m *Manager) attach(sessionID, pageID string, engine *osdl.Engine) {
	cancel := engine.Subscribe(func(p domain.Patch) { m.publish(sessionID, p) })
	m.mu.Lock()
	m.live[sessionID] = &live{engine: engine, pageID: pageID, cancel: cancel}
	m.mu.Unlock()
}

func (m *Manager) detach(sessionID string) *live {
	m.mu.Lock()
	l := m.live[sessionID]
	delete(m.live, sessionID)
	m.mu.Unlock()
	if l != nil {
		l.cancel()
	}
	return l
}
