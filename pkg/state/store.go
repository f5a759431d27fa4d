// Package state holds the local state of stateful nodes, keyed by node id.
//
// The Store is a page-wide registry: any expression can read any node's
// state through states[id], so entries are looked up globally rather than
// through the node tree.
package state

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
)

// Change describes one applied mutation.
type Change struct {
	NodeID   string
	Previous map[string]any
	Current  map[string]any
	// Keys lists the top-level keys written by the update.
	Keys    []string
	Removed bool
}

// Listener is notified after each change, in the order changes were applied.
// Listeners run synchronously and must not mutate the Store.
type Listener func(Change)

// Store is safe for concurrent use. Updates are applied synchronously and
// listeners observe them in issue order.
type Store struct {
	mu      sync.RWMutex
	entries map[string]map[string]any

	// notifyMu serializes listener delivery so ordering matches apply order.
	notifyMu  sync.Mutex
	listeners map[int]Listener
	nextID    int

	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]map[string]any),
		listeners: make(map[int]Listener),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the entry for nodeID from its declared initial state.
// It is a no-op when the entry already exists, so re-renders never reset state.
// Reports whether an entry was created.
func (s *Store) Init(nodeID string, initial map[string]any) bool {
	s.mu.Lock()
	if _, ok := s.entries[nodeID]; ok {
		s.mu.Unlock()
		return false
	}
	entry := cloneEntry(initial)
	if entry == nil {
		entry = map[string]any{}
	}
	s.entries[nodeID] = entry
	s.mu.Unlock()

	s.logger.Debug("state initialized", "node_id", nodeID)
	return true
}

// Has reports whether nodeID owns a state entry.
func (s *Store) Has(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[nodeID]
	return ok
}

// GetState returns a copy of the node's state, or nil when it has none.
func (s *Store) GetState(nodeID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntry(s.entries[nodeID])
}

// Index exposes the store to expressions as states[id].
func (s *Store) Index(nodeID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[nodeID]
	if !ok {
		return nil, false
	}
	return cloneEntry(entry), true
}

// UpdateState shallow-merges partial into the node's state.
// Updating a node without an entry creates one.
func (s *Store) UpdateState(nodeID string, partial map[string]any) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.entries[nodeID]
	next := domain.MergeShallow(prev, cloneEntry(partial))
	s.entries[nodeID] = next
	s.mu.Unlock()

	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.logger.Debug("state updated", "node_id", nodeID, "keys", keys)
	s.notify(Change{
		NodeID:   nodeID,
		Previous: cloneEntry(prev),
		Current:  cloneEntry(next),
		Keys:     keys,
	})
}

// UpdateNodeState updates a target node's state on behalf of another node.
func (s *Store) UpdateNodeState(targetNodeID string, updates map[string]any) {
	s.UpdateState(targetNodeID, updates)
}

// Remove destroys the node's entry. Reports whether one existed.
func (s *Store) Remove(nodeID string) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev, ok := s.entries[nodeID]
	delete(s.entries, nodeID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.logger.Debug("state removed", "node_id", nodeID)
	s.notify(Change{NodeID: nodeID, Previous: prev, Removed: true})
	return true
}

// Seed replaces the store contents, typically from a persisted snapshot.
// Listeners are not notified.
func (s *Store) Seed(states map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]map[string]any, len(states))
	for id, entry := range states {
		s.entries[id] = cloneEntry(entry)
		if s.entries[id] == nil {
			s.entries[id] = map[string]any{}
		}
	}
}

// Snapshot returns a deep copy of every entry.
func (s *Store) Snapshot() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.entries))
	for id, entry := range s.entries {
		out[id] = cloneEntry(entry)
	}
	return out
}

// IDs returns the ids owning state, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribe registers a listener and returns its cancel function.
func (s *Store) Subscribe(fn Listener) func() {
	s.notifyMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.listeners, id)
		s.notifyMu.Unlock()
	}
}

// notify must be called with notifyMu held.
func (s *Store) notify(c Change) {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.listeners[id](c)
	}
}

func cloneEntry(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return domain.CloneValue(m).(map[string]any)
}
