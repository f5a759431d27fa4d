package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
)

type status int

const (
	statusPending status = iota
	statusResolved
	statusFailed
)

// configKey marks records that can never resolve.
const configKey = "!config"

// record is the resolution of one (node, key) pair.
type record struct {
	cacheKey string
	status   status
	value    any
	// hasValue is set once a real value arrived; later resolutions of the same
	// key keep showing it instead of reverting to the placeholder.
	hasValue bool
	blocking bool
}

// Result is the best value known for each requirement of a node.
type Result struct {
	Values map[string]any
	// Pending lists keys whose fetch has not settled, sorted.
	Pending []string
	// Blocked is true while any blocking key has never produced a value.
	Blocked bool
}

// SettleFunc is called after a fetch for nodeID settled and its record was updated.
type SettleFunc func(nodeID string, keys []string)

// Resolver tracks the requirement resolutions of one page instance.
type Resolver struct {
	o        *Orchestrator
	onSettle SettleFunc
	mounted  func(nodeID string) bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	records  map[string]map[string]*record
	inflight int
	idle     chan struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSettle registers the callback used to schedule re-evaluation.
func WithSettle(fn SettleFunc) ResolverOption {
	return func(r *Resolver) {
		r.onSettle = fn
	}
}

// WithMountCheck registers the membership test applied before a settle is applied.
func WithMountCheck(fn func(nodeID string) bool) ResolverOption {
	return func(r *Resolver) {
		r.mounted = fn
	}
}

// NewResolver creates a Resolver bound to o. Fetches it starts live until Close.
func (o *Orchestrator) NewResolver(opts ...ResolverOption) *Resolver {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	r := &Resolver{
		o:       o,
		ctx:     ctx,
		cancel:  cancel,
		records: make(map[string]map[string]*record),
		idle:    idle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the values currently known for reqs without waiting.
// Missing values are fetched in the background; ctx only bounds cache reads.
func (r *Resolver) Resolve(ctx context.Context, nodeID string, reqs []domain.DataRequirement, scope expression.Scope) Result {
	res := Result{Values: make(map[string]any, len(reqs))}

	for _, req := range reqs {
		src, cacheKey, err := r.o.Describe(nodeID, req, scope)
		if err != nil {
			r.configFailure(ctx, nodeID, req, err)
			if req.Key != "" {
				res.Values[req.Key] = domain.CloneValue(req.DefaultValue)
			}
			continue
		}

		r.mu.Lock()
		rec := r.record(nodeID, req.Key)
		if rec != nil && rec.cacheKey == cacheKey {
			res.Values[req.Key] = domain.CloneValue(rec.value)
			if rec.status == statusPending {
				res.Pending = append(res.Pending, req.Key)
				if rec.blocking && !rec.hasValue {
					res.Blocked = true
				}
			}
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()

		if v, ok := r.o.Lookup(ctx, cacheKey); ok {
			r.mu.Lock()
			r.setRecord(nodeID, req.Key, &record{cacheKey: cacheKey, status: statusResolved, value: v, hasValue: true, blocking: req.Blocking})
			r.mu.Unlock()
			r.o.settled(ctx, nodeID, req.Key, src.Type, cacheKey, time.Now(), true, false, nil)
			res.Values[req.Key] = domain.CloneValue(v)
			continue
		}

		r.mu.Lock()
		next := &record{cacheKey: cacheKey, status: statusPending, value: domain.CloneValue(req.DefaultValue), blocking: req.Blocking}
		if prev := r.record(nodeID, req.Key); prev != nil && prev.hasValue {
			next.value = prev.value
			next.hasValue = true
		}
		r.setRecord(nodeID, req.Key, next)
		r.begin()
		r.mu.Unlock()

		res.Values[req.Key] = domain.CloneValue(next.value)
		res.Pending = append(res.Pending, req.Key)
		if req.Blocking && !next.hasValue {
			res.Blocked = true
		}

		go r.run(nodeID, req, src, cacheKey)
	}

	sort.Strings(res.Pending)
	return res
}

func (r *Resolver) run(nodeID string, req domain.DataRequirement, src domain.SourceDescriptor, cacheKey string) {
	v, err := r.o.fetch(r.ctx, nodeID, req, src, cacheKey)
	applied := r.settle(nodeID, req, cacheKey, v, err)
	if applied && r.onSettle != nil {
		r.onSettle(nodeID, []string{req.Key})
	}
	r.mu.Lock()
	r.end()
	r.mu.Unlock()
}

// settle applies a fetch outcome unless the node was unmounted, forgotten or
// moved on to a different resolved query meanwhile.
func (r *Resolver) settle(nodeID string, req domain.DataRequirement, cacheKey string, v any, err error) bool {
	if r.ctx.Err() != nil {
		return false
	}
	if r.mounted != nil && !r.mounted(nodeID) {
		r.o.logger.Debug("discarding settle for unmounted node", "node_id", nodeID, "key", req.Key)
		r.Forget(nodeID)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(nodeID, req.Key)
	if rec == nil || rec.cacheKey != cacheKey || rec.status != statusPending {
		r.o.logger.Debug("discarding stale settle", "node_id", nodeID, "key", req.Key)
		return false
	}
	if err != nil {
		rec.status = statusFailed
		return true
	}
	rec.status = statusResolved
	rec.value = v
	rec.hasValue = true
	return true
}

// configFailure records a requirement that can never resolve; its default
// value is used permanently and it never blocks the node.
func (r *Resolver) configFailure(ctx context.Context, nodeID string, req domain.DataRequirement, err error) {
	r.mu.Lock()
	rec := r.record(nodeID, req.Key)
	first := rec == nil || rec.cacheKey != configKey
	if first {
		r.setRecord(nodeID, req.Key, &record{cacheKey: configKey, status: statusFailed, value: domain.CloneValue(req.DefaultValue)})
	}
	r.mu.Unlock()

	if first {
		r.o.logger.Warn("invalid data requirement", "node_id", nodeID, "key", req.Key, "error", err)
		r.o.Report(ctx, err)
	}
}

// Peek returns the values known for reqs without interpolating or fetching:
// the last resolved value per key, else its default.
func (r *Resolver) Peek(nodeID string, reqs []domain.DataRequirement) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(reqs))
	for _, req := range reqs {
		if rec := r.record(nodeID, req.Key); rec != nil && rec.hasValue {
			out[req.Key] = domain.CloneValue(rec.value)
			continue
		}
		out[req.Key] = domain.CloneValue(req.DefaultValue)
	}
	return out
}

// Forget drops every record of nodeID. Fetches still in flight for it are
// discarded when they settle.
func (r *Resolver) Forget(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, nodeID)
}

// Tracked returns the ids of nodes with resolution records, sorted.
func (r *Resolver) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WaitIdle blocks until no fetch is in flight and every settle callback returned.
func (r *Resolver) WaitIdle(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.inflight == 0 {
			r.mu.Unlock()
			return nil
		}
		idle := r.idle
		r.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close abandons in-flight fetches. Their settles are discarded.
func (r *Resolver) Close() {
	r.cancel()
}

// record and setRecord must be called with mu held.
func (r *Resolver) record(nodeID, key string) *record {
	return r.records[nodeID][key]
}

func (r *Resolver) setRecord(nodeID, key string, rec *record) {
	byKey, ok := r.records[nodeID]
	if !ok {
		byKey = make(map[string]*record)
		r.records[nodeID] = byKey
	}
	byKey[key] = rec
}

// begin and end must be called with mu held.
func (r *Resolver) begin() {
	if r.inflight == 0 {
		r.idle = make(chan struct{})
	}
	r.inflight++
}

func (r *Resolver) end() {
	r.inflight--
	if r.inflight == 0 {
		close(r.idle)
	}
}
