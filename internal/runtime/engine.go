package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/interpolate"
	"github.com/aretw0/osdl/pkg/orchestrator"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/state"
)

// pageScopeID is the resolver id of page-level data sources.
const pageScopeID = "$page"

// maxPasses bounds the evaluation passes of one Render. Extra passes only run
// when a node mounted late in a pass initialized state that earlier nodes read.
const maxPasses = 4

// Config holds the collaborators of an Engine. Zero values get defaults.
type Config struct {
	Store        *state.Store
	Orchestrator *orchestrator.Orchestrator
	Evaluator    *expression.Evaluator
	Interpolator *interpolate.Interpolator
	Dispatcher   ports.ActionDispatcher
	Reporter     ports.ErrorReporter
	Hooks        domain.LifecycleHooks
	Logger       *slog.Logger
	Ambient      domain.Ambient
}

// mountInfo is what the engine remembers about a node in the render tree.
type mountInfo struct {
	node  *domain.Node
	frame Frame
}

// memoEntry caches the evaluation of one node until a dependency changes.
type memoEntry struct {
	visible   bool
	blocked   bool
	rendered  domain.RenderedNode
	instances []Instance
}

// Engine evaluates one page instance: it owns the mounted set, the memoized
// node evaluations and the dependency index used for invalidation.
type Engine struct {
	page       *domain.Page
	store      *state.Store
	resolver   *orchestrator.Resolver
	orch       *orchestrator.Orchestrator
	eval       *expression.Evaluator
	interp     *interpolate.Interpolator
	dispatcher ports.ActionDispatcher
	reporter   ports.ErrorReporter
	hooks      domain.LifecycleHooks
	logger     *slog.Logger

	// renderMu serializes evaluation passes and action param resolution.
	renderMu sync.Mutex
	memo     map[string]*memoEntry
	pageData map[string]any

	// mu guards the fields below. It is never held while calling the store,
	// the resolver or subscribers.
	mu        sync.Mutex
	ambient   domain.Ambient
	data      map[string]any
	live      map[string]*mountInfo
	deps      map[string][]string
	consumers map[string]map[string]struct{}
	dirty     map[string]struct{}
	last      *domain.Tree
	rendering bool
	queued    []domain.Patch

	subsMu  sync.Mutex
	subs    map[int]func(domain.Patch)
	nextSub int

	unsubscribe func()
}

// NewEngine creates an Engine for page.
func NewEngine(page *domain.Page, cfg Config) *Engine {
	e := &Engine{
		page:       page,
		store:      cfg.Store,
		orch:       cfg.Orchestrator,
		eval:       cfg.Evaluator,
		interp:     cfg.Interpolator,
		dispatcher: cfg.Dispatcher,
		reporter:   cfg.Reporter,
		hooks:      cfg.Hooks,
		logger:     cfg.Logger,
		memo:       make(map[string]*memoEntry),
		ambient:    cfg.Ambient,
		live:       make(map[string]*mountInfo),
		deps:       make(map[string][]string),
		consumers:  make(map[string]map[string]struct{}),
		dirty:      make(map[string]struct{}),
		subs:       make(map[int]func(domain.Patch)),
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.store == nil {
		e.store = state.New(state.WithLogger(e.logger))
	}
	if e.eval == nil {
		e.eval = expression.NewEvaluator()
	}
	if e.interp == nil {
		e.interp = interpolate.New(interpolate.WithEvaluator(e.eval), interpolate.WithLogger(e.logger))
	}
	if e.orch == nil {
		e.orch = orchestrator.New(orchestrator.WithLogger(e.logger), orchestrator.WithErrorReporter(e.reporter))
	}
	e.resolver = e.orch.NewResolver(
		orchestrator.WithSettle(e.onSettle),
		orchestrator.WithMountCheck(e.isLive),
	)
	e.unsubscribe = e.store.Subscribe(e.onStateChange)
	return e
}

// Page returns the schema this engine evaluates.
func (e *Engine) Page() *domain.Page { return e.page }

// Store returns the local state store.
func (e *Engine) Store() *state.Store { return e.store }

// Render evaluates the page and returns the materialized tree. Only nodes
// whose dependencies changed since the previous pass are re-evaluated.
// Render never waits for data: pending requirements show defaults or placeholders.
func (e *Engine) Render(ctx context.Context) (*domain.Tree, error) {
	e.renderMu.Lock()
	e.mu.Lock()
	e.rendering = true
	e.mu.Unlock()

	var tree *domain.Tree
	for i := 0; i < maxPasses; i++ {
		tree = e.pass(ctx)
		if !e.hasDirty() {
			break
		}
		e.logger.Debug("re-running evaluation pass", "page_id", e.page.ID, "pass", i+1)
	}

	e.mu.Lock()
	e.last = tree
	e.rendering = false
	queued := e.queued
	e.queued = nil
	e.mu.Unlock()
	e.renderMu.Unlock()

	for _, p := range queued {
		e.deliver(p)
	}
	return tree, nil
}

// LastTree returns the tree produced by the latest Render, or nil.
func (e *Engine) LastTree() *domain.Tree {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// GetState returns a copy of the node's local state.
func (e *Engine) GetState(nodeID string) map[string]any {
	return e.store.GetState(nodeID)
}

// UpdateState shallow-merges partial into the node's local state.
func (e *Engine) UpdateState(nodeID string, partial map[string]any) error {
	if !e.known(nodeID) {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeID)
	}
	e.store.UpdateState(nodeID, partial)
	return nil
}

// UpdateNodeState updates the state of target on behalf of another node.
func (e *Engine) UpdateNodeState(targetNodeID string, updates map[string]any) error {
	if !e.known(targetNodeID) {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, targetNodeID)
	}
	e.store.UpdateNodeState(targetNodeID, updates)
	return nil
}

// Ambient returns the current host-supplied facts.
func (e *Engine) Ambient() domain.Ambient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ambient
}

// SetAmbient replaces the host-supplied facts and invalidates the nodes that
// read the roots that changed.
func (e *Engine) SetAmbient(a domain.Ambient) {
	e.mu.Lock()
	var changed []string
	if !reflect.DeepEqual(e.ambient.Page, a.Page) {
		changed = append(changed, tagPage)
	}
	if !reflect.DeepEqual(e.ambient.Viewport, a.Viewport) {
		changed = append(changed, tagViewport)
	}
	if !reflect.DeepEqual(e.ambient.User, a.User) {
		changed = append(changed, tagUser)
	}
	e.ambient = a
	ids := e.markLocked(changed...)
	e.mu.Unlock()

	e.publish(domain.ReasonAmbient, ids)
}

// Evaluate runs expr in the context of a mounted node, or of the page root
// when nodeID is empty.
func (e *Engine) Evaluate(nodeID, expr string) (any, error) {
	c, err := e.contextFor(nodeID)
	if err != nil {
		return expression.Undefined, err
	}
	return e.eval.Evaluate(expr, c)
}

// Subscribe registers fn for invalidation patches and returns its cancel function.
// fn runs synchronously on the goroutine that caused the change.
func (e *Engine) Subscribe(fn func(domain.Patch)) func() {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()
	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

// WaitIdle blocks until every in-flight fetch settled.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.resolver.WaitIdle(ctx)
}

// Snapshot captures the session-relevant state of the engine.
func (e *Engine) Snapshot() *domain.Snapshot {
	snap := domain.NewSnapshot("", e.page.ID)
	snap.States = e.store.Snapshot()
	snap.Ambient = e.Ambient()
	snap.UpdatedAt = time.Now()
	return snap
}

// Mounted returns the ids of the nodes in the render tree, sorted.
func (e *Engine) Mounted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.live))
	for id := range e.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops tracking fetches and detaches from the state store.
func (e *Engine) Close() {
	e.resolver.Close()
	e.unsubscribe()
}

func (e *Engine) known(nodeID string) bool {
	if e.isLive(nodeID) {
		return true
	}
	return e.page.FindNode(nodeID) != nil
}

func (e *Engine) isLive(nodeID string) bool {
	if nodeID == pageScopeID {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.live[nodeID]
	return ok
}

func (e *Engine) contextFor(nodeID string) (*Context, error) {
	e.mu.Lock()
	data := e.data
	ambient := e.ambient
	var info *mountInfo
	if nodeID != "" {
		info = e.live[nodeID]
	}
	e.mu.Unlock()

	if nodeID == "" {
		return BuildContext(Frame{}, data, nil, e.store, ambient, nil), nil
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotMounted, nodeID)
	}
	nodeData := e.resolver.Peek(nodeID, info.node.DataRequirements)
	return BuildContext(info.frame, data, nodeData, e.store, ambient, nil), nil
}

// onStateChange invalidates consumers of the changed node's state.
func (e *Engine) onStateChange(c state.Change) {
	e.mu.Lock()
	ids := e.markLocked(tagStates(c.NodeID))
	e.mu.Unlock()

	if !c.Removed && e.hooks.OnStateUpdate != nil {
		e.hooks.OnStateUpdate(context.Background(), &domain.StateEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStateUpdate},
			NodeID:    c.NodeID,
			Keys:      c.Keys,
		})
	}
	e.publish(domain.ReasonState, ids)
}

// onSettle invalidates the node whose requirement settled.
func (e *Engine) onSettle(nodeID string, keys []string) {
	e.mu.Lock()
	var ids []string
	if nodeID == pageScopeID {
		e.dirty[pageScopeID] = struct{}{}
		ids = e.markLocked(tagData)
	} else {
		e.dirty[nodeID] = struct{}{}
		ids = e.markLocked(tagNodeData(nodeID))
		if !slices.Contains(ids, nodeID) {
			ids = append(ids, nodeID)
			sort.Strings(ids)
		}
	}
	e.mu.Unlock()

	e.logger.Debug("data settled", "node_id", nodeID, "keys", keys)
	e.publish(domain.ReasonData, ids)
}

func (e *Engine) publish(reason domain.PatchReason, ids []string) {
	if len(ids) == 0 {
		return
	}
	p := domain.Patch{Reason: reason, NodeIDs: ids, At: time.Now()}
	e.mu.Lock()
	if e.rendering {
		e.queued = append(e.queued, p)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.deliver(p)
}

func (e *Engine) deliver(p domain.Patch) {
	e.subsMu.Lock()
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(domain.Patch), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	e.subsMu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}
