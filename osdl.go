package osdl

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/internal/runtime"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/interpolate"
	"github.com/aretw0/osdl/pkg/orchestrator"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/state"
)

// maxSettleRounds bounds RenderSettled. Each round renders and waits for the
// fetches it started.
const maxSettleRounds = 8

// ErrNoDispatcher is returned by Dispatch when a handler runs a non-state
// action and no ActionDispatcher was configured.
var ErrNoDispatcher = runtime.ErrNoDispatcher

// Engine is the high-level entry point for the OSDL library.
// It evaluates one page instance and is what a visual renderer talks to.
type Engine struct {
	runtime *runtime.Engine
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger
}

type options struct {
	orch       *orchestrator.Orchestrator
	orchOpts   []orchestrator.Option
	funcs      []expression.Option
	dispatcher ports.ActionDispatcher
	reporter   ports.ErrorReporter
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	ambient    domain.Ambient
	states     map[string]map[string]any
}

// Option defines a functional option for configuring the Engine.
type Option func(*options)

// WithOrchestrator shares an orchestrator (and so its cache and in-flight
// fetches) between engines. Source and cache options are ignored when set.
func WithOrchestrator(o *orchestrator.Orchestrator) Option {
	return func(opts *options) {
		opts.orch = o
	}
}

// WithSource registers a data source for a source type.
func WithSource(sourceType string, ds ports.DataSource) Option {
	return func(opts *options) {
		opts.orchOpts = append(opts.orchOpts, orchestrator.WithSource(sourceType, ds))
	}
}

// WithCache sets the shared fetch cache.
func WithCache(c ports.CacheStore) Option {
	return func(opts *options) {
		opts.orchOpts = append(opts.orchOpts, orchestrator.WithCache(c))
	}
}

// WithBlockingTimeout sets how long blocking requirements may stay pending.
func WithBlockingTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.orchOpts = append(opts.orchOpts, orchestrator.WithBlockingTimeout(d))
	}
}

// WithRetryBudget sets the retries of blocking requirements.
func WithRetryBudget(n int) Option {
	return func(opts *options) {
		opts.orchOpts = append(opts.orchOpts, orchestrator.WithRetryBudget(n))
	}
}

// WithFunction registers an extra expression function.
func WithFunction(name string, fn expression.Func) Option {
	return func(opts *options) {
		opts.funcs = append(opts.funcs, expression.WithFunction(name, fn))
	}
}

// WithDispatcher receives the actions the engine does not execute itself
// (openModal, closeModal, submitData and custom types).
func WithDispatcher(d ports.ActionDispatcher) Option {
	return func(opts *options) {
		opts.dispatcher = d
	}
}

// WithErrorReporter sets the host error channel for fetch and configuration errors.
func WithErrorReporter(r ports.ErrorReporter) Option {
	return func(opts *options) {
		opts.reporter = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(opts *options) {
		opts.hooks = opts.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithAmbient sets the initial host-supplied page, viewport and user facts.
func WithAmbient(a domain.Ambient) Option {
	return func(opts *options) {
		opts.ambient = a
	}
}

// WithStates restores local state captured by a previous Snapshot.
// Restored entries win over the declared initial state of their nodes.
func WithStates(states map[string]map[string]any) Option {
	return func(opts *options) {
		opts.states = states
	}
}

// New creates an Engine for page.
func New(page *domain.Page, opts ...Option) (*Engine, error) {
	if page == nil {
		return nil, fmt.Errorf("%w: nil page", domain.ErrPageNotFound)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	logger := o.logger.With("page_id", page.ID)

	orch := o.orch
	if orch == nil {
		base := []orchestrator.Option{
			orchestrator.WithLogger(logger),
			orchestrator.WithHooks(o.hooks),
			orchestrator.WithErrorReporter(o.reporter),
		}
		orch = orchestrator.New(append(base, o.orchOpts...)...)
	}

	store := state.New(state.WithLogger(logger))
	if len(o.states) > 0 {
		store.Seed(o.states)
	}
	eval := expression.NewEvaluator(o.funcs...)

	rt := runtime.NewEngine(page, runtime.Config{
		Store:        store,
		Orchestrator: orch,
		Evaluator:    eval,
		Interpolator: interpolate.New(interpolate.WithEvaluator(eval), interpolate.WithLogger(logger)),
		Dispatcher:   o.dispatcher,
		Reporter:     o.reporter,
		Hooks:        o.hooks,
		Logger:       logger,
		Ambient:      o.ambient,
	})
	return &Engine{runtime: rt, orch: orch, logger: logger}, nil
}

// Load fetches a page from loader and creates an Engine for it.
func Load(ctx context.Context, loader ports.PageLoader, pageID string, opts ...Option) (*Engine, error) {
	page, err := loader.GetPage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %s: %w", pageID, err)
	}
	return New(page, opts...)
}

// Page returns the schema the engine evaluates.
func (e *Engine) Page() *domain.Page {
	return e.runtime.Page()
}

// Orchestrator returns the orchestrator used for data requirements.
func (e *Engine) Orchestrator() *orchestrator.Orchestrator {
	return e.orch
}

// Render evaluates the page without waiting for data. Pending requirements
// show their default value or the node's placeholder.
func (e *Engine) Render(ctx context.Context) (*domain.Tree, error) {
	return e.runtime.Render(ctx)
}

// RenderSettled renders, waits for the fetches started by that render and
// renders again, until a round triggers no further invalidation.
func (e *Engine) RenderSettled(ctx context.Context) (*domain.Tree, error) {
	var patches atomic.Int64
	cancel := e.runtime.Subscribe(func(domain.Patch) { patches.Add(1) })
	defer cancel()

	var tree *domain.Tree
	for i := 0; i < maxSettleRounds; i++ {
		before := patches.Load()
		var err error
		if tree, err = e.runtime.Render(ctx); err != nil {
			return nil, err
		}
		if err := e.runtime.WaitIdle(ctx); err != nil {
			return tree, err
		}
		if patches.Load() == before {
			return tree, nil
		}
	}
	e.logger.Warn("page did not settle", "rounds", maxSettleRounds)
	return tree, nil
}

// LastTree returns the tree of the latest Render, or nil.
func (e *Engine) LastTree() *domain.Tree {
	return e.runtime.LastTree()
}

// Dispatch runs the handlers a mounted node declares for event, with
// event.value bound to value.
func (e *Engine) Dispatch(ctx context.Context, nodeID, event string, value any) error {
	return e.runtime.Dispatch(ctx, nodeID, event, value)
}

// GetState returns a copy of a node's local state, or nil.
func (e *Engine) GetState(nodeID string) map[string]any {
	return e.runtime.GetState(nodeID)
}

// UpdateState shallow-merges partial into the node's local state.
func (e *Engine) UpdateState(nodeID string, partial map[string]any) error {
	return e.runtime.UpdateState(nodeID, partial)
}

// UpdateNodeState updates the local state of target.
func (e *Engine) UpdateNodeState(target string, updates map[string]any) error {
	return e.runtime.UpdateNodeState(target, updates)
}

// Ambient returns the current host-supplied facts.
func (e *Engine) Ambient() domain.Ambient {
	return e.runtime.Ambient()
}

// SetAmbient replaces the host-supplied facts.
func (e *Engine) SetAmbient(a domain.Ambient) {
	e.runtime.SetAmbient(a)
}

// Evaluate runs an expression in the context of a mounted node, or of the
// page root when nodeID is empty.
func (e *Engine) Evaluate(nodeID, expr string) (any, error) {
	return e.runtime.Evaluate(nodeID, expr)
}

// Subscribe registers fn for invalidation patches.
func (e *Engine) Subscribe(fn func(domain.Patch)) func() {
	return e.runtime.Subscribe(fn)
}

// WaitIdle blocks until every in-flight fetch settled.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.runtime.WaitIdle(ctx)
}

// Mounted returns the ids of the nodes currently in the render tree.
func (e *Engine) Mounted() []string {
	return e.runtime.Mounted()
}

// Snapshot captures local state and ambient facts for persistence.
func (e *Engine) Snapshot(sessionID string) *domain.Snapshot {
	snap := e.runtime.Snapshot()
	snap.SessionID = sessionID
	return snap
}

// Close releases the engine. Pending fetches complete but are discarded.
func (e *Engine) Close() {
	e.runtime.Close()
}

// Evaluate parses and evaluates a standalone expression against vars.
// Missing paths yield expression.Undefined.
func Evaluate(expr string, vars map[string]any) (any, error) {
	return expression.Evaluate(expr, expression.MapScope(vars))
}
