package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/interpolate"
	"github.com/aretw0/osdl/pkg/ports"
)

const (
	DefaultRetryBudget     = 2
	DefaultRetryBackoff    = 200 * time.Millisecond
	DefaultBlockingTimeout = 10 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
)

// Orchestrator owns data sources, the cache and in-flight deduplication.
// It is safe for concurrent use by any number of Resolvers.
type Orchestrator struct {
	mu      sync.RWMutex
	sources map[string]ports.DataSource

	cache  ports.CacheStore
	group  singleflight.Group
	interp *interpolate.Interpolator

	reporter ports.ErrorReporter
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	retryBudget     int
	retryBackoff    time.Duration
	blockingTimeout time.Duration
	fetchTimeout    time.Duration
	keyPrefix       string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSource registers a data source for a source type ("rql", "mockData", ...).
func WithSource(sourceType string, ds ports.DataSource) Option {
	return func(o *Orchestrator) {
		o.sources[sourceType] = ds
	}
}

// WithCache sets the cache backend. Defaults to an in-memory cache.
func WithCache(c ports.CacheStore) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithErrorReporter sets the host error channel for fetch and config failures.
func WithErrorReporter(r ports.ErrorReporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

// WithHooks registers fetch lifecycle hooks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = o.hooks.Merge(h)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithInterpolator sets the interpolator used on source descriptors.
func WithInterpolator(i *interpolate.Interpolator) Option {
	return func(o *Orchestrator) {
		o.interp = i
	}
}

// WithRetryBudget sets how many times a failed blocking fetch is retried.
func WithRetryBudget(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retryBudget = n
		}
	}
}

// WithRetryBackoff sets the base delay between blocking retries (linear backoff).
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryBackoff = d
	}
}

// WithBlockingTimeout sets the ceiling after which a blocking requirement
// falls back to its default value.
func WithBlockingTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.blockingTimeout = d
		}
	}
}

// WithFetchTimeout bounds every single fetch, blocking or not.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithKeyPrefix namespaces cache keys, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(o *Orchestrator) {
		o.keyPrefix = prefix
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sources:         make(map[string]ports.DataSource),
		logger:          logging.NewNop(),
		retryBudget:     DefaultRetryBudget,
		retryBackoff:    DefaultRetryBackoff,
		blockingTimeout: DefaultBlockingTimeout,
		fetchTimeout:    DefaultFetchTimeout,
		keyPrefix:       domain.DefaultCacheKeyPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = memory.NewCache()
	}
	if o.interp == nil {
		o.interp = interpolate.New(interpolate.WithLogger(o.logger))
	}
	return o
}

// RegisterSource adds or replaces a data source after construction.
func (o *Orchestrator) RegisterSource(sourceType string, ds ports.DataSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[sourceType] = ds
}

// Sources returns the registered source types, sorted.
func (o *Orchestrator) Sources() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.sources))
	for t := range o.sources {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) source(sourceType string) (ports.DataSource, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ds, ok := o.sources[sourceType]
	return ds, ok
}

// Describe interpolates the requirement's source against scope and returns it
// with its cache key. Misconfigured requirements yield a *domain.ConfigError.
func (o *Orchestrator) Describe(nodeID string, req domain.DataRequirement, scope expression.Scope) (domain.SourceDescriptor, string, error) {
	src := req.Source
	if req.Key == "" {
		return src, "", &domain.ConfigError{NodeID: nodeID, Field: "dataRequirements.key", Reason: "requirement has no key"}
	}
	if src.Type == "" || (src.Query == "" && len(src.Queries) == 0) {
		return src, "", &domain.ConfigError{NodeID: nodeID, Field: "dataRequirements." + req.Key + ".source", Reason: "missing source type or query"}
	}
	if _, ok := o.source(src.Type); !ok {
		return src, "", &domain.ConfigError{
			NodeID: nodeID,
			Field:  "dataRequirements." + req.Key + ".source.type",
			Reason: fmt.Sprintf("no data source registered for %q", src.Type),
			Err:    domain.ErrUnknownSource,
		}
	}

	resolved := domain.SourceDescriptor{Type: src.Type}
	if src.Query != "" {
		resolved.Query = expression.ToString(o.interp.String(src.Query, scope))
	}
	if len(src.Queries) > 0 {
		resolved.Queries = make([]string, len(src.Queries))
		for i, q := range src.Queries {
			resolved.Queries[i] = expression.ToString(o.interp.String(q, scope))
		}
	}
	if src.Variables != nil {
		resolved.Variables, _ = o.interp.ResolveBindings(src.Variables, scope, nil).(map[string]any)
	}

	key, err := CacheKey(o.keyPrefix, resolved)
	if err != nil {
		return resolved, "", &domain.ConfigError{NodeID: nodeID, Field: "dataRequirements." + req.Key + ".source", Reason: "source is not serializable", Err: err}
	}
	return resolved, key, nil
}

// Lookup returns a fresh cached value for key, if any.
func (o *Orchestrator) Lookup(ctx context.Context, cacheKey string) (any, bool) {
	entry, ok, err := o.cache.Get(ctx, cacheKey)
	if err != nil {
		o.logger.Warn("cache read failed", "cache_key", cacheKey, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Invalidate drops a cached value.
func (o *Orchestrator) Invalidate(ctx context.Context, cacheKey string) error {
	return o.cache.Delete(ctx, cacheKey)
}

type flightResult struct {
	value  any
	cached bool
}

// attempt performs one deduplicated fetch. The shared call re-checks the cache
// first, so requesters arriving after a settle within the TTL do not refetch.
func (o *Orchestrator) attempt(ctx context.Context, cacheKey string, src domain.SourceDescriptor, ttl time.Duration) (flightResult, bool, error) {
	ds, ok := o.source(src.Type)
	if !ok {
		return flightResult{}, false, domain.ErrUnknownSource
	}

	ch := o.group.DoChan(cacheKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchTimeout)
		defer cancel()

		if v, ok := o.Lookup(fctx, cacheKey); ok {
			return flightResult{value: v, cached: true}, nil
		}
		v, err := ds.Fetch(fctx, src)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			if err := o.cache.Set(fctx, cacheKey, ports.CacheEntry{Value: v, FetchedAt: time.Now(), TTL: ttl}); err != nil {
				o.logger.Warn("cache write failed", "cache_key", cacheKey, "error", err)
			}
		}
		return flightResult{value: v}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return flightResult{}, res.Shared, res.Err
		}
		fr := res.Val.(flightResult)
		fr.value = domain.CloneValue(fr.value)
		return fr, res.Shared, nil
	case <-ctx.Done():
		return flightResult{}, false, ctx.Err()
	}
}

// fetch resolves one requirement with the retry and timeout policy of its kind.
// Blocking requirements are retried and bounded by the blocking timeout;
// non-blocking ones get a single attempt.
func (o *Orchestrator) fetch(ctx context.Context, nodeID string, req domain.DataRequirement, src domain.SourceDescriptor, cacheKey string) (any, error) {
	attempts := 1
	if req.Blocking {
		attempts += o.retryBudget
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.blockingTimeout)
		defer cancel()
	}

	start := time.Now()
	if o.hooks.OnFetchStart != nil {
		o.hooks.OnFetchStart(ctx, &domain.FetchEvent{
			EventBase: domain.EventBase{Timestamp: start, Type: domain.EventFetchStart},
			NodeID:    nodeID, Key: req.Key, Source: src.Type, CacheKey: cacheKey,
		})
	}

	var (
		lastErr error
		tried   int
	)
	for i := 0; i < attempts; i++ {
		if i > 0 && o.retryBackoff > 0 {
			timer := time.NewTimer(o.retryBackoff * time.Duration(i))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			break
		}

		tried++
		res, shared, err := o.attempt(ctx, cacheKey, src, req.CacheTTL())
		if err == nil {
			o.settled(ctx, nodeID, req.Key, src.Type, cacheKey, start, res.cached, shared, nil)
			return res.value, nil
		}
		lastErr = err
		o.logger.Debug("fetch attempt failed", "node_id", nodeID, "key", req.Key, "attempt", tried, "error", err)
	}

	ferr := &domain.FetchError{NodeID: nodeID, Key: req.Key, Source: src.Type, Attempts: tried, Err: lastErr}
	o.settled(ctx, nodeID, req.Key, src.Type, cacheKey, start, false, false, ferr)
	o.logger.Warn("data requirement failed, using default value", "node_id", nodeID, "key", req.Key, "source", src.Type, "error", lastErr)
	o.Report(ctx, ferr)
	return nil, ferr
}

func (o *Orchestrator) settled(ctx context.Context, nodeID, key, sourceType, cacheKey string, start time.Time, cached, shared bool, err error) {
	if o.hooks.OnFetchSettle == nil {
		return
	}
	o.hooks.OnFetchSettle(ctx, &domain.FetchEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventFetchSettle},
		NodeID:    nodeID, Key: key, Source: sourceType, CacheKey: cacheKey,
		Cached: cached, Shared: shared, Duration: time.Since(start), Err: err,
	})
}

// Report forwards err to the host error channel.
func (o *Orchestrator) Report(ctx context.Context, err error) {
	if o.reporter == nil || err == nil {
		return
	}
	o.reporter.Report(context.WithoutCancel(ctx), err)
}

// IsConfigError reports whether err is a requirement misconfiguration.
func IsConfigError(err error) bool {
	var ce *domain.ConfigError
	return errors.As(err, &ce)
}
