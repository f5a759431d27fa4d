// Package cli assembles the runtime stack shared by the osdl commands:
// page loader, snapshot store, data sources, cache, metrics and sessions.
//
// SQL drivers are not imported here; the binary registers the ones it ships.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/internal/config"
	"github.com/aretw0/osdl/pkg/adapters/file"
	loamadapter "github.com/aretw0/osdl/pkg/adapters/loam"
	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/adapters/process"
	redisadapter "github.com/aretw0/osdl/pkg/adapters/redis"
	"github.com/aretw0/osdl/pkg/adapters/sources"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/observability"
	"github.com/aretw0/osdl/pkg/orchestrator"
	"github.com/aretw0/osdl/pkg/persistence/middleware"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/registry"
	"github.com/aretw0/osdl/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the assembled runtime.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Loader       ports.PageLoader
	Store        ports.StateStore
	Cache        ports.CacheStore
	Locker       ports.DistributedLocker
	Mock         *sources.MockData
	SQL          *sources.SQL
	Orchestrator *orchestrator.Orchestrator
	Actions      *registry.Registry
	Metrics      *observability.Metrics
	Registry     *prometheus.Registry
	Sessions     *session.Manager

	closers []func() error
}

type appOptions struct {
	loader ports.PageLoader
	store  ports.StateStore
}

// AppOption overrides a component NewApp would otherwise build from config.
type AppOption func(*appOptions)

// WithLoader serves pages from l instead of the configured directory.
func WithLoader(l ports.PageLoader) AppOption {
	return func(o *appOptions) { o.loader = l }
}

// WithStore persists sessions in s instead of the configured backend.
func WithStore(s ports.StateStore) AppOption {
	return func(o *appOptions) { o.store = s }
}

// NewApp builds every component from cfg. Redis replaces the file store and
// the in-memory cache when RedisAddr is set, and also coordinates session
// locks across replicas.
func NewApp(cfg config.Config, logger *slog.Logger, opts ...AppOption) (*App, error) {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	a := &App{Config: cfg, Logger: logger}

	var err error
	if a.Loader, err = a.buildLoader(o.loader); err != nil {
		return nil, err
	}
	if err := a.buildStorage(o.store); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildSources(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildActions(); err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = observability.NewMetrics(a.Registry)

	orchOpts := []orchestrator.Option{
		orchestrator.WithCache(a.Cache),
		orchestrator.WithHooks(a.hooks()),
		orchestrator.WithLogger(logger),
		orchestrator.WithErrorReporter(a.reporter()),
		orchestrator.WithBlockingTimeout(cfg.BlockingTimeout),
		orchestrator.WithRetryBudget(cfg.RetryBudget),
		orchestrator.WithSource(sources.MockType, a.Mock),
	}
	if cfg.RQLEndpoint != "" {
		rqlOpts := []sources.RQLOption{}
		if cfg.RQLToken != "" {
			rqlOpts = append(rqlOpts, sources.WithToken(cfg.RQLToken))
		}
		orchOpts = append(orchOpts, orchestrator.WithSource(sources.RQLType, sources.NewRQL(cfg.RQLEndpoint, rqlOpts...)))
	}
	if a.SQL != nil {
		orchOpts = append(orchOpts, orchestrator.WithSource(sources.SQLType, a.SQL))
	}
	a.Orchestrator = orchestrator.New(orchOpts...)

	sessOpts := []session.Option{session.WithLogger(logger)}
	if a.Locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(a.Locker))
	}
	a.Sessions = session.NewManager(a.Store, session.LoaderFactory(a.Loader, a.EngineOptions()...), sessOpts...)
	return a, nil
}

// EngineOptions are the options every engine of this app is built with.
func (a *App) EngineOptions() []osdl.Option {
	return []osdl.Option{
		osdl.WithOrchestrator(a.Orchestrator),
		osdl.WithDispatcher(a.Actions),
		osdl.WithErrorReporter(a.reporter()),
		osdl.WithLifecycleHooks(a.hooks()),
		osdl.WithLogger(a.Logger),
	}
}

// NewEngine loads pageID and builds a standalone engine sharing the app's
// orchestrator, outside any session.
func (a *App) NewEngine(ctx context.Context, pageID string, opts ...osdl.Option) (*osdl.Engine, error) {
	return osdl.Load(ctx, a.Loader, pageID, append(a.EngineOptions(), opts...)...)
}

// Close shuts sessions down and releases backend connections.
func (a *App) Close() error {
	var errs []error
	if a.Sessions != nil {
		errs = append(errs, a.Sessions.Shutdown(context.Background()))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildLoader(override ports.PageLoader) (ports.PageLoader, error) {
	switch {
	case override != nil:
		return override, nil
	case a.Config.LoamRepo != "":
		l, err := loamadapter.Open(a.Config.LoamRepo)
		if err != nil {
			return nil, fmt.Errorf("failed to open loam repository: %w", err)
		}
		return l, nil
	default:
		return file.NewLoader(a.Config.PagesDir, file.WithLogger(a.Logger))
	}
}

func (a *App) buildStorage(override ports.StateStore) error {
	cfg := a.Config
	if cfg.RedisAddr != "" {
		client := redisadapter.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, client.Close)

		var storeOpts []redisadapter.Option
		var cacheOpts []redisadapter.CacheOption
		lockPrefix := "osdl:"
		if cfg.RedisPrefix != "" {
			storeOpts = append(storeOpts, redisadapter.WithPrefix(cfg.RedisPrefix+"session:"))
			cacheOpts = append(cacheOpts, redisadapter.WithCachePrefix(cfg.RedisPrefix+"cache:"))
			lockPrefix = cfg.RedisPrefix
		}
		a.Store = redisadapter.NewFromClient(client, storeOpts...)
		a.Cache = redisadapter.NewCache(client, cacheOpts...)
		a.Locker = redisadapter.NewLocker(client, lockPrefix)
	} else {
		a.Store = file.NewStore(cfg.SessionDir)
		a.Cache = memory.NewCache()
	}
	if override != nil {
		a.Store = override
	}

	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey != "" || cfg.EncryptionPassphrase != "" {
		key, err := a.encryptionKey()
		if err != nil {
			return fmt.Errorf("encryption key: %w", err)
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	a.Store = middleware.Chain(a.Store, mws...)
	return nil
}

func (a *App) encryptionKey() ([]byte, error) {
	if a.Config.EncryptionKey != "" {
		return middleware.ParseKey(a.Config.EncryptionKey)
	}
	return middleware.DeriveKey(a.Config.EncryptionPassphrase)
}

func (a *App) buildSources() error {
	if a.Config.Fixtures == "" {
		a.Mock = sources.NewMockData(nil)
	} else {
		mock, err := sources.LoadMockData(a.Config.Fixtures)
		if err != nil {
			return err
		}
		a.Mock = mock
	}

	if a.Config.SQLDriver != "" {
		db, err := sources.OpenSQL(context.Background(), a.Config.SQLDriver, a.Config.SQLDSN)
		if err != nil {
			return err
		}
		a.SQL = db
		a.closers = append(a.closers, db.Close)
	}
	return nil
}

func (a *App) buildActions() error {
	a.Actions = registry.NewRegistry()
	a.Actions.Fallback(loggingDispatcher{logger: a.Logger})

	if a.Config.ActionsFile == "" {
		return nil
	}
	actions, err := process.LoadActions(a.Config.ActionsFile)
	if err != nil {
		return err
	}
	process.NewRunner(process.WithRegistry(actions), process.WithLogger(a.Logger)).Install(a.Actions)
	return nil
}

func (a *App) hooks() domain.LifecycleHooks {
	h := observability.LoggingHooks(a.Logger)
	if a.Metrics != nil {
		h = h.Merge(a.Metrics.Hooks())
	}
	return h
}

func (a *App) reporter() ports.ErrorReporter {
	return ports.ErrorReporterFunc(func(ctx context.Context, err error) {
		a.Logger.ErrorContext(ctx, "Runtime error reported", "err", err)
	})
}

// loggingDispatcher accepts actions nobody handles, so previews never fail
// on host-only actions such as openModal.
type loggingDispatcher struct {
	logger *slog.Logger
}

func (d loggingDispatcher) Dispatch(ctx context.Context, req domain.ActionRequest) error {
	d.logger.InfoContext(ctx, "Action dispatched", "type", req.Type, "node_id", req.NodeID, "event", req.Event, "params", req.Params)
	return nil
}
