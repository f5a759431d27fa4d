package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/osdl/pkg/domain"
)

// LoggingHooks returns lifecycle hooks writing engine events to logger.
// Mounts and state updates log at Debug, failures at Warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeMount: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_mount", "node_id", e.NodeID, "kind", e.Kind)
		},
		OnNodeUnmount: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_unmount", "node_id", e.NodeID)
		},
		OnFetchStart: func(ctx context.Context, e *domain.FetchEvent) {
			logger.DebugContext(ctx, "fetch_start", "node_id", e.NodeID, "key", e.Key, "source", e.Source)
		},
		OnFetchSettle: func(ctx context.Context, e *domain.FetchEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "fetch_failed",
					"node_id", e.NodeID,
					"key", e.Key,
					"source", e.Source,
					"error", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "fetch_settle",
				"node_id", e.NodeID,
				"key", e.Key,
				"cached", e.Cached,
				"shared", e.Shared,
				"duration", e.Duration,
			)
		},
		OnStateUpdate: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_update", "node_id", e.NodeID, "keys", e.Keys)
		},
		OnEvalError: func(ctx context.Context, e *domain.EvalEvent) {
			logger.WarnContext(ctx, "eval_error", "node_id", e.NodeID, "expr", e.Expr, "error", e.Err)
		},
	}
}
