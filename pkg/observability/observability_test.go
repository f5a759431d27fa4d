package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeMount(ctx, &domain.NodeEvent{NodeID: "a", Kind: domain.KindAtom})
	hooks.OnNodeMount(ctx, &domain.NodeEvent{NodeID: "b", Kind: domain.KindAtom})
	hooks.OnNodeUnmount(ctx, &domain.NodeEvent{NodeID: "b", Kind: domain.KindAtom})
	hooks.OnFetchSettle(ctx, &domain.FetchEvent{Source: "rql", Duration: 20 * time.Millisecond})
	hooks.OnFetchSettle(ctx, &domain.FetchEvent{Source: "rql", Cached: true})
	hooks.OnFetchSettle(ctx, &domain.FetchEvent{Source: "rql", Err: errors.New("down")})
	hooks.OnStateUpdate(ctx, &domain.StateEvent{NodeID: "tabs"})
	hooks.OnEvalError(ctx, &domain.EvalEvent{NodeID: "a", Expr: "x("})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodeMounts.WithLabelValues("atom")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MountedNodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("rql", "fetched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("rql", "cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("rql", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateUpdates.WithLabelValues("tabs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvalErrors))

	n, err := testutil.GatherAndCount(reg, "osdl_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := observability.LoggingHooks(logging.NewJSON(&buf, slog.LevelDebug))
	ctx := context.Background()

	hooks.OnFetchSettle(ctx, &domain.FetchEvent{NodeID: "list", Key: "products", Source: "rql", Err: errors.New("down")})
	hooks.OnEvalError(ctx, &domain.EvalEvent{NodeID: "title", Expr: "bad(", Err: errors.New("parse")})

	out := buf.String()
	assert.Contains(t, out, `"msg":"fetch_failed"`)
	assert.Contains(t, out, `"err":"down"`)
	assert.Contains(t, out, `"expr":"bad("`)
}
