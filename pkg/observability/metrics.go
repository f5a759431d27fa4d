package observability

import (
	"context"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "osdl"

// Metrics holds the collectors fed by engine hooks.
type Metrics struct {
	NodeMounts    *prometheus.CounterVec
	MountedNodes  prometheus.Gauge
	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	StateUpdates  *prometheus.CounterVec
	EvalErrors    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers nothing, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeMounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_mounts_total",
			Help:      "Total number of node mounts",
		}, []string{"kind"}),
		MountedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mounted_nodes",
			Help:      "Nodes currently in a render tree",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Settled data requirement fetches",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of data requirement fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		StateUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_updates_total",
			Help:      "Local state updates",
		}, []string{"node_id"}),
		EvalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eval_errors_total",
			Help:      "Expressions degraded to undefined",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.NodeMounts, m.MountedNodes, m.Fetches, m.FetchDuration, m.StateUpdates, m.EvalErrors)
	}
	return m
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeMount: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeMounts.WithLabelValues(string(e.Kind)).Inc()
			m.MountedNodes.Inc()
		},
		OnNodeUnmount: func(_ context.Context, e *domain.NodeEvent) {
			m.MountedNodes.Dec()
		},
		OnFetchSettle: func(_ context.Context, e *domain.FetchEvent) {
			m.Fetches.WithLabelValues(e.Source, outcome(e)).Inc()
			if !e.Cached && !e.Shared {
				m.FetchDuration.WithLabelValues(e.Source).Observe(e.Duration.Seconds())
			}
		},
		OnStateUpdate: func(_ context.Context, e *domain.StateEvent) {
			m.StateUpdates.WithLabelValues(e.NodeID).Inc()
		},
		OnEvalError: func(_ context.Context, _ *domain.EvalEvent) {
			m.EvalErrors.Inc()
		},
	}
}

func outcome(e *domain.FetchEvent) string {
	switch {
	case e.Err != nil:
		return "error"
	case e.Cached:
		return "cached"
	case e.Shared:
		return "shared"
	}
	return "fetched"
}
