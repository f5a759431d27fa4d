package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeMount   EventType = "node_mount"
	EventNodeUnmount EventType = "node_unmount"
	EventFetchStart  EventType = "fetch_start"
	EventFetchSettle EventType = "fetch_settle"
	EventStateUpdate EventType = "state_update"
	EventEvalError   EventType = "eval_error"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// NodeEvent represents a node entering or leaving the render tree.
type NodeEvent struct {
	EventBase
	NodeID string   `json:"node_id"`
	Kind   NodeKind `json:"kind"`
}

// FetchEvent represents a data requirement fetch.
type FetchEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Key      string        `json:"key"`
	Source   string        `json:"source"`
	CacheKey string        `json:"cache_key"`
	Cached   bool          `json:"cached,omitempty"`
	Shared   bool          `json:"shared,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// StateEvent represents a local state update.
type StateEvent struct {
	EventBase
	NodeID string   `json:"node_id"`
	Keys   []string `json:"keys"`
}

// EvalEvent represents a degraded expression.
type EvalEvent struct {
	EventBase
	NodeID string `json:"node_id"`
	Expr   string `json:"expr"`
	Err    error  `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeMount   func(context.Context, *NodeEvent)
	OnNodeUnmount func(context.Context, *NodeEvent)
	OnFetchStart  func(context.Context, *FetchEvent)
	OnFetchSettle func(context.Context, *FetchEvent)
	OnStateUpdate func(context.Context, *StateEvent)
	OnEvalError   func(context.Context, *EvalEvent)
}

// Merge combines two hook sets; both callbacks run when both are set.
func (h LifecycleHooks) Merge(o LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeMount:   chain(h.OnNodeMount, o.OnNodeMount),
		OnNodeUnmount: chain(h.OnNodeUnmount, o.OnNodeUnmount),
		OnFetchStart:  chain(h.OnFetchStart, o.OnFetchStart),
		OnFetchSettle: chain(h.OnFetchSettle, o.OnFetchSettle),
		OnStateUpdate: chain(h.OnStateUpdate, o.OnStateUpdate),
		OnEvalError:   chain(h.OnEvalError, o.OnEvalError),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e T) {
		a(ctx, e)
		b(ctx, e)
	}
}
