// Package registry routes dispatched actions to handlers by action type.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
)

// ErrUnknownAction is returned for action types with no handler.
var ErrUnknownAction = errors.New("no handler for action")

// HandlerFunc executes one resolved action.
type HandlerFunc func(ctx context.Context, req domain.ActionRequest) error

// Registry manages the available action handlers. It is a ports.ActionDispatcher.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback ports.ActionDispatcher
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for an action type.
// If a handler for the same type exists, it is overwritten.
func (r *Registry) Register(actionType string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = fn
}

// Fallback receives actions no handler is registered for.
func (r *Registry) Fallback(d ports.ActionDispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = d
}

// Types lists the registered action types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Dispatch looks up the handler for req.Type and executes it.
func (r *Registry) Dispatch(ctx context.Context, req domain.ActionRequest) error {
	r.mu.RLock()
	fn, ok := r.handlers[req.Type]
	fallback := r.fallback
	r.mu.RUnlock()

	if !ok {
		if fallback != nil {
			return fallback.Dispatch(ctx, req)
		}
		return fmt.Errorf("%w: %s", ErrUnknownAction, req.Type)
	}
	return fn(ctx, req)
}
