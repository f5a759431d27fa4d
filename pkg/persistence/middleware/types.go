// Package middleware wraps a ports.StateStore with snapshot transformations
// applied on the way to and from the backing store.
package middleware

import "github.com/aretw0/osdl/pkg/ports"

// Middleware allows wrapping a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies the middlewares so the first one sees the snapshot first.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
