// Package tests holds reusable contract suites for port implementations.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract verifies that a StateStore implementation adheres to the port contract.
func RunStateStoreContract(t *testing.T, store ports.StateStore) {
	t.Helper()
	ctx := context.Background()
	sessionID := "contract-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.NewSnapshot(sessionID, "home")
		snap.States["tabs-container"] = map[string]any{"activeTab": "tab2"}
		snap.States["counter"] = map[string]any{"count": 42}
		snap.Ambient.Viewport = map[string]any{"width": 1280}

		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "home", loaded.PageID)
		assert.Equal(t, "tab2", loaded.States["tabs-container"]["activeTab"])
		// JSON-backed stores turn ints into float64; only presence is part of the contract.
		assert.NotNil(t, loaded.States["counter"]["count"])
		assert.NotNil(t, loaded.Ambient.Viewport["width"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, domain.NewSnapshot(sessionID, "home")))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewSnapshot(id1, "home")))
		require.NoError(t, store.Save(ctx, id2, domain.NewSnapshot(id2, "home")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunCacheStoreContract verifies that a CacheStore honors freshness and deletion.
func RunCacheStoreContract(t *testing.T, cache ports.CacheStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		entry := ports.CacheEntry{
			Value:     []any{"a", "b"},
			FetchedAt: time.Now(),
			TTL:       time.Minute,
		}
		require.NoError(t, cache.Set(ctx, "contract:list", entry))

		got, ok, err := cache.Get(ctx, "contract:list")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []any{"a", "b"}, got.Value)
		assert.Equal(t, time.Minute, got.TTL)
		assert.True(t, got.Fresh(time.Now()))
	})

	t.Run("Missing Key", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "contract:missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Expired Entry", func(t *testing.T) {
		entry := ports.CacheEntry{
			Value:     "old",
			FetchedAt: time.Now().Add(-2 * time.Minute),
			TTL:       time.Minute,
		}
		require.NoError(t, cache.Set(ctx, "contract:expired", entry))

		_, ok, err := cache.Get(ctx, "contract:expired")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		entry := ports.CacheEntry{Value: "x", FetchedAt: time.Now(), TTL: time.Minute}
		require.NoError(t, cache.Set(ctx, "contract:delete", entry))
		require.NoError(t, cache.Delete(ctx, "contract:delete"))

		_, ok, err := cache.Get(ctx, "contract:delete")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// RunPageLoaderContract verifies that a PageLoader serves the expected page ids.
func RunPageLoaderContract(t *testing.T, loader ports.PageLoader, expected []string) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetPage_Success", func(t *testing.T) {
		for _, id := range expected {
			page, err := loader.GetPage(ctx, id)
			require.NoError(t, err, "page %s", id)
			assert.Equal(t, id, page.ID)
		}
	})

	t.Run("GetPage_NotFound", func(t *testing.T) {
		_, err := loader.GetPage(ctx, "non-existent-page")
		assert.ErrorIs(t, err, domain.ErrPageNotFound)
	})

	t.Run("ListPages", func(t *testing.T) {
		ids, err := loader.ListPages(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, expected, ids)
	})
}
