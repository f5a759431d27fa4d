package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/persistence/middleware"
	"github.com/aretw0/osdl/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	tests.RunStateStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	ctx := context.Background()
	snap := domain.NewSnapshot("s1", "checkout")
	snap.States["card"] = map[string]any{"secret": "my-secret-sauce"}

	require.NoError(t, secure.Save(ctx, "s1", snap))

	stored, err := underlying.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "checkout", stored.PageID)
	assert.NotContains(t, stored.States, "card")
	assert.Contains(t, stored.States, middleware.EnvelopeKey)

	loaded, err := secure.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.States["card"]["secret"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	snap := domain.NewSnapshot("rot", "home")
	snap.States["n"] = map[string]any{"data": "old"}
	require.NoError(t, oldStore.Save(ctx, "rot", snap))

	newStore := encrypted(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := newStore.Load(ctx, "rot")
	require.NoError(t, err)
	assert.Equal(t, "old", loaded.States["n"]["data"])

	loaded.States["n"]["data"] = "new"
	require.NoError(t, newStore.Save(ctx, "rot", loaded))

	_, err = oldStore.Load(ctx, "rot")
	assert.Error(t, err, "old key alone must not open new-key envelopes")
}

func TestEncryptionMiddleware_RejectsPlainSnapshots(t *testing.T) {
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(context.Background(), "plain", domain.NewSnapshot("plain", "home")))

	secure := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Load(context.Background(), "plain")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.ParseKey("not base64!")
	assert.Error(t, err)

	key := generateKey(t)
	parsed, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestDeriveKey(t *testing.T) {
	a, err := middleware.DeriveKey("correct horse")
	require.NoError(t, err)
	assert.Len(t, a, 32)

	b, err := middleware.DeriveKey("correct horse")
	require.NoError(t, err)
	assert.Equal(t, a, b, "derivation is deterministic")

	c, err := middleware.DeriveKey("battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = middleware.DeriveKey("")
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}
