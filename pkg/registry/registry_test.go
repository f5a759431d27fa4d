package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ActionDispatcher = (*Registry)(nil)

type dispatchFunc func(ctx context.Context, req domain.ActionRequest) error

func (f dispatchFunc) Dispatch(ctx context.Context, req domain.ActionRequest) error { return f(ctx, req) }

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	var got []domain.ActionRequest
	r.Register(domain.ActionOpenModal, func(ctx context.Context, req domain.ActionRequest) error {
		got = append(got, req)
		return nil
	})
	boom := errors.New("boom")
	r.Register(domain.ActionSubmitData, func(ctx context.Context, req domain.ActionRequest) error {
		return boom
	})

	ctx := context.Background()
	require.NoError(t, r.Dispatch(ctx, domain.ActionRequest{Type: domain.ActionOpenModal, NodeID: "btn"}))
	require.Len(t, got, 1)
	assert.Equal(t, "btn", got[0].NodeID)

	assert.ErrorIs(t, r.Dispatch(ctx, domain.ActionRequest{Type: domain.ActionSubmitData}), boom)
	assert.ErrorIs(t, r.Dispatch(ctx, domain.ActionRequest{Type: "navigate"}), ErrUnknownAction)
	assert.Equal(t, []string{domain.ActionOpenModal, domain.ActionSubmitData}, r.Types())
}

func TestRegistry_Fallback(t *testing.T) {
	r := NewRegistry()
	var fell string
	r.Fallback(dispatchFunc(func(ctx context.Context, req domain.ActionRequest) error {
		fell = req.Type
		return nil
	}))

	require.NoError(t, r.Dispatch(context.Background(), domain.ActionRequest{Type: "navigate"}))
	assert.Equal(t, "navigate", fell)
}
