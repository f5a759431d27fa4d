package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/domain"
	contract "github.com/aretw0/osdl/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLoader_Contract(t *testing.T) {
	loader, err := memory.NewLoader(
		&domain.Page{ID: "home", Nodes: []domain.Node{{ID: "hero", Kind: domain.KindComponent}}},
		&domain.Page{ID: "product"},
	)
	require.NoError(t, err)

	contract.RunPageLoaderContract(t, loader, []string{"home", "product"})
}

func TestInMemoryLoader_ReturnsCopies(t *testing.T) {
	loader, err := memory.NewLoader(&domain.Page{
		ID:    "home",
		Nodes: []domain.Node{{ID: "hero", Kind: domain.KindComponent, Params: map[string]any{"title": "Hi"}}},
	})
	require.NoError(t, err)

	p, err := loader.GetPage(context.Background(), "home")
	require.NoError(t, err)
	p.Nodes[0].Params.(map[string]any)["title"] = "mutated"

	again, err := loader.GetPage(context.Background(), "home")
	require.NoError(t, err)
	assert.Equal(t, "Hi", again.Nodes[0].Params.(map[string]any)["title"])
}

func TestInMemoryLoader_RejectsMissingID(t *testing.T) {
	_, err := memory.NewLoader(&domain.Page{})
	assert.Error(t, err)
}
