package loam

import (
	"context"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/osdl/internal/testutils"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.PageLoader = (*Loader)(nil)
	_ ports.Watchable  = (*Loader)(nil)
)

const productPage = `---
id: product
title: Product
data:
  currency: EUR
nodes:
  - id: title
    kind: atom
    type: heading
    params:
      text: "{{ data.currency }}"
  - kind: section
    name: Gallery
    children:
      - id: cover
        kind: atom
        type: image
---
A product detail page.`

func newLoader(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	dir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, dir, files)
	return New(loam.NewTypedRepository[PageMetadata](repo))
}

func TestLoader_Contract(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"product.md": productPage,
		"home.json":  `{"id": "home", "nodes": [{"id": "hero", "kind": "component", "type": "Hero"}]}`,
	})
	tests.RunPageLoaderContract(t, loader, []string{"home", "product"})
}

func TestLoader_GetPage_DecodesFrontMatter(t *testing.T) {
	loader := newLoader(t, map[string]string{"product.md": productPage})

	page, err := loader.GetPage(context.Background(), "product")
	require.NoError(t, err)

	assert.Equal(t, "Product", page.Title)
	assert.Equal(t, "EUR", page.Data["currency"])
	assert.Equal(t, "A product detail page.", page.Data["content"])

	gallery := page.FindNode("gallery")
	require.NotNil(t, gallery, "section id derived from its name")
	assert.Equal(t, domain.KindSection, gallery.Kind)
	require.NotNil(t, page.FindNode("cover"))
}

func TestLoader_ListPages_NormalizesIDs(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"start.md":    "---\nid: start.md\n---\nHello",
		"choice.json": `{"id": "choice.json"}`,
		"implicit.md": "---\ntitle: Implicit\n---\nID is implied from filename",
	})

	ids, err := loader.ListPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"choice", "implicit", "start"}, ids)
}

func TestLoader_ListPages_DetectsCollisions(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"foo.md":   "---\nid: foo\n---\nExplicit ID",
		"foo.json": `{"id": "foo"}`,
	})

	_, err := loader.ListPages(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestLoader_GetPage_RejectsUnknownFields(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"bad.json": `{"id": "bad", "nodes": [{"id": "x", "kind": "atom", "visibilty": {"hidden": true}}]}`,
	})

	_, err := loader.GetPage(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "visibilty")
}

func TestBuildPageData_KeepsExplicitContent(t *testing.T) {
	raw := buildPageData("doc.md", PageMetadata{Data: map[string]any{"content": "explicit"}}, "body")
	assert.Equal(t, "doc", raw["id"])
	assert.Equal(t, "explicit", raw["data"].(map[string]any)["content"])
	assert.Equal(t, []any{}, raw["nodes"])
}
