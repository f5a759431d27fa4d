package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *domain.Tree {
	return &domain.Tree{PageID: "home", Nodes: []*domain.RenderedNode{
		{ID: "hero", Kind: domain.KindSection, Children: []*domain.RenderedNode{
			{ID: "title", Kind: domain.KindAtom, Type: "Text", Params: map[string]any{"text": "Hello Ada", "size": float64(2)}},
			{ID: "list", Kind: domain.KindComponent, Placeholder: &domain.LoadingBehavior{Type: "skeleton"}},
			{ID: "tabs", Kind: domain.KindComponent, Events: []string{"onClick"}, Pending: []string{"reviews"}},
		}},
		{ID: "snippet", Kind: domain.KindCodeblock, Params: map[string]any{"code": "fmt.Println(1)"}},
	}}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleTree())

	assert.Contains(t, md, "# home\n")
	assert.Contains(t, md, "## hero\n")
	assert.Contains(t, md, "- **title (Text)**\n  - size: `2`\n  - text: Hello Ada\n")
	assert.Contains(t, md, "_skeleton: loading_")
	assert.Contains(t, md, "_pending: reviews_")
	assert.Contains(t, md, "_events: onClick_")
	assert.Contains(t, md, "```\nfmt.Println(1)\n```")
	assert.Empty(t, Markdown(nil))
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer(60)
	require.NoError(t, err)

	out, err := r.Render(sampleTree())
	require.NoError(t, err)
	assert.Contains(t, out, "Ada")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|____/")
}
