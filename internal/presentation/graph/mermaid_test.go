package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/osdl/internal/presentation/graph"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		page     *domain.Page
		contains []string
	}{
		{
			name: "Kind Shapes",
			page: &domain.Page{ID: "home", Nodes: []domain.Node{
				{ID: "hero", Kind: domain.KindSection, Children: []domain.Node{
					{ID: "title", Kind: domain.KindAtom, Type: "Text"},
					{ID: "tabs", Kind: domain.KindComponent},
					{ID: "snippet", Kind: domain.KindCodeblock},
				}},
			}},
			contains: []string{
				"page_home((\"home\"))",
				"hero[\"hero\"]",
				"title([\"title <br/> Text\"])",
				"tabs[[\"tabs\"]]",
				"snippet{{\"snippet\"}}",
				"page_home --> hero",
				"hero --> title",
			},
		},
		{
			name: "Data Sources",
			page: &domain.Page{
				ID:    "shop",
				Title: "The \"Shop\"",
				DataSources: []domain.DataRequirement{
					{Key: "config", Source: domain.SourceDescriptor{Type: domain.SourceMockData, Query: "config"}},
				},
				Nodes: []domain.Node{
					{ID: "list", Kind: domain.KindComponent, DataRequirements: []domain.DataRequirement{
						{Key: "products", Blocking: true, Source: domain.SourceDescriptor{Type: domain.SourceMockData, Query: "products"}},
						{Key: "reviews", Source: domain.SourceDescriptor{Type: domain.SourceRQL, Query: "reviews"}},
					}},
				},
			},
			contains: []string{
				"page_shop((\"The 'Shop'\"))",
				"src1[(\"mockData <br/> config\")]",
				"src1 -. \"config\" .-> page_shop",
				"src2 == \"products\" ==> list",
				"src3 -. \"reviews\" .-> list",
			},
		},
		{
			name: "Cross Node Actions",
			page: &domain.Page{ID: "p", Nodes: []domain.Node{
				{ID: "button-1", Kind: domain.KindComponent, EventHandlers: map[string][]domain.Action{
					domain.EventClick: {{Type: domain.ActionUpdateNodeState, Target: "modal.main"}},
				}},
				{ID: "modal.main", Kind: domain.KindComponent, State: map[string]any{"open": false}},
			}},
			contains: []string{
				"button_1 -- \"⚡ onClick\" --> modal_main",
			},
		},
		{
			name: "Visibility And Repeater",
			page: &domain.Page{ID: "p", Nodes: []domain.Node{
				{ID: "grid", Kind: domain.KindSection, Repeater: &domain.Repeater{
					Source:   "data.items",
					Template: &domain.Node{ID: "card", Kind: domain.KindAtom},
				}},
				{ID: "banner", Kind: domain.KindAtom, Visibility: &domain.Visibility{Hidden: true}},
			}},
			contains: []string{
				"grid --> card",
				"banner([\"banner <br/> hidden\"])",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.page, nil)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	page := &domain.Page{ID: "p", Nodes: []domain.Node{
		{ID: "a", Kind: domain.KindSection, Children: []domain.Node{{ID: "b", Kind: domain.KindAtom}}},
	}}
	tree := &domain.Tree{PageID: "p", Nodes: []*domain.RenderedNode{
		{ID: "a", Children: []*domain.RenderedNode{
			{ID: "b", Placeholder: &domain.LoadingBehavior{}},
		}},
	}}

	got := graph.GenerateMermaid(page, graph.OverlayFromTree(tree))
	assert.Contains(t, got, "classDef mounted")
	assert.Contains(t, got, "class a mounted;")
	assert.Contains(t, got, "class b mounted;")
	assert.Contains(t, got, "class b pending;")
	assert.Equal(t, 1, strings.Count(got, "class a mounted;"))
}

func TestGenerateMermaid_NilPage(t *testing.T) {
	assert.Equal(t, "graph TD\n", graph.GenerateMermaid(nil, nil))
}
