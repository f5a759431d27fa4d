package schema_test

import (
	"testing"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationKeys(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	var keys []string
	for _, e := range schema.ValidationErrors(err) {
		ve, ok := e.(*schema.ValidationError)
		require.True(t, ok)
		keys = append(keys, ve.Key)
	}
	return keys
}

func TestValidatePage_Valid(t *testing.T) {
	page := &domain.Page{
		ID: "home",
		Nodes: []domain.Node{{
			ID:     "greeting",
			Kind:   domain.KindAtom,
			Type:   "text",
			Params: map[string]any{"text": "Hello {{ user.name }}", "size": "{{ viewport.width > 600 ? 'lg' : 'sm' }}"},
		}},
	}
	assert.NoError(t, schema.ValidatePage(page))
}

func TestValidatePage_ReportsEveryProblem(t *testing.T) {
	page := &domain.Page{
		Nodes: []domain.Node{
			{
				ID:       "a",
				Kind:     domain.KindAtom,
				Params:   map[string]any{"text": "{{ 1 + }}", "other": "{{ session.id }}"},
				Children: []domain.Node{{ID: "a-child", Kind: domain.KindAtom}},
			},
			{
				ID:   "a",
				Kind: "widget",
				Visibility: &domain.Visibility{Conditions: []domain.VisibilityCondition{
					{ContextPath: "user.age", Operator: domain.OpGreaterThan, Value: "18"},
					{ContextPath: "user.role", Operator: "between"},
				}},
			},
			{
				ID:   "list",
				Kind: domain.KindSection,
				DataRequirements: []domain.DataRequirement{
					{Key: "items", Source: domain.SourceDescriptor{Type: "graphql", Query: "q"}},
					{Key: "items", Source: domain.SourceDescriptor{Type: domain.SourceRQL}},
				},
				Repeater:        &domain.Repeater{Source: "{{ }}"},
				LoadingBehavior: &domain.LoadingBehavior{Type: "dots"},
				EventHandlers: map[string][]domain.Action{
					domain.EventClick: {{Type: domain.ActionUpdateNodeState, Params: map[string]any{"open": true}}},
				},
			},
		},
	}

	keys := validationKeys(t, schema.ValidatePage(page, schema.WithSourceTypes(domain.SourceRQL, domain.SourceMockData)))
	assert.ElementsMatch(t, []string{
		"id",
		"nodes[0].children",
		"nodes[0].params",
		"nodes[0].params",
		"nodes[1].id",
		"nodes[1].kind",
		"nodes[1].visibility.conditions[0].value",
		"nodes[1].visibility.conditions[1].operator",
		"nodes[2].dataRequirements[0].source.type",
		"nodes[2].dataRequirements[1].key",
		"nodes[2].dataRequirements[1].source.query",
		"nodes[2].loadingBehavior.type",
		"nodes[2].repeater.source",
		"nodes[2].repeater.template",
		"nodes[2].eventHandlers.onClick[0].targetNodeId",
	}, keys)
}

func TestValidatePage_RepeaterTemplateIsValidated(t *testing.T) {
	page := &domain.Page{
		ID: "p",
		Nodes: []domain.Node{{
			ID:   "list",
			Kind: domain.KindSection,
			Repeater: &domain.Repeater{
				Source:   "state.localProducts",
				Template: &domain.Node{ID: "card", Kind: domain.KindComponent, Params: map[string]any{"t": "{{ item.name }}"}},
			},
		}, {
			ID:   "card",
			Kind: domain.KindAtom,
		}},
	}
	keys := validationKeys(t, schema.ValidatePage(page))
	assert.Equal(t, []string{"nodes[1].id"}, keys)
}

func TestValidatePage_Contracts(t *testing.T) {
	contracts := schema.Contracts{
		"button": {"label": schema.String(), "disabled": schema.Bool()},
	}
	page := &domain.Page{
		ID: "p",
		Nodes: []domain.Node{
			{ID: "ok", Kind: domain.KindAtom, Type: "button", Params: map[string]any{"label": "Buy", "disabled": "{{ state.busy }}"}},
			{ID: "bad", Kind: domain.KindAtom, Type: "button", Params: map[string]any{"label": 3}},
			{ID: "other", Kind: domain.KindAtom, Type: "text"},
		},
	}
	keys := validationKeys(t, schema.ValidatePage(page, schema.WithContracts(contracts)))
	assert.Equal(t, []string{"nodes[1].params.disabled", "nodes[1].params.label"}, keys)
}
