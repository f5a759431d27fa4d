package domain

import (
	"context"
	"testing"
)

func TestNode_CloneIsDeep(t *testing.T) {
	order := 2.0
	src := &Node{
		ID:     "card",
		Kind:   KindComponent,
		Order:  &order,
		Params: map[string]any{"tags": []any{"a", "b"}},
		State:  map[string]any{"open": false},
		Repeater: &Repeater{
			Source:   "data.items",
			Template: &Node{ID: "tpl", Params: map[string]any{"x": 1}},
		},
		Children: []Node{{ID: "child"}},
	}

	c := src.Clone()
	c.Params.(map[string]any)["tags"].([]any)[0] = "z"
	c.State["open"] = true
	*c.Order = 9
	c.Repeater.Template.ID = "changed"
	c.Children[0].ID = "other"

	if src.Params.(map[string]any)["tags"].([]any)[0] != "a" {
		t.Error("params shared between clone and source")
	}
	if src.State["open"] != false {
		t.Error("state shared between clone and source")
	}
	if *src.Order != 2 {
		t.Error("order shared between clone and source")
	}
	if src.Repeater.Template.ID != "tpl" || src.Children[0].ID != "child" {
		t.Error("subtree shared between clone and source")
	}
}

func TestPage_FindNodeIncludesTemplates(t *testing.T) {
	p := &Page{Nodes: []Node{{
		ID:   "grid",
		Kind: KindSection,
		Repeater: &Repeater{
			Source:   "data.products",
			Template: &Node{ID: "product-card", Kind: KindComponent},
		},
	}}}

	if p.FindNode("product-card") == nil {
		t.Error("expected template node to be found")
	}
	if p.FindNode("missing") != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestLifecycleHooks_Merge(t *testing.T) {
	var calls []string
	a := LifecycleHooks{OnNodeMount: func(_ context.Context, e *NodeEvent) { calls = append(calls, "a:"+e.NodeID) }}
	b := LifecycleHooks{OnNodeMount: func(_ context.Context, e *NodeEvent) { calls = append(calls, "b:"+e.NodeID) }}

	merged := a.Merge(b)
	merged.OnNodeMount(context.Background(), &NodeEvent{NodeID: "n"})

	if len(calls) != 2 || calls[0] != "a:n" || calls[1] != "b:n" {
		t.Errorf("unexpected calls: %v", calls)
	}
	if merged.OnFetchStart != nil {
		t.Error("expected nil when neither side sets the hook")
	}
}
