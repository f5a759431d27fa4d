package domain

import (
	"encoding/json"
	"testing"
)

func TestDiff(t *testing.T) {
	base := &Tree{
		PageID: "home",
		Nodes: []*RenderedNode{
			{ID: "hero", Kind: KindComponent, Params: map[string]any{"title": "Hello"}},
			{ID: "list", Kind: KindSection, Children: []*RenderedNode{
				{ID: "card-0", Kind: KindComponent},
				{ID: "card-1", Kind: KindComponent},
			}},
		},
	}

	tests := []struct {
		name        string
		old         *Tree
		new         *Tree
		wantNil     bool
		wantChanged []string
		wantRemoved []string
	}{
		{
			name:        "Initial Load (Old is Nil)",
			old:         nil,
			new:         base,
			wantChanged: []string{"hero", "list", "card-0", "card-1"},
		},
		{
			name:    "No Changes",
			old:     base,
			new:     base,
			wantNil: true,
		},
		{
			name: "Param Change",
			old:  base,
			new: &Tree{PageID: "home", Nodes: []*RenderedNode{
				{ID: "hero", Kind: KindComponent, Params: map[string]any{"title": "Bye"}},
				base.Nodes[1],
			}},
			wantChanged: []string{"hero"},
		},
		{
			name: "Child Removed",
			old:  base,
			new: &Tree{PageID: "home", Nodes: []*RenderedNode{
				base.Nodes[0],
				{ID: "list", Kind: KindSection, Children: []*RenderedNode{
					{ID: "card-0", Kind: KindComponent},
				}},
			}},
			wantChanged: []string{"list"},
			wantRemoved: []string{"card-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantNil {
				if got != nil {
					b, _ := json.Marshal(got)
					t.Fatalf("expected nil diff, got %s", b)
				}
				return
			}
			if got == nil {
				t.Fatal("expected diff, got nil")
			}
			if len(got.Changed) != len(tt.wantChanged) {
				t.Errorf("changed: got %d entries, want %v", len(got.Changed), tt.wantChanged)
			}
			for _, id := range tt.wantChanged {
				if _, ok := got.Changed[id]; !ok {
					t.Errorf("expected %s in changed set", id)
				}
			}
			if len(got.Removed) != len(tt.wantRemoved) {
				t.Fatalf("removed: got %v, want %v", got.Removed, tt.wantRemoved)
			}
			for i, id := range tt.wantRemoved {
				if got.Removed[i] != id {
					t.Errorf("removed[%d]: got %s, want %s", i, got.Removed[i], id)
				}
			}
		})
	}
}

func TestDiff_ChangedEntriesOmitChildren(t *testing.T) {
	d := Diff(nil, &Tree{Nodes: []*RenderedNode{
		{ID: "root", Children: []*RenderedNode{{ID: "leaf"}}},
	}})
	if d.Changed["root"].Children != nil {
		t.Error("changed entries must not embed children")
	}
}
