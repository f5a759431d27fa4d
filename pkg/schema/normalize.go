package schema

import (
	"fmt"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/gosimple/slug"
)

// Normalize gives every node without an id one derived from its name, or
// from its parent and position, and makes colliding derived ids unique.
// Explicit ids are never changed; duplicates among them are a validation error.
func Normalize(page *domain.Page) {
	taken := make(map[string]bool)
	for i := range page.Nodes {
		page.Nodes[i].Walk(func(n *domain.Node) bool {
			if n.ID != "" {
				taken[n.ID] = true
			}
			return true
		})
	}
	parent := page.ID
	if parent == "" {
		parent = "page"
	}
	assignIDs(page.Nodes, parent, taken)
}

func assignIDs(nodes []domain.Node, parent string, taken map[string]bool) {
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			base := slug.Make(n.Name)
			if base == "" {
				base = fmt.Sprintf("%s-%s-%d", parent, n.Kind, i)
			}
			n.ID = unique(base, taken)
		}
		if n.Repeater != nil && n.Repeater.Template != nil && n.Repeater.Template.ID == "" {
			t := n.Repeater.Template
			base := slug.Make(t.Name)
			if base == "" {
				base = n.ID + "-item"
			}
			t.ID = unique(base, taken)
		}
		if n.Repeater != nil && n.Repeater.Template != nil {
			assignIDs(n.Repeater.Template.Children, n.Repeater.Template.ID, taken)
		}
		assignIDs(n.Children, n.ID, taken)
	}
}

func unique(base string, taken map[string]bool) string {
	id := base
	for i := 2; taken[id]; i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	taken[id] = true
	return id
}
