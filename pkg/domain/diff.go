package domain

import (
	"reflect"
	"sort"
)

// TreeDiff describes the changes between two evaluation passes.
// It is designed to be serialized to JSON for partial updates on the client.
type TreeDiff struct {
	PageID string `json:"page_id"`

	// Changed holds nodes that were added or whose own output changed.
	// Children are not embedded; clients patch by id.
	Changed map[string]*RenderedNode `json:"changed,omitempty"`

	// Removed lists ids that left the tree.
	Removed []string `json:"removed,omitempty"`
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *TreeDiff) IsEmpty() bool {
	return d == nil || (len(d.Changed) == 0 && len(d.Removed) == 0)
}

// Diff calculates the difference between two trees.
// If oldTree is nil, every node of newTree is reported as changed (initial load).
func Diff(oldTree, newTree *Tree) *TreeDiff {
	if newTree == nil {
		return nil
	}
	diff := &TreeDiff{PageID: newTree.PageID, Changed: make(map[string]*RenderedNode)}

	oldIdx := index(oldTree)
	newIdx := index(newTree)

	for id, n := range newIdx {
		o, ok := oldIdx[id]
		if !ok || !sameOutput(o, n) {
			diff.Changed[id] = shallow(n)
		}
	}
	for id := range oldIdx {
		if _, ok := newIdx[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sort.Strings(diff.Removed)

	if len(diff.Changed) == 0 {
		diff.Changed = nil
	}
	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func index(t *Tree) map[string]*RenderedNode {
	idx := make(map[string]*RenderedNode)
	if t == nil {
		return idx
	}
	var visit func(n *RenderedNode)
	visit = func(n *RenderedNode) {
		idx[n.ID] = n
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, n := range t.Nodes {
		visit(n)
	}
	return idx
}

// sameOutput compares everything except the children.
func sameOutput(a, b *RenderedNode) bool {
	return reflect.DeepEqual(shallow(a), shallow(b)) && childIDs(a) == childIDs(b)
}

func shallow(n *RenderedNode) *RenderedNode {
	c := *n
	c.Children = nil
	return &c
}

func childIDs(n *RenderedNode) string {
	s := ""
	for _, c := range n.Children {
		s += c.ID + "\x00"
	}
	return s
}
