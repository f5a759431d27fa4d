package http

import (
	"github.com/aretw0/osdl/pkg/domain"
)

// sanitize strips unsafe markup from the params and node data of tree.
// The tree is modified in place; it is always a fresh render.
func (s *Server) sanitize(tree *domain.Tree) *domain.Tree {
	if s.policy == nil || tree == nil {
		return tree
	}
	var walk func(n *domain.RenderedNode)
	walk = func(n *domain.RenderedNode) {
		n.Params = s.clean(n.Params)
		for k, v := range n.NodeData {
			n.NodeData[k] = s.clean(v)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range tree.Nodes {
		walk(n)
	}
	return tree
}

func (s *Server) clean(v any) any {
	switch val := v.(type) {
	case string:
		return s.policy.Sanitize(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = s.clean(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = s.clean(sub)
		}
		return out
	}
	return v
}
