package domain

import "time"

// RenderedNode is the materialized output for one mounted node.
type RenderedNode struct {
	ID         string         `json:"id"`
	Kind       NodeKind       `json:"kind"`
	Type       string         `json:"type,omitempty"`
	Name       string         `json:"name,omitempty"`
	Order      float64        `json:"order"`
	TemplateID string         `json:"template_id,omitempty"`
	Params     any            `json:"params,omitempty"`
	Style      any            `json:"style,omitempty"`
	NodeData   map[string]any `json:"node_data,omitempty"`

	// Placeholder is set while blocking requirements are pending.
	// Params, Style and Children are empty in that case.
	Placeholder *LoadingBehavior `json:"placeholder,omitempty"`

	// Pending lists non-blocking keys still rendered with their default value.
	Pending []string `json:"pending,omitempty"`

	// Events lists the handlers registered for this node.
	Events []string `json:"events,omitempty"`

	Children []*RenderedNode `json:"children,omitempty"`
}

// Find returns the rendered node with the given id in this subtree.
func (r *RenderedNode) Find(id string) *RenderedNode {
	if r == nil {
		return nil
	}
	if r.ID == id {
		return r
	}
	for _, c := range r.Children {
		if f := c.Find(id); f != nil {
			return f
		}
	}
	return nil
}

// Tree is the result of one evaluation pass over a page.
type Tree struct {
	PageID string          `json:"page_id"`
	Nodes  []*RenderedNode `json:"nodes"`
}

// Find returns the rendered node with the given id.
func (t *Tree) Find(id string) *RenderedNode {
	if t == nil {
		return nil
	}
	for _, n := range t.Nodes {
		if f := n.Find(id); f != nil {
			return f
		}
	}
	return nil
}

// PatchReason names the event source that triggered re-evaluation.
type PatchReason string

const (
	ReasonState   PatchReason = "state"
	ReasonData    PatchReason = "data"
	ReasonAmbient PatchReason = "ambient"

	// ReasonReload means the page schema changed and the whole tree is stale.
	ReasonReload PatchReason = "reload"
)

// Patch signals that the listed nodes must be re-evaluated.
type Patch struct {
	Reason  PatchReason `json:"reason"`
	NodeIDs []string    `json:"node_ids"`
	At      time.Time   `json:"at"`
}
