package dsl

import (
	"time"

	"github.com/aretw0/osdl/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node     domain.Node
	children []*NodeBuilder
	template *NodeBuilder
}

func newNode(id string, kind domain.NodeKind) *NodeBuilder {
	return &NodeBuilder{node: domain.Node{ID: id, Kind: kind}}
}

// Section starts a layout node.
func Section(id string) *NodeBuilder { return newNode(id, domain.KindSection) }

// Atom starts a leaf presentational node.
func Atom(id string) *NodeBuilder { return newNode(id, domain.KindAtom) }

// Component starts an interactive node.
func Component(id string) *NodeBuilder { return newNode(id, domain.KindComponent) }

// Codeblock starts a code display node.
func Codeblock(id string) *NodeBuilder { return newNode(id, domain.KindCodeblock) }

// Type sets the renderer type name (Button, Text, Grid, ...).
func (n *NodeBuilder) Type(t string) *NodeBuilder {
	n.node.Type = t
	return n
}

// Name sets the node name, used to derive an id when none was given.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.node.Name = name
	return n
}

// Order sets the sibling sort key.
func (n *NodeBuilder) Order(o float64) *NodeBuilder {
	n.node.Order = &o
	return n
}

// Param sets one param. Values may hold {{ }} templates.
func (n *NodeBuilder) Param(key string, value any) *NodeBuilder {
	params, ok := n.node.Params.(map[string]any)
	if !ok {
		params = make(map[string]any)
	}
	params[key] = value
	n.node.Params = params
	return n
}

// Params replaces the params wholesale.
func (n *NodeBuilder) Params(params any) *NodeBuilder {
	n.node.Params = params
	return n
}

// Style sets the style object.
func (n *NodeBuilder) Style(style any) *NodeBuilder {
	n.node.Style = style
	return n
}

// State declares the initial local state and makes the node stateful.
func (n *NodeBuilder) State(initial map[string]any) *NodeBuilder {
	if initial == nil {
		initial = map[string]any{}
	}
	n.node.State = initial
	return n
}

// Require adds data requirements.
func (n *NodeBuilder) Require(reqs ...domain.DataRequirement) *NodeBuilder {
	n.node.DataRequirements = append(n.node.DataRequirements, reqs...)
	return n
}

// Loading sets the placeholder shown while blocking requirements are pending.
func (n *NodeBuilder) Loading(kind, message string) *NodeBuilder {
	n.node.LoadingBehavior = &domain.LoadingBehavior{Type: kind, Message: message}
	return n
}

// Hidden marks the node as never visible.
func (n *NodeBuilder) Hidden() *NodeBuilder {
	if n.node.Visibility == nil {
		n.node.Visibility = &domain.Visibility{}
	}
	n.node.Visibility.Hidden = true
	return n
}

// When adds a visibility condition. All conditions must hold.
func (n *NodeBuilder) When(contextPath, operator string, value any) *NodeBuilder {
	if n.node.Visibility == nil {
		n.node.Visibility = &domain.Visibility{}
	}
	n.node.Visibility.Conditions = append(n.node.Visibility.Conditions, domain.VisibilityCondition{
		ContextPath: contextPath,
		Operator:    operator,
		Value:       value,
	})
	return n
}

// Repeat expands template once per item of the sequence at source.
func (n *NodeBuilder) Repeat(source string, template *NodeBuilder) *NodeBuilder {
	n.node.Repeater = &domain.Repeater{Source: source}
	n.template = template
	return n
}

// On appends actions to the handler of event.
func (n *NodeBuilder) On(event string, actions ...domain.Action) *NodeBuilder {
	if n.node.EventHandlers == nil {
		n.node.EventHandlers = make(map[string][]domain.Action)
	}
	n.node.EventHandlers[event] = append(n.node.EventHandlers[event], actions...)
	return n
}

// Children appends child nodes.
func (n *NodeBuilder) Children(children ...*NodeBuilder) *NodeBuilder {
	n.children = append(n.children, children...)
	return n
}

// Node returns the assembled node and its subtree.
func (n *NodeBuilder) Node() domain.Node {
	node := *n.node.Clone()
	node.Children = nil
	for _, c := range n.children {
		node.Children = append(node.Children, c.Node())
	}
	if n.template != nil && node.Repeater != nil {
		tpl := n.template.Node()
		node.Repeater.Template = &tpl
	}
	return node
}

// UpdateState merges params into the acting node's state.
func UpdateState(params map[string]any) domain.Action {
	return domain.Action{Type: domain.ActionUpdateState, Params: params}
}

// UpdateNodeState merges params into another node's state.
func UpdateNodeState(target string, params map[string]any) domain.Action {
	return domain.Action{Type: domain.ActionUpdateNodeState, Target: target, Params: params}
}

// Dispatch builds an action handed to the host dispatcher.
func Dispatch(actionType string, params any) domain.Action {
	return domain.Action{Type: actionType, Params: params}
}

// RequirementOption configures a data requirement.
type RequirementOption func(*domain.DataRequirement)

// Blocking holds the node behind its placeholder until the data arrives.
func Blocking() RequirementOption {
	return func(r *domain.DataRequirement) { r.Blocking = true }
}

// Default sets the value rendered until the data arrives.
func Default(v any) RequirementOption {
	return func(r *domain.DataRequirement) { r.DefaultValue = v }
}

// CacheFor caches the result for d.
func CacheFor(d time.Duration) RequirementOption {
	return func(r *domain.DataRequirement) { r.CacheDurationMs = d.Milliseconds() }
}

// Vars sets the source variables. Values may hold {{ }} templates.
func Vars(vars map[string]any) RequirementOption {
	return func(r *domain.DataRequirement) { r.Source.Variables = vars }
}

// Queries switches the source to a batch of queries.
func Queries(queries ...string) RequirementOption {
	return func(r *domain.DataRequirement) {
		r.Source.Query = ""
		r.Source.Queries = queries
	}
}

// Require builds a data requirement exposed under key.
func Require(key, sourceType, query string, opts ...RequirementOption) domain.DataRequirement {
	r := domain.DataRequirement{
		Key:    key,
		Source: domain.SourceDescriptor{Type: sourceType, Query: query},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// MockData is Require for the mockData source.
func MockData(key, query string, opts ...RequirementOption) domain.DataRequirement {
	return Require(key, domain.SourceMockData, query, opts...)
}

// RQL is Require for the rql source.
func RQL(key, query string, opts ...RequirementOption) domain.DataRequirement {
	return Require(key, domain.SourceRQL, query, opts...)
}

// SQL is a requirement served by the sql source. args are bound positionally.
func SQL(key, statement string, args ...any) domain.DataRequirement {
	var opts []RequirementOption
	if len(args) > 0 {
		opts = append(opts, Vars(map[string]any{"args": args}))
	}
	return Require(key, domain.SourceSQL, statement, opts...)
}
