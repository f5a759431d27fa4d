package domain

// NodeKind is the tag of the Node union.
type NodeKind string

const (
	KindSection   NodeKind = "section"
	KindAtom      NodeKind = "atom"
	KindComponent NodeKind = "component"
	KindCodeblock NodeKind = "codeblock"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindSection, KindAtom, KindComponent, KindCodeblock:
		return true
	}
	return false
}

// Node is one entry of the declarative page tree.
type Node struct {
	ID    string   `json:"id" yaml:"id" mapstructure:"id"`
	Kind  NodeKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	Type  string   `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Name  string   `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Order *float64 `json:"order,omitempty" yaml:"order,omitempty" mapstructure:"order"`

	// Params and Style are arbitrary JSON and may contain {{ }} templates.
	Params any `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
	Style  any `json:"style,omitempty" yaml:"style,omitempty" mapstructure:"style"`

	// State is the initial local state. Only stateful nodes carry it.
	State map[string]any `json:"state,omitempty" yaml:"state,omitempty" mapstructure:"state"`

	DataRequirements []DataRequirement `json:"dataRequirements,omitempty" yaml:"dataRequirements,omitempty" mapstructure:"dataRequirements"`
	LoadingBehavior  *LoadingBehavior  `json:"loadingBehavior,omitempty" yaml:"loadingBehavior,omitempty" mapstructure:"loadingBehavior"`

	Visibility *Visibility `json:"visibility,omitempty" yaml:"visibility,omitempty" mapstructure:"visibility"`
	Repeater   *Repeater   `json:"repeater,omitempty" yaml:"repeater,omitempty" mapstructure:"repeater"`

	EventHandlers map[string][]Action `json:"eventHandlers,omitempty" yaml:"eventHandlers,omitempty" mapstructure:"eventHandlers"`

	Children []Node `json:"children,omitempty" yaml:"children,omitempty" mapstructure:"children"`
}

// IsStateful reports whether the node declares local state.
func (n *Node) IsStateful() bool {
	return n.State != nil
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Order != nil {
		o := *n.Order
		c.Order = &o
	}
	c.Params = CloneValue(n.Params)
	c.Style = CloneValue(n.Style)
	if n.State != nil {
		c.State = CloneValue(n.State).(map[string]any)
	}
	if n.DataRequirements != nil {
		c.DataRequirements = make([]DataRequirement, len(n.DataRequirements))
		for i, r := range n.DataRequirements {
			c.DataRequirements[i] = r.Clone()
		}
	}
	if n.LoadingBehavior != nil {
		lb := *n.LoadingBehavior
		c.LoadingBehavior = &lb
	}
	if n.Visibility != nil {
		v := *n.Visibility
		v.Conditions = make([]VisibilityCondition, len(n.Visibility.Conditions))
		for i, cond := range n.Visibility.Conditions {
			cond.Value = CloneValue(cond.Value)
			v.Conditions[i] = cond
		}
		c.Visibility = &v
	}
	if n.Repeater != nil {
		r := *n.Repeater
		r.Template = n.Repeater.Template.Clone()
		c.Repeater = &r
	}
	if n.EventHandlers != nil {
		c.EventHandlers = make(map[string][]Action, len(n.EventHandlers))
		for evt, actions := range n.EventHandlers {
			cp := make([]Action, len(actions))
			for i, a := range actions {
				a.Params = CloneValue(a.Params)
				cp[i] = a
			}
			c.EventHandlers[evt] = cp
		}
	}
	if n.Children != nil {
		c.Children = make([]Node, len(n.Children))
		for i := range n.Children {
			c.Children[i] = *n.Children[i].Clone()
		}
	}
	return &c
}

// Walk visits the node and its static descendants depth-first.
// Repeater templates are visited as children of their owner.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if n.Repeater != nil && n.Repeater.Template != nil {
		n.Repeater.Template.Walk(fn)
	}
	for i := range n.Children {
		n.Children[i].Walk(fn)
	}
}

// LoadingBehavior describes the placeholder shown while blocking data is pending.
type LoadingBehavior struct {
	Type    string `json:"type" yaml:"type" mapstructure:"type"` // "skeleton", "spinner", "none"
	Message string `json:"message,omitempty" yaml:"message,omitempty" mapstructure:"message"`
}

// DefaultLoadingBehavior is used for blocked nodes that declare no placeholder.
var DefaultLoadingBehavior = LoadingBehavior{Type: "skeleton"}

// Visibility gates inclusion of a node in the render tree.
type Visibility struct {
	Hidden     bool                  `json:"hidden,omitempty" yaml:"hidden,omitempty" mapstructure:"hidden"`
	Conditions []VisibilityCondition `json:"conditions,omitempty" yaml:"conditions,omitempty" mapstructure:"conditions"`
}

// VisibilityCondition compares the value at ContextPath against Value.
type VisibilityCondition struct {
	ContextPath string `json:"contextPath" yaml:"contextPath" mapstructure:"contextPath"`
	Operator    string `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value       any    `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
}

// Visibility operators.
const (
	OpEquals             = "equals"
	OpNotEquals          = "notEquals"
	OpExists             = "exists"
	OpNotExists          = "notExists"
	OpGreaterThan        = "greaterThan"
	OpGreaterThanOrEqual = "greaterThanOrEqual"
	OpLessThan           = "lessThan"
	OpLessThanOrEqual    = "lessThanOrEqual"
	OpContains           = "contains"
	OpTruthy             = "truthy"
	OpFalsy              = "falsy"
)

// Repeater expands Template once per element of the sequence yielded by Source.
type Repeater struct {
	Source   string `json:"source" yaml:"source" mapstructure:"source"`
	Template *Node  `json:"template" yaml:"template" mapstructure:"template"`
}
