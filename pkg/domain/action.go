package domain

// Event names emitted by components.
const (
	EventClick  = "onClick"
	EventChange = "onChange"
	EventSubmit = "onSubmit"
)

// Action types understood by event handlers.
const (
	ActionUpdateState     = "updateState"
	ActionUpdateNodeState = "updateNodeState"
	ActionOpenModal       = "openModal"
	ActionCloseModal      = "closeModal"
	ActionSubmitData      = "submitData"
)

// Action is one step of a declarative event handler.
// Params are template strings resolved before the action executes.
type Action struct {
	Type   string `json:"type" yaml:"type" mapstructure:"type"`
	Target string `json:"targetNodeId,omitempty" yaml:"targetNodeId,omitempty" mapstructure:"targetNodeId"`
	Params any    `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
}

// ActionRequest is a resolved action handed to the external dispatcher.
type ActionRequest struct {
	Type   string `json:"type"`
	NodeID string `json:"node_id"`
	Target string `json:"target,omitempty"`
	Event  string `json:"event"`
	Params any    `json:"params,omitempty"`
}
