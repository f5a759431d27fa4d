package runtime

import (
	"sort"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
)

// Dependency tags recorded while evaluating a node.
const (
	tagData     = domain.RootData
	tagPage     = domain.RootPage
	tagViewport = domain.RootViewport
	tagUser     = domain.RootUser
)

func tagNodeData(nodeID string) string { return "nodeData:" + nodeID }
func tagStates(nodeID string) string   { return "states:" + nodeID }

// Tracker collects the dependency tags touched by an evaluation.
type Tracker struct {
	tags map[string]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{tags: make(map[string]struct{})}
}

// Add records a tag. A nil Tracker ignores it.
func (t *Tracker) Add(tag string) {
	if t == nil {
		return
	}
	t.tags[tag] = struct{}{}
}

// Has reports whether tag was recorded.
func (t *Tracker) Has(tag string) bool {
	if t == nil {
		return false
	}
	_, ok := t.tags[tag]
	return ok
}

// Tags returns the recorded tags, sorted.
func (t *Tracker) Tags() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.tags))
	for tag := range t.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// StateReader is the read side of the local state store.
type StateReader interface {
	Index(nodeID string) (any, bool)
}

// Frame is the position of a node in the materialized tree: what it inherits
// from its ancestors.
type Frame struct {
	NodeID string
	// StateOwner is the node's own id when stateful, else ParentStateOwner.
	StateOwner string
	// ParentStateOwner is the nearest ancestor carrying state.
	ParentStateOwner string
	Item             any
	HasItem          bool
	ItemIndex        int
}

// child derives the frame of a child of the node described by f.
func (f Frame) child(childID string, childStateful bool) Frame {
	parentOwner := f.ParentStateOwner
	if f.StateOwner != "" {
		parentOwner = f.StateOwner
	}
	c := Frame{
		NodeID:           childID,
		ParentStateOwner: parentOwner,
		Item:             f.Item,
		HasItem:          f.HasItem,
		ItemIndex:        f.ItemIndex,
	}
	if childStateful {
		c.StateOwner = childID
	} else {
		c.StateOwner = parentOwner
	}
	return c
}

// Context is the read-only namespace visible to the expressions of one node.
// Every root lookup records a dependency tag into its Tracker.
type Context struct {
	frame    Frame
	data     map[string]any
	nodeData map[string]any
	states   StateReader
	ambient  domain.Ambient
	event    map[string]any
	tracker  *Tracker
}

// BuildContext assembles the context of the node at frame.
func BuildContext(frame Frame, data, nodeData map[string]any, states StateReader, ambient domain.Ambient, tracker *Tracker) *Context {
	return &Context{
		frame:    frame,
		data:     data,
		nodeData: nodeData,
		states:   states,
		ambient:  ambient,
		tracker:  tracker,
	}
}

// WithNodeData returns a copy of c exposing values under nodeData.
func (c *Context) WithNodeData(values map[string]any) *Context {
	cp := *c
	cp.nodeData = values
	return &cp
}

// WithEvent returns a copy of c with the event root bound.
func (c *Context) WithEvent(value any) *Context {
	cp := *c
	cp.event = map[string]any{"value": value}
	return &cp
}

// Frame returns the position this context was built for.
func (c *Context) Frame() Frame { return c.frame }

// Tracker returns the dependency tracker, possibly nil.
func (c *Context) Tracker() *Tracker { return c.tracker }

// Lookup implements expression.Scope. Only the documented roots resolve;
// any other bare identifier is absent.
func (c *Context) Lookup(name string) (any, bool) {
	switch name {
	case domain.RootData:
		c.tracker.Add(tagData)
		return orUndefined(c.data), true
	case domain.RootNodeData:
		c.tracker.Add(tagNodeData(c.frame.NodeID))
		return orUndefined(c.nodeData), true
	case domain.RootStates:
		return trackedStates{reader: c.states, tracker: c.tracker}, true
	case domain.RootParentState:
		return c.stateOf(c.frame.ParentStateOwner), true
	case domain.RootState:
		return c.stateOf(c.frame.StateOwner), true
	case domain.RootItem:
		if !c.frame.HasItem {
			return expression.Undefined, true
		}
		return c.frame.Item, true
	case domain.RootEvent:
		if c.event == nil {
			return expression.Undefined, true
		}
		return c.event, true
	case domain.RootPage:
		c.tracker.Add(tagPage)
		return orUndefined(c.ambient.Page), true
	case domain.RootViewport:
		c.tracker.Add(tagViewport)
		return orUndefined(c.ambient.Viewport), true
	case domain.RootUser:
		c.tracker.Add(tagUser)
		return orUndefined(c.ambient.User), true
	}
	return nil, false
}

func (c *Context) stateOf(owner string) any {
	if owner == "" || c.states == nil {
		return expression.Undefined
	}
	c.tracker.Add(tagStates(owner))
	if v, ok := c.states.Index(owner); ok {
		return v
	}
	return expression.Undefined
}

func orUndefined(m map[string]any) any {
	if m == nil {
		return expression.Undefined
	}
	return m
}

// trackedStates exposes states[id] and records which ids were read.
type trackedStates struct {
	reader  StateReader
	tracker *Tracker
}

func (s trackedStates) Index(nodeID string) (any, bool) {
	s.tracker.Add(tagStates(nodeID))
	if s.reader == nil {
		return nil, false
	}
	return s.reader.Index(nodeID)
}

// declaredState serves a node's declared initial state before its entry exists,
// so a stateful node's own visibility can read it on first mount.
type declaredState struct {
	StateReader
	nodeID  string
	initial map[string]any
}

func (d declaredState) Index(nodeID string) (any, bool) {
	if nodeID == d.nodeID {
		return domain.CloneValue(d.initial), true
	}
	return d.StateReader.Index(nodeID)
}
