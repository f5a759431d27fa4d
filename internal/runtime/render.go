package runtime

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/interpolate"
)

// passState tracks what one evaluation pass visited.
type passState struct {
	ambient domain.Ambient
	data    map[string]any
	visited map[string]bool
	visible map[string]bool
}

type orderedNode struct {
	node  *domain.Node
	order float64
}

// orderNodes sorts siblings by order. Nodes without an order use their array
// position; ties keep array order.
func orderNodes(nodes []domain.Node) []orderedNode {
	out := make([]orderedNode, len(nodes))
	for i := range nodes {
		o := float64(i)
		if nodes[i].Order != nil {
			o = *nodes[i].Order
		}
		out[i] = orderedNode{node: &nodes[i], order: o}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].order < out[b].order })
	return out
}

func (e *Engine) pass(ctx context.Context) *domain.Tree {
	e.mu.Lock()
	p := &passState{
		ambient: e.ambient,
		visited: make(map[string]bool),
		visible: make(map[string]bool),
	}
	e.mu.Unlock()

	p.data = e.resolvePageData(ctx, p)

	tree := &domain.Tree{PageID: e.page.ID}
	for _, on := range orderNodes(e.page.Nodes) {
		frame := Frame{}.child(on.node.ID, on.node.IsStateful())
		if r := e.renderNode(ctx, p, frame, on.node, on.order, false); r != nil {
			tree.Nodes = append(tree.Nodes, r)
		}
	}

	e.finishPass(ctx, p)
	return tree
}

// resolvePageData merges static page data with the page-level data sources.
func (e *Engine) resolvePageData(ctx context.Context, p *passState) map[string]any {
	p.visited[pageScopeID] = true
	if e.pageData != nil && !e.isDirty(pageScopeID) {
		return e.pageData
	}
	e.clearDirty(pageScopeID)

	data := domain.CloneValue(e.page.Data).(map[string]any)
	if len(e.page.DataSources) > 0 {
		tracker := NewTracker()
		scope := BuildContext(Frame{NodeID: pageScopeID}, e.page.Data, nil, e.store, p.ambient, tracker)
		res := e.resolver.Resolve(ctx, pageScopeID, e.page.DataSources, scope)
		for k, v := range res.Values {
			data[k] = v
		}
		e.commitDeps(pageScopeID, tracker)
	}

	e.pageData = data
	e.mu.Lock()
	e.data = data
	e.mu.Unlock()
	return data
}

// renderNode materializes n and its subtree. force bypasses memoized
// evaluations, used below repeater owners whose items may have changed.
func (e *Engine) renderNode(ctx context.Context, p *passState, frame Frame, n *domain.Node, order float64, force bool) *domain.RenderedNode {
	id := n.ID
	if p.visited[id] {
		e.logger.Warn("duplicate node id, skipping", "node_id", id)
		return nil
	}
	p.visited[id] = true

	entry := e.memo[id]
	fresh := force || entry == nil || e.isDirty(id)
	if fresh {
		entry = e.evaluate(ctx, p, frame, n)
		e.memo[id] = entry
	}
	if !entry.visible {
		return nil
	}
	p.visible[id] = true

	out := detach(entry.rendered)
	out.Order = order
	out.Children = nil
	if entry.blocked {
		return &out
	}

	if n.Repeater != nil {
		for _, inst := range entry.instances {
			f := frame.child(inst.Node.ID, inst.Node.IsStateful())
			f.Item, f.HasItem, f.ItemIndex = inst.Item, true, inst.Index
			if r := e.renderNode(ctx, p, f, inst.Node, *inst.Node.Order, force || fresh); r != nil {
				r.TemplateID = inst.TemplateID
				out.Children = append(out.Children, r)
			}
		}
		sort.SliceStable(out.Children, func(a, b int) bool { return out.Children[a].Order < out.Children[b].Order })
		return &out
	}

	for _, on := range orderNodes(n.Children) {
		child := frame.child(on.node.ID, on.node.IsStateful())
		if r := e.renderNode(ctx, p, child, on.node, on.order, force); r != nil {
			out.Children = append(out.Children, r)
		}
	}
	return &out
}

// detach copies the memoized output so returned trees can be modified freely.
func detach(r domain.RenderedNode) domain.RenderedNode {
	r.Params = domain.CloneValue(r.Params)
	r.Style = domain.CloneValue(r.Style)
	if r.NodeData != nil {
		r.NodeData = domain.CloneValue(r.NodeData).(map[string]any)
	}
	if r.Placeholder != nil {
		lb := *r.Placeholder
		r.Placeholder = &lb
	}
	r.Pending = slices.Clone(r.Pending)
	r.Events = slices.Clone(r.Events)
	return r
}

// evaluate computes visibility, requirements and interpolated output of one node.
func (e *Engine) evaluate(ctx context.Context, p *passState, frame Frame, n *domain.Node) *memoEntry {
	id := n.ID
	e.clearDirty(id)

	tracker := NewTracker()
	fail := e.failureFunc(ctx, id)
	var states StateReader = e.store
	if n.IsStateful() && !e.store.Has(id) {
		states = declaredState{StateReader: e.store, nodeID: id, initial: n.State}
	}
	c := BuildContext(frame, p.data, e.resolver.Peek(id, n.DataRequirements), states, p.ambient, tracker)

	entry := &memoEntry{}
	if !IsVisible(e.eval, n, c, fail) {
		e.commitDeps(id, tracker)
		return entry
	}
	entry.visible = true
	e.mount(ctx, id, n, frame)

	if n.IsStateful() && e.store.Init(id, n.State) {
		e.mark(tagStates(id))
	}

	rendered := domain.RenderedNode{
		ID:   id,
		Kind: n.Kind,
		Type: n.Type,
		Name: n.Name,
	}

	if len(n.DataRequirements) > 0 {
		tracker.Add(tagNodeData(id))
		res := e.resolver.Resolve(ctx, id, n.DataRequirements, c)
		c = c.WithNodeData(res.Values)
		rendered.NodeData = res.Values
		rendered.Pending = res.Pending
		if res.Blocked {
			lb := domain.DefaultLoadingBehavior
			if n.LoadingBehavior != nil {
				lb = *n.LoadingBehavior
			}
			rendered.Placeholder = &lb
			entry.blocked = true
			entry.rendered = rendered
			e.commitDeps(id, tracker)
			return entry
		}
	}

	in := e.interp.With(interpolate.WithErrorHook(fail))
	rendered.Params = in.ResolveBindings(n.Params, c, nil)
	rendered.Style = in.ResolveBindings(n.Style, c, nil)
	for evt := range n.EventHandlers {
		rendered.Events = append(rendered.Events, evt)
	}
	sort.Strings(rendered.Events)

	if n.Repeater != nil {
		entry.instances = ExpandRepeater(e.eval, n, c, fail)
	}

	entry.rendered = rendered
	e.commitDeps(id, tracker)
	return entry
}

// mount records n as part of the render tree. Requirements resolve only after
// this, so their settles pass the membership check.
func (e *Engine) mount(ctx context.Context, id string, n *domain.Node, frame Frame) {
	e.mu.Lock()
	_, existed := e.live[id]
	e.live[id] = &mountInfo{node: n, frame: frame}
	e.mu.Unlock()

	if !existed && e.hooks.OnNodeMount != nil {
		e.hooks.OnNodeMount(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeMount},
			NodeID:    id,
			Kind:      n.Kind,
		})
	}
}

// finishPass unmounts nodes that left the tree and drops bookkeeping for
// nodes that were not reached at all. Local state survives visibility changes
// and is destroyed only when its node leaves the page structure.
func (e *Engine) finishPass(ctx context.Context, p *passState) {
	var gone []*mountInfo
	e.mu.Lock()
	for id, info := range e.live {
		if !p.visible[id] {
			gone = append(gone, info)
			delete(e.live, id)
		}
	}
	var stale []string
	for id := range e.deps {
		if !p.visited[id] {
			stale = append(stale, id)
		}
	}
	for id := range e.dirty {
		if !p.visited[id] {
			delete(e.dirty, id)
		}
	}
	e.mu.Unlock()

	for id := range e.memo {
		if !p.visited[id] {
			delete(e.memo, id)
		}
	}
	for _, id := range stale {
		e.dropDeps(id)
	}

	for _, info := range gone {
		id := info.node.ID
		e.resolver.Forget(id)
		if info.node.IsStateful() && e.leftStructure(p, id) {
			e.store.Remove(id)
		}
		if e.hooks.OnNodeUnmount != nil {
			e.hooks.OnNodeUnmount(ctx, &domain.NodeEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeUnmount},
				NodeID:    id,
				Kind:      info.node.Kind,
			})
		}
		e.logger.Debug("node unmounted", "node_id", id)
	}
}

// leftStructure reports whether id is gone from the page itself rather than
// hidden: a repeater instance no longer produced by its owner.
func (e *Engine) leftStructure(p *passState, id string) bool {
	if p.visited[id] {
		return false
	}
	return e.page.FindNode(id) == nil
}

// failureFunc returns the sink for degraded expressions of nodeID.
func (e *Engine) failureFunc(ctx context.Context, nodeID string) FailureFunc {
	return func(expr string, err error) {
		e.logger.Debug("expression degraded to undefined", "node_id", nodeID, "expr", expr, "error", err)
		if e.hooks.OnEvalError != nil {
			e.hooks.OnEvalError(ctx, &domain.EvalEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventEvalError},
				NodeID:    nodeID,
				Expr:      expr,
				Err:       err,
			})
		}
		var ce *domain.ConfigError
		if errors.As(err, &ce) && e.reporter != nil {
			e.reporter.Report(context.WithoutCancel(ctx), err)
		}
	}
}
