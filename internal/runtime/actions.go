package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/interpolate"
)

// ErrNoDispatcher is returned when a non-state action has nowhere to go.
var ErrNoDispatcher = errors.New("no action dispatcher configured")

// stateParams is the shape of updateState/updateNodeState parameters.
// Updates may be nested under "updates" or given as the params themselves.
type stateParams struct {
	Target  string         `mapstructure:"targetNodeId"`
	Updates map[string]any `mapstructure:"updates"`
	Rest    map[string]any `mapstructure:",remain"`
}

type resolvedAction struct {
	action domain.Action
	target string
	params any
}

// Dispatch runs the handlers a mounted node declares for event. The
// parameters of every action are resolved first, with event.value bound,
// so state writes made by earlier actions are not visible to later params.
// A param that is a single placeholder keeps the type of its value.
// Actions then run in declaration order; a failing action does not stop the rest.
func (e *Engine) Dispatch(ctx context.Context, nodeID, event string, value any) error {
	e.renderMu.Lock()
	c, err := e.contextFor(nodeID)
	if err != nil {
		e.renderMu.Unlock()
		return err
	}
	info := e.mountInfo(nodeID)
	if info == nil {
		e.renderMu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNodeNotMounted, nodeID)
	}
	actions := info.node.EventHandlers[event]
	c = c.WithEvent(value)

	in := e.interp.With(interpolate.WithErrorHook(e.failureFunc(ctx, nodeID)))
	typed := in.With(interpolate.WithTypedValues())
	resolved := make([]resolvedAction, len(actions))
	for i, a := range actions {
		target := a.Target
		if target != "" {
			target = expression.ToString(in.String(target, c))
		}
		resolved[i] = resolvedAction{action: a, target: target, params: typed.ResolveBindings(a.Params, c, nil)}
	}
	e.renderMu.Unlock()

	if len(resolved) == 0 {
		e.logger.Debug("no handlers for event", "node_id", nodeID, "event", event)
		return nil
	}

	var errs []error
	for _, ra := range resolved {
		if err := e.execute(ctx, info, event, ra); err != nil {
			e.logger.Warn("action failed", "node_id", nodeID, "event", event, "action", ra.action.Type, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) execute(ctx context.Context, info *mountInfo, event string, ra resolvedAction) error {
	nodeID := info.node.ID
	switch ra.action.Type {
	case domain.ActionUpdateState, domain.ActionUpdateNodeState:
		var p stateParams
		if ra.params != nil {
			if err := mapstructure.Decode(ra.params, &p); err != nil {
				return &domain.ConfigError{NodeID: nodeID, Field: "eventHandlers." + event + ".params", Reason: "params must be an object", Err: err}
			}
		}
		updates := p.Updates
		if updates == nil {
			updates = p.Rest
		}
		target := ra.target
		if target == "" {
			target = p.Target
		}

		if ra.action.Type == domain.ActionUpdateNodeState {
			if target == "" {
				return &domain.ConfigError{NodeID: nodeID, Field: "eventHandlers." + event + ".targetNodeId", Reason: "updateNodeState needs a target node"}
			}
			e.store.UpdateNodeState(target, updates)
			return nil
		}
		if target == "" {
			target = info.frame.StateOwner
		}
		if target == "" {
			target = nodeID
		}
		e.store.UpdateState(target, updates)
		return nil
	}

	if e.dispatcher == nil {
		return fmt.Errorf("%w for %q", ErrNoDispatcher, ra.action.Type)
	}
	return e.dispatcher.Dispatch(ctx, domain.ActionRequest{
		Type:   ra.action.Type,
		NodeID: nodeID,
		Target: ra.target,
		Event:  event,
		Params: ra.params,
	})
}

func (e *Engine) mountInfo(nodeID string) *mountInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live[nodeID]
}
