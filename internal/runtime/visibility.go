package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/interpolate"
)

// FailureFunc receives non-fatal evaluation and configuration failures.
type FailureFunc = interpolate.ErrorHook

// IsVisible decides whether n belongs to the render tree.
// hidden wins over conditions; conditions are AND-combined; no conditions
// means visible. Failures make the failing condition false.
func IsVisible(ev *expression.Evaluator, n *domain.Node, scope expression.Scope, fail FailureFunc) bool {
	if n.Visibility == nil {
		return true
	}
	if n.Visibility.Hidden {
		return false
	}
	for _, cond := range n.Visibility.Conditions {
		if !evalCondition(ev, n.ID, cond, scope, fail) {
			return false
		}
	}
	return true
}

func evalCondition(ev *expression.Evaluator, nodeID string, cond domain.VisibilityCondition, scope expression.Scope, fail FailureFunc) bool {
	path := strings.TrimSpace(cond.ContextPath)
	if path == "" {
		report(fail, path, &domain.ConfigError{NodeID: nodeID, Field: "visibility.conditions.contextPath", Reason: "empty context path"})
		return false
	}
	actual, err := ev.Evaluate(path, scope)
	if err != nil {
		report(fail, path, err)
		return false
	}

	switch cond.Operator {
	case domain.OpEquals:
		return expression.StrictEqual(actual, cond.Value)
	case domain.OpNotEquals:
		return !expression.StrictEqual(actual, cond.Value)
	case domain.OpExists:
		return !expression.IsNullish(actual)
	case domain.OpNotExists:
		return expression.IsNullish(actual)
	case domain.OpTruthy:
		return expression.Truthy(actual)
	case domain.OpFalsy:
		return !expression.Truthy(actual)
	case domain.OpContains:
		return contains(actual, cond.Value)
	case domain.OpGreaterThan, domain.OpGreaterThanOrEqual, domain.OpLessThan, domain.OpLessThanOrEqual:
		a, aok := expression.AsNumber(actual)
		b, bok := expression.AsNumber(cond.Value)
		if !aok || !bok {
			return false
		}
		switch cond.Operator {
		case domain.OpGreaterThan:
			return a > b
		case domain.OpGreaterThanOrEqual:
			return a >= b
		case domain.OpLessThan:
			return a < b
		}
		return a <= b
	}

	report(fail, path, &domain.ConfigError{
		NodeID: nodeID,
		Field:  "visibility.conditions.operator",
		Reason: fmt.Sprintf("unknown operator %q", cond.Operator),
	})
	return false
}

func contains(haystack, needle any) bool {
	if s, ok := haystack.(string); ok {
		n, ok := needle.(string)
		return ok && strings.Contains(s, n)
	}
	list, ok := expression.AsList(haystack)
	if !ok {
		return false
	}
	for _, el := range list {
		if expression.StrictEqual(el, needle) {
			return true
		}
	}
	return false
}

func report(fail FailureFunc, expr string, err error) {
	if fail != nil {
		fail(expr, err)
	}
}
