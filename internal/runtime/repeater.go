package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
)

// Instance is one ephemeral expansion of a repeater template.
type Instance struct {
	Index int
	Item  any
	// Node is a deep copy of the template with every id suffixed by -<Index>.
	Node *domain.Node
	// TemplateID is the id of the template the instance came from.
	TemplateID string
}

// ExpandRepeater resolves the repeater source of n and materializes one
// instance per element. A source that is not array-like expands to nothing.
// The schema is never modified.
func ExpandRepeater(ev *expression.Evaluator, n *domain.Node, scope expression.Scope, fail FailureFunc) []Instance {
	if n.Repeater == nil || n.Repeater.Template == nil {
		return nil
	}
	src := strings.TrimSpace(n.Repeater.Source)
	src = strings.TrimSuffix(strings.TrimPrefix(src, "{{"), "}}")
	if strings.TrimSpace(src) == "" {
		report(fail, src, &domain.ConfigError{NodeID: n.ID, Field: "repeater.source", Reason: "empty source expression"})
		return nil
	}

	v, err := ev.Evaluate(src, scope)
	if err != nil {
		report(fail, src, err)
		return nil
	}
	items, ok := expression.AsList(v)
	if !ok {
		return nil
	}

	out := make([]Instance, len(items))
	for i, item := range items {
		out[i] = Instance{
			Index:      i,
			Item:       item,
			Node:       instantiate(n.Repeater.Template, i),
			TemplateID: n.Repeater.Template.ID,
		}
	}
	return out
}

// instantiate clones the template and rewrites every id it contains, including
// nested templates, so instances stay page-unique.
func instantiate(tmpl *domain.Node, i int) *domain.Node {
	c := tmpl.Clone()
	suffix := fmt.Sprintf("-%d", i)
	c.Walk(func(n *domain.Node) bool {
		n.ID += suffix
		return true
	})
	if c.Order == nil {
		o := float64(i)
		c.Order = &o
	}
	return c
}
