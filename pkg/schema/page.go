package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/interpolate"
)

var knownRoots = []string{
	domain.RootData, domain.RootNodeData, domain.RootStates, domain.RootParentState,
	domain.RootState, domain.RootItem, domain.RootEvent, domain.RootPage,
	domain.RootViewport, domain.RootUser,
}

var knownOperators = map[string]Type{
	domain.OpEquals:             nil,
	domain.OpNotEquals:          nil,
	domain.OpExists:             nil,
	domain.OpNotExists:          nil,
	domain.OpTruthy:             nil,
	domain.OpFalsy:              nil,
	domain.OpContains:           Custom("string or scalar", notNil),
	domain.OpGreaterThan:        Float(),
	domain.OpGreaterThanOrEqual: Float(),
	domain.OpLessThan:           Float(),
	domain.OpLessThanOrEqual:    Float(),
}

var loadingTypes = OneOf("skeleton", "spinner", "none")

func notNil(v any) error {
	if v == nil {
		return fmt.Errorf("value is required")
	}
	return nil
}

// Contracts maps a component or atom type to the schema of its params.
type Contracts map[string]Schema

type pageOptions struct {
	sourceTypes []string
	contracts   Contracts
}

// PageOption configures ValidatePage.
type PageOption func(*pageOptions)

// WithSourceTypes restricts data requirement sources to the given types.
func WithSourceTypes(types ...string) PageOption {
	return func(o *pageOptions) {
		o.sourceTypes = append(o.sourceTypes, types...)
	}
}

// WithContracts checks node params against per-type contracts.
func WithContracts(c Contracts) PageOption {
	return func(o *pageOptions) {
		o.contracts = c
	}
}

type pageValidator struct {
	opts pageOptions
	ids  map[string]string
	errs []error
}

// ValidatePage checks a page for structural and expression errors.
// It returns an AggregateError listing every failure, or nil.
func ValidatePage(page *domain.Page, opts ...PageOption) error {
	v := &pageValidator{ids: make(map[string]string)}
	for _, opt := range opts {
		opt(&v.opts)
	}

	if page.ID == "" {
		v.fail("id", "page id is required", nil)
	}
	v.templates("data", page.Data)
	v.requirements("dataSource", page.DataSources)
	if len(page.Nodes) == 0 {
		v.fail("nodes", "page has no nodes", nil)
	}
	for i := range page.Nodes {
		v.node(fmt.Sprintf("nodes[%d]", i), &page.Nodes[i])
	}

	if len(v.errs) > 0 {
		return &AggregateError{Errors: v.errs}
	}
	return nil
}

func (v *pageValidator) fail(path, reason string, value any) {
	v.errs = append(v.errs, &ValidationError{Key: path, Reason: reason, Value: value})
}

func (v *pageValidator) node(path string, n *domain.Node) {
	if n.ID == "" {
		v.fail(path+".id", "node id is required", nil)
	} else if prev, dup := v.ids[n.ID]; dup {
		v.fail(path+".id", "duplicate node id, first used at "+prev, n.ID)
	} else {
		v.ids[n.ID] = path
	}
	if !n.Kind.Valid() {
		v.fail(path+".kind", "unknown node kind", string(n.Kind))
	}
	if len(n.Children) > 0 && n.Kind != domain.KindSection {
		v.fail(path+".children", "only sections have children", string(n.Kind))
	}
	if n.Order != nil && *n.Order < 0 {
		v.fail(path+".order", "order must not be negative", *n.Order)
	}

	v.templates(path+".params", n.Params)
	v.templates(path+".style", n.Style)
	v.contract(path+".params", n)
	v.requirements(path+".dataRequirements", n.DataRequirements)
	if n.LoadingBehavior != nil {
		if err := loadingTypes.Validate(n.LoadingBehavior.Type); err != nil {
			v.fail(path+".loadingBehavior.type", err.Error(), n.LoadingBehavior.Type)
		}
	}
	if n.Visibility != nil {
		for i, c := range n.Visibility.Conditions {
			v.condition(fmt.Sprintf("%s.visibility.conditions[%d]", path, i), c)
		}
	}
	if n.Repeater != nil {
		v.repeater(path+".repeater", n.Repeater)
	}
	for evt, actions := range n.EventHandlers {
		for i, a := range actions {
			v.action(fmt.Sprintf("%s.eventHandlers.%s[%d]", path, evt, i), a)
		}
	}
	for i := range n.Children {
		v.node(fmt.Sprintf("%s.children[%d]", path, i), &n.Children[i])
	}
}

func (v *pageValidator) condition(path string, c domain.VisibilityCondition) {
	if strings.TrimSpace(c.ContextPath) == "" {
		v.fail(path+".contextPath", "context path is required", nil)
	} else {
		v.expression(path+".contextPath", c.ContextPath)
	}
	valueType, ok := knownOperators[c.Operator]
	if !ok {
		v.fail(path+".operator", "unknown operator", c.Operator)
		return
	}
	if valueType != nil {
		if err := valueType.Validate(c.Value); err != nil {
			v.fail(path+".value", err.Error(), c.Value)
		}
	}
}

func (v *pageValidator) repeater(path string, r *domain.Repeater) {
	src := strings.TrimSpace(r.Source)
	src = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(src, "{{"), "}}"))
	if src == "" {
		v.fail(path+".source", "repeater source is required", nil)
	} else {
		v.expression(path+".source", src)
	}
	if r.Template == nil {
		v.fail(path+".template", "repeater template is required", nil)
		return
	}
	v.node(path+".template", r.Template)
}

func (v *pageValidator) requirements(path string, reqs []domain.DataRequirement) {
	keys := make(map[string]bool, len(reqs))
	for i, r := range reqs {
		p := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case r.Key == "":
			v.fail(p+".key", "requirement key is required", nil)
		case keys[r.Key]:
			v.fail(p+".key", "duplicate requirement key", r.Key)
		}
		keys[r.Key] = true

		if r.Source.Type == "" {
			v.fail(p+".source.type", "source type is required", nil)
		} else if len(v.opts.sourceTypes) > 0 && !slices.Contains(v.opts.sourceTypes, r.Source.Type) {
			v.fail(p+".source.type", "unknown source type", r.Source.Type)
		}
		if r.Source.Query == "" && len(r.Source.Queries) == 0 {
			v.fail(p+".source.query", "query or queries is required", nil)
		}
		if r.CacheDurationMs < 0 {
			v.fail(p+".cacheDurationMs", "cache duration must not be negative", r.CacheDurationMs)
		}
		v.templates(p+".source.query", r.Source.Query)
		v.templates(p+".source.queries", r.Source.Queries)
		v.templates(p+".source.variables", r.Source.Variables)
	}
}

func (v *pageValidator) action(path string, a domain.Action) {
	switch a.Type {
	case "":
		v.fail(path+".type", "action type is required", nil)
	case domain.ActionUpdateNodeState:
		target := a.Target
		if target == "" {
			if m, ok := a.Params.(map[string]any); ok {
				target, _ = m["targetNodeId"].(string)
			}
		}
		if target == "" {
			v.fail(path+".targetNodeId", "updateNodeState needs a target node", nil)
		}
	}
	if a.Params != nil {
		if _, ok := a.Params.(map[string]any); !ok && (a.Type == domain.ActionUpdateState || a.Type == domain.ActionUpdateNodeState) {
			v.fail(path+".params", "state actions take an object", a.Params)
		}
	}
	v.templates(path+".targetNodeId", a.Target)
	v.templates(path+".params", a.Params)
}

func (v *pageValidator) contract(path string, n *domain.Node) {
	c, ok := v.opts.contracts[n.Type]
	if !ok || n.Type == "" {
		return
	}
	params, _ := n.Params.(map[string]any)
	static := make(Schema, len(c))
	for field, typ := range c {
		if s, isString := params[field].(string); isString && strings.Contains(s, "{{") {
			continue
		}
		static[field] = typ
	}
	if err := Validate(static, params); err != nil {
		for _, e := range ValidationErrors(err) {
			var ve *ValidationError
			if errors.As(e, &ve) {
				v.fail(path+"."+ve.Key, ve.Reason, ve.Value)
			}
		}
	}
}

// templates parses every {{ }} placeholder found in value.
func (v *pageValidator) templates(path string, value any) {
	for _, expr := range interpolate.Expressions(value) {
		v.expression(path, expr)
	}
}

func (v *pageValidator) expression(path, src string) {
	prog, err := expression.Parse(src)
	if err != nil {
		v.fail(path, "invalid expression: "+err.Error(), src)
		return
	}
	for _, root := range prog.Roots() {
		if !slices.Contains(knownRoots, root) {
			v.fail(path, fmt.Sprintf("unknown context root %q", root), src)
		}
	}
}
