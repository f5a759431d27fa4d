// Package interpolate resolves {{ expr }} placeholders inside arbitrary JSON-like values.
package interpolate

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// ErrorHook receives placeholder failures. The placeholder itself renders as Undefined.
type ErrorHook func(expr string, err error)

// Interpolator walks values and substitutes placeholders.
type Interpolator struct {
	evaluator *expression.Evaluator
	logger    *slog.Logger
	onError   ErrorHook
	typed     bool
}

// Option configures an Interpolator.
type Option func(*Interpolator)

// WithLogger sets the logger used for parse and evaluation failures.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interpolator) {
		i.logger = l
	}
}

// WithEvaluator replaces the expression evaluator.
func WithEvaluator(ev *expression.Evaluator) Option {
	return func(i *Interpolator) {
		i.evaluator = ev
	}
}

// WithErrorHook registers a callback for placeholder failures.
func WithErrorHook(h ErrorHook) Option {
	return func(i *Interpolator) {
		i.onError = h
	}
}

// WithTypedValues makes a string that is exactly one placeholder yield the
// evaluated value itself, numbers and booleans included. Undefined becomes nil.
// Strings mixing text and placeholders are still formatted as text.
func WithTypedValues() Option {
	return func(i *Interpolator) {
		i.typed = true
	}
}

// New creates an Interpolator.
func New(opts ...Option) *Interpolator {
	i := &Interpolator{
		evaluator: expression.NewEvaluator(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// With returns a copy of i with opts applied on top of its configuration.
func (i *Interpolator) With(opts ...Option) *Interpolator {
	c := *i
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

var defaultInterpolator = New()

// ResolveBindings resolves value against scope with the default Interpolator.
func ResolveBindings(value any, scope expression.Scope, extra map[string]any) any {
	return defaultInterpolator.ResolveBindings(value, scope, extra)
}

// ResolveBindings returns a deep copy of value where every string containing
// placeholders is resolved against scope. Keys in extra shadow scope roots.
// Map keys are never interpolated.
func (i *Interpolator) ResolveBindings(value any, scope expression.Scope, extra map[string]any) any {
	return i.walk(value, expression.Overlay(scope, extra))
}

func (i *Interpolator) walk(value any, scope expression.Scope) any {
	switch v := value.(type) {
	case string:
		return i.String(v, scope)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			out[k] = i.walk(el, scope)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for idx, el := range v {
			out[idx] = i.walk(el, scope)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for idx, el := range v {
			out[idx] = i.String(el, scope)
		}
		return out
	}
	return value
}

// String resolves the placeholders of a single string. A string that is exactly
// one placeholder evaluating to an object or array yields that value unchanged;
// every other result is formatted as text unless WithTypedValues is set.
func (i *Interpolator) String(s string, scope expression.Scope) any {
	if !strings.Contains(s, openDelim) {
		return s
	}
	segs := split(s)
	if len(segs) == 1 && segs[0].expr {
		v := i.eval(segs[0].text, scope)
		if i.typed {
			if expression.IsUndefined(v) {
				return nil
			}
			return v
		}
		if isStructured(v) {
			return v
		}
		return Format(v)
	}
	var b strings.Builder
	for _, seg := range segs {
		if !seg.expr {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(Format(i.eval(seg.text, scope)))
	}
	return b.String()
}

// Eval evaluates one bare expression, degrading failures to Undefined.
func (i *Interpolator) Eval(expr string, scope expression.Scope) any {
	return i.eval(expr, scope)
}

func (i *Interpolator) eval(expr string, scope expression.Scope) any {
	v, err := i.evaluator.Evaluate(expr, scope)
	if err != nil {
		level := slog.LevelDebug
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			level = slog.LevelWarn
		}
		i.logger.Log(context.Background(), level, "placeholder evaluation failed", "expr", expr, "error", err)
		if i.onError != nil {
			i.onError(expr, err)
		}
		return expression.Undefined
	}
	return v
}

func isStructured(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	case nil, string, bool, expression.UndefinedType:
		return false
	}
	if _, ok := expression.AsNumber(v); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Map || k == reflect.Slice || k == reflect.Array || k == reflect.Struct || k == reflect.Pointer
}

// Format stringifies an evaluated value for embedding in text.
func Format(v any) string {
	return expression.ToString(v)
}

// Contains reports whether any string inside value carries a placeholder.
func Contains(value any) bool {
	return len(Expressions(value)) > 0
}

// Expressions lists the placeholder bodies found in value, in walk order.
// Map iteration order is not stable, so callers should not rely on ordering across keys.
func Expressions(value any) []string {
	var out []string
	var visit func(v any)
	visit = func(v any) {
		switch val := v.(type) {
		case string:
			if !strings.Contains(val, openDelim) {
				return
			}
			for _, seg := range split(val) {
				if seg.expr {
					out = append(out, seg.text)
				}
			}
		case map[string]any:
			for _, el := range val {
				visit(el)
			}
		case []any:
			for _, el := range val {
				visit(el)
			}
		case []string:
			for _, el := range val {
				visit(el)
			}
		}
	}
	visit(value)
	return out
}

type segment struct {
	text string
	expr bool
}

// split cuts s into literal and placeholder segments. An unterminated "{{"
// is kept as literal text.
func split(s string) []segment {
	var segs []segment
	for len(s) > 0 {
		start := strings.Index(s, openDelim)
		if start < 0 {
			segs = append(segs, segment{text: s})
			break
		}
		end := strings.Index(s[start+len(openDelim):], closeDelim)
		if end < 0 {
			segs = append(segs, segment{text: s})
			break
		}
		if start > 0 {
			segs = append(segs, segment{text: s[:start]})
		}
		inner := s[start+len(openDelim) : start+len(openDelim)+end]
		segs = append(segs, segment{text: strings.TrimSpace(inner), expr: true})
		s = s[start+len(openDelim)+end+len(closeDelim):]
	}
	return segs
}
