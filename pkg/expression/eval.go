package expression

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/aretw0/osdl/pkg/domain"
)

// Func is a whitelisted function callable from expressions.
type Func func(args []any) (any, error)

// Evaluator evaluates expressions against a Scope using a function table.
// Parsed programs are cached by source text.
type Evaluator struct {
	funcs map[string]Func

	mu    sync.RWMutex
	cache map[string]*Program
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFunction registers (or replaces) a callable function.
func WithFunction(name string, fn Func) Option {
	return func(e *Evaluator) {
		e.funcs[name] = fn
	}
}

const maxCachedPrograms = 4096

// NewEvaluator creates an Evaluator with the builtin function table.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		funcs: builtins(),
		cache: make(map[string]*Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEvaluator = NewEvaluator()

// Evaluate parses and evaluates src with the default evaluator.
func Evaluate(src string, scope Scope) (any, error) {
	return defaultEvaluator.Evaluate(src, scope)
}

// Compile parses src, reusing a cached Program when possible.
func (e *Evaluator) Compile(src string) (*Program, error) {
	e.mu.RLock()
	p, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if len(e.cache) >= maxCachedPrograms {
		e.cache = make(map[string]*Program)
	}
	e.cache[src] = p
	e.mu.Unlock()
	return p, nil
}

// Evaluate parses and evaluates src. On error the value is Undefined.
func (e *Evaluator) Evaluate(src string, scope Scope) (any, error) {
	p, err := e.Compile(src)
	if err != nil {
		return Undefined, err
	}
	return e.Run(p, scope)
}

// Run evaluates a compiled program. On error the value is Undefined.
func (e *Evaluator) Run(p *Program, scope Scope) (any, error) {
	if scope == nil {
		scope = MapScope{}
	}
	v, err := p.root.eval(e, scope)
	if err != nil {
		var ee *domain.EvalError
		if errors.As(err, &ee) && ee.Expr == "" {
			ee.Expr = p.src
		}
		return Undefined, err
	}
	return v, nil
}

// Eval evaluates the program with the default evaluator.
func (p *Program) Eval(scope Scope) (any, error) {
	return defaultEvaluator.Run(p, scope)
}

func evalErr(format string, args ...any) error {
	return &domain.EvalError{Msg: fmt.Sprintf(format, args...)}
}

func (n *literal) eval(_ *Evaluator, _ Scope) (any, error) { return n.value, nil }

// Unknown roots are Undefined rather than errors.
func (n *ident) eval(_ *Evaluator, s Scope) (any, error) {
	if v, ok := s.Lookup(n.name); ok {
		return v, nil
	}
	return Undefined, nil
}

func (n *member) eval(e *Evaluator, s Scope) (any, error) {
	obj, err := n.object.eval(e, s)
	if err != nil {
		return nil, err
	}
	return Member(obj, n.property), nil
}

func (n *index) eval(e *Evaluator, s Scope) (any, error) {
	obj, err := n.object.eval(e, s)
	if err != nil {
		return nil, err
	}
	key, err := n.key.eval(e, s)
	if err != nil {
		return nil, err
	}
	return At(obj, key), nil
}

func (n *call) eval(e *Evaluator, s Scope) (any, error) {
	fn, ok := e.funcs[n.name]
	if !ok {
		return nil, evalErr("unknown function %q", n.name)
	}
	args, err := evalArgs(e, s, n.args)
	if err != nil {
		return nil, err
	}
	return fn(args)
}

func (n *methodCall) eval(e *Evaluator, s Scope) (any, error) {
	fn, ok := e.funcs[n.name]
	if !ok {
		return nil, evalErr("unknown function %q", n.name)
	}
	recv, err := n.receiver.eval(e, s)
	if err != nil {
		return nil, err
	}
	args, err := evalArgs(e, s, n.args)
	if err != nil {
		return nil, err
	}
	return fn(append([]any{recv}, args...))
}

func evalArgs(e *Evaluator, s Scope, nodes []node) ([]any, error) {
	args := make([]any, len(nodes))
	for i, a := range nodes {
		v, err := a.eval(e, s)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (n *unary) eval(e *Evaluator, s Scope) (any, error) {
	x, err := n.x.eval(e, s)
	if err != nil {
		return nil, err
	}
	if n.op == "!" {
		return !Truthy(x), nil
	}
	f, ok := AsNumber(x)
	if !ok {
		return nil, evalErr("cannot negate %s", typeName(x))
	}
	return -f, nil
}

func (n *logical) eval(e *Evaluator, s Scope) (any, error) {
	left, err := n.left.eval(e, s)
	if err != nil {
		return nil, err
	}
	if n.op == "||" {
		if Truthy(left) {
			return left, nil
		}
	} else if !Truthy(left) {
		return left, nil
	}
	return n.right.eval(e, s)
}

func (n *conditional) eval(e *Evaluator, s Scope) (any, error) {
	test, err := n.test.eval(e, s)
	if err != nil {
		return nil, err
	}
	if Truthy(test) {
		return n.consequent.eval(e, s)
	}
	return n.alternate.eval(e, s)
}

func (n *binary) eval(e *Evaluator, s Scope) (any, error) {
	left, err := n.left.eval(e, s)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(e, s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "===":
		return StrictEqual(left, right), nil
	case "!==":
		return !StrictEqual(left, right), nil
	case "==":
		return LooseEqual(left, right), nil
	case "!=":
		return !LooseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		cmp, ok := Compare(left, right)
		if !ok {
			return false, nil
		}
		switch n.op {
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		}
		return cmp >= 0, nil
	case "+":
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return ToString(left) + ToString(right), nil
		}
	}

	a, aok := AsNumber(left)
	b, bok := AsNumber(right)
	if !aok || !bok {
		return nil, evalErr("operator %s needs numbers, got %s and %s", n.op, typeName(left), typeName(right))
	}
	switch n.op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, evalErr("division by zero")
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return nil, evalErr("division by zero")
		}
		return math.Mod(a, b), nil
	}
	return nil, evalErr("unsupported operator %s", n.op)
}

func typeName(v any) string {
	switch {
	case IsUndefined(v):
		return "undefined"
	case v == nil:
		return "null"
	}
	if _, ok := AsNumber(v); ok {
		return "number"
	}
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
