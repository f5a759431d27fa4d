package expression_test

import (
	"testing"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statesView map[string]map[string]any

func (s statesView) Index(key string) (any, bool) {
	v, ok := s[key]
	if !ok {
		return nil, false
	}
	return v, true
}

func fixtureScope() expression.MapScope {
	return expression.MapScope{
		"data": map[string]any{
			"product": map[string]any{"id": "p-1", "price": 19.5, "name": "Mug"},
			"tags":    []any{"a", "b"},
		},
		"states": statesView{
			"tabs-container": {"activeTab": "tab1"},
			"catalog": {
				"sampleProducts": []any{map[string]any{"name": "first"}},
			},
		},
		"user":     map[string]any{"isAdmin": false, "name": "ana"},
		"viewport": map[string]any{"width": 1024},
	}
}

func TestEvaluate(t *testing.T) {
	scope := fixtureScope()

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"arithmetic precedence", "1 + 2 * 3", float64(7)},
		{"parentheses", "(1 + 2) * 3", float64(9)},
		{"modulo", "7 % 4", float64(3)},
		{"unary minus", "-data.product.price", -19.5},
		{"string concatenation", "'$' + data.product.price", "$19.5"},
		{"ternary true", "true ? 'x' : 'y'", "x"},
		{"nested ternary", "viewport.width > 2000 ? 'xl' : viewport.width > 800 ? 'lg' : 'sm'", "lg"},
		{"logical or returns operand", "user.nickname || user.name", "ana"},
		{"logical and short circuits", "user.isAdmin && missing.fn()", false},
		{"not", "!user.isAdmin", true},
		{"hyphenated state id", "states['tabs-container'].activeTab", "tab1"},
		{"double quoted key", `states["tabs-container"].activeTab == "tab1"`, true},
		{"loose equality coerces", "viewport.width == '1024'", true},
		{"strict equality does not", "viewport.width === '1024'", false},
		{"strict equality across numeric types", "viewport.width === 1024", true},
		{"array length", "data.tags.length", float64(2)},
		{"computed index", "data.tags[1]", "b"},
		{"comparison on mixed types is false", "data.tags > 1", false},
		{"string comparison", "'a' < 'b'", true},
		{"toFixed", "toFixed(data.product.price, 2)", "19.50"},
		{"toFixed rounds", "toFixed(2.345, 2)", "2.35"},
		{"method call form", "data.product.name.uppercase()", "MUG"},
		{"includes", "includes(data.tags, 'b')", true},
		{"join", "join(data.tags, '|')", "a|b"},
		{"null literal", "null", nil},
		{"fallback pattern", `states["catalog"].sampleProducts[10] ? states["catalog"].sampleProducts[10].name : "fallback"`, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expression.Evaluate(tt.expr, scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_MissingPathsAreUndefined(t *testing.T) {
	scope := fixtureScope()

	for _, expr := range []string{
		`states["x"].sampleProducts[10].name`,
		`states["catalog"].sampleProducts[10].name`,
		`data.product.vendor.address.city`,
		`nothing`,
		`data.tags[-1]`,
		`data.tags[1.5]`,
		`user.name.first`,
	} {
		t.Run(expr, func(t *testing.T) {
			got, err := expression.Evaluate(expr, scope)
			require.NoError(t, err)
			assert.True(t, expression.IsUndefined(got), "got %#v", got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	scope := fixtureScope()

	t.Run("parse errors", func(t *testing.T) {
		for _, expr := range []string{"", "1 +", "a ? b", "(1", "'open", "a.[0]", "1 @ 2"} {
			got, err := expression.Evaluate(expr, scope)
			var pe *domain.ParseError
			assert.ErrorAs(t, err, &pe, "expr %q", expr)
			assert.True(t, expression.IsUndefined(got))
		}
	})

	t.Run("eval errors", func(t *testing.T) {
		for _, expr := range []string{"unknownFn(1)", "data.tags * 2", "1 / 0", "-user.name"} {
			got, err := expression.Evaluate(expr, scope)
			var ee *domain.EvalError
			require.ErrorAs(t, err, &ee, "expr %q", expr)
			assert.Equal(t, expr, ee.Expr)
			assert.True(t, expression.IsUndefined(got))
		}
	})
}

func TestEvaluate_Deterministic(t *testing.T) {
	scope := fixtureScope()
	expr := "data.product.name + ' ' + toFixed(data.product.price, 1)"

	first, err := expression.Evaluate(expr, scope)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := expression.Evaluate(expr, scope)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "Mug 19.5", first)
}

func TestProgram_Roots(t *testing.T) {
	p, err := expression.Parse("states['a'].x > 1 ? item.name : toFixed(data.price, 2)")
	require.NoError(t, err)
	assert.Equal(t, []string{"data", "item", "states"}, p.Roots())
	assert.Equal(t, "states['a'].x > 1 ? item.name : toFixed(data.price, 2)", p.Source())
}

func TestEvaluator_WithFunction(t *testing.T) {
	ev := expression.NewEvaluator(expression.WithFunction("double", func(args []any) (any, error) {
		f, _ := expression.AsNumber(args[0])
		return f * 2, nil
	}))

	got, err := ev.Evaluate("double(21)", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(42), got)

	_, err = expression.Evaluate("double(21)", nil)
	assert.Error(t, err)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", expression.ToString(expression.Undefined))
	assert.Equal(t, "", expression.ToString(nil))
	assert.Equal(t, "3", expression.ToString(float64(3)))
	assert.Equal(t, "0.1", expression.ToString(0.1))
	assert.Equal(t, "true", expression.ToString(true))
	assert.Equal(t, `{"a":1}`, expression.ToString(map[string]any{"a": 1}))
	assert.Equal(t, `[1,"x"]`, expression.ToString([]any{1, "x"}))
}
