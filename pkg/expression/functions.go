package expression

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

func builtins() map[string]Func {
	return map[string]Func{
		"toFixed":   toFixed,
		"length":    length,
		"includes":  includes,
		"join":      join,
		"uppercase": caseFunc(strings.ToUpper),
		"lowercase": caseFunc(strings.ToLower),
	}
}

// toFixed(number, digits) rounds half away from zero and always renders
// exactly digits decimals. Non-numeric input yields Undefined.
func toFixed(args []any) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, evalErr("toFixed expects 1 or 2 arguments, got %d", len(args))
	}
	f, ok := AsNumber(args[0])
	if !ok {
		s, isStr := args[0].(string)
		if !isStr {
			return Undefined, nil
		}
		var err error
		if f, err = cast.ToFloat64E(strings.TrimSpace(s)); err != nil {
			return Undefined, nil
		}
	}
	digits := 0
	if len(args) == 2 {
		d, ok := AsNumber(args[1])
		if !ok || d < 0 || d > 100 {
			return nil, evalErr("toFixed digits must be a number between 0 and 100")
		}
		digits = int(d)
	}
	return decimal.NewFromFloat(f).StringFixed(int32(digits)), nil
}

func length(args []any) (any, error) {
	if len(args) != 1 {
		return nil, evalErr("length expects 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case string:
		return float64(len([]rune(v))), nil
	case map[string]any:
		return float64(len(v)), nil
	}
	if list, ok := AsList(args[0]); ok {
		return float64(len(list)), nil
	}
	return float64(0), nil
}

// includes(haystack, needle) checks list membership or substring presence.
func includes(args []any) (any, error) {
	if len(args) != 2 {
		return nil, evalErr("includes expects 2 arguments, got %d", len(args))
	}
	if s, ok := args[0].(string); ok {
		return strings.Contains(s, ToString(args[1])), nil
	}
	list, ok := AsList(args[0])
	if !ok {
		return false, nil
	}
	for _, el := range list {
		if StrictEqual(el, args[1]) {
			return true, nil
		}
	}
	return false, nil
}

func join(args []any) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, evalErr("join expects 1 or 2 arguments, got %d", len(args))
	}
	list, ok := AsList(args[0])
	if !ok {
		return "", nil
	}
	sep := ","
	if len(args) == 2 {
		sep = ToString(args[1])
	}
	parts := make([]string, len(list))
	for i, el := range list {
		parts[i] = ToString(el)
	}
	return strings.Join(parts, sep), nil
}

func caseFunc(fn func(string) string) Func {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, evalErr("expects 1 argument, got %d", len(args))
		}
		if IsNullish(args[0]) {
			return Undefined, nil
		}
		return fn(ToString(args[0])), nil
	}
}
