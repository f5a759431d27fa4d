package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type checks a single param value of a component contract.
type Type interface {
	// Name is the type as written in contract files, e.g. "string" or "[int]".
	Name() string
	Validate(value any) error
}

// checker is a named predicate. Every built-in scalar is one.
type checker struct {
	name  string
	check func(any) error
}

func (c checker) Name() string             { return c.name }
func (c checker) Validate(value any) error { return c.check(value) }

func expect(name string, ok func(any) bool) Type {
	return checker{name: name, check: func(v any) error {
		if !ok(v) {
			return fmt.Errorf("expected %s, got %T", name, v)
		}
		return nil
	}}
}

var (
	stringType = expect("string", func(v any) bool { _, ok := v.(string); return ok })
	boolType   = expect("bool", func(v any) bool { _, ok := v.(bool); return ok })
	objectType = expect("object", func(v any) bool { _, ok := v.(map[string]any); return ok })
	floatType  = expect("float", isNumber)
	intType    = checker{name: "int", check: func(v any) error {
		if f, ok := v.(float64); ok {
			// Decoded YAML and JSON numbers are always float64.
			if f != float64(int64(f)) {
				return fmt.Errorf("expected int, got %v", f)
			}
			return nil
		}
		switch reflect.ValueOf(v).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return nil
		}
		return fmt.Errorf("expected int, got %T", v)
	}}
)

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

// String accepts strings.
func String() Type { return stringType }

// Int accepts integers, including whole float64 values.
func Int() Type { return intType }

// Float accepts any number.
func Float() Type { return floatType }

// Bool accepts booleans.
func Bool() Type { return boolType }

// Object accepts decoded objects (map[string]any).
func Object() Type { return objectType }

// Slice accepts lists whose every element matches elem.
func Slice(elem Type) Type {
	return checker{name: "[" + elem.Name() + "]", check: func(v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Errorf("expected list, got %T", v)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := elem.Validate(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	}}
}

// Custom wraps a user-defined check.
func Custom(name string, validate func(any) error) Type {
	return checker{name: name, check: validate}
}

// OneOf accepts only the listed strings.
func OneOf(values ...string) Type {
	return Custom("enum("+strings.Join(values, "|")+")", func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		for _, allowed := range values {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(values, ", "))
	})
}

type optional struct{ Type }

func (o optional) Name() string { return o.Type.Name() + "?" }

// Optional lets a contract field be absent. Present values still match t.
func Optional(t Type) Type { return optional{t} }

func isOptional(t Type) bool {
	_, ok := t.(optional)
	return ok
}

var scalars = map[string]Type{
	"string": stringType,
	"int":    intType,
	"float":  floatType,
	"number": floatType,
	"bool":   boolType,
	"object": objectType,
}

// ParseType reads a contract type name: a scalar ("string", "int", "float",
// "number", "bool", "object"), a list such as "[string]", and a trailing "?"
// for optional fields.
func ParseType(typeStr string) (Type, error) {
	typeStr = strings.TrimSpace(typeStr)
	if base, ok := strings.CutSuffix(typeStr, "?"); ok {
		t, err := ParseType(base)
		if err != nil {
			return nil, err
		}
		return Optional(t), nil
	}
	if len(typeStr) > 2 && typeStr[0] == '[' && typeStr[len(typeStr)-1] == ']' {
		elem, err := ParseType(typeStr[1 : len(typeStr)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}
	if t, ok := scalars[typeStr]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unsupported type: %s", typeStr)
}

// ParseTypeMap builds a Schema from field names to type names.
// Example: {"label": "string", "count": "int", "hint": "string?"}
func ParseTypeMap(typeMap map[string]string) (Schema, error) {
	result := make(Schema, len(typeMap))
	for key, typeStr := range typeMap {
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = t
	}
	return result, nil
}
