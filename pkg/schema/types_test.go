package schema

import (
	"testing"
)

func TestBuiltinTypes(t *testing.T) {
	tests := []struct {
		typ     Type
		value   any
		wantErr bool
	}{
		{String(), "hello", false},
		{String(), 42, true},
		{Int(), 42, false},
		{Int(), float64(42), false},
		{Int(), 42.5, true},
		{Int(), "42", true},
		{Float(), 3.14, false},
		{Float(), 3, false},
		{Float(), "3", true},
		{Bool(), true, false},
		{Bool(), "true", true},
		{Object(), map[string]any{}, false},
		{Object(), []any{}, true},
		{Slice(String()), []any{"a", "b"}, false},
		{Slice(String()), []any{"a", 1}, true},
		{Slice(Int()), "nope", true},
		{OneOf("skeleton", "spinner"), "spinner", false},
		{OneOf("skeleton", "spinner"), "dots", true},
		{Optional(Int()), 3, false},
		{Optional(Int()), "3", true},
	}

	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Validate(%v) error = %v, wantErr %v", tt.typ.Name(), tt.value, err, tt.wantErr)
		}
	}
}

func TestParseType(t *testing.T) {
	tests := map[string]string{
		"string":   "string",
		"number":   "float",
		"[int]":    "[int]",
		"[[bool]]": "[[bool]]",
		" object ": "object",
		"string?":  "string?",
		"[int]?":   "[int]?",
	}
	for in, want := range tests {
		typ, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q) error = %v", in, err)
		}
		if typ.Name() != want {
			t.Errorf("ParseType(%q).Name() = %q, want %q", in, typ.Name(), want)
		}
	}

	if _, err := ParseType("date"); err == nil {
		t.Error("ParseType(date) should fail")
	}
	if _, err := ParseTypeMap(map[string]string{"a": "string", "b": "uuid"}); err == nil {
		t.Error("ParseTypeMap should report the unsupported field")
	}
}

func TestValidate_Optional(t *testing.T) {
	s := Schema{"label": String(), "hint": Optional(String())}

	if err := Validate(s, map[string]any{"label": "Buy"}); err != nil {
		t.Errorf("absent optional field should pass, got %v", err)
	}
	err := Validate(s, map[string]any{"hint": 1})
	errs := ValidationErrors(err)
	if len(errs) != 2 {
		t.Fatalf("want 2 failures, got %v", err)
	}
}
