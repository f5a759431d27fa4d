package expression

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

// MarshalJSON renders Undefined as null.
func (UndefinedType) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (UndefinedType) String() string { return "undefined" }

// Undefined is the result of reading a path that does not exist.
var Undefined = UndefinedType{}

// IsUndefined reports whether v is Undefined.
func IsUndefined(v any) bool {
	_, ok := v.(UndefinedType)
	return ok
}

// IsNullish reports whether v is nil or Undefined.
func IsNullish(v any) bool {
	return v == nil || IsUndefined(v)
}

// Indexer is implemented by values that resolve their members lazily.
type Indexer interface {
	Index(key string) (any, bool)
}

// AsNumber converts numeric Go values to float64.
// Strings and booleans are not numbers.
func AsNumber(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Truthy applies JavaScript-like truthiness.
func Truthy(v any) bool {
	if IsNullish(v) {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := AsNumber(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// ToString formats a value for display: numbers as-is, booleans as "true"/"false",
// nil and Undefined as "", structured values as JSON.
func ToString(v any) string {
	if IsNullish(v) {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	}
	if f, ok := AsNumber(v); ok {
		return FormatNumber(f)
	}
	b, err := gojson.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// FormatNumber renders integral floats without a fractional part.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// StrictEqual compares without type coercion. Numbers compare by value
// regardless of Go type; structured values compare deeply.
func StrictEqual(a, b any) bool {
	if IsUndefined(a) || IsUndefined(b) {
		return IsUndefined(a) && IsUndefined(b)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := AsNumber(a)
	fb, bNum := AsNumber(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

// LooseEqual treats null and undefined as equal and coerces numeric strings
// and booleans when compared with numbers.
func LooseEqual(a, b any) bool {
	if IsNullish(a) || IsNullish(b) {
		return IsNullish(a) && IsNullish(b)
	}
	fa, aNum := AsNumber(a)
	fb, bNum := AsNumber(b)
	switch {
	case aNum && !bNum:
		if g, ok := coerceNumber(b); ok {
			return fa == g
		}
	case bNum && !aNum:
		if g, ok := coerceNumber(a); ok {
			return g == fb
		}
	}
	return StrictEqual(a, b)
}

func coerceNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

// Compare orders two numbers or two strings. ok is false for any other pairing.
func Compare(a, b any) (cmp int, ok bool) {
	if fa, aok := AsNumber(a); aok {
		fb, bok := AsNumber(b)
		if !bok || math.IsNaN(fa) || math.IsNaN(fb) {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// Member reads a property of obj. Missing paths yield Undefined.
func Member(obj any, key string) any {
	if IsNullish(obj) {
		return Undefined
	}
	switch val := obj.(type) {
	case Indexer:
		if v, ok := val.Index(key); ok {
			return v
		}
		return Undefined
	case map[string]any:
		if v, ok := val[key]; ok {
			return v
		}
		return Undefined
	case []any:
		if key == "length" {
			return float64(len(val))
		}
		if i, err := strconv.Atoi(key); err == nil {
			return Element(val, i)
		}
		return Undefined
	case string:
		if key == "length" {
			return float64(len([]rune(val)))
		}
		return Undefined
	}
	return reflectMember(obj, key)
}

// Element reads index i of a slice, Undefined when out of range.
func Element(list []any, i int) any {
	if i < 0 || i >= len(list) {
		return Undefined
	}
	return list[i]
}

// At reads obj[key] where key is any evaluated value.
func At(obj any, key any) any {
	if IsNullish(obj) || IsNullish(key) {
		return Undefined
	}
	if f, ok := AsNumber(key); ok {
		if f != math.Trunc(f) {
			return Undefined
		}
		switch val := obj.(type) {
		case []any:
			return Element(val, int(f))
		case string:
			r := []rune(val)
			if f < 0 || int(f) >= len(r) {
				return Undefined
			}
			return string(r[int(f)])
		}
		rv := reflect.ValueOf(obj)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			i := int(f)
			if i < 0 || i >= rv.Len() {
				return Undefined
			}
			return rv.Index(i).Interface()
		}
		return Member(obj, FormatNumber(f))
	}
	return Member(obj, ToString(key))
}

// AsList converts array-like values to []any.
func AsList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case nil, UndefinedType, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func reflectMember(obj any, key string) any {
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Undefined
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return Undefined
		}
		return v.Interface()
	case reflect.Slice, reflect.Array:
		if key == "length" {
			return float64(rv.Len())
		}
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < rv.Len() {
			return rv.Index(i).Interface()
		}
	}
	return Undefined
}
