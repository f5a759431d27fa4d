package schema

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValidate(t *testing.T) {
	s := Schema{"label": String(), "count": Int(), "tags": Slice(String())}

	assert.NoError(t, Validate(s, map[string]any{"label": "Buy", "count": 2, "tags": []string{"x"}}))
	assert.NoError(t, Validate(nil, map[string]any{"anything": 1}))

	err := Validate(s, map[string]any{"label": 1, "tags": []any{"x"}})
	require.Error(t, err)
	errs := ValidationErrors(err)
	require.Len(t, errs, 2)
	assert.Equal(t, `field "count": required`, errs[0].Error())
	assert.True(t, strings.HasPrefix(errs[1].Error(), `field "label": expected string`))
	assert.Contains(t, err.Error(), "2 validation errors")
}

func TestValidationErrors_NotAggregate(t *testing.T) {
	assert.Nil(t, ValidationErrors(assert.AnError))
}

func TestSchema_Serialization(t *testing.T) {
	var fromJSON Schema
	require.NoError(t, json.Unmarshal([]byte(`{"label":"string","sizes":"[int]"}`), &fromJSON))
	assert.Equal(t, "[int]", fromJSON["sizes"].Name())

	var fromYAML map[string]Schema
	require.NoError(t, yaml.Unmarshal([]byte("button:\n  label: string\n  disabled: bool\n"), &fromYAML))
	assert.Equal(t, "bool", fromYAML["button"]["disabled"].Name())

	out, err := json.Marshal(fromJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"string","sizes":"[int]"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"label":"uuid"}`), &fromJSON))
}
