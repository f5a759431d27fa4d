package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
	json "github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a page file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// Decode parses a page and normalizes its node ids.
func Decode(data []byte, format Format) (*domain.Page, error) {
	var raw map[string]any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid page json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid page yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported page format %q", format)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty page document")
	}
	return FromMap(raw)
}

// DecodeFile reads and decodes a page file. The page id defaults to the file name.
func DecodeFile(path string) (*domain.Page, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported page file %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page file: %w", err)
	}
	page, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if page.ID == "" {
		page.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return page, nil
}

// FromMap decodes an already parsed document, such as front matter, into a
// page. Unknown fields are rejected so typos do not silently disable a feature.
func FromMap(raw map[string]any) (*domain.Page, error) {
	var page domain.Page
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &page,
		TagName:     "mapstructure",
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(normalizeValue(raw)); err != nil {
		return nil, fmt.Errorf("invalid page: %w", err)
	}
	Normalize(&page)
	return &page, nil
}

// normalizeValue converts YAML integers to float64 and generic YAML maps to
// string-keyed maps, so pages decode to the same values whatever their encoding.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = normalizeValue(sub)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[fmt.Sprint(k)] = normalizeValue(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = normalizeValue(sub)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	}
	return v
}
