package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	json "github.com/goccy/go-json"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// MockType is the source type MockData is usually registered under.
const MockType = domain.SourceMockData

// ErrFixtureNotFound is returned when a query names no fixture.
var ErrFixtureNotFound = errors.New("fixture not found")

// MockData serves values from an in-memory fixture set. The query names the
// fixture; list fixtures honour the filter, offset and limit variables.
//
// filter is an expr-lang boolean evaluated per element with the element's
// fields (and the element itself as item) in scope, plus every other variable
// under vars.
type MockData struct {
	mu       sync.RWMutex
	fixtures map[string]any
	latency  time.Duration
	programs map[string]*vm.Program
}

// MockOption configures MockData.
type MockOption func(*MockData)

// WithLatency delays every fetch, simulating a remote call.
func WithLatency(d time.Duration) MockOption {
	return func(m *MockData) {
		m.latency = d
	}
}

// NewMockData creates a MockData serving fixtures.
func NewMockData(fixtures map[string]any, opts ...MockOption) *MockData {
	m := &MockData{
		fixtures: make(map[string]any, len(fixtures)),
		programs: make(map[string]*vm.Program),
	}
	for k, v := range fixtures {
		m.fixtures[k] = domain.CloneValue(v)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadMockData reads fixtures from a JSON or YAML file whose top level maps
// fixture names to values, or from an .xlsx workbook with one list fixture
// per sheet.
func LoadMockData(path string, opts ...MockOption) (*MockData, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		fixtures, err := readWorkbook(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read workbook %s: %w", path, err)
		}
		return NewMockData(fixtures, opts...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	var fixtures map[string]any
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fixtures)
	default:
		err = json.Unmarshal(data, &fixtures)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode fixtures %s: %w", path, err)
	}
	return NewMockData(fixtures, opts...), nil
}

// Set adds or replaces a fixture.
func (m *MockData) Set(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixtures[name] = domain.CloneValue(value)
}

// Names returns the fixture names.
func (m *MockData) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.fixtures))
	for k := range m.fixtures {
		names = append(names, k)
	}
	return names
}

// Fetch implements ports.DataSource. With Queries set it returns a map of
// query to fixture value.
func (m *MockData) Fetch(ctx context.Context, src domain.SourceDescriptor) (any, error) {
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(src.Queries) > 0 {
		out := make(map[string]any, len(src.Queries))
		for _, q := range src.Queries {
			v, err := m.lookup(q, src.Variables)
			if err != nil {
				return nil, err
			}
			out[q] = v
		}
		return out, nil
	}
	return m.lookup(src.Query, src.Variables)
}

func (m *MockData) lookup(query string, vars map[string]any) (any, error) {
	name := strings.TrimSpace(query)
	m.mu.RLock()
	v, ok := m.fixtures[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFixtureNotFound, name)
	}
	v = domain.CloneValue(v)

	list, isList := v.([]any)
	if !isList {
		return v, nil
	}
	if f, ok := vars["filter"].(string); ok && f != "" {
		filtered, err := m.filter(list, f, vars)
		if err != nil {
			return nil, err
		}
		list = filtered
	}
	return page(list, vars), nil
}

func (m *MockData) filter(list []any, filter string, vars map[string]any) ([]any, error) {
	prog, err := m.compile(filter)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		env := map[string]any{"item": item, "vars": vars}
		if obj, ok := item.(map[string]any); ok {
			for k, v := range obj {
				if _, reserved := env[k]; !reserved {
					env[k] = v
				}
			}
		}
		res, err := expr.Run(prog, env)
		if err != nil {
			return nil, fmt.Errorf("evaluate filter %q: %w", filter, err)
		}
		if keep, _ := res.(bool); keep {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *MockData) compile(filter string) (*vm.Program, error) {
	m.mu.RLock()
	prog, ok := m.programs[filter]
	m.mu.RUnlock()
	if ok {
		return prog, nil
	}
	prog, err := expr.Compile(filter, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", filter, err)
	}
	m.mu.Lock()
	m.programs[filter] = prog
	m.mu.Unlock()
	return prog, nil
}

func page(list []any, vars map[string]any) []any {
	offset := cast.ToInt(vars["offset"])
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []any{}
	}
	list = list[offset:]
	if raw, ok := vars["limit"]; ok {
		if limit := cast.ToInt(raw); limit >= 0 && limit < len(list) {
			list = list[:limit]
		}
	}
	return list
}
