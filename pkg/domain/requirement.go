package domain

import "time"

// SourceDescriptor addresses a remote data source.
// Query and Queries may contain {{ }} templates and are interpolated before fetching.
type SourceDescriptor struct {
	Type      string         `json:"type" yaml:"type" mapstructure:"type"`
	Query     string         `json:"query,omitempty" yaml:"query,omitempty" mapstructure:"query"`
	Queries   []string       `json:"queries,omitempty" yaml:"queries,omitempty" mapstructure:"queries"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty" mapstructure:"variables"`
}

// DataRequirement declares a keyed dependency of a node on remote data.
// Key becomes the property name under the node's nodeData context.
type DataRequirement struct {
	Key             string           `json:"key" yaml:"key" mapstructure:"key"`
	Source          SourceDescriptor `json:"source" yaml:"source" mapstructure:"source"`
	Blocking        bool             `json:"blocking,omitempty" yaml:"blocking,omitempty" mapstructure:"blocking"`
	CacheDurationMs int64            `json:"cacheDurationMs,omitempty" yaml:"cacheDurationMs,omitempty" mapstructure:"cacheDurationMs"`
	DefaultValue    any              `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty" mapstructure:"defaultValue"`
}

// CacheTTL returns the cache lifetime. Zero disables caching.
func (r DataRequirement) CacheTTL() time.Duration {
	if r.CacheDurationMs <= 0 {
		return 0
	}
	return time.Duration(r.CacheDurationMs) * time.Millisecond
}

// Clone returns a deep copy of the requirement.
func (r DataRequirement) Clone() DataRequirement {
	c := r
	if r.Source.Queries != nil {
		c.Source.Queries = append([]string(nil), r.Source.Queries...)
	}
	if r.Source.Variables != nil {
		c.Source.Variables = CloneValue(r.Source.Variables).(map[string]any)
	}
	c.DefaultValue = CloneValue(r.DefaultValue)
	return c
}
