package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ProcessConfig binds an action type to an external command.
type ProcessConfig struct {
	Action      string            `yaml:"action" json:"action"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Timeout     string            `yaml:"timeout" json:"timeout"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of actions.yaml.
type ConfigFile struct {
	Actions []ProcessConfig `yaml:"actions" json:"actions"`
}

// LoadActions reads a configuration file (YAML or JSON) and returns the
// configs keyed by action type. A missing file yields an empty map.
func LoadActions(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read actions config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out := make(map[string]ProcessConfig)
	for _, a := range cfg.Actions {
		if a.Action == "" || a.Command == "" {
			continue
		}
		if a.Timeout != "" {
			if _, err := cast.ToDurationE(a.Timeout); err != nil {
				return nil, fmt.Errorf("action %s: invalid timeout %q: %w", a.Action, a.Timeout, err)
			}
		}
		out[a.Action] = a
	}
	return out, nil
}

func (c ProcessConfig) timeout() time.Duration {
	return cast.ToDuration(c.Timeout)
}
