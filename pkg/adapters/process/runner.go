// Package process executes dispatched actions as local processes, following
// an allow-list: only action types bound in configuration ever run.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/registry"
	json "github.com/goccy/go-json"
)

// EnvPrefix prefixes the environment variables carrying action params.
const EnvPrefix = "OSDL_PARAM_"

// ErrNotRegistered is returned for action types without a bound command.
var ErrNotRegistered = errors.New("process action not registered")

// Runner executes the commands bound to action types.
type Runner struct {
	registry map[string]ProcessConfig
	baseDir  string
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(actions map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, cfg := range actions {
			cfg.Action = name
			r.registry[name] = cfg
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]ProcessConfig),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds an action type to a trusted command.
func (r *Runner) Register(actionType string, command string, args ...string) {
	r.registry[actionType] = ProcessConfig{Action: actionType, Command: command, Args: args}
}

// Actions lists the bound action types, sorted.
func (r *Runner) Actions() []string {
	out := make([]string, 0, len(r.registry))
	for name := range r.registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Install registers every bound action type on reg.
func (r *Runner) Install(reg *registry.Registry) {
	for _, name := range r.Actions() {
		reg.Register(name, r.Dispatch)
	}
}

// Dispatch runs the command bound to req.Type. The full request is written
// to stdin as JSON; params are also exported as OSDL_PARAM_<KEY> variables
// so commands never receive user data as flags. A non-zero exit fails the
// action with the command's stderr.
func (r *Runner) Dispatch(ctx context.Context, req domain.ActionRequest) error {
	proc, ok := r.registry[req.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, req.Type)
	}

	if d := proc.timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(cmd.Environ(),
		"OSDL_ACTION="+req.Type,
		"OSDL_NODE_ID="+req.NodeID,
		"OSDL_EVENT="+req.Event,
		"OSDL_TARGET="+req.Target,
	)
	for k, v := range proc.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, paramEnv(req.Params)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("action %s failed: %w: %s", req.Type, err, strings.TrimSpace(stderr.String()))
	}
	r.logger.Debug("Action process finished", "action", req.Type, "node_id", req.NodeID, "output", strings.TrimSpace(stdout.String()))
	return nil
}

func paramEnv(params any) []string {
	m, ok := params.(map[string]any)
	if !ok {
		return nil
	}
	env := make([]string, 0, len(m))
	for k, v := range m {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if b, err := json.Marshal(v); err == nil {
				val = string(b)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+val)
	}
	return env
}
