package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrPageNotFound is returned when a page cannot be loaded.
var ErrPageNotFound = errors.New("page not found")

// ErrNodeNotFound is returned when a node id does not exist in the page.
var ErrNodeNotFound = errors.New("node not found")

// ErrNodeNotMounted is returned when an event targets a node outside the render tree.
var ErrNodeNotMounted = errors.New("node not mounted")

// ErrUnknownSource is returned when no data source is registered for a type.
var ErrUnknownSource = errors.New("unknown data source")

// ParseError reports malformed expression syntax.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d in %q: %s", e.Pos, e.Expr, e.Msg)
}

// EvalError reports a failure while evaluating a well-formed expression.
type EvalError struct {
	Expr string
	Msg  string
}

func (e *EvalError) Error() string {
	if e.Expr == "" {
		return "eval error: " + e.Msg
	}
	return fmt.Sprintf("eval error in %q: %s", e.Expr, e.Msg)
}

// FetchError reports a data source failure for one requirement.
type FetchError struct {
	NodeID   string
	Key      string
	Source   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for node '%s' key '%s' failed after %d attempt(s): %v", e.Source, e.NodeID, e.Key, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigError reports a schema misconfiguration, such as a requirement without a source.
type ConfigError struct {
	NodeID string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("node '%s' has invalid %s: %s", e.NodeID, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }
