package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
	json "github.com/goccy/go-json"
)

// RQLType is the source type RQL is usually registered under.
const RQLType = domain.SourceRQL

// RQL posts interpolated contract calls to an RQL endpoint.
type RQL struct {
	endpoint string
	token    string
	headers  http.Header
	http     *http.Client
}

// RQLOption configures an RQL source.
type RQLOption func(*RQL)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RQLOption {
	return func(r *RQL) {
		r.http = c
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) RQLOption {
	return func(r *RQL) {
		r.token = token
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) RQLOption {
	return func(r *RQL) {
		r.headers.Add(key, value)
	}
}

// NewRQL creates an RQL source for endpoint.
func NewRQL(endpoint string, opts ...RQLOption) *RQL {
	r := &RQL{
		endpoint: strings.TrimRight(endpoint, "/"),
		headers:  make(http.Header),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rqlRequest struct {
	Query     string         `json:"query,omitempty"`
	Queries   []string       `json:"queries,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

type rqlError struct {
	Message string `json:"message"`
}

type rqlResponse struct {
	Data   any        `json:"data"`
	Errors []rqlError `json:"errors,omitempty"`
}

// Fetch implements ports.DataSource.
func (r *RQL) Fetch(ctx context.Context, src domain.SourceDescriptor) (any, error) {
	body, err := json.Marshal(rqlRequest{Query: src.Query, Queries: src.Queries, Variables: src.Variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range r.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rql: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out rqlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("rql: failed to decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("rql: %s", strings.Join(msgs, "; "))
	}
	return out.Data, nil
}
