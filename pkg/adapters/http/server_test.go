package http

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/adapters/sources"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/session"
	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopPage() *domain.Page {
	return &domain.Page{
		ID: "shop",
		Nodes: []domain.Node{
			{
				ID:    "tabs",
				Kind:  domain.KindSection,
				State: map[string]any{"activeTab": "tab1"},
				Children: []domain.Node{
					{
						ID:   "tab-button-2",
						Kind: domain.KindAtom,
						Type: "button",
						EventHandlers: map[string][]domain.Action{
							domain.EventClick: {{
								Type:   domain.ActionUpdateNodeState,
								Target: "tabs",
								Params: map[string]any{"activeTab": "{{ event.value }}"},
							}},
						},
					},
					{
						ID:   "tab2-content",
						Kind: domain.KindComponent,
						Visibility: &domain.Visibility{Conditions: []domain.VisibilityCondition{{
							ContextPath: "parentState.activeTab", Operator: domain.OpEquals, Value: "tab2",
						}}},
					},
				},
			},
			{
				ID:     "greeting",
				Kind:   domain.KindAtom,
				Params: map[string]any{"text": "Hi {{ user.name }}", "html": "<b>{{ user.name }}</b><script>x()</script>"},
			},
			{
				ID:   "products",
				Kind: domain.KindComponent,
				DataRequirements: []domain.DataRequirement{{
					Key:          "items",
					Source:       domain.SourceDescriptor{Type: domain.SourceMockData, Query: "products"},
					Blocking:     true,
					DefaultValue: []any{},
				}},
				Params: map[string]any{"count": "{{ nodeData.items.length }}"},
			},
		},
	}
}

type harness struct {
	handler  http.Handler
	sessions *session.Manager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	loader, err := memory.NewLoader(shopPage())
	require.NoError(t, err)
	mock := sources.NewMockData(map[string]any{"products": []any{"a", "b"}})
	sessions := session.NewManager(memory.NewStore(), session.LoaderFactory(loader,
		osdl.WithSource(sources.MockType, mock),
	))
	t.Cleanup(func() { _ = sessions.Shutdown(context.Background()) })
	return &harness{handler: NewHandler(sessions, loader, opts...), sessions: sessions}
}

func (h *harness) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decodeTree(t *testing.T, w *httptest.ResponseRecorder) treeResponse {
	t.Helper()
	var resp treeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestServer_HealthAndPages(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, "GET", "/pages/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["shop"]`, w.Body.String())

	w = h.do(t, "GET", "/pages/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_SessionFlow(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, "POST", "/sessions/", map[string]any{"session_id": "s1", "page_id": "shop"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	opened := decodeTree(t, w)
	assert.Equal(t, "s1", opened.SessionID)
	assert.Nil(t, opened.Tree.Find("tab2-content"))

	w = h.do(t, "POST", "/sessions/s1/dispatch", map[string]any{"node_id": "tab-button-2", "event": domain.EventClick, "value": "tab2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decodeTree(t, w).Tree.Find("tab2-content"))

	w = h.do(t, "GET", "/sessions/s1/state/tabs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activeTab": "tab2"}`, w.Body.String())

	w = h.do(t, "PUT", "/sessions/s1/state/tabs", map[string]any{"activeTab": "tab1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeTree(t, w).Tree.Find("tab2-content"))

	w = h.do(t, "GET", "/sessions/s1/tree?settle=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	products := decodeTree(t, w).Tree.Find("products")
	require.NotNil(t, products)
	assert.Nil(t, products.Placeholder)
	assert.Equal(t, "2", products.Params.(map[string]any)["count"])

	w = h.do(t, "POST", "/sessions/s1/evaluate", map[string]any{"node_id": "tab2-content", "expr": "parentState.activeTab"})
	require.Equal(t, http.StatusConflict, w.Code, "tab2-content is not mounted")

	w = h.do(t, "POST", "/sessions/s1/evaluate", map[string]any{"expr": "states.tabs.activeTab"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"value": "tab1"}`, w.Body.String())

	w = h.do(t, "DELETE", "/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(t, "GET", "/sessions/s1/tree", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Errors(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, "POST", "/sessions/", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, "POST", "/sessions/", map[string]any{"page_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, "POST", "/sessions/", map[string]any{"page_id": "shop"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeTree(t, w).SessionID
	assert.NotEmpty(t, id)

	w = h.do(t, "POST", "/sessions/"+id+"/dispatch", map[string]any{"node_id": "ghost", "event": "onClick"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, "POST", "/evaluate", map[string]any{"expr": "1 +"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Evaluate(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, "POST", "/evaluate", map[string]any{"expr": "toFixed(price * 2, 2)", "vars": map[string]any{"price": 1.005}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"value": "2.01"}`, w.Body.String())

	w = h.do(t, "POST", "/evaluate", map[string]any{"expr": "missing.path"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value": null, "undefined": true}`, w.Body.String())
}

func TestServer_JWTUserAndSanitizer(t *testing.T) {
	secret := "test-secret"
	h := newHarness(t, WithJWTSecret(secret), WithSanitizer(bluemonday.UGCPolicy()))

	w := h.do(t, "POST", "/sessions/", map[string]any{"session_id": "s1", "page_id": "shop"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, "POST", "/sessions/", map[string]any{"session_id": "s1", "page_id": "shop"}, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "Ada", "role": "admin"}).SignedString([]byte(secret))
	require.NoError(t, err)

	w = h.do(t, "POST", "/sessions/",
		map[string]any{"session_id": "s1", "page_id": "shop", "ambient": map[string]any{"user": map[string]any{"name": "Mallory"}}},
		"Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	params := decodeTree(t, w).Tree.Find("greeting").Params.(map[string]any)
	assert.Equal(t, "Hi Ada", params["text"], "claims win over request user")
	assert.Equal(t, "<b>Ada</b>", params["html"])
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "osdl_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := newHarness(t, WithMetrics(reg))
	w := h.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "osdl_test_total 1")
}

func TestServer_SubscribeEvents(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	w := h.do(t, "POST", "/sessions/", map[string]any{"session_id": "s1", "page_id": "shop"})
	require.Equal(t, http.StatusCreated, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/sessions/s1/events?reasons=state", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}
	waitFor("data: connected")

	w = h.do(t, "PUT", "/sessions/s1/state/tabs", map[string]any{"activeTab": "tab2"})
	require.Equal(t, http.StatusOK, w.Code)

	line := waitFor("data: {")
	var p domain.Patch
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &p))
	assert.Equal(t, domain.ReasonState, p.Reason)
	assert.Contains(t, p.NodeIDs, "tab2-content")
}
