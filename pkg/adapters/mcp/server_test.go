package mcp

import (
	"context"
	"testing"

	"github.com/aretw0/osdl/pkg/adapters/memory"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/session"
	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterPage() *domain.Page {
	return &domain.Page{
		ID: "counter",
		Nodes: []domain.Node{{
			ID:    "counter",
			Kind:  domain.KindComponent,
			State: map[string]any{"count": float64(0)},
			EventHandlers: map[string][]domain.Action{
				domain.EventClick: {{
					Type:   domain.ActionUpdateState,
					Params: map[string]any{"count": "{{ state.count + event.value }}"},
				}},
			},
			Params: map[string]any{"label": "Count: {{ state.count }}", "who": "{{ user.name }}"},
		}},
	}
}

func newServer(t *testing.T) *Server {
	t.Helper()
	loader, err := memory.NewLoader(counterPage(), &domain.Page{ID: "broken", Nodes: []domain.Node{{ID: "x", Kind: "widget"}}})
	require.NoError(t, err)
	sessions := session.NewManager(memory.NewStore(), session.LoaderFactory(loader))
	t.Cleanup(func() { _ = sessions.Shutdown(context.Background()) })
	return NewServer(sessions, loader)
}

func label(t *testing.T, resp RenderResponse) string {
	t.Helper()
	n := resp.Tree.Find("counter")
	require.NotNil(t, n)
	return n.Params.(map[string]any)["label"].(string)
}

func TestServer_RenderDispatchUpdate(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	resp, err := s.handleRender(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"page_id":    "counter",
		"session_id": "s1",
		"ambient":    `{"user": {"name": "Ada"}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "Count: 0", label(t, resp))
	assert.Equal(t, "Ada", resp.Tree.Find("counter").Params.(map[string]any)["who"])

	resp, err = s.handleDispatch(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "s1", "node_id": "counter", "event": domain.EventClick, "value": "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Count: 2", label(t, resp))

	resp, err = s.handleUpdateState(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "s1", "node_id": "counter", "state": `{"count": 10}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Count: 10", label(t, resp))

	_, err = s.handleUpdateState(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "s1", "node_id": "counter", "state": `{not json`,
	})
	assert.Error(t, err)
}

func TestServer_RenderRequiresPage(t *testing.T) {
	s := newServer(t)
	_, err := s.handleRender(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{})
	assert.Error(t, err)

	resp, err := s.handleRender(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{"page_id": "counter"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
}

func TestServer_Evaluate(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	resp, err := s.handleEvaluate(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"expr": "uppercase(name) + '!'",
		"vars": `{"name": "mug"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "MUG!", resp.Value)

	resp, err = s.handleEvaluate(ctx, mcp.CallToolRequest{}, map[string]interface{}{"expr": "nothing.here"})
	require.NoError(t, err)
	assert.True(t, resp.Undefined)

	_, err = s.handleRender(ctx, mcp.CallToolRequest{}, map[string]interface{}{"page_id": "counter", "session_id": "s1"})
	require.NoError(t, err)
	resp, err = s.handleEvaluate(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"expr": "state.count", "session_id": "s1", "node_id": "counter",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(0), resp.Value)
}

func TestServer_Validate(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	call := func(pageID string) *mcp.CallToolResult {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"page_id": pageID}
		res, err := s.handleValidate(ctx, req)
		require.NoError(t, err)
		return res
	}

	assert.False(t, call("counter").IsError)
	assert.True(t, call("broken").IsError)
	assert.True(t, call("missing").IsError)
}

func TestServer_ToolSchemas(t *testing.T) {
	s := newServer(t)

	tools := s.mcpServer.ListTools()
	for _, name := range []string{"render_page", "update_state", "dispatch_event"} {
		tool := tools[name]
		require.NotNil(t, tool, name)
		assert.JSONEq(t, string(renderOutputSchema), string(tool.Tool.RawOutputSchema), name)

		data, err := json.Marshal(tool.Tool)
		require.NoError(t, err, name)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Contains(t, decoded, "outputSchema", name)
	}
	assert.Equal(t, "object", tools["evaluate_expression"].Tool.OutputSchema.Type)
	assert.NotNil(t, tools["validate_page"])
}
