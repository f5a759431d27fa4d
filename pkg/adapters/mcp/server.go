// Package mcp exposes pages and preview sessions as Model Context Protocol
// tools, so assistants can render pages and probe expressions.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/schema"
	"github.com/aretw0/osdl/pkg/session"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PagesURI is the resource listing every page id.
const PagesURI = "osdl://pages"

// RenderResponse is the structured result of the session tools.
type RenderResponse struct {
	SessionID string       `json:"session_id"`
	Tree      *domain.Tree `json:"tree"`
}

// renderOutputSchema describes RenderResponse. The tree is recursive, so it is
// declared as an open object instead of being reflected from the Go type.
var renderOutputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "session_id": {"type": "string", "description": "Session the tree belongs to"},
    "tree": {
      "type": "object",
      "description": "The materialized page tree",
      "properties": {
        "page_id": {"type": "string"},
        "nodes": {"type": "array", "items": {"type": "object"}}
      }
    }
  },
  "required": ["session_id", "tree"]
}`)

// EvaluateResponse is the structured result of evaluate_expression.
type EvaluateResponse struct {
	Value     any  `json:"value" jsonschema_description:"The expression result"`
	Undefined bool `json:"undefined,omitempty" jsonschema_description:"True when the result is undefined"`
}

// Server exposes a session manager as an MCP Server.
type Server struct {
	sessions  *session.Manager
	loader    ports.PageLoader
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, loader ports.PageLoader, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		loader:    loader,
		mcpServer: server.NewMCPServer("osdl-mcp", strings.TrimSpace(osdl.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	allow := cors.AllowAll().Handler
	mux := http.NewServeMux()
	mux.Handle("/sse", allow(sseServer.SSEHandler()))
	mux.Handle("/message", allow(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("evaluate_expression",
		mcp.WithDescription("Evaluate an OSDL expression. Without session_id it runs against vars; with it, in the context of a mounted node."),
		mcp.WithString("expr", mcp.Required(), mcp.Description("The expression, without {{ }}")),
		mcp.WithString("vars", mcp.Description("JSON object of root variables (standalone mode)")),
		mcp.WithString("session_id", mcp.Description("Evaluate inside this session")),
		mcp.WithString("node_id", mcp.Description("Mounted node providing the context (session mode)")),
		mcp.WithOutputSchema[EvaluateResponse](),
	), mcp.NewStructuredToolHandler(s.handleEvaluate))

	s.mcpServer.AddTool(mcp.NewTool("render_page",
		mcp.WithDescription("Render a page in a preview session and wait for its data. Creates the session when needed."),
		mcp.WithString("page_id", mcp.Description("Page to render (required for new sessions)")),
		mcp.WithString("session_id", mcp.Description("Session to render (generated when omitted)")),
		mcp.WithString("ambient", mcp.Description("JSON object with page, viewport and user facts")),
		mcp.WithRawOutputSchema(renderOutputSchema),
	), mcp.NewStructuredToolHandler(s.handleRender))

	s.mcpServer.AddTool(mcp.NewTool("update_state",
		mcp.WithDescription("Shallow-merge values into a node's local state and re-render."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to update")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Stateful node")),
		mcp.WithString("state", mcp.Required(), mcp.Description("JSON object merged into the state")),
		mcp.WithRawOutputSchema(renderOutputSchema),
	), mcp.NewStructuredToolHandler(s.handleUpdateState))

	s.mcpServer.AddTool(mcp.NewTool("dispatch_event",
		mcp.WithDescription("Fire a component event (onClick, onChange, ...) on a mounted node."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to update")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Mounted node")),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event name")),
		mcp.WithString("value", mcp.Description("JSON value bound to event.value")),
		mcp.WithRawOutputSchema(renderOutputSchema),
	), mcp.NewStructuredToolHandler(s.handleDispatch))

	s.mcpServer.AddTool(mcp.NewTool("validate_page",
		mcp.WithDescription("Validate a page schema and list every problem found."),
		mcp.WithString("page_id", mcp.Required(), mcp.Description("Page to validate")),
	), s.handleValidate)
}

func (s *Server) handleEvaluate(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (EvaluateResponse, error) {
	expr, _ := args["expr"].(string)
	sessionID, _ := args["session_id"].(string)

	var v any
	var err error
	if sessionID != "" {
		var e *osdl.Engine
		if e, err = s.rendered(ctx, sessionID); err != nil {
			return EvaluateResponse{}, err
		}
		nodeID, _ := args["node_id"].(string)
		v, err = e.Evaluate(nodeID, expr)
	} else {
		vars := map[string]any{}
		if err := decodeArg(args, "vars", &vars); err != nil {
			return EvaluateResponse{}, err
		}
		v, err = osdl.Evaluate(expr, vars)
	}
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("evaluate failed: %w", err)
	}
	if expression.IsUndefined(v) {
		return EvaluateResponse{Undefined: true}, nil
	}
	return EvaluateResponse{Value: v}, nil
}

func (s *Server) handleRender(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RenderResponse, error) {
	pageID, _ := args["page_id"].(string)
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		if pageID == "" {
			return RenderResponse{}, fmt.Errorf("page_id is required for a new session")
		}
		sessionID = uuid.NewString()
	}
	var ambient *domain.Ambient
	if _, ok := args["ambient"]; ok {
		ambient = &domain.Ambient{}
		if err := decodeArg(args, "ambient", ambient); err != nil {
			return RenderResponse{}, err
		}
	}

	if _, err := s.sessions.Open(ctx, sessionID, pageID); err != nil {
		return RenderResponse{}, fmt.Errorf("render failed: %w", err)
	}
	var tree *domain.Tree
	err := s.sessions.Update(ctx, sessionID, func(e *osdl.Engine) error {
		if ambient != nil {
			e.SetAmbient(*ambient)
		}
		var err error
		tree, err = e.RenderSettled(ctx)
		return err
	})
	if err != nil {
		return RenderResponse{}, fmt.Errorf("render failed: %w", err)
	}
	return RenderResponse{SessionID: sessionID, Tree: tree}, nil
}

func (s *Server) handleUpdateState(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RenderResponse, error) {
	sessionID, _ := args["session_id"].(string)
	nodeID, _ := args["node_id"].(string)
	partial := map[string]any{}
	if err := decodeArg(args, "state", &partial); err != nil {
		return RenderResponse{}, err
	}
	return s.mutate(ctx, sessionID, func(e *osdl.Engine) error {
		return e.UpdateState(nodeID, partial)
	})
}

func (s *Server) handleDispatch(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RenderResponse, error) {
	sessionID, _ := args["session_id"].(string)
	nodeID, _ := args["node_id"].(string)
	event, _ := args["event"].(string)
	var value any
	if err := decodeArg(args, "value", &value); err != nil {
		return RenderResponse{}, err
	}
	return s.mutate(ctx, sessionID, func(e *osdl.Engine) error {
		return e.Dispatch(ctx, nodeID, event, value)
	})
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID := request.GetString("page_id", "")
	page, err := s.loader.GetPage(ctx, pageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	if err := schema.ValidatePage(page); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("page %s is valid", page.ID)), nil
}

// rendered returns an open session engine that has rendered at least once.
func (s *Server) rendered(ctx context.Context, sessionID string) (*osdl.Engine, error) {
	e, err := s.sessions.Open(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	if e.LastTree() == nil {
		err = s.sessions.Update(ctx, sessionID, func(e *osdl.Engine) error {
			_, err := e.RenderSettled(ctx)
			return err
		})
	}
	return e, err
}

func (s *Server) mutate(ctx context.Context, sessionID string, fn func(*osdl.Engine) error) (RenderResponse, error) {
	if _, err := s.rendered(ctx, sessionID); err != nil {
		return RenderResponse{}, err
	}
	var tree *domain.Tree
	err := s.sessions.Update(ctx, sessionID, func(e *osdl.Engine) error {
		if err := fn(e); err != nil {
			return err
		}
		var err error
		tree, err = e.RenderSettled(ctx)
		return err
	})
	if err != nil {
		return RenderResponse{}, err
	}
	return RenderResponse{SessionID: sessionID, Tree: tree}, nil
}

// decodeArg unmarshals a JSON string argument into dst. Absent arguments
// leave dst untouched; already structured arguments are re-encoded.
func decodeArg(args map[string]interface{}, key string, dst any) error {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil
	}
	var data []byte
	if str, isStr := raw.(string); isStr {
		if str == "" {
			return nil
		}
		data = []byte(str)
	} else {
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(PagesURI, "Available pages",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.loader.ListPages(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list pages: %w", err)
		}
		jsonBytes, _ := json.Marshal(ids)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      PagesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
