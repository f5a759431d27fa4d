package http

import (
	"context"
	"net/http"
	"sort"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	json "github.com/goccy/go-json"
)

// ListPages handles the GET /pages request.
func (s *Server) ListPages(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Loader.ListPages(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// GetPage handles the GET /pages/{pageID} request.
func (s *Server) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.Loader.GetPage(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, ids)
}

type openRequest struct {
	SessionID string         `json:"session_id"`
	PageID    string         `json:"page_id"`
	Ambient   domain.Ambient `json:"ambient"`
}

type treeResponse struct {
	SessionID string       `json:"session_id"`
	Tree      *domain.Tree `json:"tree"`
}

// OpenSession handles the POST /sessions request. A missing session id is
// generated; an existing session is resumed.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	if body.SessionID == "" {
		if body.PageID == "" {
			s.badRequest(w, "page_id is required", nil)
			return
		}
		body.SessionID = uuid.NewString()
	}

	ctx := r.Context()
	if _, err := s.Sessions.Open(ctx, body.SessionID, body.PageID); err != nil {
		s.writeError(w, r, err)
		return
	}
	tree, err := s.mutate(ctx, body.SessionID, func(e *osdl.Engine) error {
		e.SetAmbient(s.ambientFor(r, e.Ambient(), &body.Ambient))
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, treeResponse{SessionID: body.SessionID, Tree: tree})
}

// GetTree handles the GET /sessions/{sessionID}/tree request. With
// settle=true it waits for pending fetches.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	settle := r.URL.Query().Get("settle") == "true"

	ctx := r.Context()
	if _, err := s.Sessions.Open(ctx, sessionID, ""); err != nil {
		s.writeError(w, r, err)
		return
	}
	var tree *domain.Tree
	err := s.Sessions.Update(ctx, sessionID, func(e *osdl.Engine) error {
		var err error
		if settle {
			tree, err = e.RenderSettled(ctx)
		} else {
			tree, err = e.Render(ctx)
		}
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treeResponse{SessionID: sessionID, Tree: s.sanitize(tree)})
}

// DeleteSession handles the DELETE /sessions/{sessionID} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetState handles the GET /sessions/{sessionID}/state/{nodeID} request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	e, err := s.Sessions.Open(r.Context(), sessionID, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st := e.GetState(chi.URLParam(r, "nodeID"))
	if st == nil {
		st = map[string]any{}
	}
	writeJSON(w, http.StatusOK, st)
}

// UpdateState handles the PUT /sessions/{sessionID}/state/{nodeID} request.
// The body is shallow-merged into the node's local state.
func (s *Server) UpdateState(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	nodeID := chi.URLParam(r, "nodeID")
	s.respondTree(w, r, sessionID, func(e *osdl.Engine) error {
		return e.UpdateState(nodeID, partial)
	})
}

// SetAmbient handles the PUT /sessions/{sessionID}/ambient request.
func (s *Server) SetAmbient(w http.ResponseWriter, r *http.Request) {
	var body domain.Ambient
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	s.respondTree(w, r, chi.URLParam(r, "sessionID"), func(e *osdl.Engine) error {
		e.SetAmbient(s.ambientFor(r, e.Ambient(), &body))
		return nil
	})
}

type dispatchRequest struct {
	NodeID string `json:"node_id"`
	Event  string `json:"event"`
	Value  any    `json:"value"`
}

// Dispatch handles the POST /sessions/{sessionID}/dispatch request.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	if body.NodeID == "" || body.Event == "" {
		s.badRequest(w, "node_id and event are required", nil)
		return
	}
	ctx := r.Context()
	s.respondTree(w, r, chi.URLParam(r, "sessionID"), func(e *osdl.Engine) error {
		return e.Dispatch(ctx, body.NodeID, body.Event, body.Value)
	})
}

type evaluateRequest struct {
	Expr   string         `json:"expr"`
	NodeID string         `json:"node_id,omitempty"`
	Vars   map[string]any `json:"vars,omitempty"`
}

// Evaluate handles the POST /evaluate request against the given vars.
func (s *Server) Evaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	v, err := osdl.Evaluate(body.Expr, body.Vars)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEvaluateResponse(v))
}

// EvaluateInSession handles the POST /sessions/{sessionID}/evaluate request,
// evaluating in the context of a mounted node (or the page root).
func (s *Server) EvaluateInSession(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	e, err := s.Sessions.Open(r.Context(), chi.URLParam(r, "sessionID"), "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := e.Evaluate(body.NodeID, body.Expr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEvaluateResponse(v))
}

// respondTree applies fn to an open session and answers with the new tree.
func (s *Server) respondTree(w http.ResponseWriter, r *http.Request, sessionID string, fn func(*osdl.Engine) error) {
	ctx := r.Context()
	if _, err := s.Sessions.Open(ctx, sessionID, ""); err != nil {
		s.writeError(w, r, err)
		return
	}
	tree, err := s.mutate(ctx, sessionID, fn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treeResponse{SessionID: sessionID, Tree: tree})
}

// mutate runs fn and renders under the session lock, then persists.
func (s *Server) mutate(ctx context.Context, sessionID string, fn func(*osdl.Engine) error) (*domain.Tree, error) {
	var tree *domain.Tree
	err := s.Sessions.Update(ctx, sessionID, func(e *osdl.Engine) error {
		if e.LastTree() == nil {
			if _, err := e.Render(ctx); err != nil {
				return err
			}
		}
		if err := fn(e); err != nil {
			return err
		}
		var err error
		tree, err = e.Render(ctx)
		return err
	})
	return s.sanitize(tree), err
}

// ambientFor merges the request's ambient facts over current. The user facts
// come from the bearer token whenever authentication is enabled.
func (s *Server) ambientFor(r *http.Request, current domain.Ambient, req *domain.Ambient) domain.Ambient {
	next := current
	if req.Page != nil {
		next.Page = req.Page
	}
	if req.Viewport != nil {
		next.Viewport = req.Viewport
	}
	if claims, ok := userFromContext(r.Context()); ok {
		next.User = claims
	} else if s.jwtSecret == nil && req.User != nil {
		next.User = req.User
	}
	return next
}
