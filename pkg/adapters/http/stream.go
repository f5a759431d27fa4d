package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// streamBuffer is the per-client patch backlog; slow clients drop patches.
const streamBuffer = 16

// SubscribeEvents handles the GET /sessions/{sessionID}/events request (SSE).
// The optional reasons parameter filters patches, e.g. reasons=data,state.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.Sessions.Open(r.Context(), sessionID, ""); err != nil {
		s.writeError(w, r, err)
		return
	}

	var filter map[domain.PatchReason]bool
	if raw := r.URL.Query().Get("reasons"); raw != "" {
		filter = make(map[domain.PatchReason]bool)
		for _, part := range strings.Split(raw, ",") {
			filter[domain.PatchReason(strings.TrimSpace(part))] = true
		}
	}

	ch := make(chan domain.Patch, streamBuffer)
	cancel := s.Sessions.Subscribe(sessionID, func(p domain.Patch) {
		if filter != nil && !filter[p.Reason] {
			return
		}
		select {
		case ch <- p:
		default:
			s.logger.Warn("SSE: Client buffer full, dropping patch", "session_id", sessionID)
		}
	})
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case p := <-ch:
			data, err := json.Marshal(p)
			if err != nil {
				s.logger.Error("SSE: failed to encode patch", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: patch\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
