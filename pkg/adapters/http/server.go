// Package http exposes preview sessions over a JSON API with a server-sent
// event stream of invalidation patches.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/internal/logging"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/expression"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the preview API.
type Server struct {
	Sessions *session.Manager
	Loader   ports.PageLoader

	logger      *slog.Logger
	jwtSecret   []byte
	policy      *bluemonday.Policy
	rateLimit   int
	corsOrigins []string
	gatherer    prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithJWTSecret requires an HS256 bearer token on session routes. Its claims
// become the user ambient facts of the session.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.jwtSecret = []byte(secret)
		}
	}
}

// WithSanitizer strips unsafe HTML from every string of rendered trees.
func WithSanitizer(p *bluemonday.Policy) Option {
	return func(s *Server) {
		s.policy = p
	}
}

// WithRateLimit limits each client IP to n requests per minute. Zero disables it.
func WithRateLimit(n int) Option {
	return func(s *Server) {
		s.rateLimit = n
	}
}

// WithCORSOrigins sets the allowed origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithMetrics serves g at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler for sessions and loader.
func NewHandler(sessions *session.Manager, loader ports.PageLoader, opts ...Option) http.Handler {
	s := &Server{
		Sessions:    sessions,
		Loader:      loader,
		logger:      logging.NewNop(),
		corsOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
	}

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/evaluate", s.Evaluate)

	r.Route("/pages", func(r chi.Router) {
		r.Get("/", s.ListPages)
		r.Get("/{pageID}", s.GetPage)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/", s.ListSessions)
		r.Post("/", s.OpenSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/tree", s.GetTree)
			r.Delete("/", s.DeleteSession)
			r.Get("/state/{nodeID}", s.GetState)
			r.Put("/state/{nodeID}", s.UpdateState)
			r.Put("/ambient", s.SetAmbient)
			r.Post("/dispatch", s.Dispatch)
			r.Post("/evaluate", s.EvaluateInSession)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "osdl-http",
		"version": strings.TrimSpace(osdl.Version),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var parseErr *domain.ParseError
	var evalErr *domain.EvalError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPageNotFound),
		errors.Is(err, domain.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNodeNotMounted),
		errors.Is(err, session.ErrPageMismatch):
		status = http.StatusConflict
	case errors.Is(err, osdl.ErrNoDispatcher):
		status = http.StatusNotImplemented
	case errors.As(err, &parseErr), errors.As(err, &evalErr):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string, err error) {
	s.logger.Warn(msg, "error", err)
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// evaluateResponse carries an expression result. Undefined is reported
// separately because JSON has no undefined.
type evaluateResponse struct {
	Value     any  `json:"value"`
	Undefined bool `json:"undefined,omitempty"`
}

func newEvaluateResponse(v any) evaluateResponse {
	if expression.IsUndefined(v) {
		return evaluateResponse{Undefined: true}
	}
	return evaluateResponse{Value: v}
}
