// Package api exposes the HTTP surface: login, prompt get/set, summary get,
// chat, operational endpoints, and static frontend hosting as a fallback
// route.
//
// Error responses are JSON objects with a top-level "error" field; domain
// errors map onto status codes via [statusFor].
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/introspect-ai/sophia/internal/config"
	"github.com/introspect-ai/sophia/internal/conversation"
	"github.com/introspect-ai/sophia/internal/health"
	"github.com/introspect-ai/sophia/internal/observe"
)

// Conversations is the application surface the HTTP handlers call into.
// *conversation.Manager satisfies this; tests inject fakes.
type Conversations interface {
	Login(ctx context.Context, name string) (*conversation.LoginResult, error)
	Prompt(ctx context.Context, userID int64) (string, error)
	SetPrompt(ctx context.Context, userID int64, prompt string) (string, error)
	Summary(ctx context.Context, userID int64) (string, error)
	Chat(ctx context.Context, userID int64, message string) (string, error)
}

// Server is the HTTP server for the chat backend.
type Server struct {
	conversations Conversations
	mux           *http.ServeMux
	server        *http.Server

	tls           *config.TLSConfig
	allowedOrigin string
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithHealth registers the /healthz and /readyz routes from h.
func WithHealth(h *health.Handler) ServerOption {
	return func(s *Server) { h.Register(s.mux) }
}

// WithMetricsEndpoint serves the Prometheus scrape endpoint on /metrics.
func WithMetricsEndpoint() ServerOption {
	return func(s *Server) { s.mux.Handle("GET /metrics", promhttp.Handler()) }
}

// WithFrontend serves dir for unmatched GET requests, falling back to
// index.html for client-side routes. An empty dir disables static hosting.
func WithFrontend(dir string) ServerOption {
	return func(s *Server) {
		if dir != "" {
			s.mux.Handle("GET /", newStaticHandler(dir))
		}
	}
}

// WithAllowedOrigin sets the CORS origin allowed to call the API.
func WithAllowedOrigin(origin string) ServerOption {
	return func(s *Server) { s.allowedOrigin = origin }
}

// WithTLS enables HTTPS using the given certificate paths.
func WithTLS(tls *config.TLSConfig) ServerOption {
	return func(s *Server) { s.tls = tls }
}

// NewServer creates the HTTP server around the given conversation surface.
func NewServer(conversations Conversations, opts ...ServerOption) *Server {
	s := &Server{
		conversations: conversations,
		mux:           http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /prompt/{user_id}", s.handleGetPrompt)
	s.mux.HandleFunc("POST /prompt/{user_id}", s.handleSetPrompt)
	s.mux.HandleFunc("GET /summary/{user_id}", s.handleGetSummary)
	s.mux.HandleFunc("POST /chat", s.handleChat)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full middleware-wrapped handler, for use with httptest
// or a custom server.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.corsMiddleware(h)
	h = observe.Middleware(observe.DefaultMetrics())(h)
	return h
}

// ListenAndServe starts the server on addr and blocks until it stops. It
// serves HTTPS when a TLS config was provided, plain HTTP otherwise.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.tls != nil {
		slog.Info("https server starting", "addr", addr)
		return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
	}
	slog.Info("http server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for the configured origin and short-
// circuits preflight requests. A blank origin disables CORS entirely.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	if s.allowedOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
