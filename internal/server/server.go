// Package server exposes the chat relay over HTTP: POST /chat for the
// relay itself, GET /chat/history/{sessionId} for the durable log, plus
// health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solenne/hearth/internal/observability"
	"github.com/solenne/hearth/pkg/chatlog"
	"github.com/solenne/hearth/pkg/relay"
)

// HistorySource reads stored conversation turns for the history endpoint.
// *chatlog.Store satisfies it.
type HistorySource interface {
	History(ctx context.Context, sessionID string, limit int) ([]chatlog.LoggedMessage, error)
}

// Config holds the HTTP server options.
type Config struct {
	Host string
	Port int

	// AllowedOrigin is echoed in CORS headers. "*" when empty.
	AllowedOrigin string

	// HistoryLimit caps GET /chat/history responses.
	HistoryLimit int
}

// Server is the HTTP front of the relay.
type Server struct {
	cfg     Config
	relay   *relay.Relay
	history HistorySource
	logger  zerolog.Logger

	server    *http.Server
	startTime time.Time

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// New creates the HTTP server. history may be nil; the history endpoint
// then answers 404 for every session.
func New(cfg Config, r *relay.Relay, history HistorySource, logger zerolog.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg.Port = 3002
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 200
	}
	if r == nil {
		return nil, fmt.Errorf("relay is required")
	}

	return &Server{
		cfg:       cfg,
		relay:     r,
		history:   history,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Handler builds the route table. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.withCommon(s.handleChat))
	mux.HandleFunc("OPTIONS /chat", s.handlePreflight)
	mux.HandleFunc("GET /chat/history/{sessionId}", s.withCommon(s.handleHistory))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	return mux
}

// Start blocks serving requests until Stop is called or the listener
// fails.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("host", s.cfg.Host).
		Int("port", s.cfg.Port).
		Msg("Starting chat server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start chat server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown chat server: %w", err)
	}

	s.logger.Info().Msg("Chat server stopped")
	return nil
}

// withCommon wraps a handler with shutdown rejection, in-flight tracking,
// and CORS headers.
func (s *Server) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		s.setCORS(w)
		next(w, r)
	}
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	s.setCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowedOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// clientIP extracts the caller address; used as the admission-control
// fallback key when no session id is supplied.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
