// Package server provides a small HTTP status server exposing the
// gateway's health, session, and chat room state as JSON.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/model"
)

const shutdownTimeout = 10 * time.Second

// Snapshot is the gateway state reported by the status endpoint.
type Snapshot struct {
	Login          string       `json:"login"`
	UserID         string       `json:"user_id"`
	SessionID      string       `json:"session_id,omitempty"`
	SessionStatus  string       `json:"session_status"`
	ConnectedAt    *time.Time   `json:"connected_at,omitempty"`
	TokenExpiresAt *time.Time   `json:"token_expires_at,omitempty"`
	Rooms          []RoomStatus `json:"rooms"`
}

// RoomStatus is one joined chat room.
type RoomStatus struct {
	Name     string    `json:"name"`
	ID       string    `json:"id,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// SnapshotFunc returns the current gateway state. Called per request.
type SnapshotFunc func() Snapshot

// StatusServer serves the health and status endpoints.
type StatusServer struct {
	addr     string
	log      *logger.Logger
	srv      *http.Server
	snapshot SnapshotFunc
}

// New creates a StatusServer bound to the given address.
func New(addr string, log *logger.Logger, snapshot SnapshotFunc) *StatusServer {
	s := &StatusServer{
		addr:     addr,
		log:      log,
		snapshot: snapshot,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           withLogging(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.Background()
		},
	}

	return s
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot()
	healthy := snap.SessionStatus == string(model.StatusActive)

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":    map[bool]string{true: "ok", false: "degraded"}[healthy],
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// Run starts the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *StatusServer) Run(ctx context.Context) error {
	s.log.Info("Status server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("status server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
