// Package health exposes an optional HTTP status surface (/healthz,
// /status) alongside the IMAP acceptor. It never touches the session state
// machine: it only reports what the acceptor already knows.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/edimap/ecoledirecte-imap/common/version"
)

// Server exposes /healthz and /status. Optional: the gateway runs without
// it when HEALTH_ADDR is empty.
type Server struct {
	addr      string
	counter   connectionCounter
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// connectionCounter is the minimal interface the health server needs from
// the acceptor.
type connectionCounter interface {
	ActiveConnections() int
}

// healthResponse is returned by GET /healthz.
type healthResponse struct {
	Status string `json:"status"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	Commit            string  `json:"commit"`
	UptimeSecs        float64 `json:"uptime_seconds"`
	ActiveConnections int     `json:"active_connections"`
}

// New creates and configures the HTTP server (does not start it).
func New(addr string, counter connectionCounter) *Server {
	mux := http.NewServeMux()
	s := &Server{
		addr:      addr,
		counter:   counter,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	return s
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("health server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.counter != nil {
		active = s.counter.ActiveConnections()
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:            "ok",
		Version:           version.Version,
		Commit:            version.GitCommit,
		UptimeSecs:        time.Since(s.startedAt).Seconds(),
		ActiveConnections: active,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
