// Package health provides HTTP health check endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const checkTimeout = 5 * time.Second

// Check probes one dependency. A nil return means healthy.
type Check func(ctx context.Context) error

// result is the per-check JSON payload.
type result struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// report is the full /health JSON payload.
type report struct {
	Status    string            `json:"status"`
	Checks    map[string]result `json:"checks"`
	Version   string            `json:"version,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Server serves liveness and readiness probes.
type Server struct {
	port    int
	version string

	mu     sync.RWMutex
	checks map[string]Check

	server *http.Server
}

// NewServer creates a health server for the port.
func NewServer(port int, version string) *Server {
	return &Server{
		port:    port,
		version: version,
		checks:  make(map[string]Check),
	}
}

// Register adds a named dependency check.
func (s *Server) Register(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Start serves /health, /ready and /live in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("alive"))
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.server.ListenAndServe()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) snapshot() map[string]Check {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	return checks
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	rep := report{
		Status:    "ok",
		Checks:    make(map[string]result),
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	for name, check := range s.snapshot() {
		if err := check(ctx); err != nil {
			rep.Checks[name] = result{Healthy: false, Error: err.Error()}
			rep.Status = "degraded"
		} else {
			rep.Checks[name] = result{Healthy: true}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if rep.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(rep)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	for _, check := range s.snapshot() {
		if err := check(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
