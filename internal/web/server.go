// Package web serves the health query API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jandubois/healthmon/internal/config"
	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/snapshot"
)

// HealthService is the read and refresh side of the monitor.
type HealthService interface {
	All() *snapshot.Snapshot
	Get(id string) (probe.Result, error)
	Refresh(ctx context.Context) (*snapshot.Snapshot, error)
}

// Server is the web backend.
type Server struct {
	health  HealthService
	config  *config.ServerConfig
	metrics http.Handler
	server  *http.Server
}

// NewServer creates a new web server. metrics may be nil.
func NewServer(health HealthService, cfg *config.ServerConfig, metrics http.Handler) *Server {
	s := &Server{
		health:  health,
		config:  cfg,
		metrics: metrics,
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the web server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler returns the routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	return s.cors(s.routes())
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleLiveness)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// The dashboard uses the /api prefix.
	for _, prefix := range []string{"/health", "/api/health"} {
		mux.HandleFunc("GET "+prefix+"/all", s.handleAll)
		mux.Handle("GET "+prefix+"/check", s.requireAuth(http.HandlerFunc(s.handleCheck)))
		mux.HandleFunc("GET "+prefix+"/{id}", s.handleOne)
	}

	return mux
}
