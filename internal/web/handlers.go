package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jandubois/healthmon/internal/monitor"
	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/snapshot"
)

type errorResponse struct {
	Error string `json:"error"`
}

type checkResponse struct {
	Message   string                  `json:"message"`
	Timestamp time.Time               `json:"timestamp"`
	Services  map[string]probe.Result `json:"services"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

// services never returns nil so an empty snapshot encodes as {}.
func services(snap *snapshot.Snapshot) map[string]probe.Result {
	if snap == nil || snap.Results == nil {
		return map[string]probe.Result{}
	}
	return snap.Results
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, services(s.health.All()))
}

func (s *Server) handleOne(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Get(r.PathValue("id"))
	switch {
	case errors.Is(err, monitor.ErrUnknownTarget):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Service not found"})
	case errors.Is(err, monitor.ErrNotChecked):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Service not checked yet"})
	case err != nil:
		slog.Error("get service health", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal error"})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	snap, err := s.health.Refresh(r.Context())
	if err != nil {
		slog.Error("forced health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Health check failed"})
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Message:   "Health check completed",
		Timestamp: time.Now(),
		Services:  services(snap),
	})
}
