package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/tick-archive/internal/checkpoint"
	"github.com/tick-archive/pkg/logger"
)

const (
	defaultLogLines = 200
	maxLogLines     = 5000
)

// IngestRun is the run name of ingestion log files served by /api/logs
const IngestRun = "ingest"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth checks every configured backing service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.deps.Health))
	for name := range s.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	services := make(map[string]string, len(names))
	for _, name := range names {
		checker := s.deps.Health[name]
		if checker == nil {
			services[name] = "disabled"
			continue
		}
		if err := checker.Health(ctx); err != nil {
			s.logger.WithError(err).WithField("service", name).Warn("Health check failed")
			services[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
			continue
		}
		services[name] = "healthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"services":  services,
		"timestamp": time.Now().Unix(),
	})
}

// handleCheckpoint returns the persisted checkpoint
func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.deps.Checkpoints.Load(r.Context())
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		writeError(w, http.StatusNotFound, "no checkpoint yet")
		return
	case err != nil:
		s.logger.WithError(err).Error("Failed to read checkpoint")
		writeError(w, http.StatusInternalServerError, "checkpoint unreadable")
		return
	}

	writeJSON(w, http.StatusOK, cp)
}

// handleSymbols returns the catalog in iteration order
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Catalog.Symbols()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": list,
		"count":   len(list),
	})
}

// handleProgress returns per-symbol and aggregate ingestion statistics
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.deps.Progress.Progress(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute progress")
		writeError(w, http.StatusInternalServerError, "failed to compute progress")
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// handleLogs returns the tail of the most recent ingestion run log
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		if n > maxLogLines {
			n = maxLogLines
		}
		lines = n
	}

	path, err := logger.LatestFile(s.cfg.Logging.Dir, IngestRun)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "no log file yet")
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to list log files")
		writeError(w, http.StatusInternalServerError, "failed to read logs")
		return
	}

	tail, err := logger.Tail(path, lines)
	if err != nil {
		s.logger.WithError(err).WithField("file", path).Error("Failed to tail log file")
		writeError(w, http.StatusInternalServerError, "failed to read logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file":  filepath.Base(path),
		"lines": tail,
		"count": len(tail),
	})
}
