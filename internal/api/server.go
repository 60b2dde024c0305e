package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/models"
)

// CheckpointReader loads the persisted checkpoint
type CheckpointReader interface {
	Load(ctx context.Context) (*models.Checkpoint, error)
}

// ProgressProvider computes aggregate ingestion progress
type ProgressProvider interface {
	Progress(ctx context.Context) (*models.Progress, error)
}

// HealthChecker reports the health of a backing service
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies are the read-only collaborators of the dashboard
type Dependencies struct {
	Catalog     *symbols.Catalog
	Checkpoints CheckpointReader
	Progress    ProgressProvider
	// Health maps a service name to its checker; nil checkers are reported as disabled
	Health map[string]HealthChecker
}

// Server represents the dashboard HTTP API server
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies
}

// NewServer creates a new dashboard server
func NewServer(cfg *config.Config, logger *logrus.Logger, deps Dependencies) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		deps:   deps,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/checkpoint", s.handleCheckpoint).Methods(http.MethodGet)
	api.HandleFunc("/symbols", s.handleSymbols).Methods(http.MethodGet)
	api.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)

	if dir := s.cfg.Server.StaticDir; dir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(dir))).Methods(http.MethodGet, http.MethodHead)
	}
}

// Handler returns the root handler with CORS and compression applied
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.CompressHandler(h)

	if s.cfg.Security.CORSEnabled {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.cfg.Security.CORSOrigins),
			handlers.AllowedMethods(s.cfg.Security.CORSMethods),
			handlers.AllowedHeaders(s.cfg.Security.CORSHeaders),
		)(h)
	}

	return h
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := s.cfg.GetServerAddr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting dashboard server")

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		if strings.Contains(err.Error(), "address already in use") {
			return fmt.Errorf("port %d is already in use, use a different port with --port", s.cfg.Server.Port)
		}
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping dashboard server")
	return s.httpServer.Shutdown(ctx)
}

// Middleware functions

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")

				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
