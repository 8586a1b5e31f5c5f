package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ha1tch/socnet/pkg/config"
	"github.com/ha1tch/socnet/pkg/dataset"
	"github.com/ha1tch/socnet/pkg/metrics"
	"github.com/ha1tch/socnet/pkg/models"
	"github.com/ha1tch/socnet/pkg/storage"
	"github.com/ha1tch/socnet/pkg/validation"
	"github.com/rs/zerolog"
)

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	datasets   *dataset.Service
	validator  *validation.Validator
	metrics    *metrics.Collector
	logger     zerolog.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// New creates a new server instance. A nil collector disables /metrics.
func New(
	cfg *config.Config,
	datasets *dataset.Service,
	validator *validation.Validator,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		config:    cfg,
		datasets:  datasets,
		validator: validator,
		metrics:   collector,
		logger:    logger,
		router:    chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(s.corsOptions()))

	// Health check
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)

	if s.metrics != nil && s.config.MetricsEnabled {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/datasets", s.handleListDatasets)
		r.Get("/datasets/exists", s.handleDatasetExists)

		r.Post("/dataset", s.handleCreateDataset)
		r.Get("/dataset/{id}/statistics", s.handleStatistics)
		r.Delete("/dataset/{id}", s.handleDeleteDataset)
	})
}

// corsOptions allows any origin in development and the configured
// origins everywhere else
func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}
	if s.config.IsDevelopment() {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(r *http.Request, origin string) bool { return true }
	}
	return opts
}

// requestLogger logs one line per request through zerolog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			event := s.logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				event = s.logger.Warn()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("Request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server and blocks until it stops. It returns nil
// after a clean Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": config.Version,
	})
}

// handleVersion returns server version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": config.Version,
	})
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, models.ErrorResponse{
		Error: struct {
			Message string `json:"message"`
			Status  int    `json:"status"`
		}{
			Message: message,
			Status:  status,
		},
	})
}

// writeServiceError maps a dataset service error onto a status code
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch dataset.KindOf(err) {
	case dataset.KindValidation:
		status = http.StatusBadRequest
		if errors.Is(err, storage.ErrDuplicateName) {
			status = http.StatusConflict
		}
	case dataset.KindNotFound:
		status = http.StatusNotFound
	}
	s.writeError(w, status, err.Error())
}
