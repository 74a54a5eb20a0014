// Package api exposes the HTTP interface for the course catalog service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"course-catalog/internal/catalog"
	"course-catalog/internal/metrics"
	"course-catalog/internal/middleware"
	"course-catalog/internal/tasks"
)

// Config controls server behavior.
type Config struct {
	// WaitTimeout bounds how long write endpoints wait for their task
	// before answering 202 Accepted.
	WaitTimeout time.Duration
	// RequestTimeout bounds total request handling.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the catalog store and task runner.
type Server struct {
	router chi.Router
	store  catalog.Store
	runner *tasks.Runner
	logger *zap.Logger
	cfg    Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store catalog.Store, runner *tasks.Runner, logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		store:  store,
		runner: runner,
		logger: logger,
		cfg:    cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/courses", func(r chi.Router) {
		r.Get("/", s.listCourses)
		r.Post("/", s.createCourse)
		r.Post("/enrich", s.enrichCourse)
		r.Put("/*", s.updateCourse)
	})
	r.Get("/tasks/{task_id}", s.getTask)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
