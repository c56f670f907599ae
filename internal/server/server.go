// Package server exposes the driver's REST API: status, scripted objects,
// callout scheduling and snapshots.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/mudd/pkg/model"
)

// Driver is the subset of driver operations the API serves.
type Driver interface {
	Schedule(ctx context.Context, req model.ScheduleRequest) (model.ScheduleResult, error)
	Cancel(ctx context.Context, objName string, handle uint16) error
	Status(ctx context.Context) (model.DriverStatus, error)
	Callouts(ctx context.Context) ([]model.CalloutView, error)
	Objects(ctx context.Context) ([]*model.Object, error)
	CreateObject(ctx context.Context, name, source string) (*model.Object, error)
	Snapshot(ctx context.Context) error
}

// Server is the mudd REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	driver    Driver
	startTime time.Time
}

// New creates a new Server with all routes registered.
func New(d Driver, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		driver:    d,
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/objects", func(r chi.Router) {
			r.Get("/", s.handleListObjects)
			r.Post("/", s.handleCreateObject)
		})

		r.Route("/callouts", func(r chi.Router) {
			r.Get("/", s.handleListCallouts)
			r.Post("/", s.handleSchedule)
			r.Delete("/{object}/{handle}", s.handleCancel)
		})

		r.Post("/snapshot", s.handleSnapshot)
	})
}
