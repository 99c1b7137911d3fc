// Package web exposes the review service over a JSON HTTP API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/retain/internal/domain"
	"github.com/conorfennell/retain/internal/fsrs"
	"github.com/conorfennell/retain/internal/review"
)

// Reviewer is the part of *review.Service the server uses.
type Reviewer interface {
	Status(ctx context.Context, cardID string) (review.Status, error)
	RecordReview(ctx context.Context, req review.Request) (review.Outcome, error)
	Preview(ctx context.Context, cardID string) (map[domain.Grade]fsrs.Result, error)
	History(ctx context.Context, cardID string) ([]domain.ReviewEvent, error)
	Due(ctx context.Context, limit int) ([]domain.MemoryState, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	reviews Reviewer
	db      Pinger
	router  chi.Router
	logger  *slog.Logger
}

// NewServer creates and configures a new server. db may be nil, in which
// case the health check only reports that the process is up.
func NewServer(reviews Reviewer, db Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reviews: reviews,
		db:      db,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(RequestID)
	s.router.Use(Logger(s.logger))
	s.router.Use(Recovery(s.logger))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/due", s.handleDue)

	s.router.Route("/cards/{cardID}", func(r chi.Router) {
		r.Get("/", s.handleGetCard)
		r.Get("/preview", s.handlePreview)
		r.Get("/reviews", s.handleHistory)
		r.Post("/reviews", s.handlePostReview)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
