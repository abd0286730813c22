package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/themethumb/internal/events"
	"github.com/mattjoyce/themethumb/internal/loop"
	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/queue"
	"github.com/mattjoyce/themethumb/internal/thumbnail"
)

// Thumbnailer is the part of thumbnail.Client the API drives. Both methods
// run on the loop.
type Thumbnailer interface {
	RenderAsync(req *protocol.Request, cb queue.Callback, data any, cleanup queue.Cleanup) string
	Stats() thumbnail.Stats
}

// Config holds API server configuration
type Config struct {
	Listen string
	// RenderWait bounds how long a request waits for its thumbnail.
	RenderWait time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	thumbs    Thumbnailer
	loop      *loop.Loop
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, thumbs Thumbnailer, l *loop.Loop, hub *events.Hub, logger *slog.Logger) *Server {
	if config.RenderWait <= 0 {
		config.RenderWait = 30 * time.Second
	}
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		thumbs:    thumbs,
		loop:      l,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/thumbnail/{kind}", s.handleThumbnail)
	r.Get("/events", s.handleEvents)

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
