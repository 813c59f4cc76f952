// Package server exposes the playback engine over HTTP: JSON time range,
// GeoJSON position and flight listings, dataset reload, and a WebSocket
// stream that plays the collection back one ten-minute step per frame.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/unklstewy/flight-playback/internal/logging"
	"github.com/unklstewy/flight-playback/pkg/config"
	"github.com/unklstewy/flight-playback/pkg/playback"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

// Dataset is the flight collection the server reads and reloads.
// *trajectory.Store implements it.
type Dataset interface {
	Snapshot() *trajectory.Snapshot
	Reload(ctx context.Context) (*trajectory.Snapshot, error)
}

// Server holds the HTTP router and its dependencies
type Server struct {
	router   *chi.Mux
	dataset  Dataset
	engine   *playback.Engine
	limiter  *rate.Limiter
	cfg      config.ServerConfig
	playback config.PlaybackConfig
	log      *logging.Logger
	started  time.Time
}

// New creates a server over dataset and sets up its routes.
func New(dataset Dataset, cfg *config.Config, log *logging.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		dataset:  dataset,
		engine:   playback.NewEngine(dataset),
		cfg:      cfg.Server,
		playback: cfg.Playback,
		log:      log,
		started:  time.Now(),
	}
	if cfg.Server.RateLimitPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitBurst)
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an http.Server for the configured address and timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSeconds) * time.Second,
		ErrorLog:     s.log.StdLogger(slog.LevelWarn),
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// middleware.Logger, writing into the structured logger
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  s.log.StdLogger(slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{headerPlaybackTime},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)

		// The stream hijacks the connection, so it stays out of Compress
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))

			r.Get("/time-range", s.handleGetTimeRange)
			r.Get("/positions", s.handleGetPositions)

			r.Get("/flights", s.handleGetFlights)
			r.Get("/flights/{flightNumber}", s.handleGetFlight)

			r.Post("/dataset/reload", s.handleReload)
			r.Get("/system/status", s.handleGetSystemStatus)
		})
	})

	// Serve static files when the directory is there
	if s.cfg.StaticDir == "" {
		return
	}
	if info, err := os.Stat(s.cfg.StaticDir); err != nil || !info.IsDir() {
		s.log.Warn("Static directory not found, landing page disabled",
			slog.String("dir", s.cfg.StaticDir))
		return
	}
	s.log.Info("Serving static files", slog.String("dir", s.cfg.StaticDir))
	r.With(middleware.Compress(5)).Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
}

// rateLimit rejects API requests beyond the configured token bucket.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
