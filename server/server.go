package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/linkscrub/linkscrub/logger"
	"github.com/linkscrub/linkscrub/refresh"
	"github.com/linkscrub/linkscrub/ruleset"
	"github.com/linkscrub/linkscrub/scrub"
)

// Config holds configuration for the API server.
type Config struct {
	// RedisClient enables distributed rate limiting (optional, in-memory if nil)
	RedisClient *redis.Client
	// RateLimitRequests is the number of requests allowed per window (default: 100)
	RateLimitRequests int
	// RateLimitWindow is the time window for rate limiting (default: 1 minute)
	RateLimitWindow time.Duration
}

// Server is the HTTP server for the API.
type Server struct {
	scrubber  *scrub.Scrubber
	rules     *ruleset.Store
	refresher *refresh.Refresher
	logger    logger.Logger
	router    *chi.Mux
}

// New creates a new API server with chi router and middleware stack.
func New(scrubber *scrub.Scrubber, rules *ruleset.Store, refresher *refresh.Refresher, log logger.Logger, cfg *Config) *Server {
	if log == nil {
		log = logger.Noop()
	}

	if cfg == nil {
		cfg = &Config{}
	}

	s := &Server{
		scrubber:  scrubber,
		rules:     rules,
		refresher: refresher,
		logger:    log,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(RateLimit(RateLimitConfig{
		RequestLimit:   cfg.RateLimitRequests,
		WindowDuration: cfg.RateLimitWindow,
		RedisClient:    cfg.RedisClient,
	}))

	r.Post("/v1/clean", s.handleClean)
	r.Post("/v1/scan", s.handleScan)
	r.Post("/v1/rules/refresh", s.handleRefresh)
	r.Get("/v1/rules", s.handleRules)
	r.Get("/health", s.handleHealth)

	s.router = r

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting API server", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// StartWithShutdown starts the HTTP server with graceful shutdown support.
func (s *Server) StartWithShutdown(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
