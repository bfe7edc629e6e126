// Package server provides the HTTP API for healthassist.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/healthassist/internal/config"
	"github.com/hyperjump/healthassist/internal/diagnosis"
	"github.com/hyperjump/healthassist/internal/predict"
)

// ModelLister reports the loaded classifiers. *predict.Store implements it.
type ModelLister interface {
	Models() []predict.ModelInfo
}

// WatchService exposes the inbox watcher, when one is running. *watcher.Watcher implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(root string, syncExisting bool) error
	RemoveDirectory(root string) error
}

// Option configures a Server.
type Option func(*Server)

// WithConfigPath persists watch directory changes to the config file at path.
// An empty path keeps changes in memory only.
func WithConfigPath(path string) Option {
	return func(s *Server) { s.configPath = path }
}

// Server is the HTTP server for the healthassist API.
type Server struct {
	service *diagnosis.Service
	models  ModelLister
	config  *config.Config
	watch   WatchService
	limiter *rate.Limiter
	logger  *zap.Logger
	server  *http.Server

	// configMu serializes rewrites of the config file at configPath.
	configPath string
	configMu   sync.Mutex
}

// NewServer creates a server with the given dependencies. watch may be nil.
func NewServer(
	service *diagnosis.Service,
	models ModelLister,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		models:  models,
		config:  cfg,
		watch:   watch,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), rl.Burst)
	}
	return s
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	timeout := time.Duration(s.config.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/status", s.handleStatus)
		r.Get("/diseases", s.handleListDiseases)
		r.Get("/diseases/{disease}", s.handleGetDisease)
		r.Post("/diseases/{disease}/predict", s.handlePredict)
		r.Post("/diseases/{disease}/report", s.handleReport)
		r.Post("/extract", s.handleExtract)
		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}", s.handleGetHistory)
		r.Delete("/history/{id}", s.handleDeleteHistory)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// rateLimit rejects requests beyond the configured rate with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
