package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/auth"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	metrics *Metrics
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. A nil metrics gets a fresh registry.
func NewServer(cfg *domain.Config, deps Deps, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	handler := NewHandler(cfg, deps, metrics)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(metrics.Middleware)     // Prometheus
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health checks
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Identity
	router.Post("/auth/signup", handler.Signup)
	router.Post("/auth/login", handler.Login)

	// API routes (bearer token required)
	router.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(deps.Auth))

		r.Delete("/account", handler.DeleteAccount)

		// Scoring
		r.Post("/score", handler.Score)
		r.Post("/score/one", handler.ScoreOne)

		// History
		r.Get("/history", handler.ListHistory)
		r.Delete("/history", handler.ClearHistory)
		r.Get("/history/{id}", handler.GetHistory)
		r.Get("/history/{id}/csv", handler.DownloadHistory)
		r.Get("/history/{id}/report", handler.HistoryReport)
		r.Post("/history/{id}/compare", handler.CompareHistory)

		// Model
		r.Get("/model", handler.GetModel)

		// Review rules
		r.Get("/rules", handler.ListRules)

		// Admin (model and rule changes apply to every user)
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.PermissionAdmin))

			r.Post("/model/reload", handler.ReloadModel)
			r.Post("/rules", handler.CreateRule)
			r.Post("/rules/reload", handler.ReloadRules)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		metrics: metrics,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
