package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/catalog"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/fraud"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/lifecycle"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/processor"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/tracker"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, trk *tracker.Service, proc *processor.Processor, lc *lifecycle.Manager, cat *catalog.Service, engine *fraud.Engine, version string) *Server {
	handler := NewHandler(repo, cache, bus, trk, proc, lc, cat, engine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for shop-page clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Click ingest
	router.Post("/clicks", handler.RecordClick)

	// Sale ingest
	router.Post("/sales", handler.ReportSale)

	// Commission queries and lifecycle decisions
	router.Get("/commissions", handler.ListCommissions)
	router.Get("/commissions/{id}", handler.GetCommission)
	router.Post("/commissions/{id}/approve", handler.ApproveCommission)
	router.Post("/commissions/{id}/reject", handler.RejectCommission)
	router.Post("/commissions/{id}/mark-paid", handler.MarkCommissionPaid)

	// Commission rule management
	router.Get("/rules", handler.ListRules)
	router.Get("/rules/{productId}", handler.GetRule)
	router.Put("/rules/{productId}", handler.UpsertRule)

	// Custom risk rule management
	router.Get("/risk-rules", handler.ListRiskRules)
	router.Post("/risk-rules", handler.CreateRiskRule)
	router.Post("/risk-rules/reload", handler.ReloadRiskRules)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
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
