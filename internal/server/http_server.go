// Package server provides the HTTP servers of a twin process.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/config"
	"github.com/LemonScripter/metaspace-fdir-public/internal/handler"
	"github.com/LemonScripter/metaspace-fdir-public/internal/health"
	"github.com/LemonScripter/metaspace-fdir-public/internal/middleware"
)

// Server is the control API server
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	handlers    *handler.Handlers
	healthCheck *health.HealthChecker
	logger      *zap.Logger
	cfg         *config.Config
}

// NewServer creates the control API server and registers its routes
func NewServer(cfg *config.Config, twin handler.Twin, healthCheck *health.HealthChecker, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		handlers:    handler.NewHandlers(twin, logger, cfg.Server.WriteTimeout),
		healthCheck: healthCheck,
		logger:      logger,
		cfg:         cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	}
	if s.cfg.RateLimiter.Enabled {
		rl := middleware.NewRateLimiter(s.cfg.RateLimiter.RequestsPerSecond, s.cfg.RateLimiter.BurstSize, s.logger)
		chain = append(chain, rl.Limit)
	}
	s.router.Use(middleware.Chain(chain...))

	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/chaos", s.handlers.InjectChaos).Methods(http.MethodPost)
	v1.HandleFunc("/regenerate", s.handlers.Regenerate).Methods(http.MethodPost)
	v1.HandleFunc("/state", s.handlers.GetState).Methods(http.MethodGet)
	v1.HandleFunc("/validation/latest", s.handlers.GetLatestValidation).Methods(http.MethodGet)
	v1.HandleFunc("/regen-rate", s.handlers.SetRegenRate).Methods(http.MethodPut)
	v1.HandleFunc("/reset", s.handlers.Reset).Methods(http.MethodPost)
	v1.HandleFunc("/biocode/decode", s.handlers.DecodeBioCode).Methods(http.MethodPost)
	v1.HandleFunc("/audit/verify", s.handlers.VerifyAudit).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handlers.MethodNotAllowed)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
