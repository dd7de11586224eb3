package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/api/middleware"
	"github.com/feral-file/ff-custody-ledger/internal/api/rest"
	"github.com/feral-file/ff-custody-ledger/internal/ledger"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
)

// Config holds the server configuration
type Config struct {
	Debug          bool
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	JWTPublicKey   string
	// MetricsPath exposes the gatherer when both are set
	MetricsPath string
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	ledger     ledger.Ledger
	gatherer   prometheus.Gatherer
	httpServer *http.Server
}

// New creates a new API server
func New(cfg Config, l ledger.Ledger, gatherer prometheus.Gatherer) *Server {
	return &Server{
		config:   cfg,
		ledger:   l,
		gatherer: gatherer,
	}
}

// Router builds the gin engine with middleware and routes
func (s *Server) Router() (*gin.Engine, error) {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	auth, err := middleware.NewAuthenticator(s.config.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	router := gin.New()

	// Setup middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())
	router.Use(middleware.SetupCORS(s.config.AllowedOrigins))

	if s.gatherer != nil && s.config.MetricsPath != "" {
		router.GET(s.config.MetricsPath, gin.WrapH(metrics.Handler(s.gatherer)))
	}

	rest.SetupRoutes(router, rest.NewHandler(s.ledger), auth)

	return router, nil
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	router, err := s.Router()
	if err != nil {
		return err
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
