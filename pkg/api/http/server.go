package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aescanero/periphery/internal/application/node"
	"github.com/aescanero/periphery/pkg/domain"
	"github.com/aescanero/periphery/pkg/ports"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Cluster is the node service behind the API
type Cluster interface {
	ports.Node
	Info(ctx context.Context) node.ClusterInfo
}

// Tasks exposes the local request state for inspection and reclaim
type Tasks interface {
	Shard() (inputs, outputs []string, ok bool)
	Pending() []domain.RequestInfo
	Finals(ctx context.Context) ([]string, error)
	Release(ctx context.Context, inferID string) error
}

// HealthChecker reports whether a component can make progress
type HealthChecker interface {
	IsHealthy() bool
}

// Server represents the HTTP API server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	cluster Cluster
	tasks   Tasks
	workers HealthChecker
	logger  *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port    int
	Cluster Cluster
	Tasks   Tasks
	// Workers is optional
	Workers HealthChecker
	// Metrics serves GET /metrics when set
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	// Request ids may contain escaped slashes
	router.UseRawPath = true
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router:  router,
		cluster: cfg.Cluster,
		tasks:   cfg.Tasks,
		workers: cfg.Workers,
		logger:  cfg.Logger,
	}

	s.setupRoutes(cfg.Metrics)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.GET("/health", s.handleHealth)

	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := s.router.Group("/api/v1")
	{
		// Cluster formation
		v1.POST("/cluster/register", s.handleRegister)
		v1.GET("/cluster", s.handleGetCluster)
		v1.POST("/shard", s.handleAssignShard)
		v1.GET("/shard", s.handleGetShard)
		v1.POST("/children", s.handleAssignChildren)

		// Requests
		v1.GET("/requests", s.handleListPending)
		v1.DELETE("/requests/:id", s.handleRelease)
		v1.GET("/finals", s.handleListFinals)
		v1.POST("/requests/:id/partial", s.handleSubmitPartial)
		v1.GET("/requests/:id/output", s.handleGetOutput)
		v1.POST("/requests/:id/final", s.handleDeliverFinal)
		v1.GET("/requests/:id/final", s.handleGetFinal)
	}
}

// SetupWebSocket adds the request event stream to the server
func (s *Server) SetupWebSocket(handler gin.HandlerFunc) {
	s.router.GET("/api/v1/requests/:id/ws", handler)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
