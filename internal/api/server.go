package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/metrics"
	"github.com/cxr-association-engine/internal/middleware"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// ModelService is the subset of the model service the HTTP API needs
type ModelService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
	Diagnose(ctx context.Context, image []byte, contentType string, severe []string) (*domain.QueryResult, error)
	Retrain(ctx context.Context, source domain.TransactionSource, params domain.MiningParams) (*domain.TrainingReport, error)
	Info() domain.ModelInfo
	Rules(limit int, minConfidence float64) []domain.Rule
	Itemsets(minSize int) []domain.Itemset
}

// Server represents the HTTP server
type Server struct {
	config  *domain.Config
	service ModelService
	metrics *metrics.Metrics
	logger  *logrus.Logger
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, service ModelService, m *metrics.Metrics, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AccessLogger(logger))
	router.Use(middleware.SecurityHeaders())

	s := &Server{
		config:  cfg,
		service: service,
		metrics: m,
		logger:  logger,
		router:  router,
	}

	// Setup routes
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on the configured address until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(s.config.Server.RequestTimeout))
	{
		v1.POST("/query", s.handleQuery)
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/rules", s.handleRules)
		v1.GET("/itemsets", s.handleItemsets)
		v1.GET("/model-info", s.handleModelInfo)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireToken(s.config.Server.AdminToken))
	{
		admin.POST("/retrain", s.handleRetrain)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	info := s.service.Info()
	status := "healthy"
	if info.Source == domain.SourceDegraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"model_loaded": info.Rules > 0,
		"snapshot_id":  info.SnapshotID,
		"model_source": info.Source,
		"timestamp":    time.Now().UTC(),
		"version":      Version,
	})
}
