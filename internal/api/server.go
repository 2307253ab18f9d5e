// Package api exposes the threshold engine, the evaluator and clinician
// feedback over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/domain"
	"github.com/bili-threshold-server/internal/feedback"
	"github.com/bili-threshold-server/internal/health"
	"github.com/bili-threshold-server/internal/middleware"
	"github.com/bili-threshold-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	evaluator     *service.Evaluator
	feedbackStore feedback.Store
	health        *health.Checker
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, evaluator *service.Evaluator, store feedback.Store) (*Server, error) {
	cfg := configManager.GetConfig()

	if configManager.IsDevelopment() && cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter, err := middleware.NewClientLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	checker := health.NewChecker(logger, Version, 5*time.Second)
	checker.Register(health.ReferenceTablesCheck{Engine: evaluator})
	checker.Register(health.FeedbackStoreCheck{Store: store})
	checker.Register(health.CacheCheck{Cache: evaluator.Cache()})

	server := &Server{
		configManager: configManager,
		logger:        logger,
		evaluator:     evaluator,
		feedbackStore: store,
		health:        checker,
		router:        router,
	}

	server.setupRoutes(middleware.RateLimit(limiter))

	return server, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

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
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(rateLimit gin.HandlerFunc) {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(rateLimit)
	{
		v1.GET("/curves", s.handleListCurves)
		v1.POST("/threshold", s.handleComputeThreshold)
		v1.POST("/evaluate", s.handleEvaluate)

		v1.POST("/feedback", s.handleSubmitFeedback)
		v1.GET("/feedback", s.handleListFeedback)
		v1.GET("/feedback/summary", s.handleFeedbackSummary)
		v1.GET("/feedback/export", s.handleExportFeedback)
		v1.POST("/feedback/import", s.handleImportFeedback)
		v1.DELETE("/feedback/:id", s.handleDeleteFeedback)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.health.Run(c.Request.Context())

	code := http.StatusOK
	if status.Overall == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// respondError writes an MCPError body tagged with the request's correlation ID.
// In production, server-side failure details are logged but not returned.
func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		if s.configManager.IsProduction() {
			details = ""
		}
		s.logger.WithFields(logrus.Fields{
			"correlation_id": middleware.GetCorrelationID(c),
			"code":           code,
		}).WithError(err).Error(message)
	}
	c.AbortWithStatusJSON(status, domain.NewMCPError(code, message, details, middleware.GetCorrelationID(c)))
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Accept-Language, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
