// Package mcp serves the threshold engine, the evaluator and clinician
// feedback as MCP tools. It needs no external services: evaluations are
// memoized in memory and feedback lives in SQLite.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/cache"
	litecfg "github.com/bili-threshold-server/internal/config"
	"github.com/bili-threshold-server/internal/domain"
	"github.com/bili-threshold-server/internal/feedback"
	"github.com/bili-threshold-server/internal/health"
	"github.com/bili-threshold-server/internal/logging"
	"github.com/bili-threshold-server/internal/service"
)

const (
	serverName    = "bili-threshold-server"
	serverVersion = "v0.1.0"
)

// LiteServer is an MCP server over the built-in reference tables.
type LiteServer struct {
	config        *litecfg.LiteConfig
	mcpServer     *mcp.Server
	evaluator     *service.Evaluator
	feedbackStore feedback.Store
	health        *health.Checker
	logger        *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: logging.NewLogger(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	memCache, err := cache.NewMemoryCache[domain.Evaluation](cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	server.evaluator = service.NewDefaultEvaluator(server.logger, service.WithResultCache(memCache))

	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.logger.WithField("path", store.Path()).Info("Opened SQLite feedback store")
		server.feedbackStore = store
	}

	server.health = health.NewChecker(server.logger, serverVersion, 5*time.Second)
	server.health.Register(health.ReferenceTablesCheck{Engine: server.evaluator})
	server.health.Register(health.FeedbackStoreCheck{Store: server.feedbackStore})
	server.health.Register(health.CacheCheck{Cache: memCache})

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.Info("Lite server initialized successfully")
	return server, nil
}

// registerTools registers every tool with the MCP SDK.
func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "compute_threshold",
		Description: "Look up the hour-specific phototherapy or exchange transfusion TSB threshold for an infant of 35 or more weeks gestation.",
	}, s.handleComputeThreshold)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "evaluate_infant",
		Description: "Compute both thresholds, the escalation of care threshold and the recommended action tier for one infant.",
	}, s.handleEvaluateInfant)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_curves",
		Description: "List the reference curves: treatment category, risk status, gestational age and the (hours, TSB) points.",
	}, s.handleListCurves)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record whether a clinician followed the suggested recommendation tier for a case.",
	}, s.handleSubmitFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_feedback",
		Description: "List recorded clinician feedback, newest first, with agreement statistics.",
	}, s.handleListFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Write all clinician feedback to a JSON file in the server's export directory.",
	}, s.handleExportFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "import_feedback",
		Description: "Load clinician feedback from an earlier export in the server's export directory. Cases already recorded are skipped.",
	}, s.handleImportFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_feedback",
		Description: "Delete one clinician feedback entry by its ID.",
	}, s.handleDeleteFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "health_check",
		Description: "Report whether the reference tables, the feedback store and the evaluation cache are working.",
	}, s.handleHealthCheck)

	s.logger.WithField("tool_count", 9).Info("Successfully registered all tools")
}

// Start runs the server on the configured transport until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport_type", s.config.Transport).Info("Starting MCP server")

	switch s.config.Transport {
	case "http":
		return s.serveHTTP(ctx)
	case "stdio", "":
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported transport: %q", s.config.Transport)
	}
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close feedback store")
			return err
		}
	}
	return nil
}
