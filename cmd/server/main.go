package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/api"
	"github.com/bili-threshold-server/internal/cache"
	"github.com/bili-threshold-server/internal/config"
	"github.com/bili-threshold-server/internal/domain"
	"github.com/bili-threshold-server/internal/feedback"
	"github.com/bili-threshold-server/internal/logging"
	"github.com/bili-threshold-server/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openFeedbackStore(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open feedback store")
	}
	defer store.Close()

	resultCache, err := cache.NewMemoryCache[domain.Evaluation](cfg.Cache.MaxItems, cfg.Cache.DefaultTTL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create evaluation cache")
	}
	evaluator := service.NewDefaultEvaluator(logger, service.WithResultCache(resultCache))

	server, err := api.NewServer(configManager, logger, evaluator, store)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create HTTP server")
	}

	go reloadOnHangup(ctx, configManager, logger)

	logger.WithFields(logrus.Fields{
		"host":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"driver": cfg.Database.Driver,
	}).Info("Starting bilirubin threshold server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		store.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

func openFeedbackStore(ctx context.Context, db domain.DatabaseConfig) (feedback.Store, error) {
	if db.Driver == "postgres" {
		store, err := feedback.NewPostgresStoreFromURL(ctx, db.URL, feedback.PoolConfig{
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := feedback.NewSQLiteStore(db.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// reloadOnHangup re-reads configuration on SIGHUP and applies the new log
// level. Other settings take effect on the next restart.
func reloadOnHangup(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			if err := configManager.Reload(); err != nil {
				logger.WithError(err).Error("Failed to reload configuration")
				continue
			}
			if err := configManager.Validate(); err != nil {
				logger.WithError(err).Error("Reloaded configuration is invalid")
				continue
			}

			level, err := logrus.ParseLevel(configManager.GetConfig().Logging.Level)
			if err != nil {
				logger.WithError(err).Warn("Keeping current log level")
				continue
			}
			logger.SetLevel(level)
			logger.WithField("level", level.String()).Info("Configuration reloaded")
		}
	}
}
