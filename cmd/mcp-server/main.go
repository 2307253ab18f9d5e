// Package main provides the MCP entry point. It needs no external services:
// configuration comes from BILI_* environment variables and feedback is kept
// in SQLite under BILI_DATA_DIR.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/config"
	"github.com/bili-threshold-server/internal/logging"
	"github.com/bili-threshold-server/internal/mcp"
)

func main() {
	cfg := config.LoadLiteConfig()

	// stdout belongs to the stdio transport
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid MCP server configuration")
	}
	logger.WithFields(logrus.Fields{
		"transport":  cfg.Transport,
		"data_dir":   cfg.DataDir,
		"export_dir": cfg.ExportDir(),
		"language":   cfg.Language,
	}).Info("Starting bilirubin threshold MCP server")

	server, err := mcp.NewLiteServer(cfg, mcp.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		server.Close()
		os.Exit(1)
	}

	logger.Info("MCP server stopped")
}
