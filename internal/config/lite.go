// Package config loads server configuration: a Viper-backed Manager for the
// HTTP server and an environment-only LiteConfig for the MCP server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

const (
	liteDataDirName  = ".bili-threshold"
	feedbackFileName = "feedback.db"
	exportsDirName   = "exports"
)

// LiteConfig configures the MCP server. It is read from BILI_* environment
// variables only, so the stdio binary never searches for a config file.
type LiteConfig struct {
	DataDir string

	// FeedbackDB and ExportPath default to locations under DataDir.
	FeedbackDB string
	ExportPath string

	// Language is the BCP 47 tag evaluate_infant renders numerals in when the
	// caller names none.
	Language string

	CacheMaxItems int
	CacheTTL      time.Duration

	Transport string // stdio or http
	HTTPPort  int

	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig returns the configuration used when no variable is set.
func DefaultLiteConfig() *LiteConfig {
	cfg := &LiteConfig{}
	readLiteConfig(cfg, liteViper())
	return cfg
}

// LoadLiteConfig reads BILI_DATA_DIR, BILI_FEEDBACK_DB, BILI_EXPORT_DIR,
// BILI_LANGUAGE, BILI_CACHE_MAX_ITEMS, BILI_CACHE_TTL, BILI_TRANSPORT,
// BILI_HTTP_PORT, BILI_LOG_LEVEL and BILI_LOG_FORMAT. Non-positive or
// malformed numbers and durations keep their defaults.
func LoadLiteConfig() *LiteConfig {
	v := liteViper()
	v.AutomaticEnv()

	cfg := &LiteConfig{}
	readLiteConfig(cfg, v)
	return cfg
}

var liteDefaults = map[string]interface{}{
	"feedback_db":     "",
	"export_dir":      "",
	"language":        "en",
	"cache_max_items": 1000,
	"cache_ttl":       time.Hour,
	"transport":       "stdio",
	"http_port":       8080,
	"log_level":       "info",
	"log_format":      "json",
}

func liteViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("BILI")

	homeDir, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(homeDir, liteDataDirName))
	for key, value := range liteDefaults {
		v.SetDefault(key, value)
	}
	return v
}

func readLiteConfig(cfg *LiteConfig, v *viper.Viper) {
	cfg.DataDir = v.GetString("data_dir")
	cfg.FeedbackDB = v.GetString("feedback_db")
	cfg.ExportPath = v.GetString("export_dir")
	cfg.Language = v.GetString("language")
	cfg.Transport = v.GetString("transport")
	cfg.LogLevel = v.GetString("log_level")
	cfg.LogFormat = v.GetString("log_format")

	cfg.CacheMaxItems = positiveInt(v, "cache_max_items")
	cfg.HTTPPort = positiveInt(v, "http_port")

	cfg.CacheTTL = liteDefaults["cache_ttl"].(time.Duration)
	if d := v.GetDuration("cache_ttl"); d > 0 {
		cfg.CacheTTL = d
	}
}

// positiveInt falls back to the registered default when the variable does not
// parse to a positive number.
func positiveInt(v *viper.Viper, key string) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return liteDefaults[key].(int)
}

// Validate rejects settings the MCP server cannot start with.
func (c *LiteConfig) Validate() error {
	if c.Transport != "stdio" && c.Transport != "http" {
		return fmt.Errorf("unsupported transport %q: use stdio or http", c.Transport)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory must be set")
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("invalid language %q: %w", c.Language, err)
	}
	return nil
}

// FeedbackDBPath returns the SQLite feedback database location.
func (c *LiteConfig) FeedbackDBPath() string {
	if c.FeedbackDB != "" {
		return c.FeedbackDB
	}
	return filepath.Join(c.DataDir, feedbackFileName)
}

// ExportDir returns the directory feedback exports are written to and imported from.
func (c *LiteConfig) ExportDir() string {
	if c.ExportPath != "" {
		return c.ExportPath
	}
	return filepath.Join(c.DataDir, exportsDirName)
}

// EnsureDataDir creates the directories holding the feedback database and exports.
func (c *LiteConfig) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, filepath.Dir(c.FeedbackDBPath()), c.ExportDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
