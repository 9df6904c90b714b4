package testsupport

import (
	"path/filepath"
	"testing"

	"yotoup/internal/config"
)

// ConfigOption adjusts a generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig returns the default configuration with every path moved under a
// fresh temp directory and polling shortened to milliseconds.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ConfigDir = filepath.Join(base, "config")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.TokenFile = filepath.Join(cfg.Paths.ConfigDir, "tokens.json")
	cfg.Paths.CacheFile = filepath.Join(cfg.Paths.DataDir, "api_cache.json")
	cfg.Paths.VersionsDir = filepath.Join(cfg.Paths.DataDir, "card_versions")
	cfg.Paths.JournalPath = filepath.Join(cfg.Paths.DataDir, "batches.db")
	cfg.Upload.PollIntervalMS = 1
	cfg.Upload.MaxPollAttempts = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAuthBaseURL points the login endpoints at a test server.
func WithAuthBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) { cfg.Auth.BaseURL = url }
}

// WithAPIBaseURL points the media and content endpoints at a test server.
func WithAPIBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) { cfg.API.BaseURL = url }
}

// WithoutDeviceFlow disables automatic device authorization.
func WithoutDeviceFlow() ConfigOption {
	return func(cfg *config.Config) { cfg.Auth.AutoDeviceFlow = false }
}
