package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local state locations.
type Paths struct {
	ConfigDir   string `toml:"config_dir"`
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	TokenFile   string `toml:"token_file"`
	CacheFile   string `toml:"cache_file"`
	VersionsDir string `toml:"versions_dir"`
	JournalPath string `toml:"journal_path"`
}

// Auth contains OAuth device flow settings for the Yoto login service.
type Auth struct {
	ClientID             string `toml:"client_id"`
	BaseURL              string `toml:"base_url"`
	Audience             string `toml:"audience"`
	Scope                string `toml:"scope"`
	AutoDeviceFlow       bool   `toml:"auto_device_flow"`
	RefreshMarginSeconds int    `toml:"refresh_margin_seconds"`
	RequestTimeout       int    `toml:"request_timeout"`
}

// API contains settings for the media and content endpoints.
type API struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Cache contains configuration for the on-disk response cache.
type Cache struct {
	Enabled       bool `toml:"enabled"` // Default: false
	MaxAgeSeconds int  `toml:"max_age_seconds"`
}

// Upload contains configuration for the upload pipeline and batch runs.
type Upload struct {
	Concurrency       int    `toml:"concurrency"`
	PollIntervalMS    int    `toml:"poll_interval_ms"`
	MaxPollAttempts   int    `toml:"max_poll_attempts"`
	Loudnorm          bool   `toml:"loudnorm"`
	Mode              string `toml:"mode"`
	StripTrackNumbers bool   `toml:"strip_track_numbers"`
	DefaultIcon       string `toml:"default_icon"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for yotoup.
//
// Configuration sections by subsystem:
//   - Paths: token, cache, snapshot, journal, and log locations
//   - Auth: device flow client and refresh behaviour
//   - API: media/content service endpoint
//   - Cache: opt-in GET response cache
//   - Upload: concurrency, transcode polling, and document layout
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Auth    Auth    `toml:"auth"`
	API     API     `toml:"api"`
	Cache   Cache   `toml:"cache"`
	Upload  Upload  `toml:"upload"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/yotoup/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("yotoup.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories local state is written to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ConfigDir, c.Paths.DataDir, c.Paths.LogDir, c.Paths.VersionsDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the transcode poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Upload.PollIntervalMS) * time.Millisecond
}

// RefreshMargin returns the safety margin applied to access token expiry.
func (c *Config) RefreshMargin() time.Duration {
	return time.Duration(c.Auth.RefreshMarginSeconds) * time.Second
}

// CacheMaxAge returns the maximum age of a cached response.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeSeconds) * time.Second
}

// APITimeout returns the per-request timeout for media and content calls.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// AuthTimeout returns the per-request timeout for login service calls.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.Auth.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
