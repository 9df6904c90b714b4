package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAuth()
	c.normalizeAPI()
	c.normalizeUpload()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ConfigDir) == "" {
		c.Paths.ConfigDir = defaultConfigDir
	}
	if c.Paths.ConfigDir, err = expandPath(c.Paths.ConfigDir); err != nil {
		return fmt.Errorf("paths.config_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	derived := []struct {
		field    *string
		name     string
		fallback string
	}{
		{&c.Paths.TokenFile, "paths.token_file", filepath.Join(c.Paths.ConfigDir, defaultTokenFileName)},
		{&c.Paths.CacheFile, "paths.cache_file", filepath.Join(c.Paths.DataDir, defaultCacheFileName)},
		{&c.Paths.VersionsDir, "paths.versions_dir", filepath.Join(c.Paths.DataDir, defaultVersionsDirName)},
		{&c.Paths.JournalPath, "paths.journal_path", filepath.Join(c.Paths.DataDir, defaultJournalFileName)},
		{&c.Paths.LogDir, "paths.log_dir", filepath.Join(c.Paths.DataDir, defaultLogDirName)},
	}
	for _, d := range derived {
		if strings.TrimSpace(*d.field) == "" {
			*d.field = d.fallback
			continue
		}
		if *d.field, err = expandPath(*d.field); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

func (c *Config) normalizeAuth() {
	if value, ok := os.LookupEnv("YOTO_CLIENT_ID"); ok && strings.TrimSpace(value) != "" {
		c.Auth.ClientID = strings.TrimSpace(value)
	}
	c.Auth.ClientID = strings.TrimSpace(c.Auth.ClientID)
	c.Auth.BaseURL = strings.TrimRight(strings.TrimSpace(c.Auth.BaseURL), "/")
	if c.Auth.BaseURL == "" {
		c.Auth.BaseURL = defaultAuthBaseURL
	}
	c.Auth.Audience = strings.TrimSpace(c.Auth.Audience)
	if c.Auth.Audience == "" {
		c.Auth.Audience = defaultAudience
	}
	c.Auth.Scope = strings.TrimSpace(c.Auth.Scope)
	if c.Auth.Scope == "" {
		c.Auth.Scope = defaultScope
	}
	if c.Auth.RefreshMarginSeconds < 0 {
		c.Auth.RefreshMarginSeconds = defaultRefreshMarginSeconds
	}
	if c.Auth.RequestTimeout <= 0 {
		c.Auth.RequestTimeout = defaultAuthRequestTimeout
	}
}

func (c *Config) normalizeAPI() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	if c.API.RequestTimeout <= 0 {
		c.API.RequestTimeout = defaultAPIRequestTimeout
	}
}

func (c *Config) normalizeUpload() {
	c.Upload.Mode = strings.ToLower(strings.TrimSpace(c.Upload.Mode))
	if c.Upload.Mode == "" {
		c.Upload.Mode = defaultUploadMode
	}
	c.Upload.DefaultIcon = strings.TrimSpace(c.Upload.DefaultIcon)
	if c.Upload.DefaultIcon == "" {
		c.Upload.DefaultIcon = defaultIcon
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("YOTOUP_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
