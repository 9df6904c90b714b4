package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.ClientID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/yotoup/config.toml"
		}
		return fmt.Errorf("auth.client_id is required. Set YOTO_CLIENT_ID env var or edit %s (create with 'yotoup config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Enabled && c.Cache.MaxAgeSeconds <= 0 {
		return errors.New("cache.max_age_seconds must be positive when the cache is enabled")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.Concurrency < 1 {
		return errors.New("upload.concurrency must be at least 1")
	}
	if c.Upload.PollIntervalMS <= 0 {
		return errors.New("upload.poll_interval_ms must be positive")
	}
	if c.Upload.MaxPollAttempts < 1 {
		return errors.New("upload.max_poll_attempts must be at least 1")
	}
	switch c.Upload.Mode {
	case ModePerFileChapter, ModeSingleChapterManyTracks:
	default:
		return fmt.Errorf("upload.mode: unsupported value %q (want %s or %s)", c.Upload.Mode, ModePerFileChapter, ModeSingleChapterManyTracks)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
