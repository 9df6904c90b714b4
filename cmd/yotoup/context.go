package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"yotoup/internal/api"
	"yotoup/internal/auth"
	"yotoup/internal/config"
	"yotoup/internal/content"
	"yotoup/internal/journal"
	"yotoup/internal/logging"
	"yotoup/internal/versions"
)

// commandContext lazily builds the services a command needs. Each piece is
// created at most once per process.
type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	sessionOnce sync.Once
	session     *auth.Session
	sessionErr  error

	journalOnce sync.Once
	journal     *journal.Store
	journalErr  error

	promptOut io.Writer
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.verbose != nil && *c.verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// authSession returns the process-wide session. Device codes are printed to
// the command's stderr.
func (c *commandContext) authSession(cmd *cobra.Command) (*auth.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	out := c.promptOut
	if out == nil {
		out = cmd.ErrOrStderr()
	}
	c.sessionOnce.Do(func() {
		c.session, c.sessionErr = auth.NewSession(cfg,
			auth.WithLogger(c.loggerValue()),
			auth.WithPrompt(func(code auth.DeviceCode) { printDeviceCode(out, code) }),
		)
	})
	return c.session, c.sessionErr
}

func (c *commandContext) apiClient(cmd *cobra.Command) (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	session, err := c.authSession(cmd)
	if err != nil {
		return nil, err
	}
	opts := []api.Option{api.WithLogger(c.loggerValue())}
	if cfg.Cache.Enabled {
		rc, err := c.responseCache()
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithCache(rc))
	}
	return api.New(cfg, session, opts...), nil
}

func (c *commandContext) versionStore() (*versions.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return versions.New(cfg.Paths.VersionsDir, versions.WithLogger(c.loggerValue())), nil
}

func (c *commandContext) contentService(cmd *cobra.Command) (*content.Service, error) {
	client, err := c.apiClient(cmd)
	if err != nil {
		return nil, err
	}
	store, err := c.versionStore()
	if err != nil {
		return nil, err
	}
	return content.New(client, store, content.WithLogger(c.loggerValue())), nil
}

func (c *commandContext) journalStore() (*journal.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.journalOnce.Do(func() {
		c.journal, c.journalErr = journal.Open(cfg)
	})
	return c.journal, c.journalErr
}

func (c *commandContext) close() {
	if c.journal != nil {
		_ = c.journal.Close()
	}
}

func printDeviceCode(out io.Writer, code auth.DeviceCode) {
	fmt.Fprintln(out, "To authorize yotoup, visit:")
	if code.VerificationURIComplete != "" {
		fmt.Fprintf(out, "  %s\n", code.VerificationURIComplete)
	} else {
		fmt.Fprintf(out, "  %s\n", code.VerificationURI)
	}
	fmt.Fprintf(out, "and confirm the code %s\n", code.UserCode)
	fmt.Fprintln(out, "Waiting for authorization...")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
