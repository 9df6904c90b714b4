package preflight

import (
	"context"
	"time"

	"yotoup/internal/auth"
	"yotoup/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a failed check that does not block uploads.
	Warning bool
	Detail  string
}

// Failed returns the blocking failures in results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Warning {
			out = append(out, r)
		}
	}
	return out
}

// LocalChecks verifies the directories yotoup writes to.
func LocalChecks(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Config directory", cfg.Paths.ConfigDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Snapshot directory", cfg.Paths.VersionsDir),
	}
}

// RunAll executes every check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := LocalChecks(cfg)

	pair, err := auth.NewFileTokenStore(cfg.Paths.TokenFile).Load()
	if err != nil {
		results = append(results, Result{Name: "Login", Detail: "token file unreadable: " + err.Error()})
	} else {
		results = append(results, CheckTokens(pair, time.Now(), cfg.RefreshMargin()))
	}

	results = append(results,
		CheckEndpoint(ctx, "Login service", cfg.Auth.BaseURL),
		CheckEndpoint(ctx, "Content service", cfg.API.BaseURL),
	)
	return results
}
