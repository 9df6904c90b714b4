package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"yotoup/internal/cache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the API response cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop expired entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := ctx.responseCache()
			if err != nil {
				return err
			}
			n, err := rc.Purge()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries; %d remain\n", n, rc.Len())
			return nil
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := ctx.responseCache()
			if err != nil {
				return err
			}
			if err := rc.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	})
	return cacheCmd
}

func (c *commandContext) responseCache() (*cache.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.Paths.CacheFile, cfg.CacheMaxAge(), c.loggerValue()), nil
}
