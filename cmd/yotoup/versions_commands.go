package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"yotoup/internal/versions"
)

func newVersionsCommand(ctx *commandContext) *cobra.Command {
	versionsCmd := &cobra.Command{
		Use:   "versions",
		Short: "Browse and restore local card snapshots",
	}
	versionsCmd.AddCommand(newVersionsListCommand(ctx))
	versionsCmd.AddCommand(newVersionsRestoreCommand(ctx))
	versionsCmd.AddCommand(newVersionsDeleteCommand(ctx))
	return versionsCmd
}

func newVersionsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list [card-id]",
		Short: "List snapshot keys, or the snapshots of one card",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.versionStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				keys, err := store.Cards()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, keys)
				}
				if len(keys) == 0 {
					fmt.Fprintf(out, "No snapshots in %s\n", store.Dir())
					return nil
				}
				rows := make([][]string, 0, len(keys))
				for _, key := range keys {
					snaps, err := store.Snapshots(key)
					if err != nil {
						return err
					}
					latest := "-"
					if len(snaps) > 0 {
						latest = formatWhen(snaps[0].SavedAt)
					}
					rows = append(rows, []string{key, fmt.Sprintf("%d", len(snaps)), latest})
				}
				fmt.Fprintln(out, renderTable([]string{"Card", "Snapshots", "Latest"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			}

			snaps, err := store.Snapshots(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, snaps)
			}
			if len(snaps) == 0 {
				fmt.Fprintf(out, "No snapshots for %s\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(snaps))
			for i, snap := range snaps {
				size := int64(0)
				if info, err := os.Stat(snap.Path); err == nil {
					size = info.Size()
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", i+1),
					formatWhen(snap.SavedAt),
					formatBytes(size),
					snap.Path,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Saved", "Size", "Path"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newVersionsRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-path | card-id>",
		Short: "Send a snapshot back to the service",
		Long:  "Restore accepts a snapshot file or a card id; a card id restores its newest snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.versionStore()
			if err != nil {
				return err
			}
			path, err := resolveSnapshot(store, args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.contentService(cmd)
			if err != nil {
				return err
			}
			saved, err := svc.Restore(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s %q from %s\n", saved.CardID, saved.Title, filepath.Base(path))
			return nil
		},
	}
}

func newVersionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-path>",
		Short: "Remove one local snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.versionStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

// resolveSnapshot treats arg as a file when it exists, otherwise as a card key.
func resolveSnapshot(store *versions.Store, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		return arg, nil
	}
	path, ok, err := store.Latest(arg)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no snapshot file or card key %q in %s", arg, store.Dir())
	}
	return path, nil
}
