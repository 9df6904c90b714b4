package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	batchesCmd := &cobra.Command{
		Use:   "batches",
		Short: "Show upload batch history",
	}
	batchesCmd.AddCommand(newBatchesListCommand(ctx))
	batchesCmd.AddCommand(newBatchesShowCommand(ctx))
	batchesCmd.AddCommand(newBatchesPruneCommand(ctx))
	return batchesCmd
}

func newBatchesListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.journalStore()
			if err != nil {
				return err
			}
			batches, err := store.ListBatches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, batches)
			}
			out := cmd.OutOrStdout()
			if len(batches) == 0 {
				fmt.Fprintln(out, "No batches recorded")
				return nil
			}
			rows := make([][]string, 0, len(batches))
			for _, b := range batches {
				rows = append(rows, []string{
					b.ID,
					formatWhen(b.StartedAt),
					string(b.Status),
					fmt.Sprintf("%d/%d", b.Succeeded, b.Total),
					b.Title,
					b.CardID,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Batch", "Started", "Status", "OK", "Title", "Card"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of batches to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newBatchesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show the files of one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.journalStore()
			if err != nil {
				return err
			}
			b, err := store.GetBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items, err := store.Items(cmd.Context(), b.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{"batch": b, "items": items})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Batch %s: %s, %d/%d succeeded", b.ID, b.Status, b.Succeeded, b.Total)
			if d := b.Elapsed(); d > 0 {
				fmt.Fprintf(out, " in %s", d.Round(time.Second))
			}
			fmt.Fprintln(out)
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				note := item.ErrorMessage
				if note == "" && item.Deduplicated {
					note = "already on server"
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", item.Index+1),
					item.FileName,
					string(item.Status),
					formatSeconds(item.DurationSeconds),
					fmt.Sprintf("%d", item.PollAttempts),
					note,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "File", "Status", "Length", "Polls", "Note"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newBatchesPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Forget batches older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.journalStore()
			if err != nil {
				return err
			}
			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d batches\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}
