package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"yotoup/internal/card"
)

func newCardCommand(ctx *commandContext) *cobra.Command {
	cardCmd := &cobra.Command{
		Use:   "card",
		Short: "Inspect and restructure cards",
	}
	cardCmd.AddCommand(newCardListCommand(ctx))
	cardCmd.AddCommand(newCardShowCommand(ctx))
	cardCmd.AddCommand(newCardDeleteCommand(ctx))
	cardCmd.AddCommand(newCardCoverCommand(ctx))
	cardCmd.AddCommand(newCardEditCommand(ctx, "merge",
		"Merge every chapter into one",
		func(cmd *cobra.Command) func(*card.Card) error {
			title, _ := cmd.Flags().GetString("title")
			return func(c *card.Card) error { return card.MergeChapters(c, title) }
		},
		func(cmd *cobra.Command) {
			cmd.Flags().String("title", "", "Title of the merged chapter (defaults to the first chapter's)")
		}))
	cardCmd.AddCommand(newCardEditCommand(ctx, "split",
		"Split chapters so none holds more than --max tracks",
		func(cmd *cobra.Command) func(*card.Card) error {
			maxTracks, _ := cmd.Flags().GetInt("max")
			return func(c *card.Card) error { return card.SplitChapters(c, maxTracks) }
		},
		func(cmd *cobra.Command) {
			cmd.Flags().Int("max", 10, "Maximum tracks per chapter")
		}))
	cardCmd.AddCommand(newCardEditCommand(ctx, "expand",
		"Give every track its own chapter",
		func(*cobra.Command) func(*card.Card) error { return card.ExpandTracks },
		nil))
	cardCmd.AddCommand(newCardEditCommand(ctx, "relabel",
		"Renumber chapter keys and overlay labels",
		func(cmd *cobra.Command) func(*card.Card) error {
			perChapter, _ := cmd.Flags().GetBool("per-chapter")
			return func(c *card.Card) error {
				card.Relabel(c, card.RelabelOptions{ResetPerChapter: perChapter})
				return nil
			}
		},
		func(cmd *cobra.Command) {
			cmd.Flags().Bool("per-chapter", false, "Restart track keys and labels at 1 in each chapter")
		}))
	return cardCmd
}

func newCardListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.contentService(cmd)
			if err != nil {
				return err
			}
			cards, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, cards)
			}
			out := cmd.OutOrStdout()
			if len(cards) == 0 {
				fmt.Fprintln(out, "No cards")
				return nil
			}
			rows := make([][]string, 0, len(cards))
			for i := range cards {
				c := &cards[i]
				rows = append(rows, []string{
					c.CardID,
					c.Title,
					fmt.Sprintf("%d", len(c.Content.Chapters)),
					fmt.Sprintf("%d", c.TrackCount()),
					c.UpdatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Chapters", "Tracks", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCardShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <card-id>",
		Short: "Show a card's chapters and tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.contentService(cmd)
			if err != nil {
				return err
			}
			c, err := svc.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, c)
			}
			printCard(cmd, c)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printCard(cmd *cobra.Command, c *card.Card) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", c.CardID, c.Title)
	if c.Metadata != nil && c.Metadata.Media != nil {
		fmt.Fprintf(out, "Total: %s, %s\n", formatSeconds(c.Metadata.Media.Duration), formatBytes(c.Metadata.Media.FileSize))
	}
	rows := make([][]string, 0, c.TrackCount())
	for _, ch := range c.Content.Chapters {
		for j, tr := range ch.Tracks {
			chapterKey, chapterTitle := "", ""
			if j == 0 {
				chapterKey, chapterTitle = ch.Key, ch.Title
			}
			rows = append(rows, []string{
				chapterKey,
				chapterTitle,
				tr.OverlayLabel,
				tr.Title,
				formatSeconds(tr.Duration),
				strings.TrimPrefix(tr.TrackURL, card.URLScheme),
			})
		}
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Ch", "Chapter", "#", "Track", "Length", "Audio"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	))
}

func newCardDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <card-id>",
		Short: "Delete a card (a local snapshot is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.contentService(cmd)
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s; restore it with 'yotoup versions list %s'\n", args[0], args[0])
			return nil
		},
	}
}

// maxCoverBytes bounds the image read into memory for a cover upload.
const maxCoverBytes = 20 << 20

func newCardCoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cover <card-id> <image>",
		Short: "Upload an image and set it as the card's cover",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cardID, imagePath := args[0], args[1]
			data, contentType, err := readCoverImage(imagePath)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient(cmd)
			if err != nil {
				return err
			}
			svc, err := ctx.contentService(cmd)
			if err != nil {
				return err
			}
			mediaURL, err := client.UploadCoverImage(cmd.Context(), contentType, data)
			if err != nil {
				return err
			}
			saved, err := svc.Edit(cmd.Context(), cardID, func(c *card.Card) error {
				c.SetCover(mediaURL)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cover of %s set to %s\n", saved.CardID, mediaURL)
			return nil
		},
	}
}

// readCoverImage loads an image file and names its MIME type, preferring the
// extension and falling back to content sniffing.
func readCoverImage(path string) ([]byte, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if !info.Mode().IsRegular() {
		return nil, "", fmt.Errorf("%s: not a regular file", path)
	}
	if info.Size() > maxCoverBytes {
		return nil, "", fmt.Errorf("%s: image larger than %d MiB", path, maxCoverBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	} else {
		contentType = http.DetectContentType(data)
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mediaType
		}
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%s: not an image (%s)", path, contentType)
	}
	return data, contentType, nil
}

// newCardEditCommand builds a subcommand that fetches a card, applies one
// structural edit, and saves the whole document back.
func newCardEditCommand(
	ctx *commandContext,
	name, short string,
	edit func(*cobra.Command) func(*card.Card) error,
	flags func(*cobra.Command),
) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   name + " <card-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.contentService(cmd)
			if err != nil {
				return err
			}
			fn := edit(cmd)
			if dryRun {
				before, err := svc.FetchForUpdate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				after, err := before.Clone()
				if err != nil {
					return err
				}
				if err := fn(after); err != nil {
					return err
				}
				printCard(cmd, after)
				fmt.Fprintf(cmd.OutOrStdout(), "Dry run: %d chapters / %d tracks would become %d / %d (not saved)\n",
					len(before.Content.Chapters), before.TrackCount(), len(after.Content.Chapters), after.TrackCount())
				return nil
			}
			saved, err := svc.Edit(cmd.Context(), args[0], fn)
			if err != nil {
				return err
			}
			printCard(cmd, saved)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the result without saving")
	if flags != nil {
		flags(cmd)
	}
	return cmd
}
