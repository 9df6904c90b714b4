package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"yotoup/internal/batch"
	"yotoup/internal/card"
	"yotoup/internal/config"
	"yotoup/internal/fileutil"
	"yotoup/internal/logging"
	"yotoup/internal/preflight"
	"yotoup/internal/services"
	"yotoup/internal/textutil"
	"yotoup/internal/upload"
)

type uploadOptions struct {
	title        string
	mode         string
	concurrency  int
	cardID       string
	stripNumbers bool
	loudnorm     bool
	retry        bool
	icon         string
	jsonOutput   bool
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var opts uploadOptions

	cmd := &cobra.Command{
		Use:   "upload <files|dirs...>",
		Short: "Upload audio files to a new or existing card",
		Long: `Upload hashes each file, sends it to the transcoder unless the service
already has it, waits for the transcode, and writes the card.

Without --card a new card is created, and only if every file succeeded.
With --card the successful files are appended as new chapters.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("mode") {
				opts.mode = cfg.Upload.Mode
			}
			if !flags.Changed("concurrency") {
				opts.concurrency = cfg.Upload.Concurrency
			}
			if !flags.Changed("strip-numbers") {
				opts.stripNumbers = cfg.Upload.StripTrackNumbers
			}
			if !flags.Changed("loudnorm") {
				opts.loudnorm = cfg.Upload.Loudnorm
			}
			if !flags.Changed("icon") {
				opts.icon = cfg.Upload.DefaultIcon
			}
			return runUpload(cmd, ctx, cfg, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.title, "title", "t", "", "Card title (new cards) or chapter title (single-chapter mode)")
	flags.StringVar(&opts.mode, "mode", config.ModePerFileChapter, "Layout: per_file_chapter or single_chapter_many_tracks")
	flags.IntVarP(&opts.concurrency, "concurrency", "j", 4, "Files processed at once")
	flags.StringVar(&opts.cardID, "card", "", "Append to this existing card instead of creating one")
	flags.BoolVar(&opts.stripNumbers, "strip-numbers", true, "Remove leading track numbers from file-derived titles")
	flags.BoolVar(&opts.loudnorm, "loudnorm", false, "Request loudness normalization from the transcoder")
	flags.BoolVar(&opts.retry, "retry", true, "Retry files that timed out or hit transient errors once")
	flags.StringVar(&opts.icon, "icon", "", "Display icon reference for new chapters and tracks")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the resulting card as JSON")
	return cmd
}

func runUpload(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, files []string, opts uploadOptions) error {
	sources, titles, err := planUpload(files, opts.stripNumbers)
	if err != nil {
		return err
	}
	if opts.cardID == "" && strings.TrimSpace(opts.title) == "" {
		opts.title = defaultCardTitle(sources)
	}

	if failed := preflight.Failed(preflight.LocalChecks(cfg)); len(failed) > 0 {
		return fmt.Errorf("%s: %s", failed[0].Name, failed[0].Detail)
	}

	runCtx := cmd.Context()
	logger := ctx.loggerValue()
	session, err := ctx.authSession(cmd)
	if err != nil {
		return err
	}
	// Fail before any file work when no token can be obtained.
	if _, err := session.EnsureValid(runCtx); err != nil {
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

	var target *card.Card
	if opts.cardID != "" {
		target, err = svc.FetchForUpdate(runCtx, opts.cardID)
		if err != nil {
			return err
		}
	}

	view := newUploadView(cmd.ErrOrStderr(), sources)
	batchOpts := []batch.Option{
		batch.WithLogger(logger),
		batch.WithItemProgress(view.item),
		batch.WithAggregateProgress(view.aggregate),
	}
	store, jerr := ctx.journalStore()
	if jerr != nil {
		logging.WarnWithContext(logger, "batch journal unavailable", "journal_open_failed",
			logging.Error(jerr),
			logging.String(logging.FieldImpact, "this batch will not appear in 'yotoup batches'"),
		)
	} else {
		batchOpts = append(batchOpts, batch.WithRecorder(store))
	}

	pipeline := upload.New(client, cfg, upload.WithLogger(logger), upload.WithLoudnorm(opts.loudnorm))
	orch := batch.New(pipeline, batchOpts...)
	stopOnCancel(runCtx, orch)

	report := orch.Run(runCtx, sources, opts.concurrency)
	if n := len(retryable(report)); opts.retry && n > 0 && runCtx.Err() == nil {
		view.reset(n)
		report = orch.Retry(runCtx, report, opts.concurrency)
	}
	view.finish()
	printUploadSummary(cmd.ErrOrStderr(), report)

	var saved *card.Card
	if target == nil {
		if err := report.Err(); err != nil {
			return fmt.Errorf("no card created: %d of %d files failed\n%w", len(report.Failed()), len(report.Items), err)
		}
		chapters, err := card.Assemble(report.Results(), titles, card.Options{
			Mode:       opts.mode,
			BatchTitle: opts.title,
			Icon:       opts.icon,
		})
		if err != nil {
			return err
		}
		saved, err = svc.CreateOrUpdate(runCtx, card.NewCard(opts.title, chapters))
		if err != nil {
			return err
		}
	} else {
		results := report.Results()
		if len(results) == 0 {
			return fmt.Errorf("nothing appended to %s\n%w", opts.cardID, report.Err())
		}
		chapters, err := card.Assemble(results, successfulTitles(report, titles), card.Options{
			Mode:          opts.mode,
			BatchTitle:    opts.title,
			ChapterOffset: len(target.Content.Chapters),
			TrackOffset:   target.TrackCount(),
			Icon:          opts.icon,
		})
		if err != nil {
			return err
		}
		card.AppendChapters(target, chapters)
		saved, err = svc.CreateOrUpdate(runCtx, target)
		if err != nil {
			return err
		}
	}

	if store != nil {
		if err := store.Annotate(runCtx, report.BatchID, saved.Title, saved.CardID); err != nil {
			logger.Debug("journal annotate failed", logging.Error(err))
		}
	}

	if opts.jsonOutput {
		if err := writeJSON(cmd, saved); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Card %s %q: %d chapters, %d tracks\n",
			saved.CardID, saved.Title, len(saved.Content.Chapters), saved.TrackCount())
	}
	if target != nil {
		if err := report.Err(); err != nil {
			return fmt.Errorf("appended %d of %d files\n%w", report.Succeeded(), len(report.Items), err)
		}
	}
	return nil
}

// planUpload checks that every path is a readable regular file or a
// directory, and derives a title for each file from its name. Directories
// contribute their audio files in name order; subdirectories are not walked.
func planUpload(paths []string, stripNumbers bool) ([]upload.Source, []string, error) {
	sources := make([]upload.Source, 0, len(paths))
	titles := make([]string, 0, len(paths))
	var errs []error
	add := func(path string) {
		sources = append(sources, upload.Source{Path: path})
		titles = append(titles, textutil.TitleFromFilename(path, stripNumbers))
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		switch {
		case err != nil:
			errs = append(errs, err)
		case info.IsDir():
			files, err := audioFilesIn(p)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, f := range files {
				add(f)
			}
		case !info.Mode().IsRegular():
			errs = append(errs, fmt.Errorf("%s: not a regular file", p))
		default:
			add(p)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return sources, titles, nil
}

// audioFilesIn lists the regular audio files directly inside dir, sorted by name.
func audioFilesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !fileutil.IsAudio(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: no audio files found", dir)
	}
	slices.Sort(files)
	return files, nil
}

// defaultCardTitle names a new card after the directory holding the first file.
func defaultCardTitle(sources []upload.Source) string {
	if len(sources) == 0 {
		return "Untitled"
	}
	abs, err := filepath.Abs(sources[0].Path)
	if err != nil {
		abs = sources[0].Path
	}
	if dir := textutil.CleanTitle(filepath.Base(filepath.Dir(abs))); dir != "" && dir != "." && dir != string(filepath.Separator) {
		return dir
	}
	return textutil.TitleFromFilename(sources[0].Path, true)
}

func successfulTitles(report batch.Report, titles []string) []string {
	out := make([]string, 0, len(titles))
	for _, item := range report.Items {
		if item.Status == batch.StatusDone && item.Index < len(titles) {
			out = append(out, titles[item.Index])
		}
	}
	return out
}

func retryable(report batch.Report) []batch.Item {
	var out []batch.Item
	for _, item := range report.Failed() {
		if item.Status == batch.StatusFailed && services.Retryable(item.Err) {
			out = append(out, item)
		}
	}
	return out
}

func stopOnCancel(ctx context.Context, orch *batch.Orchestrator) {
	go func() {
		<-ctx.Done()
		orch.Stop()
	}()
}

func printUploadSummary(out io.Writer, report batch.Report) {
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		note := ""
		switch {
		case item.Err != nil:
			note = item.Err.Error()
		case item.Result.Skipped:
			note = "already on server"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Index+1),
			item.Source.Name(),
			string(item.Status),
			formatSeconds(item.Result.Transcode.Info.Duration),
			formatBytes(item.Result.SourceSize),
			note,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "File", "Status", "Length", "Size", "Note"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "%d succeeded, %d failed in %s\n",
		report.Succeeded(), len(report.Failed()), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
}

// uploadView shows batch progress: a bar on terminals, one line per finished
// file otherwise. Callbacks arrive from many goroutines.
type uploadView struct {
	mu      sync.Mutex
	out     io.Writer
	names   []string
	bar     *progressbar.ProgressBar
	phases  []upload.Phase
	lineOut bool
}

func newUploadView(out io.Writer, sources []upload.Source) *uploadView {
	v := &uploadView{
		out:     out,
		names:   make([]string, len(sources)),
		phases:  make([]upload.Phase, len(sources)),
		lineOut: !shouldColorize(out),
	}
	for i, src := range sources {
		v.names[i] = src.Name()
	}
	v.reset(len(sources))
	return v
}

func (v *uploadView) reset(total int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lineOut {
		return
	}
	if v.bar != nil {
		_ = v.bar.Finish()
	}
	v.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(v.out),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (v *uploadView) item(index int, p upload.Progress) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if index >= len(v.phases) || v.phases[index] == p.Phase {
		return
	}
	v.phases[index] = p.Phase
	if v.lineOut {
		switch p.Phase {
		case upload.PhaseDone, upload.PhaseFailed:
			fmt.Fprintf(v.out, "%s: %s\n", v.names[index], p.Phase)
		}
		return
	}
	v.bar.Describe(fmt.Sprintf("%-14s %s", p.Phase, v.names[index]))
}

func (v *uploadView) aggregate(a batch.Aggregate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lineOut {
		fmt.Fprintf(v.out, "%d/%d files finished (%.0f%%)\n", a.Completed, a.Total, a.Fraction()*100)
		return
	}
	_ = v.bar.Set(a.Completed)
}

func (v *uploadView) finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bar != nil {
		_ = v.bar.Finish()
	}
}
