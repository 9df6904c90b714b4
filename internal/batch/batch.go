package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"yotoup/internal/card"
	"yotoup/internal/logging"
	"yotoup/internal/services"
	"yotoup/internal/upload"
)

// Status is the lifecycle state of one batch item.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Runner runs one file. *upload.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, src upload.Source, progress upload.ProgressFunc) (upload.Result, error)
}

// Item is the slot for one input file. Items[i] always corresponds to sources[i].
type Item struct {
	Index      int
	Source     upload.Source
	Status     Status
	Result     upload.Result
	Err        error
	Progress   upload.Progress
	StartedAt  time.Time
	FinishedAt time.Time
}

// Report is the outcome of a batch.
type Report struct {
	BatchID    string
	Items      []Item
	Limit      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed returns the items that did not finish successfully, in input order.
func (r Report) Failed() []Item {
	var out []Item
	for _, item := range r.Items {
		if item.Status != StatusDone {
			out = append(out, item)
		}
	}
	return out
}

// Succeeded returns how many items finished successfully.
func (r Report) Succeeded() int {
	return len(r.Items) - len(r.Failed())
}

// Err joins every item failure, each prefixed with its file name. It is nil
// when every item succeeded.
func (r Report) Err() error {
	var errs []error
	for _, item := range r.Failed() {
		err := item.Err
		if err == nil {
			err = fmt.Errorf("not completed (%s)", item.Status)
		}
		errs = append(errs, fmt.Errorf("%s: %w", item.Source.Name(), err))
	}
	return errors.Join(errs...)
}

// Results returns the transcode results of successful items in input order.
func (r Report) Results() []card.TranscodeResult {
	out := make([]card.TranscodeResult, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Status == StatusDone {
			out = append(out, item.Result.Transcode)
		}
	}
	return out
}

// Aggregate is batch-wide progress.
type Aggregate struct {
	Completed int
	Total     int
}

// Fraction returns Completed/Total.
func (a Aggregate) Fraction() float64 {
	if a.Total == 0 {
		return 1
	}
	return float64(a.Completed) / float64(a.Total)
}

// ItemProgressFunc receives per-item progress. Calls for different items may
// arrive concurrently.
type ItemProgressFunc func(index int, p upload.Progress)

// AggregateFunc receives the completed counter after each item finishes. Calls
// may arrive concurrently; Completed values are distinct and increasing.
type AggregateFunc func(Aggregate)

// Recorder persists batch history. Errors are logged and never fail the batch.
type Recorder interface {
	BeginBatch(ctx context.Context, report Report) error
	RecordItem(ctx context.Context, batchID string, item Item) error
	FinishBatch(ctx context.Context, report Report) error
}

// Orchestrator runs many pipelines under a simultaneity limit.
type Orchestrator struct {
	runner      Runner
	logger      *slog.Logger
	recorder    Recorder
	onItem      ItemProgressFunc
	onAggregate AggregateFunc
	now         func() time.Time
	stopped     atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logging.NewComponentLogger(logger, "batch")
		}
	}
}

// WithRecorder attaches batch history persistence.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithItemProgress registers a per-item progress callback.
func WithItemProgress(fn ItemProgressFunc) Option {
	return func(o *Orchestrator) {
		o.onItem = fn
	}
}

// WithAggregateProgress registers a batch-wide progress callback.
func WithAggregateProgress(fn AggregateFunc) Option {
	return func(o *Orchestrator) {
		o.onAggregate = fn
	}
}

// New builds an orchestrator around runner.
func New(runner Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner: runner,
		logger: logging.NewComponentLogger(logging.NewNop(), "batch"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stop prevents pipelines that have not started from starting. Running
// pipelines finish normally.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
}

// Stopped reports whether Stop was called.
func (o *Orchestrator) Stopped() bool {
	return o.stopped.Load()
}

// Run processes sources with at most limit pipelines in flight. One file's
// failure never cancels another; inspect the report afterwards.
func (o *Orchestrator) Run(ctx context.Context, sources []upload.Source, limit int) Report {
	if limit < 1 {
		limit = 1
	}
	report := Report{
		BatchID:   uuid.NewString(),
		Items:     make([]Item, len(sources)),
		Limit:     limit,
		StartedAt: o.now(),
	}
	for i, src := range sources {
		report.Items[i] = Item{Index: i, Source: src, Status: StatusPending}
	}
	ctx = services.WithBatchID(ctx, report.BatchID)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("batch started", logging.Int("files", len(sources)), logging.Int("limit", limit))
	o.record(ctx, func() error { return o.recorder.BeginBatch(ctx, report) })

	o.runItems(ctx, &report, indexes(len(sources)), limit)

	report.FinishedAt = o.now()
	o.record(ctx, func() error { return o.recorder.FinishBatch(ctx, report) })
	logger.Info("batch finished",
		logging.Int("succeeded", report.Succeeded()),
		logging.Int("failed", len(report.Failed())),
		logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

// Retry reruns the items of report whose failures are retryable, such as
// transcode timeouts, and returns an updated copy. Other items keep their
// previous outcome.
func (o *Orchestrator) Retry(ctx context.Context, report Report, limit int) Report {
	if limit < 1 {
		limit = max(report.Limit, 1)
	}
	out := report
	out.Items = append([]Item(nil), report.Items...)

	var retry []int
	for i, item := range out.Items {
		if item.Status == StatusFailed && services.Retryable(item.Err) {
			out.Items[i].Status = StatusPending
			out.Items[i].Err = nil
			retry = append(retry, i)
		}
	}
	if len(retry) == 0 {
		return out
	}
	ctx = services.WithBatchID(ctx, out.BatchID)
	logging.WithContext(ctx, o.logger).Info("retrying failed files", logging.Int("files", len(retry)))
	o.runItems(ctx, &out, retry, limit)
	out.FinishedAt = o.now()
	o.record(ctx, func() error { return o.recorder.FinishBatch(ctx, out) })
	return out
}

func (o *Orchestrator) runItems(ctx context.Context, report *Report, which []int, limit int) {
	var completed atomic.Int64
	total := len(which)

	finish := func(i int) {
		report.Items[i].FinishedAt = o.now()
		item := report.Items[i]
		o.record(ctx, func() error { return o.recorder.RecordItem(ctx, report.BatchID, item) })
		n := completed.Add(1)
		if o.onAggregate != nil {
			o.onAggregate(Aggregate{Completed: int(n), Total: total})
		}
	}
	skip := func(i int, err error) {
		report.Items[i].Status = StatusSkipped
		report.Items[i].Err = services.Wrap(services.ErrCanceled, "batch", "run", "not started", err)
		finish(i)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, i := range which {
		if o.stopped.Load() {
			skip(i, errors.New("batch stopped"))
			continue
		}
		if err := ctx.Err(); err != nil {
			skip(i, err)
			continue
		}
		g.Go(func() error {
			if o.stopped.Load() {
				skip(i, errors.New("batch stopped"))
				return nil
			}
			itemCtx := services.WithItemIndex(ctx, i)
			itemCtx = services.WithRequestID(itemCtx, uuid.NewString())

			item := &report.Items[i]
			item.Status = StatusRunning
			item.StartedAt = o.now()
			res, err := o.runner.Run(itemCtx, item.Source, func(p upload.Progress) {
				item.Progress = p
				if o.onItem != nil {
					o.onItem(i, p)
				}
			})
			item.Result = res
			if err != nil {
				item.Status = StatusFailed
				item.Err = err
			} else {
				item.Status = StatusDone
			}
			finish(i)
			// Failures stay on the item.
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) record(ctx context.Context, fn func() error) {
	if o.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "batch journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.journal_path is writable"),
			logging.String(logging.FieldImpact, "batch history will be incomplete"),
		)
	}
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
