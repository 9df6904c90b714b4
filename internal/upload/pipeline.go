package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"yotoup/internal/api"
	"yotoup/internal/card"
	"yotoup/internal/config"
	"yotoup/internal/fileutil"
	"yotoup/internal/logging"
	"yotoup/internal/poll"
	"yotoup/internal/services"
)

// Phase is a step of the per-file state machine.
type Phase string

const (
	PhaseHashing        Phase = "hashing"
	PhaseRequestingSlot Phase = "requesting_slot"
	PhaseUploading      Phase = "uploading"
	PhaseSkipped        Phase = "skipped"
	PhasePolling        Phase = "polling"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
)

// Progress is reported on every phase change and every transcode poll.
type Progress struct {
	Phase       Phase
	Label       string
	Attempt     int
	MaxAttempts int
}

// Fraction returns attempts/maxAttempts while polling, 1 once done, and 0 otherwise.
func (p Progress) Fraction() float64 {
	switch p.Phase {
	case PhaseDone:
		return 1
	case PhasePolling:
		if p.MaxAttempts > 0 {
			return min(float64(p.Attempt)/float64(p.MaxAttempts), 1)
		}
	}
	return 0
}

// ProgressFunc receives progress updates. It is called from the goroutine
// running the pipeline.
type ProgressFunc func(Progress)

// Source is one local audio file.
type Source struct {
	Path string
	// Filename is sent with the slot request; it defaults to the base name of Path.
	Filename string
}

// Name returns the filename reported to the service.
func (s Source) Name() string {
	if name := strings.TrimSpace(s.Filename); name != "" {
		return name
	}
	return filepath.Base(s.Path)
}

// Result is the outcome of a successful run.
type Result struct {
	Source       Source
	SourceSHA256 string
	SourceSize   int64
	UploadID     string
	Skipped      bool
	PollAttempts int
	Transcode    card.TranscodeResult
}

// MediaClient is the subset of the API the pipeline drives.
type MediaClient interface {
	RequestUploadSlot(ctx context.Context, sha256, filename string) (api.SlotResult, error)
	Put(ctx context.Context, rawURL, contentType string, body io.Reader, size int64) error
	TranscodeStatus(ctx context.Context, uploadID string, loudnorm bool) (api.TranscodeStatus, error)
}

// Pipeline moves single files through hash, slot, upload, and transcode polling.
// A Pipeline holds no per-file state and may run many files concurrently.
type Pipeline struct {
	client       MediaClient
	pollInterval time.Duration
	maxAttempts  int
	loudnorm     bool
	sleeper      poll.Sleeper
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSleeper replaces the wait between transcode polls.
func WithSleeper(sleeper poll.Sleeper) Option {
	return func(p *Pipeline) {
		if sleeper != nil {
			p.sleeper = sleeper
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "upload")
		}
	}
}

// WithLoudnorm overrides the configured loudness normalisation flag.
func WithLoudnorm(enabled bool) Option {
	return func(p *Pipeline) {
		p.loudnorm = enabled
	}
}

// New builds a pipeline using the upload section of cfg.
func New(client MediaClient, cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:       client,
		pollInterval: 2 * time.Second,
		maxAttempts:  120,
		sleeper:      poll.Sleep,
		logger:       logging.NewComponentLogger(logging.NewNop(), "upload"),
	}
	if cfg != nil {
		if d := cfg.PollInterval(); d > 0 {
			p.pollInterval = d
		}
		if cfg.Upload.MaxPollAttempts > 0 {
			p.maxAttempts = cfg.Upload.MaxPollAttempts
		}
		p.loudnorm = cfg.Upload.Loudnorm
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives src through the state machine. Failures name the file and the
// step and carry one of services.ErrUploadSlot, services.ErrUpload, or
// services.ErrTranscodeTimeout.
func (p *Pipeline) Run(ctx context.Context, src Source, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	name := src.Name()
	logger := logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldFile, name))

	result := Result{Source: src}
	fail := func(err error) (Result, error) {
		progress(Progress{Phase: PhaseFailed, Label: "Failed"})
		logger.Warn("upload failed",
			logging.String(logging.FieldEventType, "upload_failed"),
			logging.String(logging.FieldErrorHint, hintFor(err)),
			logging.String(logging.FieldImpact, "file will be missing from the card"),
			logging.Error(err))
		return result, err
	}

	progress(Progress{Phase: PhaseHashing, Label: "Hashing"})
	sha, size, err := fileutil.HashFile(src.Path)
	if err != nil {
		return fail(services.Wrap(services.ErrUpload, "upload", "hash", name, err))
	}
	result.SourceSHA256 = sha
	result.SourceSize = size
	logger.Debug("hashed source", logging.String("sha256", sha), logging.Int64("bytes", size))

	progress(Progress{Phase: PhaseRequestingSlot, Label: "Requesting upload slot"})
	slot, err := p.client.RequestUploadSlot(services.WithStage(ctx, string(PhaseRequestingSlot)), sha, name)
	if err != nil {
		return fail(services.Wrap(services.ErrUploadSlot, "upload", "request slot", name, err))
	}
	result.UploadID = slot.UploadID

	switch slot.Kind {
	case api.SlotExists:
		result.Skipped = true
		progress(Progress{Phase: PhaseSkipped, Label: "Already uploaded"})
		logger.Info("source already on server; skipping upload", logging.String("upload_id", slot.UploadID))
	case api.SlotUpload:
		progress(Progress{Phase: PhaseUploading, Label: "Uploading"})
		if err := p.put(services.WithStage(ctx, string(PhaseUploading)), src.Path, name, slot.UploadURL); err != nil {
			return fail(services.Wrap(services.ErrUpload, "upload", "put", name, err))
		}
		logger.Debug("upload complete", logging.String("upload_id", slot.UploadID))
	default:
		return fail(services.Wrap(services.ErrUploadSlot, "upload", "request slot", name,
			fmt.Errorf("unexpected slot kind %s", slot.Kind)))
	}

	transcode, attempts, err := p.awaitTranscode(services.WithStage(ctx, string(PhasePolling)), logger, slot.UploadID, progress)
	result.PollAttempts = attempts
	if err != nil {
		return fail(err)
	}
	result.Transcode = transcode

	progress(Progress{Phase: PhaseDone, Label: "Done", Attempt: attempts, MaxAttempts: p.maxAttempts})
	logger.Info("transcode ready",
		logging.String("transcoded_sha256", transcode.TranscodedSHA256),
		logging.Bool("skipped_upload", result.Skipped),
		logging.Int("poll_attempts", attempts))
	return result, nil
}

func (p *Pipeline) put(ctx context.Context, path, name, uploadURL string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.client.Put(ctx, uploadURL, fileutil.AudioContentType(name), f, info.Size())
}

func (p *Pipeline) awaitTranscode(ctx context.Context, logger *slog.Logger, uploadID string, progress ProgressFunc) (card.TranscodeResult, int, error) {
	sampler := logging.NewProgressSampler(10)
	var out card.TranscodeResult

	attempts, err := poll.Until(ctx, poll.Policy{
		Interval:    p.pollInterval,
		MaxAttempts: p.maxAttempts,
		Sleeper:     p.sleeper,
	}, func(ctx context.Context, attempt poll.Attempt) (poll.Result, error) {
		progress(Progress{
			Phase:       PhasePolling,
			Label:       fmt.Sprintf("Transcoding (%d/%d)", attempt.Number, p.maxAttempts),
			Attempt:     attempt.Number,
			MaxAttempts: p.maxAttempts,
		})
		status, err := p.client.TranscodeStatus(ctx, uploadID, p.loudnorm)
		if err != nil {
			if errors.Is(err, services.ErrNotAuthenticated) || ctx.Err() != nil {
				return poll.Result{}, err
			}
			logger.Debug("transcode status check failed; will retry",
				logging.Int("attempt", attempt.Number),
				logging.Error(err))
			return poll.Result{}, nil
		}
		if status.Ready {
			out = status.Result
			return poll.Result{Done: true}, nil
		}
		if sampler.ShouldLog(string(PhasePolling), attempt.Number, p.maxAttempts) {
			logger.Debug("waiting for transcode",
				logging.Int("attempt", attempt.Number),
				logging.Int("max_attempts", p.maxAttempts))
		}
		return poll.Result{}, nil
	})
	switch {
	case err == nil:
		return out, attempts, nil
	case errors.Is(err, poll.ErrExhausted):
		return out, attempts, services.Wrap(services.ErrTranscodeTimeout, "upload", "transcode",
			fmt.Sprintf("%s not ready after %d attempts", uploadID, attempts), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return out, attempts, services.Wrap(services.ErrCanceled, "upload", "transcode", uploadID, err)
	default:
		return out, attempts, services.Wrap(services.ErrUpload, "upload", "transcode", uploadID, err)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		return "run 'yotoup auth login' and retry"
	case errors.Is(err, services.ErrTranscodeTimeout):
		return "retry the file; the server may still be transcoding"
	case errors.Is(err, services.ErrUploadSlot):
		return "check the file is valid audio and retry"
	default:
		return "check network connectivity and retry the file"
	}
}
