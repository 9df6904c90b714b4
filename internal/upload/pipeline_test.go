package upload

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"yotoup/internal/api"
	"yotoup/internal/card"
	"yotoup/internal/services"
	"yotoup/internal/testsupport"
)

type putCall struct {
	url         string
	contentType string
	body        string
	size        int64
}

// fakeMedia scripts the media endpoints. readyAfter is the number of
// not-ready polls before the transcode reports done; a negative value never
// becomes ready.
type fakeMedia struct {
	mu         sync.Mutex
	slot       api.SlotResult
	slotErr    error
	putErr     error
	statusErrs []error
	readyAfter int
	polls      int
	puts       []putCall
	shas       []string
}

func (f *fakeMedia) RequestUploadSlot(_ context.Context, sha, _ string) (api.SlotResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shas = append(f.shas, sha)
	return f.slot, f.slotErr
}

func (f *fakeMedia) Put(_ context.Context, rawURL, contentType string, body io.Reader, size int64) error {
	data, _ := io.ReadAll(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{url: rawURL, contentType: contentType, body: string(data), size: size})
	return f.putErr
}

func (f *fakeMedia) TranscodeStatus(_ context.Context, uploadID string, _ bool) (api.TranscodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statusErrs) > 0 {
		err := f.statusErrs[0]
		f.statusErrs = f.statusErrs[1:]
		return api.TranscodeStatus{}, err
	}
	if f.readyAfter < 0 || f.polls <= f.readyAfter {
		return api.TranscodeStatus{}, nil
	}
	res := card.TranscodeResult{TranscodedSHA256: "t-" + uploadID}
	res.Info.Duration = 42
	res.Info.Format = "aac"
	return api.TranscodeStatus{Ready: true, Result: res}, nil
}

type recordedSleeps struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordedSleeps) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func writeSource(t *testing.T, name string, size int64) Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	testsupport.WriteFile(t, path, size)
	return Source{Path: path}
}

func phases(events []Progress) []Phase {
	out := make([]Phase, 0, len(events))
	for _, e := range events {
		out = append(out, e.Phase)
	}
	return out
}

func TestRunUploadsAndPolls(t *testing.T) {
	media := &fakeMedia{
		slot:       api.SlotResult{Kind: api.SlotUpload, UploadURL: "https://bucket/put", UploadID: "u1"},
		readyAfter: 2,
	}
	sleeper := &recordedSleeps{}
	cfg := testsupport.NewConfig(t)
	cfg.Upload.PollIntervalMS = 250
	pipeline := New(media, cfg, WithSleeper(sleeper.Sleep))

	src := writeSource(t, "01 Intro.m4a", 2048)
	var events []Progress
	res, err := pipeline.Run(context.Background(), src, func(p Progress) { events = append(events, p) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Skipped {
		t.Fatal("expected upload, not skip")
	}
	if res.Transcode.TranscodedSHA256 != "t-u1" || res.PollAttempts != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.SourceSHA256) != 64 || res.SourceSize != 2048 {
		t.Fatalf("unexpected digest %q size %d", res.SourceSHA256, res.SourceSize)
	}
	if len(media.puts) != 1 {
		t.Fatalf("expected one PUT, got %d", len(media.puts))
	}
	put := media.puts[0]
	if put.contentType != "audio/mp4" || put.size != 2048 || len(put.body) != 2048 || put.url != "https://bucket/put" {
		t.Fatalf("unexpected PUT %+v", put)
	}
	wantPhases := []Phase{PhaseHashing, PhaseRequestingSlot, PhaseUploading, PhasePolling, PhasePolling, PhasePolling, PhaseDone}
	if got := phases(events); !reflect.DeepEqual(got, wantPhases) {
		t.Fatalf("phases = %v, want %v", got, wantPhases)
	}
	wantSleeps := []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}
	if !reflect.DeepEqual(sleeper.sleeps, wantSleeps) {
		t.Fatalf("sleeps = %v, want %v", sleeper.sleeps, wantSleeps)
	}
	if frac := events[4].Fraction(); frac <= 0 || frac >= 1 {
		t.Fatalf("expected partial polling fraction, got %v", frac)
	}
}

func TestRunSkipsUploadForKnownBytes(t *testing.T) {
	media := &fakeMedia{
		slot:       api.SlotResult{Kind: api.SlotExists, UploadID: "dup"},
		readyAfter: 0,
	}
	pipeline := New(media, testsupport.NewConfig(t), WithSleeper((&recordedSleeps{}).Sleep))
	src := writeSource(t, "song.mp3", 512)

	var events []Progress
	first, err := pipeline.Run(context.Background(), src, func(p Progress) { events = append(events, p) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := pipeline.Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(media.puts) != 0 {
		t.Fatalf("bytes must not be uploaded for a dedup slot, got %d PUTs", len(media.puts))
	}
	if !first.Skipped || first.Transcode.TranscodedSHA256 != "t-dup" {
		t.Fatalf("unexpected result %+v", first)
	}
	if first.SourceSHA256 != second.SourceSHA256 || media.shas[0] != media.shas[1] {
		t.Fatal("identical bytes must hash identically")
	}
	want := []Phase{PhaseHashing, PhaseRequestingSlot, PhaseSkipped, PhasePolling, PhaseDone}
	if got := phases(events); !reflect.DeepEqual(got, want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
}

func TestRunSlotFailure(t *testing.T) {
	media := &fakeMedia{slotErr: services.Wrap(services.ErrUploadSlot, "api", "upload slot", "response has no uploadId", nil)}
	pipeline := New(media, testsupport.NewConfig(t))

	var last Progress
	_, err := pipeline.Run(context.Background(), writeSource(t, "a.mp3", 10), func(p Progress) { last = p })
	if !errors.Is(err, services.ErrUploadSlot) {
		t.Fatalf("expected ErrUploadSlot, got %v", err)
	}
	if last.Phase != PhaseFailed {
		t.Fatalf("expected final phase failed, got %s", last.Phase)
	}
	if len(media.puts) != 0 || media.polls != 0 {
		t.Fatal("nothing may follow a failed slot request")
	}
}

func TestRunUploadFailureIsNotRetried(t *testing.T) {
	media := &fakeMedia{
		slot:   api.SlotResult{Kind: api.SlotUpload, UploadURL: "https://bucket/put", UploadID: "u1"},
		putErr: &api.StatusError{Method: "PUT", Path: "https://bucket/put", StatusCode: 403},
	}
	pipeline := New(media, testsupport.NewConfig(t))

	_, err := pipeline.Run(context.Background(), writeSource(t, "a.mp3", 10), nil)
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if len(media.puts) != 1 || media.polls != 0 {
		t.Fatalf("expected a single PUT and no polling, got puts=%d polls=%d", len(media.puts), media.polls)
	}
}

func TestRunTranscodeTimeout(t *testing.T) {
	media := &fakeMedia{
		slot:       api.SlotResult{Kind: api.SlotExists, UploadID: "slow"},
		readyAfter: -1,
	}
	cfg := testsupport.NewConfig(t)
	cfg.Upload.MaxPollAttempts = 3
	pipeline := New(media, cfg, WithSleeper((&recordedSleeps{}).Sleep))

	res, err := pipeline.Run(context.Background(), writeSource(t, "a.mp3", 10), nil)
	if !errors.Is(err, services.ErrTranscodeTimeout) {
		t.Fatalf("expected ErrTranscodeTimeout, got %v", err)
	}
	if media.polls != 3 || res.PollAttempts != 3 {
		t.Fatalf("expected exactly 3 polls, got %d", media.polls)
	}
	if !services.Retryable(err) {
		t.Fatal("transcode timeouts should be retryable by the caller")
	}
}

func TestRunTreatsStatusErrorsAsNotReady(t *testing.T) {
	media := &fakeMedia{
		slot:       api.SlotResult{Kind: api.SlotExists, UploadID: "u1"},
		statusErrs: []error{errors.New("connection reset")},
		readyAfter: 1,
	}
	pipeline := New(media, testsupport.NewConfig(t), WithSleeper((&recordedSleeps{}).Sleep))

	res, err := pipeline.Run(context.Background(), writeSource(t, "a.mp3", 10), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PollAttempts != 3 {
		t.Fatalf("expected 3 attempts (error, pending, ready), got %d", res.PollAttempts)
	}
}

func TestRunStopsPollingWhenUnauthenticated(t *testing.T) {
	media := &fakeMedia{
		slot:       api.SlotResult{Kind: api.SlotExists, UploadID: "u1"},
		statusErrs: []error{&api.StatusError{StatusCode: 401}},
		readyAfter: 0,
	}
	pipeline := New(media, testsupport.NewConfig(t), WithSleeper((&recordedSleeps{}).Sleep))

	_, err := pipeline.Run(context.Background(), writeSource(t, "a.mp3", 10), nil)
	if !errors.Is(err, services.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if media.polls != 1 {
		t.Fatalf("expected polling to stop after the auth failure, got %d polls", media.polls)
	}
}

func TestRunMissingFile(t *testing.T) {
	media := &fakeMedia{}
	pipeline := New(media, testsupport.NewConfig(t))
	_, err := pipeline.Run(context.Background(), Source{Path: filepath.Join(t.TempDir(), "nope.mp3")}, nil)
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if len(media.shas) != 0 {
		t.Fatal("slot must not be requested for an unreadable file")
	}
}

func TestSourceName(t *testing.T) {
	if got := (Source{Path: "/music/01 Intro.mp3"}).Name(); got != "01 Intro.mp3" {
		t.Fatalf("Name() = %q", got)
	}
	if got := (Source{Path: "/tmp/x", Filename: "Chosen.mp3"}).Name(); got != "Chosen.mp3" {
		t.Fatalf("Name() = %q", got)
	}
}
