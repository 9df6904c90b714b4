package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yotoup/internal/api"
	"yotoup/internal/card"
	"yotoup/internal/logging"
	"yotoup/internal/services"
)

// UpdatedAtLayout is the timestamp format the content service expects.
const UpdatedAtLayout = "2006-01-02T15:04:05.000Z"

// Snapshot triggers.
const (
	TriggerWrite      = "write"
	TriggerFirstFetch = "first_fetch"
	TriggerPreDelete  = "pre_delete"
)

// CardClient is the subset of the API used for card documents.
type CardClient interface {
	GetCard(ctx context.Context, cardID string) (*card.Card, error)
	PostCard(ctx context.Context, doc any) (*card.Card, error)
	DeleteCard(ctx context.Context, cardID string) error
	ListCards(ctx context.Context) ([]card.Card, error)
}

// Snapshotter stores local versions. *versions.Store satisfies it.
type Snapshotter interface {
	Save(doc any) (string, error)
	List(cardID string) ([]string, error)
	Load(path string) (json.RawMessage, error)
}

// SnapshotOutcome reports one snapshot attempt. It is logged and passed to
// the snapshot hook, never returned to callers of the service.
type SnapshotOutcome struct {
	CardID  string
	Trigger string
	Path    string
	Err     error
}

// Service creates, reads, and removes card documents, keeping local snapshots
// as a side effect.
type Service struct {
	client     CardClient
	versions   Snapshotter
	now        func() time.Time
	logger     *slog.Logger
	onSnapshot func(SnapshotOutcome)
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source used for updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "content")
		}
	}
}

// WithSnapshotHook observes every snapshot attempt.
func WithSnapshotHook(fn func(SnapshotOutcome)) Option {
	return func(s *Service) {
		s.onSnapshot = fn
	}
}

// New builds a Service. versions may be nil to disable snapshots.
func New(client CardClient, versions Snapshotter, opts ...Option) *Service {
	s := &Service{
		client:   client,
		versions: versions,
		now:      time.Now,
		logger:   logging.NewComponentLogger(logging.NewNop(), "content"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type writeOptions struct {
	snapshot bool
}

// WriteOption adjusts a single CreateOrUpdate call.
type WriteOption func(*writeOptions)

// WithoutSnapshot skips the post-write snapshot.
func WithoutSnapshot() WriteOption {
	return func(o *writeOptions) {
		o.snapshot = false
	}
}

// CreateOrUpdate stamps updatedAt, sends the full document, and replaces *c
// with the service's copy, which carries the authoritative cardId.
func (s *Service) CreateOrUpdate(ctx context.Context, c *card.Card, opts ...WriteOption) (*card.Card, error) {
	if c == nil {
		return nil, services.Wrap(services.ErrValidation, "content", "create or update", "card is nil", nil)
	}
	wo := writeOptions{snapshot: true}
	for _, opt := range opts {
		opt(&wo)
	}

	c.UpdatedAt = s.now().UTC().Format(UpdatedAtLayout)
	saved, err := s.client.PostCard(ctx, c)
	if err != nil {
		return nil, s.wrap("create or update", describe(c), err)
	}
	*c = *saved

	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCardID, c.CardID))
	logger.Info("card saved",
		logging.String("title", c.Title),
		logging.Int("chapters", len(c.Content.Chapters)),
		logging.Int("tracks", c.TrackCount()))

	if wo.snapshot {
		s.snapshot(ctx, TriggerWrite, c.CardID, c)
	}
	return c, nil
}

// Fetch reads a card. The first time a card is fetched with no local
// snapshots, one is written before returning; that side effect never fails
// the fetch.
func (s *Service) Fetch(ctx context.Context, cardID string) (*card.Card, error) {
	c, err := s.client.GetCard(ctx, cardID)
	if err != nil {
		return nil, s.wrap("fetch", cardID, err)
	}
	if s.versions != nil {
		existing, lerr := s.versions.List(cardID)
		if lerr != nil || len(existing) == 0 {
			s.snapshot(ctx, TriggerFirstFetch, cardID, c)
		}
	}
	return c, nil
}

// FetchForUpdate is Fetch with the response cache bypassed, for callers that
// modify the card and write it back.
func (s *Service) FetchForUpdate(ctx context.Context, cardID string) (*card.Card, error) {
	return s.Fetch(api.WithFreshRead(ctx), cardID)
}

// List returns the user's cards.
func (s *Service) List(ctx context.Context) ([]card.Card, error) {
	cards, err := s.client.ListCards(ctx)
	if err != nil {
		return nil, s.wrap("list", "mine", err)
	}
	return cards, nil
}

// Delete snapshots the current document and removes the card. A 404 from
// either step means the card does not exist or belongs to someone else.
func (s *Service) Delete(ctx context.Context, cardID string) error {
	current, err := s.client.GetCard(api.WithFreshRead(ctx), cardID)
	if err != nil {
		return s.wrap("delete", cardID, err)
	}
	s.snapshot(ctx, TriggerPreDelete, cardID, current)

	if err := s.client.DeleteCard(ctx, cardID); err != nil {
		return s.wrap("delete", cardID, err)
	}
	logging.WithContext(ctx, s.logger).Info("card deleted", logging.String(logging.FieldCardID, cardID))
	return nil
}

// Edit fetches the live card, applies fn, and saves the result. fn must not
// call the network.
func (s *Service) Edit(ctx context.Context, cardID string, fn func(*card.Card) error) (*card.Card, error) {
	c, err := s.FetchForUpdate(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	return s.CreateOrUpdate(ctx, c)
}

// Restore replays a snapshot through CreateOrUpdate without taking a new
// snapshot. A snapshot that fails validation is sent as-is.
func (s *Service) Restore(ctx context.Context, path string) (*card.Card, error) {
	if s.versions == nil {
		return nil, services.Wrap(services.ErrVersionStore, "content", "restore", "no version store configured", nil)
	}
	raw, err := s.versions.Load(path)
	if err != nil {
		return nil, err
	}

	var c card.Card
	decodeErr := json.Unmarshal(raw, &c)
	if decodeErr == nil {
		decodeErr = card.Validate(&c)
	}
	if decodeErr == nil {
		return s.CreateOrUpdate(ctx, &c, WithoutSnapshot())
	}

	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "snapshot failed validation; sending raw document", "restore_unvalidated",
		logging.String("path", path),
		logging.Error(decodeErr),
		logging.String(logging.FieldErrorHint, "inspect the restored card in the app"),
	)
	saved, err := s.client.PostCard(ctx, raw)
	if err != nil {
		return nil, s.wrap("restore", path, err)
	}
	return saved, nil
}

// snapshot writes one version. Failures are logged and reported to the hook
// only.
func (s *Service) snapshot(ctx context.Context, trigger, cardID string, doc any) {
	if s.versions == nil {
		return
	}
	outcome := SnapshotOutcome{CardID: cardID, Trigger: trigger}
	outcome.Path, outcome.Err = s.versions.Save(doc)

	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldCardID, cardID),
		logging.String("trigger", trigger))
	if outcome.Err != nil {
		logging.WarnWithContext(logger, "version snapshot failed", "version_snapshot_failed",
			logging.Error(outcome.Err),
			logging.String(logging.FieldErrorHint, "check paths.versions_dir is writable"),
			logging.String(logging.FieldImpact, "no local recovery point for this change"),
		)
	} else {
		logger.Debug("version snapshot written", logging.String("path", outcome.Path))
	}
	if s.onSnapshot != nil {
		s.onSnapshot(outcome)
	}
}

func (s *Service) wrap(operation, subject string, err error) error {
	if errors.Is(err, services.ErrNotFound) {
		// err already carries ErrNotFound; both markers match.
		return services.Wrap(services.ErrContentService, "content", operation,
			fmt.Sprintf("%s not found or not owned", subject), err)
	}
	return services.Wrap(services.ErrContentService, "content", operation, subject, err)
}

func describe(c *card.Card) string {
	if id := strings.TrimSpace(c.CardID); id != "" {
		return id
	}
	if title := strings.TrimSpace(c.Title); title != "" {
		return fmt.Sprintf("new card %q", title)
	}
	return "new card"
}
