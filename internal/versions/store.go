package versions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"yotoup/internal/logging"
	"yotoup/internal/services"
	"yotoup/internal/textutil"
)

// TimestampLayout names snapshot files. It sorts lexicographically by time.
const TimestampLayout = "20060102T150405Z"

const snapshotExt = ".json"

// Snapshot describes one stored version.
type Snapshot struct {
	Path    string
	Key     string
	SavedAt time.Time
	Seq     int
}

// Store writes immutable JSON snapshots under one directory per card.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used to name snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "versions")
		}
	}
}

// New returns a store rooted at dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		now:    time.Now,
		logger: logging.NewComponentLogger(logging.NewNop(), "versions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

type identity struct {
	CardID    string `json:"cardId"`
	ID        string `json:"id"`
	ContentID string `json:"contentId"`
	Title     string `json:"title"`
}

// KeyFor returns the directory name a document is stored under: its cardId,
// id, or contentId, else a slug of its title.
func KeyFor(doc []byte) string {
	var id identity
	_ = json.Unmarshal(doc, &id)
	for _, candidate := range []string{id.CardID, id.ID, id.ContentID} {
		if strings.TrimSpace(candidate) != "" {
			return safeKey(candidate)
		}
	}
	return safeKey(id.Title)
}

func safeKey(value string) string {
	key := strings.Trim(textutil.Slug(value), ".")
	if key == "" {
		return "untitled"
	}
	return key
}

// Save writes doc as a new snapshot and returns its path. doc may be any
// JSON-encodable value or raw JSON bytes.
func (s *Store) Save(doc any) (string, error) {
	data, err := encode(doc)
	if err != nil {
		return "", services.Wrap(services.ErrVersionStore, "versions", "save", "encode document", err)
	}
	key := KeyFor(data)
	dir := filepath.Join(s.dir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrVersionStore, "versions", "save", "create directory", err)
	}

	stamp := s.now().UTC().Format(TimestampLayout)
	for seq := 0; seq < 1000; seq++ {
		path := filepath.Join(dir, fileName(stamp, seq))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", services.Wrap(services.ErrVersionStore, "versions", "save", "create snapshot", err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(path)
			return "", services.Wrap(services.ErrVersionStore, "versions", "save", "write snapshot", errors.Join(werr, cerr))
		}
		s.logger.Debug("snapshot saved", logging.String(logging.FieldCardID, key), logging.String("path", path))
		return path, nil
	}
	return "", services.Wrap(services.ErrVersionStore, "versions", "save", "too many snapshots in one second", nil)
}

// List returns snapshot paths for cardID, newest first. A card with no
// snapshots yields an empty list.
func (s *Store) List(cardID string) ([]string, error) {
	snaps, err := s.Snapshots(cardID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		paths = append(paths, snap.Path)
	}
	return paths, nil
}

// Snapshots returns parsed snapshot entries for cardID, newest first.
func (s *Store) Snapshots(cardID string) ([]Snapshot, error) {
	key := safeKey(cardID)
	dir := filepath.Join(s.dir, key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrVersionStore, "versions", "list", key, err)
	}
	var snaps []Snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		savedAt, seq, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		snaps = append(snaps, Snapshot{
			Path:    filepath.Join(dir, entry.Name()),
			Key:     key,
			SavedAt: savedAt,
			Seq:     seq,
		})
	}
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].SavedAt.Equal(snaps[j].SavedAt) {
			return snaps[i].SavedAt.After(snaps[j].SavedAt)
		}
		return snaps[i].Seq > snaps[j].Seq
	})
	return snaps, nil
}

// Latest returns the newest snapshot path for cardID.
func (s *Store) Latest(cardID string) (string, bool, error) {
	paths, err := s.List(cardID)
	if err != nil || len(paths) == 0 {
		return "", false, err
	}
	return paths[0], true, nil
}

// Cards returns the card keys that have at least one snapshot directory.
func (s *Store) Cards() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrVersionStore, "versions", "cards", s.dir, err)
	}
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			keys = append(keys, entry.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Load reads a snapshot and returns its raw JSON.
func (s *Store) Load(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrVersionStore, "versions", "load", path, err)
	}
	if !json.Valid(data) {
		return nil, services.Wrap(services.ErrVersionStore, "versions", "load", path+" is not valid JSON", nil)
	}
	return json.RawMessage(data), nil
}

// Delete removes one snapshot file.
func (s *Store) Delete(path string) error {
	if _, _, ok := parseName(filepath.Base(path)); !ok {
		return services.Wrap(services.ErrVersionStore, "versions", "delete", path+" is not a snapshot", nil)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "versions", "delete", path, err)
		}
		return services.Wrap(services.ErrVersionStore, "versions", "delete", path, err)
	}
	return nil
}

func encode(doc any) ([]byte, error) {
	var raw []byte
	switch v := doc.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return json.MarshalIndent(doc, "", "  ")
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return json.MarshalIndent(decoded, "", "  ")
}

func fileName(stamp string, seq int) string {
	if seq == 0 {
		return stamp + snapshotExt
	}
	return fmt.Sprintf("%s-%d%s", stamp, seq, snapshotExt)
}

func parseName(name string) (time.Time, int, bool) {
	base, ok := strings.CutSuffix(name, snapshotExt)
	if !ok {
		return time.Time{}, 0, false
	}
	stamp, seqPart, hasSeq := strings.Cut(base, "-")
	seq := 0
	if hasSeq {
		n, err := strconv.Atoi(seqPart)
		if err != nil || n < 1 {
			return time.Time{}, 0, false
		}
		seq = n
	}
	t, err := time.Parse(TimestampLayout, stamp)
	if err != nil {
		return time.Time{}, 0, false
	}
	return t, seq, true
}
