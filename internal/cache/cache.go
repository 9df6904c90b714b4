package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"yotoup/internal/fileutil"
	"yotoup/internal/logging"
)

// Entry is one cached response.
type Entry struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"json,omitempty"`
	Text       string          `json:"text"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RequestShape is everything that distinguishes one outbound request from another.
type RequestShape struct {
	Method string
	URL    string
	Params map[string]string
	Data   map[string]string
	JSON   any
}

// Key returns the hex SHA-256 of the shape's canonical JSON encoding. Map keys
// are encoded in sorted order, so parameter ordering never changes the key.
func Key(shape RequestShape) string {
	canonical := map[string]any{
		"method": strings.ToUpper(shape.Method),
		"url":    shape.URL,
		"params": shape.Params,
		"data":   shape.Data,
		"json":   shape.JSON,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		data = fmt.Appendf(nil, "%s %s %v %v %v", canonical["method"], shape.URL, shape.Params, shape.Data, shape.JSON)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Cache is a TTL-bounded response cache persisted as a JSON object keyed by
// request hash. Writes hold the in-process mutex and an advisory file lock for
// the whole read-merge-write cycle, so concurrent writers in this or another
// process never interleave partial writes.
type Cache struct {
	path   string
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
	lock   *flock.Flock

	mu      sync.RWMutex
	entries map[string]Entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache backed by path. An empty path yields a disabled cache:
// every lookup misses and every write is a no-op.
func New(path string, maxAge time.Duration, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Cache{
		path:    strings.TrimSpace(path),
		maxAge:  maxAge,
		logger:  logging.NewComponentLogger(logger, "cache"),
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.path == "" {
		return c
	}
	c.lock = flock.New(c.path + ".lock")

	entries, err := readEntries(c.path)
	if err != nil {
		logging.WarnWithContext(c.logger, "failed to load response cache", "cache_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "previously cached responses will be fetched again"),
		)
		return c
	}
	c.entries = entries
	c.logger.Debug("loaded response cache",
		logging.Int("entry_count", len(entries)),
		logging.String("path", c.path))
	return c
}

// Enabled reports whether the cache is backed by a file.
func (c *Cache) Enabled() bool {
	return c != nil && c.path != ""
}

// Get returns the entry for shape when present and no older than the max age.
func (c *Cache) Get(shape RequestShape) (Entry, bool) {
	if !c.Enabled() {
		return Entry{}, false
	}
	key := Key(shape)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.expired(entry) {
		return Entry{}, false
	}
	return entry, true
}

// Put stores entry under shape, overwriting any previous value. A zero
// Timestamp is set to the current time.
func (c *Cache) Put(shape RequestShape, entry Entry) error {
	if !c.Enabled() {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now().UTC()
	}
	key := Key(shape)
	if err := c.update(func(entries map[string]Entry) {
		entries[key] = entry
	}); err != nil {
		return err
	}
	c.logger.Debug("cached response",
		logging.String("method", shape.Method),
		logging.String("url", shape.URL),
		logging.Int("status_code", entry.StatusCode))
	return nil
}

// Delete removes the entry for shape, if any.
func (c *Cache) Delete(shape RequestShape) error {
	if !c.Enabled() {
		return nil
	}
	key := Key(shape)
	c.mu.RLock()
	_, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.update(func(entries map[string]Entry) {
		delete(entries, key)
	})
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	removed := 0
	err := c.update(func(entries map[string]Entry) {
		for key, entry := range entries {
			if c.expired(entry) {
				delete(entries, key)
				removed++
			}
		}
	})
	return removed, err
}

// Clear removes all entries.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	return c.update(func(entries map[string]Entry) {
		clear(entries)
	})
}

// Len returns the number of entries held, expired or not.
func (c *Cache) Len() int {
	if !c.Enabled() {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(entry Entry) bool {
	if c.maxAge <= 0 {
		return false
	}
	return c.now().Sub(entry.Timestamp) > c.maxAge
}

// update applies fn to the current on-disk state and persists the result. The
// in-memory map is replaced with what was written, picking up entries other
// processes added since the last load.
func (c *Cache) update(fn func(map[string]Entry)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Debug("cache unlock failed", logging.Error(err))
		}
	}()

	entries, err := readEntries(c.path)
	if err != nil {
		c.logger.Debug("discarding unreadable cache file", logging.Error(err))
		entries = make(map[string]Entry)
	}
	fn(entries)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	c.entries = entries
	return nil
}

func readEntries(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]Entry), nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return make(map[string]Entry), nil
	}
	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}
	return entries, nil
}
