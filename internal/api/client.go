package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"yotoup/internal/cache"
	"yotoup/internal/config"
	"yotoup/internal/logging"
	"yotoup/internal/services"
)

const maxErrorBodyBytes = 4096

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenSource supplies a bearer token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StatusError reports a non-2xx response. Body holds the raw server text.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps 401 to services.ErrNotAuthenticated and 404 to services.ErrNotFound.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return services.ErrNotAuthenticated
	case http.StatusNotFound:
		return services.ErrNotFound
	}
	return nil
}

type freshReadKey struct{}

// WithFreshRead marks ctx so cached GETs skip the response cache lookup. The
// fresh response still replaces the cached entry.
func WithFreshRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey{}, true)
}

// IsFreshRead reports whether ctx was marked by WithFreshRead.
func IsFreshRead(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshReadKey{}).(bool)
	return fresh
}

// rawBody is sent verbatim instead of being JSON encoded.
type rawBody struct {
	contentType string
	data        []byte
}

// Client talks to the media and content endpoints.
type Client struct {
	baseURL string
	client  HTTPDoer
	tokens  TokenSource
	cache   *cache.Cache
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP backend.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBaseURL overrides the API host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCache enables response caching for card reads.
func WithCache(rc *cache.Cache) Option {
	return func(c *Client) {
		c.cache = rc
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "api")
		}
	}
}

// New constructs a client from configuration.
func New(cfg *config.Config, tokens TokenSource, opts ...Option) *Client {
	timeout := 30 * time.Second
	base := ""
	if cfg != nil {
		if t := cfg.APITimeout(); t > 0 {
			timeout = t
		}
		base = strings.TrimRight(cfg.API.BaseURL, "/")
	}
	c := &Client{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logging.NewComponentLogger(logging.NewNop(), "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API host.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON performs an authenticated GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out, false)
}

// PostJSON performs an authenticated POST of body and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out, false)
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil, false)
}

// Put streams body to a presigned URL. No bearer token is attached.
func (c *Client) Put(ctx context.Context, rawURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{
			Method:     http.MethodPut,
			Path:       redactQuery(rawURL),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) shape(path string, query url.Values) cache.RequestShape {
	var params map[string]string
	if len(query) > 0 {
		params = make(map[string]string, len(query))
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			params[k] = strings.Join(query[k], ",")
		}
	}
	return cache.RequestShape{Method: http.MethodGet, URL: c.baseURL + path, Params: params}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any, cacheable bool) error {
	useCache := cacheable && method == http.MethodGet && c.cache.Enabled()
	if useCache && !IsFreshRead(ctx) {
		if entry, ok := c.cache.Get(c.shape(path, query)); ok {
			c.logger.Debug("response cache hit", logging.String("path", path))
			if out == nil || len(entry.Body) == 0 {
				return nil
			}
			if err := json.Unmarshal(entry.Body, out); err == nil {
				return nil
			}
			c.logger.Debug("cached response undecodable; refetching", logging.String("path", path))
		}
	}

	if c.tokens == nil {
		return services.Wrap(services.ErrNotAuthenticated, "api", method+" "+path, "no token source configured", nil)
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case rawBody:
		reader, contentType = bytes.NewReader(b.data), b.contentType
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader, contentType = bytes.NewReader(data), "application/json"
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api", method+" "+path, "request failed", err)
	}
	defer resp.Body.Close()
	logging.WithContext(ctx, c.logger).Debug("api request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if useCache {
		entry := cache.Entry{StatusCode: resp.StatusCode, Text: string(data)}
		if json.Valid(data) {
			entry.Body = json.RawMessage(data)
		}
		if err := c.cache.Put(c.shape(path, query), entry); err != nil {
			c.logger.Debug("response cache write failed", logging.Error(err))
		}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) invalidate(path string) {
	if !c.cache.Enabled() {
		return
	}
	if err := c.cache.Delete(c.shape(path, nil)); err != nil {
		c.logger.Debug("response cache invalidation failed", logging.String("path", path), logging.Error(err))
	}
}

// redactQuery strips the signature from a presigned URL before it is logged or
// returned in an error.
func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<upload url>"
	}
	u.RawQuery = ""
	return u.String()
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
