package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"yotoup/internal/config"
	"yotoup/internal/logging"
	"yotoup/internal/poll"
	"yotoup/internal/services"
)

// PromptFunc presents a device code to the user.
type PromptFunc func(DeviceCode)

// Session owns the token pair for one process. Reads are concurrent; refresh
// and re-authentication happen under the write lock so at most one is in flight.
type Session struct {
	oauth      *oauth2.Config
	audience   string
	httpClient *http.Client
	store      TokenStore
	margin     time.Duration
	autoDevice bool
	sleeper    poll.Sleeper
	now        func() time.Time
	prompt     PromptFunc
	logger     *slog.Logger

	mu     sync.RWMutex
	tokens TokenPair
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient overrides the HTTP client used for auth requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithTokenStore overrides token persistence.
func WithTokenStore(store TokenStore) Option {
	return func(s *Session) {
		if store != nil {
			s.store = store
		}
	}
}

// WithAuthBaseURL points the device and token endpoints at another host.
func WithAuthBaseURL(base string) Option {
	return func(s *Session) {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base == "" {
			return
		}
		s.oauth.Endpoint = endpointFor(base)
	}
}

// WithSleeper replaces the wait between device token polls.
func WithSleeper(sleeper poll.Sleeper) Option {
	return func(s *Session) {
		if sleeper != nil {
			s.sleeper = sleeper
		}
	}
}

// WithClock replaces the time source used for expiry checks and deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPrompt sets how the verification URL and user code are shown.
func WithPrompt(prompt PromptFunc) Option {
	return func(s *Session) {
		if prompt != nil {
			s.prompt = prompt
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "auth")
		}
	}
}

func endpointFor(base string) oauth2.Endpoint {
	return oauth2.Endpoint{
		DeviceAuthURL: base + "/oauth/device/code",
		TokenURL:      base + "/oauth/token",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

// NewSession builds a session from configuration and loads any persisted tokens.
func NewSession(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("auth session requires configuration")
	}
	timeout := cfg.AuthTimeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	s := &Session{
		oauth: &oauth2.Config{
			ClientID: cfg.Auth.ClientID,
			Endpoint: endpointFor(strings.TrimRight(cfg.Auth.BaseURL, "/")),
			Scopes:   strings.Fields(cfg.Auth.Scope),
		},
		audience:   cfg.Auth.Audience,
		httpClient: &http.Client{Timeout: timeout},
		store:      NewFileTokenStore(cfg.Paths.TokenFile),
		margin:     cfg.RefreshMargin(),
		autoDevice: cfg.Auth.AutoDeviceFlow,
		sleeper:    poll.Sleep,
		now:        time.Now,
		prompt:     func(DeviceCode) {},
		logger:     logging.NewComponentLogger(logging.NewNop(), "auth"),
	}
	for _, opt := range opts {
		opt(s)
	}

	pair, err := s.store.Load()
	if err != nil {
		logging.WarnWithContext(s.logger, "stored tokens unreadable; ignoring", "token_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'yotoup auth login' to re-authenticate"),
		)
		pair = TokenPair{}
	}
	s.tokens = pair
	return s, nil
}

// Authenticated reports whether a non-expired access token is held.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.tokens.Expired(s.now(), s.margin)
}

// Tokens returns the current pair without validating it.
func (s *Session) Tokens() TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// AccessToken returns a valid bearer token, refreshing or re-authenticating first if needed.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	pair, err := s.EnsureValid(ctx)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// EnsureValid returns a token pair whose access token is valid beyond the
// refresh margin. Expired tokens are refreshed; when refresh is impossible or
// fails the device flow runs, unless automatic device flow is disabled.
func (s *Session) EnsureValid(ctx context.Context) (TokenPair, error) {
	s.mu.RLock()
	if !s.tokens.Expired(s.now(), s.margin) {
		pair := s.tokens
		s.mu.RUnlock()
		return pair, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if !s.tokens.Expired(s.now(), s.margin) {
		return s.tokens, nil
	}

	if strings.TrimSpace(s.tokens.RefreshToken) != "" {
		pair, err := s.refreshLocked(ctx)
		if err == nil {
			return pair, nil
		}
		if ctx.Err() != nil {
			return TokenPair{}, ctx.Err()
		}
		logging.WarnWithContext(s.logger, "token refresh failed", "token_refresh_failed",
			logging.Error(err),
			logging.Bool("device_flow_fallback", s.autoDevice),
		)
	}

	if !s.autoDevice {
		return TokenPair{}, services.Wrap(services.ErrNotAuthenticated, "auth", "ensure valid",
			"no usable token; run 'yotoup auth login'", nil)
	}
	return s.loginLocked(ctx)
}

// Login always runs the device flow and replaces the held tokens.
func (s *Session) Login(ctx context.Context) (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx)
}

// Refresh forces a refresh-token exchange.
func (s *Session) Refresh(ctx context.Context) (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.tokens.RefreshToken) == "" {
		return TokenPair{}, services.Wrap(services.ErrNotAuthenticated, "auth", "refresh", "no refresh token held", nil)
	}
	return s.refreshLocked(ctx)
}

// Reset discards the held tokens and removes them from the store.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = TokenPair{}
	if err := s.store.Delete(); err != nil {
		return services.Wrap(services.ErrAuth, "auth", "reset", "remove stored tokens", err)
	}
	s.logger.Info("tokens cleared")
	return nil
}

func (s *Session) loginLocked(ctx context.Context) (TokenPair, error) {
	code, err := s.ObtainDeviceCode(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	s.logger.Info("device authorization requested",
		logging.String("verification_uri", code.VerificationURI),
		logging.Duration("expires_in", code.ExpiresIn),
	)
	s.prompt(code)

	pair, err := s.PollForToken(ctx, code)
	if err != nil {
		return TokenPair{}, err
	}
	s.storeLocked(pair)
	return pair, nil
}

func (s *Session) refreshLocked(ctx context.Context) (TokenPair, error) {
	previous := s.tokens.RefreshToken
	source := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: previous})
	tok, err := source.Token()
	if err != nil {
		return TokenPair{}, services.Wrap(services.ErrAuth, "auth", "refresh", "refresh token rejected", describeOAuthError(err))
	}
	pair := TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if strings.TrimSpace(pair.RefreshToken) == "" {
		pair.RefreshToken = previous
	}
	if pair.Empty() {
		return TokenPair{}, services.Wrap(services.ErrAuth, "auth", "refresh", "response missing access_token", nil)
	}
	s.storeLocked(pair)
	s.logger.Debug("access token refreshed")
	return pair, nil
}

// storeLocked installs the pair in memory and persists it. Persistence
// failures are logged; the in-memory tokens stay usable for this process.
func (s *Session) storeLocked(pair TokenPair) {
	s.tokens = pair
	if err := s.store.Save(pair); err != nil {
		logging.WarnWithContext(s.logger, "failed to persist tokens", "token_save_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "login will be required next run"),
		)
	}
}

func (s *Session) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func describeOAuthError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.ErrorCode != "" {
			desc := retrieve.ErrorDescription
			if desc == "" {
				desc = retrieve.ErrorCode
			}
			return fmt.Errorf("%s: %w", desc, err)
		}
	}
	return err
}
