package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"yotoup/internal/config"
	"yotoup/internal/services"
	"yotoup/internal/testsupport"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// loginServer fakes the device code and token endpoints. deviceReplies are
// served in order to device_code grant requests; the last one repeats. "html"
// and "bare" answer with a body that is not an OAuth error object.
type loginServer struct {
	t             *testing.T
	server        *httptest.Server
	deviceReplies []string
	refreshReply  string
	refreshStatus int
	accessToken   string

	devicePolls  atomic.Int32
	refreshCalls atomic.Int32
	codeRequests atomic.Int32
	lastRefresh  atomic.Value
}

func newLoginServer(t *testing.T) *loginServer {
	t.Helper()
	ls := &loginServer{t: t, refreshStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/device/code", func(w http.ResponseWriter, r *http.Request) {
		ls.codeRequests.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("audience") != "https://api.yotoplay.com" {
			t.Errorf("unexpected audience %q", r.Form.Get("audience"))
		}
		if r.Form.Get("scope") != "profile offline_access" {
			t.Errorf("unexpected scope %q", r.Form.Get("scope"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"device_code":      "dev-123",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://login.example/activate",
			"interval":         5,
			"expires_in":       300,
		})
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("client_id") == "" {
			t.Errorf("token request missing client_id")
		}
		switch r.Form.Get("grant_type") {
		case deviceGrantType:
			n := int(ls.devicePolls.Add(1))
			if r.Form.Get("device_code") != "dev-123" {
				t.Errorf("unexpected device_code %q", r.Form.Get("device_code"))
			}
			idx := n - 1
			if idx >= len(ls.deviceReplies) {
				idx = len(ls.deviceReplies) - 1
			}
			reply := ls.deviceReplies[idx]
			switch reply {
			case "html":
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte("<html>bad request</html>"))
				return
			case "bare":
				writeJSON(w, http.StatusBadGateway, map[string]any{"message": "upstream down"})
				return
			}
			if reply == "ok" {
				writeJSON(w, http.StatusOK, map[string]any{
					"access_token":  ls.accessToken,
					"refresh_token": "device-refresh",
					"token_type":    "Bearer",
				})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             reply,
				"error_description": "reply " + reply,
			})
		case "refresh_token":
			ls.refreshCalls.Add(1)
			ls.lastRefresh.Store(r.Form.Get("refresh_token"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(ls.refreshStatus)
			_, _ = w.Write([]byte(ls.refreshReply))
		default:
			t.Errorf("unexpected grant_type %q", r.Form.Get("grant_type"))
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	ls.server = httptest.NewServer(mux)
	t.Cleanup(ls.server.Close)
	return ls
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type memoryStore struct {
	mu    sync.Mutex
	pair  TokenPair
	saves int
}

func (m *memoryStore) Load() (TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair, nil
}

func (m *memoryStore) Save(pair TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = pair
	m.saves++
	return nil
}

func (m *memoryStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = TokenPair{}
	return nil
}

func newTestSession(t *testing.T, cfg *config.Config, ls *loginServer, clock *fakeClock, store TokenStore, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithHTTPClient(ls.server.Client()),
		WithAuthBaseURL(ls.server.URL),
		WithTokenStore(store),
		WithClock(clock.Now),
		WithSleeper(clock.Sleep),
	}
	session, err := NewSession(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

func TestEnsureValidReturnsHeldToken(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	valid := TokenPair{AccessToken: testsupport.AccessToken(t, clock.Now().Add(time.Hour)), RefreshToken: "r1"}
	store := &memoryStore{pair: valid}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, store)

	got, err := session.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got != valid {
		t.Fatalf("expected held pair, got %+v", got)
	}
	if ls.refreshCalls.Load() != 0 || ls.codeRequests.Load() != 0 {
		t.Fatal("expected no network traffic for a valid token")
	}
	if !session.Authenticated() {
		t.Fatal("expected session to report authenticated")
	}
}

func TestEnsureValidRefreshKeepsPreviousRefreshToken(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	fresh := testsupport.AccessToken(t, clock.Now().Add(time.Hour))
	ls.refreshReply = `{"access_token":"` + fresh + `","token_type":"Bearer","expires_in":3600}`

	stale := TokenPair{AccessToken: testsupport.AccessToken(t, clock.Now().Add(10*time.Second)), RefreshToken: "keep-me"}
	store := &memoryStore{pair: stale}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, store)

	got, err := session.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got.AccessToken != fresh {
		t.Fatalf("expected refreshed access token")
	}
	if got.RefreshToken != "keep-me" {
		t.Fatalf("expected previous refresh token retained, got %q", got.RefreshToken)
	}
	if sent, _ := ls.lastRefresh.Load().(string); sent != "keep-me" {
		t.Fatalf("refresh request sent %q", sent)
	}
	if ls.refreshCalls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", ls.refreshCalls.Load())
	}
	if persisted, _ := store.Load(); persisted != got {
		t.Fatalf("expected refreshed pair persisted, got %+v", persisted)
	}
}

func TestEnsureValidConcurrentCallersRefreshOnce(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	fresh := testsupport.AccessToken(t, clock.Now().Add(time.Hour))
	ls.refreshReply = `{"access_token":"` + fresh + `","refresh_token":"r2","token_type":"Bearer"}`
	store := &memoryStore{pair: TokenPair{AccessToken: "expired", RefreshToken: "r1"}}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, store)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := session.AccessToken(context.Background()); err != nil {
				t.Errorf("AccessToken: %v", err)
			}
		}()
	}
	wg.Wait()

	if ls.refreshCalls.Load() != 1 {
		t.Fatalf("expected a single refresh, got %d", ls.refreshCalls.Load())
	}
}

func TestEnsureValidWithoutDeviceFlowReportsNotAuthenticated(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	session := newTestSession(t, testsupport.NewConfig(t, testsupport.WithoutDeviceFlow()), ls, clock, &memoryStore{})

	_, err := session.EnsureValid(context.Background())
	if !errors.Is(err, services.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if ls.codeRequests.Load() != 0 {
		t.Fatal("device flow must not start when disabled")
	}
}

func TestEnsureValidFallsBackToDeviceFlowWhenRefreshFails(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	ls.accessToken = testsupport.AccessToken(t, clock.Now().Add(time.Hour))
	ls.deviceReplies = []string{"ok"}
	ls.refreshStatus = http.StatusBadRequest
	ls.refreshReply = `{"error":"invalid_grant","error_description":"refresh token revoked"}`

	store := &memoryStore{pair: TokenPair{AccessToken: "expired", RefreshToken: "revoked"}}
	prompted := 0
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, store, WithPrompt(func(DeviceCode) { prompted++ }))

	got, err := session.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got.RefreshToken != "device-refresh" {
		t.Fatalf("expected device flow tokens, got %+v", got)
	}
	if prompted != 1 {
		t.Fatalf("expected one prompt, got %d", prompted)
	}
}

func TestDeviceFlowPollsUntilApproved(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	ls.accessToken = testsupport.AccessToken(t, clock.Now().Add(time.Hour))
	ls.deviceReplies = []string{"authorization_pending", "authorization_pending", "ok"}

	var shown DeviceCode
	store := &memoryStore{}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, store, WithPrompt(func(code DeviceCode) { shown = code }))

	got, err := session.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.AccessToken != ls.accessToken {
		t.Fatal("expected issued access token")
	}
	if polls := ls.devicePolls.Load(); polls != 3 {
		t.Fatalf("expected 3 token polls, got %d", polls)
	}
	want := []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}
	if sleeps := clock.Sleeps(); !reflect.DeepEqual(sleeps, want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	if shown.UserCode != "ABCD-EFGH" || !strings.Contains(shown.VerificationURI, "activate") {
		t.Fatalf("unexpected prompt payload %+v", shown)
	}
	if store.saves != 1 {
		t.Fatalf("expected tokens persisted once, got %d", store.saves)
	}
}

func TestDeviceFlowSlowDownWidensInterval(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	ls.accessToken = testsupport.AccessToken(t, clock.Now().Add(time.Hour))
	ls.deviceReplies = []string{"slow_down", "authorization_pending", "ok"}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, &memoryStore{})

	if _, err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 10 * time.Second}
	if sleeps := clock.Sleeps(); !reflect.DeepEqual(sleeps, want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
}

func TestDeviceFlowExpiredToken(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	ls.deviceReplies = []string{"authorization_pending", "expired_token"}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, &memoryStore{})

	_, err := session.Login(context.Background())
	if !errors.Is(err, services.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if ls.devicePolls.Load() != 2 {
		t.Fatalf("expected polling to stop at expired_token, got %d polls", ls.devicePolls.Load())
	}
}

func TestDeviceFlowAccessDenied(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	ls.deviceReplies = []string{"access_denied"}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, &memoryStore{})

	_, err := session.Login(context.Background())
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if errors.Is(err, services.ErrAuthExpired) {
		t.Fatal("access_denied must not be reported as expiry")
	}
	if !strings.Contains(err.Error(), "reply access_denied") {
		t.Fatalf("expected error_description in message, got %v", err)
	}
}

func TestDeviceFlowUnrecognisedReplyFailsImmediately(t *testing.T) {
	for _, reply := range []string{"html", "bare"} {
		t.Run(reply, func(t *testing.T) {
			ls := newLoginServer(t)
			clock := newFakeClock()
			ls.deviceReplies = []string{"authorization_pending", reply}
			session := newTestSession(t, testsupport.NewConfig(t), ls, clock, &memoryStore{})

			code := DeviceCode{DeviceCode: "dev-123", Interval: 5 * time.Second, ExpiresIn: 300 * time.Second}
			_, err := session.PollForToken(context.Background(), code)
			if !errors.Is(err, services.ErrAuth) {
				t.Fatalf("expected ErrAuth, got %v", err)
			}
			if errors.Is(err, services.ErrAuthExpired) {
				t.Fatalf("unrecognised reply must not be reported as expiry: %v", err)
			}
			if !strings.Contains(err.Error(), "token request failed") {
				t.Fatalf("expected failure detail, got %v", err)
			}
			if polls := ls.devicePolls.Load(); polls != 2 {
				t.Fatalf("expected to stop at the second poll, got %d polls", polls)
			}
		})
	}
}

func TestPollForTokenStopsAtDeadline(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	ls.deviceReplies = []string{"authorization_pending"}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, &memoryStore{})

	code := DeviceCode{DeviceCode: "dev-123", Interval: 5 * time.Second, ExpiresIn: 12 * time.Second}
	_, err := session.PollForToken(context.Background(), code)
	if !errors.Is(err, services.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if polls := ls.devicePolls.Load(); polls != 2 {
		t.Fatalf("expected 2 polls inside a 12s window, got %d", polls)
	}
}

func TestResetClearsTokens(t *testing.T) {
	ls := newLoginServer(t)
	clock := newFakeClock()
	store := &memoryStore{pair: TokenPair{AccessToken: testsupport.AccessToken(t, clock.Now().Add(time.Hour)), RefreshToken: "r"}}
	session := newTestSession(t, testsupport.NewConfig(t), ls, clock, store)

	if err := session.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if session.Authenticated() {
		t.Fatal("expected unauthenticated after reset")
	}
	if pair, _ := store.Load(); !pair.Empty() {
		t.Fatalf("expected store cleared, got %+v", pair)
	}
}
