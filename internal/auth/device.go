package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"yotoup/internal/logging"
	"yotoup/internal/poll"
	"yotoup/internal/services"
)

const (
	deviceGrantType        = "urn:ietf:params:oauth:grant-type:device_code"
	defaultDeviceInterval  = 5 * time.Second
	defaultDeviceExpiresIn = 300 * time.Second
	slowDownStep           = 5 * time.Second
	maxTokenResponseBytes  = 64 << 10
)

// DeviceCode is the response of the device authorization endpoint.
type DeviceCode struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	Interval                time.Duration
	ExpiresIn               time.Duration
}

// ObtainDeviceCode starts the device flow.
func (s *Session) ObtainDeviceCode(ctx context.Context) (DeviceCode, error) {
	resp, err := s.oauth.DeviceAuth(s.clientContext(ctx), oauth2.SetAuthURLParam("audience", s.audience))
	if err != nil {
		return DeviceCode{}, services.Wrap(services.ErrAuth, "auth", "device code", "request rejected", err)
	}
	if strings.TrimSpace(resp.DeviceCode) == "" {
		return DeviceCode{}, services.Wrap(services.ErrAuth, "auth", "device code", "response missing device_code", nil)
	}

	code := DeviceCode{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Interval:                time.Duration(resp.Interval) * time.Second,
		ExpiresIn:               defaultDeviceExpiresIn,
	}
	if code.Interval <= 0 {
		code.Interval = defaultDeviceInterval
	}
	if !resp.Expiry.IsZero() {
		if remaining := time.Until(resp.Expiry).Round(time.Second); remaining > 0 {
			code.ExpiresIn = remaining
		}
	}
	return code, nil
}

type deviceTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// PollForToken polls the token endpoint until the user approves the device
// code. The loop is bounded by code.ExpiresIn measured from the first call,
// however many attempts that allows.
func (s *Session) PollForToken(ctx context.Context, code DeviceCode) (TokenPair, error) {
	interval := code.Interval
	if interval <= 0 {
		interval = defaultDeviceInterval
	}
	expiresIn := code.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultDeviceExpiresIn
	}

	var pair TokenPair
	attempts, err := poll.Until(ctx, poll.Policy{
		Interval:   interval,
		Deadline:   s.now().Add(expiresIn),
		SleepFirst: true,
		Sleeper:    s.sleeper,
		Now:        s.now,
	}, func(ctx context.Context, attempt poll.Attempt) (poll.Result, error) {
		resp, err := s.requestDeviceToken(ctx, code.DeviceCode)
		switch {
		case ctx.Err() != nil:
			return poll.Result{}, ctx.Err()
		case errors.Is(err, services.ErrTransient):
			s.logger.Debug("device token request did not reach the server; retrying",
				logging.Int("attempt", attempt.Number),
				logging.Error(err))
			return poll.Result{}, nil
		case err != nil:
			return poll.Result{}, err
		}

		switch resp.Error {
		case "":
			pair = TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
			return poll.Result{Done: true}, nil
		case "authorization_pending":
			return poll.Result{}, nil
		case "slow_down":
			next := attempt.Interval + slowDownStep
			s.logger.Debug("device token poll slowing down", logging.Duration("interval", next))
			return poll.Result{Interval: next}, nil
		case "expired_token":
			return poll.Result{}, services.Wrap(services.ErrAuthExpired, "auth", "device token", "device code expired", nil)
		default:
			desc := strings.TrimSpace(resp.ErrorDescription)
			if desc == "" {
				desc = resp.Error
			}
			return poll.Result{}, services.Wrap(services.ErrAuth, "auth", "device token", desc, nil)
		}
	})
	if err != nil {
		if errors.Is(err, poll.ErrDeadline) {
			return TokenPair{}, services.Wrap(services.ErrAuthExpired, "auth", "device token", "device code expired before authorization", err)
		}
		return TokenPair{}, err
	}
	if pair.Empty() {
		return TokenPair{}, services.Wrap(services.ErrAuth, "auth", "device token", "response missing access_token", nil)
	}
	s.logger.Info("device authorization complete", logging.Int("attempts", attempts))
	return pair, nil
}

// requestDeviceToken performs one token request. Transport failures carry
// services.ErrTransient. Any reply that is neither a token nor an OAuth error
// object is an ErrAuth failure. OAuth error codes come back in the response.
func (s *Session) requestDeviceToken(ctx context.Context, deviceCode string) (deviceTokenResponse, error) {
	form := url.Values{
		"grant_type":  {deviceGrantType},
		"device_code": {deviceCode},
		"client_id":   {s.oauth.ClientID},
		"audience":    {s.audience},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return deviceTokenResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return deviceTokenResponse{}, services.Wrap(services.ErrTransient, "auth", "device token", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return deviceTokenResponse{}, services.Wrap(services.ErrTransient, "auth", "device token", "read response", err)
	}

	var out deviceTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return deviceTokenResponse{}, services.Wrap(services.ErrAuth, "auth", "device token",
			fmt.Sprintf("token request failed: status %d, %s", resp.StatusCode, snippet(body)), nil)
	}
	switch {
	case out.Error != "":
		return out, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return deviceTokenResponse{}, services.Wrap(services.ErrAuth, "auth", "device token",
			fmt.Sprintf("token request failed: status %d, %s", resp.StatusCode, snippet(body)), nil)
	}
	return out, nil
}

// snippet trims a response body for error messages.
func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty body"
	}
	if r := []rune(text); len(r) > 200 {
		text = string(r[:200]) + "..."
	}
	return text
}
