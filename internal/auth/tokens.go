package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"yotoup/internal/fileutil"
)

// TokenPair is the bearer access token plus the refresh token used to renew it.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether no access token is held.
func (p TokenPair) Empty() bool {
	return strings.TrimSpace(p.AccessToken) == ""
}

// Expired reports whether the access token is missing, carries no readable
// exp claim, or expires within margin of now.
func (p TokenPair) Expired(now time.Time, margin time.Duration) bool {
	if p.Empty() {
		return true
	}
	exp, ok := ExpiresAt(p.AccessToken)
	if !ok {
		return true
	}
	return !now.Before(exp.Add(-margin))
}

// ExpiresAt reads the exp claim of a JWT access token without verifying its
// signature. The service owns verification; the client only needs the expiry.
func ExpiresAt(accessToken string) (time.Time, bool) {
	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// TokenStore abstracts persistence for the token pair.
type TokenStore interface {
	Load() (TokenPair, error)
	Save(TokenPair) error
	Delete() error
}

// FileTokenStore writes the token pair to a JSON file on disk.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore builds a FileTokenStore rooted at the provided path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the backing file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the token pair from disk. A missing file resolves to an empty pair.
func (s *FileTokenStore) Load() (TokenPair, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TokenPair{}, nil
		}
		return TokenPair{}, fmt.Errorf("read tokens: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return TokenPair{}, nil
	}

	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode tokens: %w", err)
	}
	return pair, nil
}

// Save persists the token pair with owner-only permissions.
func (s *FileTokenStore) Save(pair TokenPair) error {
	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write tokens: %w", err)
	}
	return nil
}

// Delete removes the persisted tokens. A missing file is not an error.
func (s *FileTokenStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}
