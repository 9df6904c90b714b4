package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"yotoup/internal/testsupport"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	store := NewFileTokenStore(path)

	pair, err := store.Load()
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if !pair.Empty() {
		t.Fatalf("expected empty pair for missing file, got %+v", pair)
	}

	want := TokenPair{AccessToken: "access", RefreshToken: "refresh"}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat tokens: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected token file removed, stat err=%v", err)
	}
}

func TestFileTokenStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileTokenStore(path).Load(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestTokenPairExpired(t *testing.T) {
	now := time.Now()
	margin := 30 * time.Second

	cases := []struct {
		name    string
		pair    TokenPair
		expired bool
	}{
		{"empty", TokenPair{}, true},
		{"garbage", TokenPair{AccessToken: "not-a-jwt"}, true},
		{"valid", TokenPair{AccessToken: testsupport.AccessToken(t, now.Add(time.Hour))}, false},
		{"inside margin", TokenPair{AccessToken: testsupport.AccessToken(t, now.Add(20*time.Second))}, true},
		{"past", TokenPair{AccessToken: testsupport.AccessToken(t, now.Add(-time.Minute))}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pair.Expired(now, margin); got != tc.expired {
				t.Fatalf("Expired() = %v, want %v", got, tc.expired)
			}
		})
	}
}

func TestExpiresAtReadsClaim(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	got, ok := ExpiresAt(testsupport.AccessToken(t, exp))
	if !ok {
		t.Fatal("expected exp claim")
	}
	if !got.Equal(exp) {
		t.Fatalf("ExpiresAt = %v, want %v", got, exp)
	}
	if _, ok := ExpiresAt("a.b.c"); ok {
		t.Fatal("expected malformed token to report no expiry")
	}
}
