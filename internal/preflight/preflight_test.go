package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"yotoup/internal/auth"
	"yotoup/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail, got %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckTokens(t *testing.T) {
	now := time.Now()
	valid := testsupport.AccessToken(t, now.Add(time.Hour))
	expired := testsupport.AccessToken(t, now.Add(-time.Minute))

	cases := []struct {
		name    string
		pair    auth.TokenPair
		passed  bool
		warning bool
	}{
		{"empty", auth.TokenPair{}, false, false},
		{"valid", auth.TokenPair{AccessToken: valid, RefreshToken: "r"}, true, false},
		{"refreshable", auth.TokenPair{AccessToken: expired, RefreshToken: "r"}, false, true},
		{"dead", auth.TokenPair{AccessToken: expired}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckTokens(tc.pair, now, 30*time.Second)
			if got.Passed != tc.passed || got.Warning != tc.warning {
				t.Fatalf("unexpected result %+v", got)
			}
		})
	}
}

func TestCheckEndpoint(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ok.Close()
	if result := CheckEndpoint(context.Background(), "svc", ok.URL); !result.Passed {
		t.Fatalf("expected 404 to count as reachable, got %+v", result)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	if result := CheckEndpoint(context.Background(), "svc", broken.URL); result.Passed || !result.Warning {
		t.Fatalf("expected warning for 502, got %+v", result)
	}

	if result := CheckEndpoint(context.Background(), "svc", ""); result.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestRunAllAndFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithAuthBaseURL(srv.URL), testsupport.WithAPIBaseURL(srv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Login" {
		t.Fatalf("expected only the login check to fail, got %+v", failed)
	}
}
