package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"yotoup/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUpload, "upload", "put", "storage rejected bytes", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"upload", "put", "storage rejected bytes", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"slot", services.Wrap(services.ErrUploadSlot, "slot", "", "", nil), false},
		{"upload", services.Wrap(services.ErrUpload, "upload", "", "", nil), false},
		{"timeout", services.Wrap(services.ErrTranscodeTimeout, "poll", "", "", nil), true},
		{"transient", fmt.Errorf("outer: %w", services.ErrTransient), true},
		{"plain", errors.New("x"), false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindPrefersSpecificAuthMarker(t *testing.T) {
	err := services.Wrap(services.ErrAuthExpired, "auth", "poll", "device code expired", nil)
	if got := services.Kind(err); got != "auth_expired" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(errors.New("other")); got != "unknown" {
		t.Fatalf("unexpected kind for plain error %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}
