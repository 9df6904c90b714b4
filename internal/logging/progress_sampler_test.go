package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucketSize != 10 {
		t.Fatalf("bucketSize = %v, want 10", s.bucketSize)
	}
	if s.lastBucket != -1 {
		t.Fatalf("lastBucket = %d, want -1", s.lastBucket)
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("polling", 1, 10) {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerPhaseChange(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog("hashing", 0, 0) {
		t.Fatal("first phase should log")
	}
	if s.ShouldLog("hashing", 0, 0) {
		t.Fatal("repeated phase without progress should not log")
	}
	if !s.ShouldLog(" uploading ", 0, 0) {
		t.Fatal("new phase should log")
	}
	if s.lastPhase != "uploading" {
		t.Fatalf("lastPhase = %q, want trimmed value", s.lastPhase)
	}
}

func TestProgressSamplerAttemptBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog("polling", 0, 60)

	cases := []struct {
		attempt int
		want    bool
	}{
		{1, false},
		{5, false},
		{6, true},
		{7, false},
		{12, true},
		{60, true},
		{61, false},
	}
	for _, tc := range cases {
		if got := s.ShouldLog("polling", tc.attempt, 60); got != tc.want {
			t.Fatalf("attempt %d: ShouldLog = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog("polling", 30, 60)
	s.Reset()
	if s.lastPhase != "" || s.lastBucket != -1 {
		t.Fatalf("unexpected state after reset: %q %d", s.lastPhase, s.lastBucket)
	}
	if !s.ShouldLog("polling", 30, 60) {
		t.Fatal("should log after reset")
	}
}
