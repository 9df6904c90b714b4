package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum, n, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if n != 3 {
		t.Fatalf("size = %d, want 3", n)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if sum != want {
		t.Fatalf("sum = %s, want %s", sum, want)
	}
}

func TestHashFile_MissingSource(t *testing.T) {
	if _, _, err := HashFile(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAudioContentType(t *testing.T) {
	cases := map[string]string{
		"song.mp3":  "audio/mpeg",
		"SONG.M4A":  "audio/mp4",
		"book.flac": "audio/flac",
		"noext":     DefaultAudioContentType,
		"cover.jpg": DefaultAudioContentType,
		"notes.txt": DefaultAudioContentType,
	}
	for name, want := range cases {
		if got := AudioContentType(name); got != want {
			t.Fatalf("AudioContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestIsAudio(t *testing.T) {
	for _, name := range []string{"song.mp3", "SONG.M4A", "book.flac", "take.wav"} {
		if !IsAudio(name) {
			t.Fatalf("IsAudio(%q) = false", name)
		}
	}
	for _, name := range []string{"noext", "cover.jpg", "notes.txt", ".mp3.part"} {
		if IsAudio(name) {
			t.Fatalf("IsAudio(%q) = true", name)
		}
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("unexpected contents %q", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleaned up, got %d entries", len(entries))
	}
}
