package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with size bytes of fake audio: an ID3 tag header
// followed by the file's base name repeated. Different names give different
// digests. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}

	var buf bytes.Buffer
	buf.WriteString("ID3\x04\x00\x00")
	seed := []byte(filepath.Base(path))
	for int64(buf.Len()) < size {
		buf.Write(seed)
	}
	if err := os.WriteFile(path, buf.Bytes()[:size], 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
