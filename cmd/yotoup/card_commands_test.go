package main

import (
	"os"
	"path/filepath"
	"testing"

	"yotoup/internal/card"
)

func TestCardCoverUploadsAndSetsImage(t *testing.T) {
	yoto := newFakeYoto(t)
	existing := card.NewCard("Shelf", mustAssemble(t, "a1"))
	existing.CardID = "shelf"
	existing.Metadata.Author = "Someone"
	yoto.cards["shelf"] = *existing
	env := setupCLITestEnv(t, yoto.server.URL)
	env.storeValidTokens(t)

	image := filepath.Join(env.baseDir, "front.png")
	if err := os.WriteFile(image, []byte("\x89PNG\r\n\x1a\nimage"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stderr, err := runCLI(t, []string{"card", "cover", "shelf", image}, env.configPath)
	if err != nil {
		t.Fatalf("card cover: %v\nstderr:\n%s", err, stderr)
	}
	requireContains(t, out, "https://cdn.example/cover-1")

	yoto.mu.Lock()
	defer yoto.mu.Unlock()
	if yoto.coverType != "image/png" || yoto.coverSize != 13 {
		t.Fatalf("unexpected cover upload type=%q size=%d", yoto.coverType, yoto.coverSize)
	}
	got := yoto.cards["shelf"]
	if got.Metadata == nil || got.Metadata.Cover == nil || got.Metadata.Cover.ImageL != "https://cdn.example/cover-1" {
		t.Fatalf("cover not saved: %+v", got.Metadata)
	}
	if got.Metadata.Author != "Someone" || len(got.Content.Chapters) != 1 {
		t.Fatalf("card changed beyond its cover: %+v", got)
	}
}

func TestReadCoverImageRejectsNonImages(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readCoverImage(notes); err == nil {
		t.Fatal("expected text file to be rejected")
	}

	sniffed := filepath.Join(dir, "cover")
	if err := os.WriteFile(sniffed, []byte("\xff\xd8\xff\xe0jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, contentType, err := readCoverImage(sniffed)
	if err != nil {
		t.Fatalf("readCoverImage: %v", err)
	}
	if contentType != "image/jpeg" {
		t.Fatalf("expected sniffed image/jpeg, got %q", contentType)
	}

	if _, _, err := readCoverImage(dir); err == nil {
		t.Fatal("expected directory to be rejected")
	}
}
