package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestLoadChecksumsMissingFile(t *testing.T) {
	m := LoadChecksums("/nonexistent/checksums.json", zaptest.NewLogger(t))
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}

func TestLoadChecksumsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checksums.json")
	os.WriteFile(path, []byte("not json"), 0644)

	m := LoadChecksums(path, zaptest.NewLogger(t))
	if m == nil || len(m) != 0 {
		t.Errorf("expected empty non-nil map, got %v", m)
	}
}

func TestSaveAndLoadChecksums(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "checksums.json")

	original := map[string]string{
		"srv-hideout-data": "abc123",
		"data":             "def456",
	}

	if err := SaveChecksums(path, original); err != nil {
		t.Fatalf("SaveChecksums: %v", err)
	}

	loaded := LoadChecksums(path, zaptest.NewLogger(t))

	if len(loaded) != len(original) {
		t.Fatalf("got %d entries, want %d", len(loaded), len(original))
	}
	for k, v := range original {
		if loaded[k] != v {
			t.Errorf("key %q: got %q, want %q", k, loaded[k], v)
		}
	}
}
