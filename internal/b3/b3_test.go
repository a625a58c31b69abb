package b3

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashReader_StableAndDistinct(t *testing.T) {
	a1, err := HashReader(strings.NewReader("debate audio"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a2, _ := HashReader(strings.NewReader("debate audio"))
	b, _ := HashReader(strings.NewReader("other audio"))

	if a1 != a2 {
		t.Fatalf("expected stable hash, got %s and %s", a1, a2)
	}
	if a1 == b {
		t.Fatalf("expected distinct hashes for distinct input")
	}
	if len(a1) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %d chars", len(a1))
	}
}

func TestHashFile_MatchesReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Red_Amy.wav")
	if err := os.WriteFile(path, []byte("RIFF...."), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	fromFile, err := HashFile(path)
	if err != nil {
		t.Fatalf("hash file: %v", err)
	}
	fromReader, _ := HashReader(strings.NewReader("RIFF...."))
	if fromFile != fromReader {
		t.Fatalf("file hash %s != reader hash %s", fromFile, fromReader)
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
