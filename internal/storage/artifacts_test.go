package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maruel/modelprov/internal/fingerprint"
)

func writeArtifact(t *testing.T, s *ArtifactStore, name, content string) (string, error) {
	t.Helper()
	w, err := s.Create()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(w, strings.NewReader(content)); err != nil {
		return "", errors.Join(err, w.Abort())
	}
	fp, _, err := w.Commit(name)
	return fp, err
}

func TestArtifactStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	s, err := NewArtifactStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("commit", func(t *testing.T) {
		fp, err := writeArtifact(t, s, "a.json", "abc")
		if err != nil {
			t.Fatal(err)
		}
		if want := fingerprint.Bytes([]byte("abc")); fp != want {
			t.Errorf("fingerprint = %s, want %s", fp, want)
		}
		path, err := s.Path("a.json")
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "abc" {
			t.Errorf("content = %q", data)
		}
	})

	t.Run("same content reused", func(t *testing.T) {
		fp, err := writeArtifact(t, s, "a.json", "abc")
		if err != nil {
			t.Fatal(err)
		}
		if fp != fingerprint.Bytes([]byte("abc")) {
			t.Errorf("fingerprint = %s", fp)
		}
	})

	t.Run("conflict", func(t *testing.T) {
		if _, err := writeArtifact(t, s, "a.json", "abd"); !errors.Is(err, ErrArtifactConflict) {
			t.Fatalf("Commit() error = %v, want ErrArtifactConflict", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "a.json"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "abc" {
			t.Errorf("stored artifact was overwritten: %q", data)
		}
	})

	t.Run("invalid name", func(t *testing.T) {
		if _, err := writeArtifact(t, s, "../escape.json", "x"); !errors.Is(err, ErrInvalidFilename) {
			t.Fatalf("Commit() error = %v, want ErrInvalidFilename", err)
		}
	})

	t.Run("no temp files left", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(dir, tmpDirName))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("found %d temp files", len(entries))
		}
	})
}

func TestArtifactStoreTooLarge(t *testing.T) {
	s, err := NewArtifactStore(t.TempDir(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := writeArtifact(t, s, "big.bin", "12345"); !errors.Is(err, ErrArtifactTooLarge) {
		t.Fatalf("error = %v, want ErrArtifactTooLarge", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "big.bin")); !os.IsNotExist(err) {
		t.Errorf("artifact should not exist: %v", err)
	}
	if fp, err := writeArtifact(t, s, "ok.bin", "1234"); err != nil || fp == "" {
		t.Errorf("writeArtifact() = %q, %v", fp, err)
	}
}

func TestArtifactWriterAbort(t *testing.T) {
	s, err := NewArtifactStore(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	w, err := s.Create()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatal(err)
	}
	if err := w.Abort(); err != nil {
		t.Fatal(err)
	}
	if err := w.Abort(); err != nil {
		t.Errorf("second Abort() = %v", err)
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("Write() after Abort() should fail")
	}
	if _, _, err := w.Commit("x"); err == nil {
		t.Error("Commit() after Abort() should fail")
	}
}

func TestArtifactStoreCleanupTmp(t *testing.T) {
	s, err := NewArtifactStore(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	stale, err := s.Create()
	if err != nil {
		t.Fatal(err)
	}
	_ = stale.file.Close()
	old := time.Now().Add(-2 * staleTmpAge)
	if err := os.Chtimes(stale.tmpPath, old, old); err != nil {
		t.Fatal(err)
	}
	fresh, err := s.Create()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = fresh.Abort() }()

	if err := s.CleanupTmp(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale.tmpPath); !os.IsNotExist(err) {
		t.Errorf("stale temp file still present: %v", err)
	}
	if _, err := os.Stat(fresh.tmpPath); err != nil {
		t.Errorf("fresh temp file removed: %v", err)
	}
}

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"model.json", "model.json", false},
		{"dir/model.json", "model.json", false},
		{`C:\Users\a\model.cbor`, "model.cbor", false},
		{"", "", true},
		{"..", "", true},
		{"dir/", "", true},
		{".tmp", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanFilename(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanFilename(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CleanFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilename) {
				t.Errorf("error %v does not wrap ErrInvalidFilename", err)
			}
		})
	}
}
