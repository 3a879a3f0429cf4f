package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/modelprov/internal/fingerprint"
	"github.com/maruel/modelprov/internal/jsonldb"
)

func testEntry(content, filename string) CatalogEntry {
	return CatalogEntry{
		Fingerprint: fingerprint.Bytes([]byte(content)),
		Author:      "alice",
		Description: "desc " + content,
		Filename:    filename,
		CreatedAt:   time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC),
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry", "registry.json")
	c, err := NewCatalog(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("empty", func(t *testing.T) {
		entries, err := c.Load()
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Fatalf("got %d entries, want 0", len(entries))
		}
		if _, err := c.Lookup(fingerprint.Bytes([]byte("x"))); !errors.Is(err, ErrModelNotFound) {
			t.Fatalf("Lookup() error = %v, want ErrModelNotFound", err)
		}
	})

	e1 := testEntry("one", "one.json")
	e2 := testEntry("two", "two.json")
	for _, e := range []CatalogEntry{e1, e2} {
		if err := c.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("round trip", func(t *testing.T) {
		fresh, err := NewCatalog(path)
		if err != nil {
			t.Fatal(err)
		}
		entries, err := fresh.Load()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]CatalogEntry{e1, e2}, entries); diff != "" {
			t.Errorf("Load() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("lookup", func(t *testing.T) {
		got, err := c.Lookup(e1.Fingerprint)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(e1, got); diff != "" {
			t.Errorf("Lookup(F1) mismatch (-want +got):\n%s", diff)
		}
		got, err = c.Lookup(e2.Fingerprint)
		if err != nil {
			t.Fatal(err)
		}
		if got.Filename != "two.json" {
			t.Errorf("Lookup(F2).Filename = %q", got.Filename)
		}
		if _, err := c.Lookup("nonexistent"); !errors.Is(err, ErrModelNotFound) {
			t.Errorf("Lookup(nonexistent) error = %v, want ErrModelNotFound", err)
		}
	})

	t.Run("versions", func(t *testing.T) {
		dup := e1
		dup.Author = "bob"
		dup.CreatedAt = dup.CreatedAt.Add(time.Hour)
		if err := c.Append(ctx, dup); err != nil {
			t.Fatal(err)
		}
		got, err := c.Lookup(e1.Fingerprint)
		if err != nil {
			t.Fatal(err)
		}
		if got.Author != "alice" {
			t.Errorf("Lookup() returned %q, want the first registration", got.Author)
		}
		versions, err := c.Versions(e1.Fingerprint)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]CatalogEntry{e1, dup}, versions); diff != "" {
			t.Errorf("Versions() mismatch (-want +got):\n%s", diff)
		}
		if _, err := c.Versions("nonexistent"); !errors.Is(err, ErrModelNotFound) {
			t.Errorf("Versions(nonexistent) error = %v", err)
		}
	})
}

func TestCatalogAppendInvalid(t *testing.T) {
	c, err := NewCatalog(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		mutate func(*CatalogEntry)
	}{
		{"bad fingerprint", func(e *CatalogEntry) { e.Fingerprint = "abc" }},
		{"empty filename", func(e *CatalogEntry) { e.Filename = "" }},
		{"path filename", func(e *CatalogEntry) { e.Filename = "../x.json" }},
		{"zero time", func(e *CatalogEntry) { e.CreatedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEntry("x", "x.json")
			tt.mutate(&e)
			if err := c.Append(context.Background(), e); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	entries, err := c.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("invalid entries were stored: %v", entries)
	}
}

func TestCatalogCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("[{\"fingerprint\": "), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := NewCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(); !errors.Is(err, jsonldb.ErrCorrupt) {
		t.Errorf("Load() error = %v, want ErrCorrupt", err)
	}
	if _, err := c.Lookup(fingerprint.Bytes(nil)); !errors.Is(err, jsonldb.ErrCorrupt) {
		t.Errorf("Lookup() error = %v, want ErrCorrupt", err)
	}
	if err := c.Append(context.Background(), testEntry("a", "a.json")); !errors.Is(err, jsonldb.ErrCorrupt) {
		t.Errorf("Append() error = %v, want ErrCorrupt", err)
	}
}

func TestCatalogConcurrentAppend(t *testing.T) {
	const n = 40
	c, err := NewCatalog(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Go(func() {
			errs <- c.Append(context.Background(), testEntry(fmt.Sprint(i), fmt.Sprintf("m%d.json", i)))
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	entries, err := c.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != n {
		t.Fatalf("got %d entries, want %d", len(entries), n)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Fingerprint] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct fingerprints, want %d", len(seen), n)
	}
}
