package jsonldb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testRow struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "test.json")

	table, err := NewTable[testRow](path)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	if table.Path() != path {
		t.Errorf("Path() = %q, want %q", table.Path(), path)
	}

	t.Run("missing file loads empty", func(t *testing.T) {
		rows, err := table.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if rows == nil || len(rows) != 0 {
			t.Errorf("Load() = %#v, want empty non-nil slice", rows)
		}
	})

	want := []testRow{{ID: 1, Name: "One"}, {ID: 2, Name: "Two"}}
	for _, r := range want {
		if err := table.Append(ctx, r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	t.Run("round trip in fresh instance", func(t *testing.T) {
		table2, err := NewTable[testRow](path)
		if err != nil {
			t.Fatalf("NewTable() error = %v", err)
		}
		got, err := table2.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Load() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("file is a JSON array", func(t *testing.T) {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "[") {
			t.Errorf("file content = %q, want JSON array", data)
		}
	})

	t.Run("no temp files left", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".tmp") {
				t.Errorf("leftover temp file %s", e.Name())
			}
		}
	})
}

func TestTableModify(t *testing.T) {
	ctx := context.Background()
	table, err := NewTable[testRow](filepath.Join(t.TempDir(), "test.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := table.Append(ctx, testRow{ID: 1}); err != nil {
		t.Fatal(err)
	}

	t.Run("error aborts write", func(t *testing.T) {
		errAbort := errors.New("abort")
		err := table.Modify(ctx, func(rows []testRow) ([]testRow, error) {
			return append(rows, testRow{ID: 2}), errAbort
		})
		if !errors.Is(err, errAbort) {
			t.Fatalf("Modify() error = %v, want %v", err, errAbort)
		}
		rows, err := table.Load()
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 1 {
			t.Errorf("Load() returned %d rows, want 1", len(rows))
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := table.Append(cctx, testRow{ID: 3}); !errors.Is(err, context.Canceled) {
			t.Errorf("Append() error = %v, want context.Canceled", err)
		}
	})
}

func TestTableCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `[{"id": 1, "name": "trunc`},
		{"empty", ""},
		{"whitespace", " \n"},
		{"object", `{"id": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "test.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			table, err := NewTable[testRow](path)
			if err != nil {
				t.Fatal(err)
			}

			if _, err := table.Load(); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Load() error = %v, want ErrCorrupt", err)
			}
			if err := table.Append(ctx, testRow{ID: 2}); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Append() error = %v, want ErrCorrupt", err)
			}
			// The corrupt file must be left untouched for an operator to inspect.
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.content {
				t.Errorf("corrupt file was modified: %q", data)
			}
		})
	}
}

func TestTableConcurrentAppend(t *testing.T) {
	const n = 50
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.json")

	// Two instances on the same file exercise the cross-process lock in
	// addition to the in-process mutex.
	var tables [2]*Table[testRow]
	for i := range tables {
		var err error
		if tables[i], err = NewTable[testRow](path); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tables[i%2].Append(ctx, testRow{ID: i})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	rows, err := tables[0].Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != n {
		t.Fatalf("Load() returned %d rows, want %d", len(rows), n)
	}
	seen := make(map[int]bool, n)
	for _, r := range rows {
		seen[r.ID] = true
	}
	if len(seen) != n {
		t.Errorf("found %d distinct rows, want %d", len(seen), n)
	}
}
