package jsonldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorrupt is returned when a table file exists but cannot be parsed.
var ErrCorrupt = errors.New("store corrupt")

// Table handles durable storage for a single collection in JSON array format.
type Table[T any] struct {
	path        string
	lockTimeout time.Duration
	mu          sync.Mutex
}

// NewTable creates a new Table backed by path. The parent directory is created
// if needed; the file itself is only created by the first write.
func NewTable[T any](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return &Table[T]{path: path, lockTimeout: DefaultLockTimeout}, nil
}

// Path returns the backing file path.
func (t *Table[T]) Path() string {
	return t.path
}

// Load reads all rows from the file.
//
// Returns an empty slice if the file doesn't exist and an error wrapping
// ErrCorrupt if it exists but doesn't parse, including when it is empty.
// Writes never leave an empty file behind.
func (t *Table[T]) Load() ([]T, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	return t.decode(data)
}

func (t *Table[T]) decode(data []byte) ([]T, error) {
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, t.path, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// Append adds a new row to the end of the collection and persists it.
func (t *Table[T]) Append(ctx context.Context, row T) error {
	return t.Modify(ctx, func(rows []T) ([]T, error) {
		return append(rows, row), nil
	})
}

// Modify runs a read-modify-write cycle while holding both the in-process
// mutex and the cross-process file lock.
//
// fn receives the current rows and returns the rows to persist. If fn returns
// an error nothing is written.
func (t *Table[T]) Modify(ctx context.Context, fn func(rows []T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, err := acquireLock(ctx, t.path+".lock", t.lockTimeout)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.release()
	}()

	rows, err := t.Load()
	if err != nil {
		return err
	}
	rows, err = fn(rows)
	if err != nil {
		return err
	}
	return t.write(rows)
}

// write atomically replaces the file with rows: temp file, fsync, rename.
func (t *Table[T]) write(rows []T) error {
	data, err := json.MarshalIndent(rows, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal rows: %w", err)
	}
	data = append(data, '\n')

	f, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write rows: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync temp file: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename temp file: %w", err), os.Remove(tmp))
	}
	return nil
}
