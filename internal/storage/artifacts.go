// Implements the artifact directory: streamed, fingerprinted, atomically placed files.

package storage

import (
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruel/modelprov/internal/fingerprint"
)

const tmpDirName = ".tmp"

// ArtifactWriter streams data to a new artifact, computing its fingerprint as
// data is written.
//
// Create via [ArtifactStore.Create]. Write data using [ArtifactWriter.Write],
// then call [ArtifactWriter.Commit] to place the file under its name. If an
// error occurs during writing, call [ArtifactWriter.Abort] to clean up the
// temporary file.
type ArtifactWriter struct {
	store   *ArtifactStore
	tmpPath string
	file    *os.File // nil after Commit or Abort
	hasher  hash.Hash
	size    int64
}

// Write implements io.Writer, writing to the temp file and updating the hash.
func (w *ArtifactWriter) Write(p []byte) (n int, err error) {
	if w.file == nil {
		return 0, fs.ErrClosed
	}
	if w.store.maxBytes > 0 && w.size+int64(len(p)) > w.store.maxBytes {
		return 0, fmt.Errorf("%w: limit is %d bytes", ErrArtifactTooLarge, w.store.maxBytes)
	}
	n, err = w.file.Write(p)
	if n > 0 {
		w.size += int64(n)
		w.hasher.Write(p[:n])
	}
	return n, err
}

// Size returns the number of bytes written so far.
func (w *ArtifactWriter) Size() int64 {
	return w.size
}

// Commit finalizes the artifact under name and returns its fingerprint.
// created reports whether this call placed the file, as opposed to finding
// the same bytes already stored under name.
//
// If a file with that name already holds the same bytes, the new copy is
// discarded. If it holds different bytes, ErrArtifactConflict is returned and
// the stored file is left untouched.
func (w *ArtifactWriter) Commit(name string) (fp string, created bool, err error) {
	if w.file == nil {
		return "", false, fs.ErrClosed
	}
	if err := validateFilename(name); err != nil {
		return "", false, errors.Join(err, w.Abort())
	}
	if err := w.file.Sync(); err != nil {
		return "", false, errors.Join(fmt.Errorf("failed to sync temp file: %w", err), w.Abort())
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		return "", false, errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(w.tmpPath))
	}
	w.file = nil
	fp = fingerprint.Format(w.hasher)

	// Link fails if the target exists, so concurrent uploads of the same name
	// can't clobber each other.
	target := filepath.Join(w.store.dir, name)
	err = os.Link(w.tmpPath, target)
	if rmErr := os.Remove(w.tmpPath); rmErr != nil && err == nil {
		return "", false, errors.Join(fmt.Errorf("failed to remove temp file: %w", rmErr), os.Remove(target))
	}
	if err == nil {
		return fp, true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return "", false, fmt.Errorf("failed to place artifact %s: %w", name, err)
	}
	existing, err := fingerprint.File(target)
	if err != nil {
		return "", false, err
	}
	if existing != fp {
		return "", false, fmt.Errorf("%w: %s", ErrArtifactConflict, name)
	}
	return fp, false, nil
}

// Abort cancels the write and cleans up the temp file.
func (w *ArtifactWriter) Abort() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return errors.Join(err, os.Remove(w.tmpPath))
}

// ArtifactStore manages artifact files in a single directory, referenced by
// base name from catalog entries.
//
// Temporary files during write are stored in <dir>/.tmp/<random>.tmp so the
// final placement never crosses a filesystem boundary.
type ArtifactStore struct {
	dir      string
	maxBytes int64
}

// NewArtifactStore creates the store rooted at dir. maxBytes limits a single
// artifact; 0 means unlimited.
func NewArtifactStore(dir string, maxBytes int64) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the artifact directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Create returns a writer for a new artifact.
func (s *ArtifactStore) Create() (*ArtifactWriter, error) {
	if err := os.MkdirAll(filepath.Join(s.dir, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Join(s.dir, tmpDirName), "*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &ArtifactWriter{
		store:   s,
		file:    f,
		tmpPath: f.Name(),
		hasher:  fingerprint.New(),
	}, nil
}

// Path returns the location of the artifact called name.
func (s *ArtifactStore) Path(name string) (string, error) {
	if err := validateFilename(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// staleTmpAge is how old a temp file must be before CleanupTmp removes it.
// Another process sharing the directory may still be writing younger ones.
const staleTmpAge = time.Hour

// CleanupTmp removes temp files left by interrupted uploads.
func (s *ArtifactStore) CleanupTmp() error {
	dir := filepath.Join(s.dir, tmpDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tmp directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if info, err := entry.Info(); err != nil || time.Since(info.ModTime()) < staleTmpAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove temp file %s: %w", entry.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// validateFilename accepts plain base names only.
func validateFilename(name string) error {
	if name == "" || name == "." || name == ".." || name == tmpDirName {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// CleanFilename reduces a client supplied name (which may carry a directory
// part) to its base name and validates it.
func CleanFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if err := validateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}
