// Ties the catalog, ledger, artifact directory and history into the upload flow.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Defaults recorded when an upload omits its metadata.
const (
	DefaultAuthor      = "Anonymous"
	DefaultDescription = "No description provided"
)

// Registry owns the stores of one data directory.
//
// It is safe for concurrent use, including by several processes sharing the
// same data directory.
type Registry struct {
	Catalog   *Catalog
	Ledger    *Ledger
	Artifacts *ArtifactStore

	cfg     Config
	history *History // nil when GitHistory is disabled
}

// Open creates the stores described by cfg.
func Open(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	catalog, err := NewCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedger(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	artifacts, err := NewArtifactStore(cfg.ArtifactDir, cfg.MaxArtifactBytes)
	if err != nil {
		return nil, err
	}
	if err := artifacts.CleanupTmp(); err != nil {
		slog.Warn("Failed to clean up temp artifacts", "err", err)
	}
	r := &Registry{Catalog: catalog, Ledger: ledger, Artifacts: artifacts, cfg: cfg}
	if cfg.GitHistory {
		var ignored []string
		if rel, err := filepath.Rel(cfg.DataDir, cfg.LedgerPath); err == nil {
			ignored = append(ignored, rel)
		}
		if r.history, err = OpenHistory(cfg.DataDir, ignored...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config returns the configuration the registry was opened with.
func (r *Registry) Config() Config {
	return r.cfg
}

// Upload stores the artifact read from src under filename, fingerprints it
// while streaming and appends a catalog entry. Empty author and description
// are replaced by DefaultAuthor and DefaultDescription.
//
// The artifact is placed before the catalog entry is appended so every entry
// always resolves to a file. A file placed by this call is removed again when
// the append fails.
func (r *Registry) Upload(ctx context.Context, src io.Reader, filename, author, description string) (CatalogEntry, error) {
	name, err := CleanFilename(filename)
	if err != nil {
		return CatalogEntry{}, err
	}
	if author == "" {
		author = DefaultAuthor
	}
	if description == "" {
		description = DefaultDescription
	}
	w, err := r.Artifacts.Create()
	if err != nil {
		return CatalogEntry{}, err
	}
	if _, err := io.Copy(w, src); err != nil {
		return CatalogEntry{}, errors.Join(fmt.Errorf("failed to write artifact: %w", err), w.Abort())
	}
	size := w.Size()
	fp, created, err := w.Commit(name)
	if err != nil {
		return CatalogEntry{}, err
	}
	e := CatalogEntry{
		Fingerprint: fp,
		Author:      author,
		Description: description,
		Filename:    name,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.Catalog.Append(ctx, e); err != nil {
		if created {
			// Leave no artifact without a catalog entry.
			err = errors.Join(err, os.Remove(filepath.Join(r.Artifacts.Dir(), name)))
		}
		return CatalogEntry{}, err
	}
	slog.InfoContext(ctx, "Registered model", "fingerprint", fp, "filename", name, "author", author, "size", size)

	if r.history != nil {
		msg := fmt.Sprintf("upload: %s\n\nFingerprint: %s\n", name, fp)
		artifact := filepath.Join(r.Artifacts.Dir(), name)
		if err := r.history.Commit(ctx, author, msg, r.Catalog.Path(), artifact); err != nil {
			slog.WarnContext(ctx, "Failed to commit history", "fingerprint", fp, "err", err)
		}
	}
	return e, nil
}

// ArtifactPath returns the location of the artifact e refers to.
func (r *Registry) ArtifactPath(e CatalogEntry) (string, error) {
	return r.Artifacts.Path(e.Filename)
}

// History returns up to n most recent history commits. It returns nil when
// git history is disabled.
func (r *Registry) History(n int) ([]Commit, error) {
	if r.history == nil {
		return nil, nil
	}
	return r.history.Log(n)
}
