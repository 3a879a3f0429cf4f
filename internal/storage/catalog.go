// Implements the catalog: the append-only record of artifact provenance.

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/maruel/modelprov/internal/fingerprint"
	"github.com/maruel/modelprov/internal/jsonldb"
)

// CatalogEntry is the provenance record of one registered artifact.
//
// Entries are immutable once appended.
type CatalogEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Filename    string    `json:"filename"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate checks the fields required to resolve the entry back to its artifact.
func (e *CatalogEntry) Validate() error {
	if err := fingerprint.Validate(e.Fingerprint); err != nil {
		return err
	}
	if err := validateFilename(e.Filename); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	return nil
}

// Catalog is the durable collection of CatalogEntry.
//
// Fingerprints are not deduplicated: uploading identical bytes twice records
// two versions. Lookup returns the original registration.
type Catalog struct {
	table *jsonldb.Table[CatalogEntry]
}

// NewCatalog opens the catalog stored at path.
func NewCatalog(path string) (*Catalog, error) {
	table, err := jsonldb.NewTable[CatalogEntry](path)
	if err != nil {
		return nil, err
	}
	return &Catalog{table: table}, nil
}

// Path returns the backing file path.
func (c *Catalog) Path() string {
	return c.table.Path()
}

// Load returns all entries in insertion order.
func (c *Catalog) Load() ([]CatalogEntry, error) {
	return c.table.Load()
}

// Append durably adds e to the catalog.
func (c *Catalog) Append(ctx context.Context, e CatalogEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid catalog entry: %w", err)
	}
	return c.table.Append(ctx, e)
}

// Lookup returns the first entry with fingerprint fp.
func (c *Catalog) Lookup(fp string) (CatalogEntry, error) {
	entries, err := c.Load()
	if err != nil {
		return CatalogEntry{}, err
	}
	for _, e := range entries {
		if e.Fingerprint == fp {
			return e, nil
		}
	}
	return CatalogEntry{}, fmt.Errorf("%w: %s", ErrModelNotFound, fp)
}

// Versions returns every entry with fingerprint fp, oldest first.
func (c *Catalog) Versions(fp string) ([]CatalogEntry, error) {
	entries, err := c.Load()
	if err != nil {
		return nil, err
	}
	var out []CatalogEntry
	for _, e := range entries {
		if e.Fingerprint == fp {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, fp)
	}
	return out, nil
}
