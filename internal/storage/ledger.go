// Implements the usage ledger: the append-only audit trail of model usage.

package storage

import (
	"context"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/modelprov/internal/jsonldb"
)

// Action is the kind of usage recorded in the ledger.
type Action string

const (
	// ActionInference records a prediction request.
	ActionInference Action = "inference"
	// ActionEvaluation records an accuracy evaluation against a labelled set.
	ActionEvaluation Action = "evaluation"
)

// AnonymousUser is recorded when the caller does not identify itself.
const AnonymousUser = "anonymous"

// UsageEntry is one audit record.
type UsageEntry struct {
	ID          ksid.ID   `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	User        string    `json:"user"`
	Fingerprint string    `json:"fingerprint"`
	Action      Action    `json:"action"`
}

// Ledger is the durable collection of UsageEntry.
//
// It shares the catalog's persistence discipline but is a distinct stream and
// is never consulted to resolve models.
type Ledger struct {
	table *jsonldb.Table[UsageEntry]
}

// NewLedger opens the ledger stored at path.
func NewLedger(path string) (*Ledger, error) {
	table, err := jsonldb.NewTable[UsageEntry](path)
	if err != nil {
		return nil, err
	}
	return &Ledger{table: table}, nil
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.table.Path()
}

// Load returns all entries in insertion order.
func (l *Ledger) Load() ([]UsageEntry, error) {
	return l.table.Load()
}

// Append durably adds e to the ledger.
func (l *Ledger) Append(ctx context.Context, e UsageEntry) error {
	return l.table.Append(ctx, e)
}

// Record builds an entry stamped with a fresh ID and the current UTC time and
// appends it. An empty user is recorded as AnonymousUser.
func (l *Ledger) Record(ctx context.Context, user, fp string, action Action) (UsageEntry, error) {
	if user == "" {
		user = AnonymousUser
	}
	e := UsageEntry{
		ID:          ksid.NewID(),
		Timestamp:   time.Now().UTC(),
		User:        user,
		Fingerprint: fp,
		Action:      action,
	}
	if err := l.Append(ctx, e); err != nil {
		return UsageEntry{}, err
	}
	return e, nil
}
