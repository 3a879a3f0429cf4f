// Package inference resolves fingerprints to models and runs predictions
// against them, recording each use in the usage ledger.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/maruel/modelprov/internal/fingerprint"
	"github.com/maruel/modelprov/internal/model"
	"github.com/maruel/modelprov/internal/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Dispatcher runs model loads and predictions in a bounded number of slots.
type Dispatcher struct {
	reg     *storage.Registry
	workers int
	slots   *semaphore.Weighted
}

// New returns a dispatcher for reg. workers bounds concurrent loads and
// predictions; 0 means GOMAXPROCS.
func New(reg *storage.Registry, workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Dispatcher{reg: reg, workers: workers, slots: semaphore.NewWeighted(int64(workers))}
}

// Result is a successful prediction.
type Result struct {
	Prediction []float64
	// ExpectedFeatures is nil when the model doesn't declare its input size.
	ExpectedFeatures *int
	Model            storage.CatalogEntry
}

// Infer predicts features with the model registered under fp and records an
// inference in the ledger.
//
// A feature count differing from the model's declared input size, including
// an empty vector, is a *DimensionMismatchError.
//
// The ledger is written only on success, and a failure to write it is logged
// without failing the call.
func (d *Dispatcher) Infer(ctx context.Context, fp string, features []float64, user string) (*Result, error) {
	entry, err := d.reg.Catalog.Lookup(fp)
	if err != nil {
		return nil, err
	}
	res := &Result{Model: entry}
	err = d.run(ctx, func() error {
		m, err := d.load(entry)
		if err != nil {
			return err
		}
		if n, ok := m.ExpectedInputSize(); ok {
			res.ExpectedFeatures = &n
			if n != len(features) {
				return &DimensionMismatchError{Expected: n, Got: len(features), Sample: -1}
			}
		} else if len(features) == 0 {
			return fmt.Errorf("%w: features must not be empty", ErrInvalidInput)
		}
		pred, err := m.Predict([][]float64{features})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		res.Prediction = pred
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.record(ctx, user, fp, storage.ActionInference)
	return res, nil
}

// Evaluation is the outcome of scoring a model against labelled samples.
type Evaluation struct {
	Accuracy float64
	Samples  int
	Correct  int
	Model    storage.CatalogEntry
}

// Evaluate predicts every sample and compares the predictions to labels.
func (d *Dispatcher) Evaluate(ctx context.Context, fp string, samples [][]float64, labels []float64, user string) (*Evaluation, error) {
	entry, err := d.reg.Catalog.Lookup(fp)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrInvalidInput)
	}
	if len(labels) != len(samples) {
		return nil, fmt.Errorf("%w: %d labels for %d samples", ErrInvalidInput, len(labels), len(samples))
	}
	ev := &Evaluation{Samples: len(samples), Model: entry}
	err = d.run(ctx, func() error {
		m, err := d.load(entry)
		if err != nil {
			return err
		}
		if n, ok := m.ExpectedInputSize(); ok {
			for i, s := range samples {
				if len(s) != n {
					return &DimensionMismatchError{Expected: n, Got: len(s), Sample: i}
				}
			}
		}
		pred, err := m.Predict(samples)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		for i, p := range pred {
			if p == labels[i] {
				ev.Correct++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev.Accuracy = float64(ev.Correct) / float64(ev.Samples)
	d.record(ctx, user, fp, storage.ActionEvaluation)
	return ev, nil
}

// VerifyStatus is the outcome of re-fingerprinting one artifact.
type VerifyStatus string

const (
	VerifyOK       VerifyStatus = "ok"
	VerifyMissing  VerifyStatus = "missing"
	VerifyMismatch VerifyStatus = "mismatch"
)

// VerifyResult reports whether a catalog entry still matches its artifact.
type VerifyResult struct {
	Entry  storage.CatalogEntry
	Status VerifyStatus
	// Actual is the artifact's current fingerprint, empty when missing.
	Actual string
}

// Verify re-fingerprints the artifact of every catalog entry, in catalog order.
func (d *Dispatcher) Verify(ctx context.Context) ([]VerifyResult, error) {
	entries, err := d.reg.Catalog.Load()
	if err != nil {
		return nil, err
	}
	out := make([]VerifyResult, len(entries))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.workers)
	for i, e := range entries {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = VerifyResult{Entry: e, Status: VerifyMissing}
			path, err := d.reg.ArtifactPath(e)
			if err != nil {
				return nil
			}
			actual, err := fingerprint.File(path)
			if err != nil {
				if errors.Is(err, fingerprint.ErrArtifactNotFound) {
					return nil
				}
				return err
			}
			out[i].Actual = actual
			if actual == e.Fingerprint {
				out[i].Status = VerifyOK
			} else {
				out[i].Status = VerifyMismatch
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) run(ctx context.Context, fn func() error) error {
	if err := d.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.slots.Release(1)
	return fn()
}

func (d *Dispatcher) load(entry storage.CatalogEntry) (model.Model, error) {
	path, err := d.reg.ArtifactPath(entry)
	if err != nil {
		return nil, &ArtifactLoadError{Filename: entry.Filename, Err: err}
	}
	m, err := model.Load(path)
	if err != nil {
		return nil, &ArtifactLoadError{Filename: entry.Filename, Err: err}
	}
	return m, nil
}

func (d *Dispatcher) record(ctx context.Context, user, fp string, action storage.Action) {
	// Detach from request cancellation.
	ctx = context.WithoutCancel(ctx)
	if _, err := d.reg.Ledger.Record(ctx, user, fp, action); err != nil {
		slog.WarnContext(ctx, "Failed to record usage", "fingerprint", fp, "action", action, "err", err)
	}
}
