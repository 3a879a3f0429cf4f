package inference

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/modelprov/internal/fingerprint"
	"github.com/maruel/modelprov/internal/jsonldb"
	"github.com/maruel/modelprov/internal/model"
	"github.com/maruel/modelprov/internal/storage"
)

// petalModel classifies on feature 2 over 4 features.
var petalModel = &model.Document{
	Kind:        model.KindLinear,
	NFeaturesIn: 4,
	Classes:     []float64{0, 1, 2},
	Linear: &model.Linear{
		Coef:      [][]float64{{0, 0, -1, 0}, {0, 0, 0.5, 0}, {0, 0, 1.5, 0}},
		Intercept: []float64{2.5, 0, -6},
	},
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *storage.Registry) {
	t.Helper()
	reg, err := storage.Open(storage.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	return New(reg, 2), reg
}

func upload(t *testing.T, reg *storage.Registry, name string, d *model.Document) storage.CatalogEntry {
	t.Helper()
	var buf bytes.Buffer
	if err := model.Encode(&buf, name, d); err != nil {
		t.Fatal(err)
	}
	e, err := reg.Upload(context.Background(), &buf, name, "alice", "test model")
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func ledger(t *testing.T, reg *storage.Registry) []storage.UsageEntry {
	t.Helper()
	entries, err := reg.Ledger.Load()
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestInfer(t *testing.T) {
	ctx := context.Background()
	d, reg := newTestDispatcher(t)
	e := upload(t, reg, "iris.json", petalModel)

	t.Run("happy path", func(t *testing.T) {
		res, err := d.Infer(ctx, e.Fingerprint, []float64{5.1, 3.5, 1.4, 0.2}, "bob")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]float64{0}, res.Prediction); diff != "" {
			t.Errorf("Prediction mismatch (-want +got):\n%s", diff)
		}
		if res.ExpectedFeatures == nil || *res.ExpectedFeatures != 4 {
			t.Errorf("ExpectedFeatures = %v", res.ExpectedFeatures)
		}
		if res.Model.Fingerprint != e.Fingerprint || res.Model.Filename != "iris.json" {
			t.Errorf("Model = %+v", res.Model)
		}
		entries := ledger(t, reg)
		if len(entries) != 1 {
			t.Fatalf("got %d ledger entries, want 1", len(entries))
		}
		if got := entries[0]; got.Fingerprint != e.Fingerprint || got.User != "bob" || got.Action != storage.ActionInference {
			t.Errorf("ledger entry = %+v", got)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		if _, err := d.Infer(ctx, e.Fingerprint, []float64{6, 2.7, 4.5, 1.5}, ""); err != nil {
			t.Fatal(err)
		}
		entries := ledger(t, reg)
		if got := entries[len(entries)-1].User; got != storage.AnonymousUser {
			t.Errorf("User = %q", got)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		before := len(ledger(t, reg))
		_, err := d.Infer(ctx, e.Fingerprint, []float64{1, 2, 3}, "bob")
		var dm *DimensionMismatchError
		if !errors.As(err, &dm) {
			t.Fatalf("Infer() error = %v, want DimensionMismatchError", err)
		}
		if dm.Expected != 4 || dm.Got != 3 {
			t.Errorf("got %+v, want expected 4 got 3", dm)
		}
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Error("error does not wrap ErrDimensionMismatch")
		}
		if after := len(ledger(t, reg)); after != before {
			t.Errorf("ledger grew from %d to %d on mismatch", before, after)
		}
	})

	t.Run("model not found", func(t *testing.T) {
		before := len(ledger(t, reg))
		_, err := d.Infer(ctx, fingerprint.Bytes([]byte("unknown")), []float64{1, 2, 3, 4}, "")
		if !errors.Is(err, storage.ErrModelNotFound) {
			t.Fatalf("Infer() error = %v, want ErrModelNotFound", err)
		}
		if after := len(ledger(t, reg)); after != before {
			t.Errorf("ledger grew on not found")
		}
	})

	t.Run("empty features", func(t *testing.T) {
		before := len(ledger(t, reg))
		_, err := d.Infer(ctx, e.Fingerprint, []float64{}, "bob")
		var dm *DimensionMismatchError
		if !errors.As(err, &dm) {
			t.Fatalf("Infer() error = %v, want DimensionMismatchError", err)
		}
		if dm.Expected != 4 || dm.Got != 0 {
			t.Errorf("got %+v, want expected 4 got 0", dm)
		}
		if after := len(ledger(t, reg)); after != before {
			t.Errorf("ledger grew from %d to %d on empty features", before, after)
		}
	})
}

func TestInferUnknownInputSize(t *testing.T) {
	ctx := context.Background()
	d, reg := newTestDispatcher(t)
	tree := &model.Document{
		Kind: model.KindTree,
		Tree: &model.Tree{Nodes: []model.Node{
			{Feature: 1, Threshold: 0.5, Left: 1, Right: 2},
			{Left: -1, Value: []float64{-3}},
			{Left: -1, Value: []float64{3}},
		}},
	}
	e := upload(t, reg, "tree.yaml", tree)

	res, err := d.Infer(ctx, e.Fingerprint, []float64{0, 1}, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ExpectedFeatures != nil {
		t.Errorf("ExpectedFeatures = %d, want nil", *res.ExpectedFeatures)
	}
	if diff := cmp.Diff([]float64{3}, res.Prediction); diff != "" {
		t.Errorf("Prediction mismatch (-want +got):\n%s", diff)
	}
	if _, err := d.Infer(ctx, e.Fingerprint, []float64{0}, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Infer() with missing split feature = %v, want ErrInvalidInput", err)
	}
	if _, err := d.Infer(ctx, e.Fingerprint, nil, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Infer() with no features = %v, want ErrInvalidInput", err)
	}
}

func TestInferArtifactLoadFailure(t *testing.T) {
	ctx := context.Background()
	d, reg := newTestDispatcher(t)

	t.Run("unsupported format", func(t *testing.T) {
		e, err := reg.Upload(ctx, bytes.NewReader([]byte("\x80\x04pickle")), "model.pkl", "", "")
		if err != nil {
			t.Fatal(err)
		}
		_, err = d.Infer(ctx, e.Fingerprint, []float64{1}, "")
		var le *ArtifactLoadError
		if !errors.As(err, &le) || le.Filename != "model.pkl" {
			t.Fatalf("Infer() error = %v, want ArtifactLoadError", err)
		}
		if !errors.Is(err, ErrArtifactLoad) || !errors.Is(err, model.ErrUnsupportedFormat) {
			t.Errorf("error %v does not wrap the cause", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		e := upload(t, reg, "gone.json", petalModel)
		path, err := reg.ArtifactPath(e)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(path); err != nil {
			t.Fatal(err)
		}
		if _, err := d.Infer(ctx, e.Fingerprint, []float64{1, 2, 3, 4}, ""); !errors.Is(err, ErrArtifactLoad) {
			t.Fatalf("Infer() error = %v, want ErrArtifactLoad", err)
		}
	})

	if n := len(ledger(t, reg)); n != 0 {
		t.Errorf("got %d ledger entries, want 0", n)
	}
}

func TestInferStoreCorrupt(t *testing.T) {
	d, reg := newTestDispatcher(t)
	if err := os.WriteFile(reg.Catalog.Path(), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := d.Infer(context.Background(), fingerprint.Bytes(nil), []float64{1}, "")
	if !errors.Is(err, jsonldb.ErrCorrupt) {
		t.Fatalf("Infer() error = %v, want ErrCorrupt", err)
	}
}

func TestInferLedgerFailureIsNotFatal(t *testing.T) {
	d, reg := newTestDispatcher(t)
	e := upload(t, reg, "iris.cbor", petalModel)
	if err := os.WriteFile(reg.Ledger.Path(), []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := d.Infer(context.Background(), e.Fingerprint, []float64{7.7, 3, 6.1, 2.3}, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{2}, res.Prediction); diff != "" {
		t.Errorf("Prediction mismatch (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(reg.Ledger.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{broken" {
		t.Errorf("corrupt ledger was overwritten: %q", data)
	}
}

func TestInferCanceled(t *testing.T) {
	d, reg := newTestDispatcher(t)
	e := upload(t, reg, "iris.json", petalModel)
	// Occupy every slot.
	if err := d.slots.Acquire(context.Background(), int64(d.workers)); err != nil {
		t.Fatal(err)
	}
	defer d.slots.Release(int64(d.workers))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Infer(ctx, e.Fingerprint, []float64{1, 2, 3, 4}, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("Infer() error = %v, want context.Canceled", err)
	}
}

func TestInferConcurrent(t *testing.T) {
	const n = 20
	d, reg := newTestDispatcher(t)
	e := upload(t, reg, "iris.json.zst", petalModel)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Go(func() {
			_, err := d.Infer(context.Background(), e.Fingerprint, []float64{6, 2.7, 4.5, 1.5}, "load")
			errs <- err
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if got := len(ledger(t, reg)); got != n {
		t.Errorf("got %d ledger entries, want %d", got, n)
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	d, reg := newTestDispatcher(t)
	e := upload(t, reg, "iris.json", petalModel)

	samples := [][]float64{
		{5.1, 3.5, 1.4, 0.2},
		{6.0, 2.7, 4.5, 1.5},
		{7.7, 3.0, 6.1, 2.3},
		{4.9, 3.0, 1.4, 0.2},
	}
	ev, err := d.Evaluate(ctx, e.Fingerprint, samples, []float64{0, 1, 2, 2}, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Samples != 4 || ev.Correct != 3 || ev.Accuracy != 0.75 {
		t.Errorf("Evaluate() = %+v", ev)
	}
	entries := ledger(t, reg)
	if len(entries) != 1 || entries[0].Action != storage.ActionEvaluation || entries[0].User != "carol" {
		t.Errorf("ledger = %+v", entries)
	}

	tests := []struct {
		name    string
		samples [][]float64
		labels  []float64
		want    error
	}{
		{"no samples", nil, nil, ErrInvalidInput},
		{"label count", samples, []float64{0}, ErrInvalidInput},
		{"ragged", [][]float64{{1, 2, 3, 4}, {1, 2}}, []float64{0, 0}, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Evaluate(ctx, e.Fingerprint, tt.samples, tt.labels, ""); !errors.Is(err, tt.want) {
				t.Errorf("Evaluate() error = %v, want %v", err, tt.want)
			}
		})
	}

	var dm *DimensionMismatchError
	_, err = d.Evaluate(ctx, e.Fingerprint, [][]float64{{1, 2, 3, 4}, {1, 2}}, []float64{0, 0}, "")
	if !errors.As(err, &dm) || dm.Sample != 1 || dm.Got != 2 {
		t.Errorf("Evaluate() error = %v", err)
	}
	if n := len(ledger(t, reg)); n != 1 {
		t.Errorf("failed evaluations were recorded: %d entries", n)
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	d, reg := newTestDispatcher(t)
	ok := upload(t, reg, "ok.json", petalModel)
	missing := upload(t, reg, "missing.yaml", petalModel)
	tampered := upload(t, reg, "tampered.cbor", petalModel)

	if err := os.Remove(filepath.Join(reg.Artifacts.Dir(), "missing.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(reg.Artifacts.Dir(), "tampered.cbor"), []byte("evil"), 0o600); err != nil {
		t.Fatal(err)
	}

	results, err := d.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []VerifyResult{
		{Entry: ok, Status: VerifyOK, Actual: ok.Fingerprint},
		{Entry: missing, Status: VerifyMissing},
		{Entry: tampered, Status: VerifyMismatch, Actual: fingerprint.Bytes([]byte("evil"))},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("Verify() mismatch (-want +got):\n%s", diff)
	}
}
