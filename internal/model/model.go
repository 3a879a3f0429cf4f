// Package model loads trained model artifacts and runs predictions.
//
// An artifact is a Document serialized as JSON, YAML or CBOR, optionally
// compressed with zstd. The encoding is selected by file extension:
//
//	model.json  model.yaml  model.yml  model.cbor
//	model.json.zst  model.yaml.zst  model.cbor.zst
//
// Two model kinds are supported: linear models (regression or
// one-vs-rest classification) and binary decision trees laid out as a flat
// node list.
package model

import "errors"

// Model is a loaded artifact able to predict.
type Model interface {
	// ExpectedInputSize returns the number of features each sample must have.
	// ok is false when the model does not declare it.
	ExpectedInputSize() (n int, ok bool)

	// Predict returns one prediction per sample.
	Predict(batch [][]float64) ([]float64, error)
}

var (
	// ErrUnsupportedFormat is returned for artifact files whose extension
	// doesn't map to a known encoding.
	ErrUnsupportedFormat = errors.New("unsupported artifact format")

	// ErrInvalidDocument is returned when an artifact decodes but does not
	// describe a usable model.
	ErrInvalidDocument = errors.New("invalid model document")
)
