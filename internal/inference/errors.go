package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is wrapped by *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrArtifactLoad is wrapped by *ArtifactLoadError.
	ErrArtifactLoad = errors.New("artifact load failed")

	// ErrInvalidInput is returned for requests that can't be evaluated, such
	// as empty feature vectors or label counts not matching samples.
	ErrInvalidInput = errors.New("invalid input")
)

// DimensionMismatchError reports an input vector whose length disagrees with
// the model's expected input size.
type DimensionMismatchError struct {
	Expected int
	Got      int
	// Sample is the offending sample index for batch requests, -1 otherwise.
	Sample int
}

func (e *DimensionMismatchError) Error() string {
	if e.Sample >= 0 {
		return fmt.Sprintf("sample %d: expected %d features, got %d", e.Sample, e.Expected, e.Got)
	}
	return fmt.Sprintf("expected %d features, got %d", e.Expected, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// ArtifactLoadError reports a catalog entry whose artifact can't be loaded or
// can't predict.
type ArtifactLoadError struct {
	Filename string
	Err      error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("failed to load artifact %s: %v", e.Filename, e.Err)
}

func (e *ArtifactLoadError) Unwrap() []error {
	return []error{ErrArtifactLoad, e.Err}
}
