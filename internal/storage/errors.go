package storage

import "errors"

// Sentinel errors for registry operations.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrModelNotFound indicates no catalog entry has the requested fingerprint.
	ErrModelNotFound = errors.New("model not found")

	// ErrArtifactConflict indicates an artifact with the same filename but
	// different content is already stored.
	ErrArtifactConflict = errors.New("artifact filename already used by different content")

	// ErrInvalidFilename indicates an artifact filename that is empty or not a
	// plain base name.
	ErrInvalidFilename = errors.New("invalid artifact filename")

	// ErrArtifactTooLarge indicates an artifact exceeding the configured limit.
	ErrArtifactTooLarge = errors.New("artifact too large")
)
