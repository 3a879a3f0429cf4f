// Package fingerprint computes content-derived identifiers for model artifacts.
//
// A fingerprint is the lowercase hex SHA-256 digest of an artifact's bytes. It
// is a pure function of the content: the chunk size used while streaming never
// affects the result.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

// ChunkSize is the read size used when streaming an artifact into the digest.
const ChunkSize = 4096

// Len is the length of a fingerprint string.
const Len = 2 * sha256.Size

var (
	// ErrArtifactNotFound is returned when the artifact cannot be opened for reading.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrInvalid is returned by Validate for malformed fingerprints.
	ErrInvalid = errors.New("invalid fingerprint")
)

// New returns a hash suitable for incremental fingerprinting. Use Format to
// render the result.
func New() hash.Hash {
	return sha256.New()
}

// Format renders the current digest of h as a fingerprint.
func Format(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes returns the fingerprint of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Reader streams r through the digest in ChunkSize chunks.
func Reader(r io.Reader) (string, error) {
	h := New()
	if _, err := io.CopyBuffer(h, r, make([]byte, ChunkSize)); err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	return Format(h), nil
}

// File returns the fingerprint of the file at path.
//
// Returns an error wrapping ErrArtifactNotFound if the file cannot be opened.
func File(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is an artifact location chosen by the caller
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrArtifactNotFound, path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	fp, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return fp, nil
}

// Validate checks that s is 64 lowercase hex characters.
func Validate(s string) error {
	if len(s) != Len {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalid, len(s), Len)
	}
	for i := range len(s) {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: unexpected character %q at %d", ErrInvalid, c, i)
		}
	}
	return nil
}
