// Request types bound from JSON bodies, path and query parameters.

package dto

import "github.com/maruel/modelprov/internal/fingerprint"

// maxBatch limits the number of samples in one evaluation request.
const maxBatch = 100000

// Validatable is the constraint of the request types accepted by the server
// wrappers. Validate runs after the body, path and query are bound.
type Validatable interface {
	Validate() error
}

func validateFingerprint(fp string) error {
	if fp == "" {
		return MissingField("fingerprint")
	}
	if err := fingerprint.Validate(fp); err != nil {
		return InvalidFormat("fingerprint", "fingerprint must be 64 lowercase hex characters")
	}
	return nil
}

// HealthRequest is the request type for health check (empty).
type HealthRequest struct{}

// Validate always succeeds.
func (r *HealthRequest) Validate() error {
	return nil
}

// ListModelsRequest lists the catalog.
type ListModelsRequest struct{}

// Validate always succeeds.
func (r *ListModelsRequest) Validate() error {
	return nil
}

// GetModelRequest returns every version of a fingerprint.
type GetModelRequest struct {
	Fingerprint string `path:"fingerprint" json:"-"`
}

// Validate checks the fingerprint.
func (r *GetModelRequest) Validate() error {
	return validateFingerprint(r.Fingerprint)
}

// InferRequest runs one prediction.
type InferRequest struct {
	Fingerprint string    `path:"fingerprint" json:"-"`
	Features    []float64 `json:"features"`
	User        string    `json:"user,omitempty" query:"user"`
}

// Validate checks the fingerprint. The feature count is checked against the
// model.
func (r *InferRequest) Validate() error {
	return validateFingerprint(r.Fingerprint)
}

// EvaluateRequest scores a model against labelled samples.
type EvaluateRequest struct {
	Fingerprint string      `path:"fingerprint" json:"-"`
	Samples     [][]float64 `json:"samples"`
	Labels      []float64   `json:"labels"`
	User        string      `json:"user,omitempty" query:"user"`
}

// Validate checks the fingerprint and the shape of the data set.
func (r *EvaluateRequest) Validate() error {
	if err := validateFingerprint(r.Fingerprint); err != nil {
		return err
	}
	if len(r.Samples) == 0 {
		return MissingField("samples")
	}
	if len(r.Samples) > maxBatch {
		return BadRequest("too many samples").WithDetail("max", maxBatch)
	}
	if len(r.Labels) != len(r.Samples) {
		return BadRequest("labels must have one value per sample").
			WithDetails(map[string]any{"samples": len(r.Samples), "labels": len(r.Labels)})
	}
	return nil
}

// UsageRequest lists ledger entries, optionally filtered.
type UsageRequest struct {
	Fingerprint string `query:"fingerprint"`
	User        string `query:"user"`
	Limit       int    `query:"limit"`
}

// Validate checks the filters.
func (r *UsageRequest) Validate() error {
	if r.Fingerprint != "" {
		if err := validateFingerprint(r.Fingerprint); err != nil {
			return err
		}
	}
	if r.Limit < 0 {
		return InvalidFormat("limit", "limit must be non-negative")
	}
	return nil
}

// VerifyRequest re-fingerprints every artifact.
type VerifyRequest struct{}

// Validate always succeeds.
func (r *VerifyRequest) Validate() error {
	return nil
}

// SchemaRequest returns the artifact JSON schema.
type SchemaRequest struct{}

// Validate always succeeds.
func (r *SchemaRequest) Validate() error {
	return nil
}

// HistoryRequest lists the git history of the catalog.
type HistoryRequest struct {
	Limit int `query:"limit"`
}

// Validate checks the limit.
func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 {
		return InvalidFormat("limit", "limit must be non-negative")
	}
	return nil
}
