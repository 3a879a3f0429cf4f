// Response types serialized to JSON.

package dto

import "encoding/json"

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ModelResponse is a catalog entry.
type ModelResponse struct {
	Fingerprint string `json:"fingerprint"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	CreatedAt   string `json:"createdAt"`
}

// ListModelsResponse is the full catalog in insertion order.
//
// It serializes as a bare JSON array.
type ListModelsResponse []ModelResponse

// GetModelResponse lists every registration of one fingerprint, oldest first.
type GetModelResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Versions    []ModelResponse `json:"versions"`
}

// UploadResponse is returned after registering an artifact.
type UploadResponse struct {
	Status      string        `json:"status"`
	Filename    string        `json:"filename"`
	Fingerprint string        `json:"fingerprint"`
	Model       ModelResponse `json:"model"`
}

// InferResponse is a successful prediction.
type InferResponse struct {
	Prediction []float64 `json:"prediction"`
	// ExpectedFeatures is null when the model doesn't declare its input size.
	ExpectedFeatures *int          `json:"expectedFeatures"`
	Model            ModelResponse `json:"model"`
}

// EvaluateResponse is the accuracy of a model on a labelled set.
type EvaluateResponse struct {
	Accuracy float64       `json:"accuracy"`
	Samples  int           `json:"samples"`
	Correct  int           `json:"correct"`
	Model    ModelResponse `json:"model"`
}

// UsageEntryResponse is one ledger record.
type UsageEntryResponse struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	User        string `json:"user"`
	Fingerprint string `json:"fingerprint"`
	Action      string `json:"action"`
}

// UsageResponse lists ledger records in insertion order.
type UsageResponse []UsageEntryResponse

// VerifyEntryResponse reports whether one catalog entry matches its artifact.
type VerifyEntryResponse struct {
	Fingerprint string `json:"fingerprint"`
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	Actual      string `json:"actual,omitempty"`
}

// VerifyResponse is the result of re-fingerprinting every artifact.
type VerifyResponse struct {
	OK       bool                  `json:"ok"`
	Checked  int                   `json:"checked"`
	Failures int                   `json:"failures"`
	Entries  []VerifyEntryResponse `json:"entries"`
}

// SchemaResponse is the artifact JSON schema, served verbatim.
type SchemaResponse = json.RawMessage

// CommitResponse is one history commit.
type CommitResponse struct {
	Hash       string `json:"hash"`
	Message    string `json:"message"`
	Author     string `json:"author"`
	AuthorDate string `json:"authorDate"`
}

// HistoryResponse lists catalog commits, newest first.
type HistoryResponse struct {
	Enabled bool             `json:"enabled"`
	Commits []CommitResponse `json:"commits"`
}
