// Package dto defines API request/response types and error handling.
//
// This package contains all types used for HTTP API communication:
//   - Request types with path/query/json struct tags for parameter binding
//   - Response types with RFC3339 timestamps for JSON serialization
//   - Structured error types with HTTP status codes and error codes
//
// Error handling follows a structured pattern:
//   - ErrorCode provides machine-readable error classification
//   - APIError wraps errors with HTTP status codes and details
//   - Constructor functions (NotFound, BadRequest, etc.) create common errors
package dto

import (
	"fmt"
	"maps"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeInvalidFormat is returned when a field has an invalid format.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrorCodeModelNotFound is returned when no catalog entry has the fingerprint.
	ErrorCodeModelNotFound ErrorCode = "MODEL_NOT_FOUND"
	// ErrorCodeDimensionMismatch is returned when the feature count disagrees
	// with the model.
	ErrorCodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
	// ErrorCodeArtifactLoadFailed is returned when a registered artifact can't
	// be loaded.
	ErrorCodeArtifactLoadFailed ErrorCode = "ARTIFACT_LOAD_FAILED"
	// ErrorCodeStoreCorrupt is returned when the catalog or ledger can't be parsed.
	ErrorCodeStoreCorrupt ErrorCode = "STORE_CORRUPT"

	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeConflict is returned when there is a resource conflict.
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeUnauthorized is returned when authentication is missing or invalid.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodePayloadTooLarge is returned when the request body exceeds the limit.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeRateLimitExceeded is returned when the client sent too many requests.
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, "Missing required field: "+fieldName).
		WithDetail("field", fieldName)
}

// InvalidFormat creates a 400 Bad Request error for a malformed field.
func InvalidFormat(fieldName, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidFormat, message).WithDetail("field", fieldName)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, message)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrorCodeConflict, message)
}

// PayloadTooLarge creates a 413 error.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge, "Request body too large").
		WithDetail("limit", limit)
}

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimitExceeded, "Rate limit exceeded").
		WithDetail("retry_after", retryAfter)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// ModelNotFound creates a 404 error for an unknown fingerprint.
func ModelNotFound(fingerprint string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeModelNotFound, "Model not found").
		WithDetail("fingerprint", fingerprint)
}

// DimensionMismatch creates a 422 error. sample is the offending sample index
// for batch requests, -1 otherwise.
func DimensionMismatch(expected, got, sample int) *APIError {
	e := NewAPIError(http.StatusUnprocessableEntity, ErrorCodeDimensionMismatch,
		fmt.Sprintf("Expected %d features, got %d", expected, got)).
		WithDetails(map[string]any{"expected": expected, "got": got})
	if sample >= 0 {
		e.WithDetail("sample", sample)
	}
	return e
}

// ArtifactLoadFailed creates a 500 error for an artifact that can't be loaded.
func ArtifactLoadFailed(filename string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeArtifactLoadFailed, "Failed to load artifact").
		WithDetail("filename", filename).Wrap(err)
}

// StoreCorrupt creates a 500 error for an unparsable catalog or ledger.
func StoreCorrupt(err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeStoreCorrupt, "Store is corrupt").Wrap(err)
}
