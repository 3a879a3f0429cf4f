// Maps domain errors to API errors and writes error responses.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maruel/modelprov/internal/inference"
	"github.com/maruel/modelprov/internal/jsonldb"
	"github.com/maruel/modelprov/internal/server/dto"
	"github.com/maruel/modelprov/internal/storage"
)

// toAPIError converts an error returned by the registry or the dispatcher to
// an error carrying an HTTP status.
func toAPIError(err error, fp string) error {
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	var dm *inference.DimensionMismatchError
	var le *inference.ArtifactLoadError
	switch {
	case errors.As(err, &dm):
		return dto.DimensionMismatch(dm.Expected, dm.Got, dm.Sample)
	case errors.Is(err, storage.ErrModelNotFound):
		return dto.ModelNotFound(fp)
	case errors.As(err, &le):
		return dto.ArtifactLoadFailed(le.Filename, le.Err)
	case errors.Is(err, jsonldb.ErrCorrupt):
		return dto.StoreCorrupt(err)
	case errors.Is(err, storage.ErrArtifactConflict):
		return dto.Conflict(err.Error())
	case errors.Is(err, storage.ErrInvalidFilename):
		return dto.InvalidFormat("file", err.Error())
	case errors.Is(err, storage.ErrArtifactTooLarge):
		return dto.NewAPIError(http.StatusRequestEntityTooLarge, dto.ErrorCodePayloadTooLarge, err.Error())
	case errors.Is(err, inference.ErrInvalidInput):
		return dto.BadRequest(err.Error())
	default:
		return dto.InternalWithError("internal error", err)
	}
}

// writeErrorResponse writes an APIError as a JSON response.
// Use this in raw http.HandlerFunc handlers that don't use server.Wrap.
func writeErrorResponse(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := dto.ErrorCodeInternal
	message := "internal error"
	var details map[string]any

	var ewsErr dto.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		errorCode = ewsErr.Code()
		message = ewsErr.Error()
		details = ewsErr.Details()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := dto.ErrorResponse{
		Error: dto.ErrorDetails{
			Code:    errorCode,
			Message: message,
		},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}
