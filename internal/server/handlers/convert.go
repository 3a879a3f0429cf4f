// Converts storage types to API types.

package handlers

import (
	"time"

	"github.com/maruel/modelprov/internal/server/dto"
	"github.com/maruel/modelprov/internal/storage"
)

func modelToDTO(e *storage.CatalogEntry) dto.ModelResponse {
	return dto.ModelResponse{
		Fingerprint: e.Fingerprint,
		Author:      e.Author,
		Description: e.Description,
		Filename:    e.Filename,
		CreatedAt:   formatTime(e.CreatedAt),
	}
}

func modelsToDTO(entries []storage.CatalogEntry) []dto.ModelResponse {
	out := make([]dto.ModelResponse, len(entries))
	for i := range entries {
		out[i] = modelToDTO(&entries[i])
	}
	return out
}

func usageToDTO(e *storage.UsageEntry) dto.UsageEntryResponse {
	return dto.UsageEntryResponse{
		ID:          e.ID.String(),
		Timestamp:   formatTime(e.Timestamp),
		User:        e.User,
		Fingerprint: e.Fingerprint,
		Action:      string(e.Action),
	}
}

func commitToDTO(c *storage.Commit) dto.CommitResponse {
	return dto.CommitResponse{
		Hash:       c.Hash,
		Message:    c.Message,
		Author:     c.Author,
		AuthorDate: formatTime(c.AuthorDate),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
