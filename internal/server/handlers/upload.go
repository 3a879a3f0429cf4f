package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/maruel/modelprov/internal/server/dto"
	"github.com/maruel/modelprov/internal/server/reqctx"
)

// formMemory is the part of a multipart upload kept in memory. The rest is
// spooled to temporary files by net/http.
const formMemory = 32 << 20

// formOverhead is the room left for multipart framing and text fields on top
// of the artifact size limit.
const formOverhead = 1 << 20

// UploadHandler registers artifacts sent as multipart/form-data.
type UploadHandler struct {
	Svc *Services
	Cfg *Config
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(svc *Services, cfg *Config) *UploadHandler {
	return &UploadHandler{Svc: svc, Cfg: cfg}
}

// Upload handles POST /upload.
//
// Form fields: "file" (required), "author" and "description" (or "desc").
// When the request is authenticated and no author is given, the token subject
// is recorded as author.
//
// This is a raw http.HandlerFunc because it handles multipart forms.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if limit := h.Cfg.Quotas.MaxArtifactBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeErrorResponse(w, dto.PayloadTooLarge(h.Cfg.Quotas.MaxArtifactBytes))
			return
		}
		writeErrorResponse(w, dto.BadRequest("invalid multipart form"))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("Failed to remove multipart temp files", "err", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorResponse(w, dto.MissingField("file"))
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("Failed to close uploaded file", "err", err)
		}
	}()

	author := r.FormValue("author")
	if author == "" {
		author = reqctx.User(r.Context())
	}
	description := r.FormValue("description")
	if description == "" {
		description = r.FormValue("desc")
	}

	ctx := r.Context()
	e, err := h.Svc.Registry.Upload(ctx, file, header.Filename, author, description)
	if err != nil {
		slog.WarnContext(ctx, "Failed to register artifact", "filename", header.Filename, "err", err)
		writeErrorResponse(w, toAPIError(err, ""))
		return
	}

	writeJSON(w, &dto.UploadResponse{
		Status:      "success",
		Filename:    e.Filename,
		Fingerprint: e.Fingerprint,
		Model:       modelToDTO(&e),
	})
}
