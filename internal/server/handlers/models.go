// Handles catalog queries, inference, evaluation and auditing.

package handlers

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/maruel/modelprov/internal/inference"
	"github.com/maruel/modelprov/internal/model"
	"github.com/maruel/modelprov/internal/server/dto"
	"github.com/maruel/modelprov/internal/storage"
)

// defaultHistoryLimit bounds GET /history when no limit is given.
const defaultHistoryLimit = 50

// ModelHandler handles model-related HTTP requests.
type ModelHandler struct {
	Svc *Services
}

// NewModelHandler creates a new model handler.
func NewModelHandler(svc *Services) *ModelHandler {
	return &ModelHandler{Svc: svc}
}

// List returns every catalog entry in insertion order.
func (h *ModelHandler) List(ctx context.Context, req *dto.ListModelsRequest) (*dto.ListModelsResponse, error) {
	entries, err := h.Svc.Registry.Catalog.Load()
	if err != nil {
		return nil, toAPIError(err, "")
	}
	resp := dto.ListModelsResponse(modelsToDTO(entries))
	return &resp, nil
}

// Get returns every registration of a fingerprint.
func (h *ModelHandler) Get(ctx context.Context, req *dto.GetModelRequest) (*dto.GetModelResponse, error) {
	versions, err := h.Svc.Registry.Catalog.Versions(req.Fingerprint)
	if err != nil {
		return nil, toAPIError(err, req.Fingerprint)
	}
	return &dto.GetModelResponse{Fingerprint: req.Fingerprint, Versions: modelsToDTO(versions)}, nil
}

// Infer runs a prediction. user is the authenticated subject, which takes
// precedence over the user named in the request.
func (h *ModelHandler) Infer(ctx context.Context, user string, req *dto.InferRequest) (*dto.InferResponse, error) {
	res, err := h.Svc.Dispatcher.Infer(ctx, req.Fingerprint, req.Features, effectiveUser(user, req.User))
	if err != nil {
		return nil, toAPIError(err, req.Fingerprint)
	}
	return &dto.InferResponse{
		Prediction:       res.Prediction,
		ExpectedFeatures: res.ExpectedFeatures,
		Model:            modelToDTO(&res.Model),
	}, nil
}

// Evaluate scores a model against labelled samples.
func (h *ModelHandler) Evaluate(ctx context.Context, user string, req *dto.EvaluateRequest) (*dto.EvaluateResponse, error) {
	ev, err := h.Svc.Dispatcher.Evaluate(ctx, req.Fingerprint, req.Samples, req.Labels, effectiveUser(user, req.User))
	if err != nil {
		return nil, toAPIError(err, req.Fingerprint)
	}
	return &dto.EvaluateResponse{
		Accuracy: ev.Accuracy,
		Samples:  ev.Samples,
		Correct:  ev.Correct,
		Model:    modelToDTO(&ev.Model),
	}, nil
}

// Usage returns ledger entries matching the optional filters. With a limit,
// only the most recent entries are returned.
func (h *ModelHandler) Usage(ctx context.Context, req *dto.UsageRequest) (*dto.UsageResponse, error) {
	entries, err := h.Svc.Registry.Ledger.Load()
	if err != nil {
		return nil, toAPIError(err, "")
	}
	entries = slices.DeleteFunc(entries, func(e storage.UsageEntry) bool {
		return (req.Fingerprint != "" && e.Fingerprint != req.Fingerprint) || (req.User != "" && e.User != req.User)
	})
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[len(entries)-req.Limit:]
	}
	resp := make(dto.UsageResponse, len(entries))
	for i := range entries {
		resp[i] = usageToDTO(&entries[i])
	}
	return &resp, nil
}

// Verify re-fingerprints every artifact and reports drift.
func (h *ModelHandler) Verify(ctx context.Context, req *dto.VerifyRequest) (*dto.VerifyResponse, error) {
	results, err := h.Svc.Dispatcher.Verify(ctx)
	if err != nil {
		return nil, toAPIError(err, "")
	}
	resp := &dto.VerifyResponse{OK: true, Checked: len(results), Entries: make([]dto.VerifyEntryResponse, len(results))}
	for i, r := range results {
		resp.Entries[i] = dto.VerifyEntryResponse{
			Fingerprint: r.Entry.Fingerprint,
			Filename:    r.Entry.Filename,
			Status:      string(r.Status),
			Actual:      r.Actual,
		}
		if r.Status != inference.VerifyOK {
			resp.OK = false
			resp.Failures++
		}
	}
	return resp, nil
}

// Schema returns the JSON schema of model artifacts.
func (h *ModelHandler) Schema(ctx context.Context, req *dto.SchemaRequest) (*dto.SchemaResponse, error) {
	raw, err := json.Marshal(model.Schema())
	if err != nil {
		return nil, dto.InternalWithError("failed to encode schema", err)
	}
	resp := dto.SchemaResponse(raw)
	return &resp, nil
}

// History lists the most recent catalog commits.
func (h *ModelHandler) History(ctx context.Context, req *dto.HistoryRequest) (*dto.HistoryResponse, error) {
	limit := req.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	resp := &dto.HistoryResponse{Enabled: h.Svc.Registry.Config().GitHistory, Commits: []dto.CommitResponse{}}
	commits, err := h.Svc.Registry.History(limit)
	if err != nil {
		return nil, dto.InternalWithError("failed to read history", err)
	}
	for i := range commits {
		resp.Commits = append(resp.Commits, commitToDTO(&commits[i]))
	}
	return resp, nil
}

func effectiveUser(authenticated, requested string) string {
	if authenticated != "" {
		return authenticated
	}
	return requested
}
