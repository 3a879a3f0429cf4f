// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/modelprov/internal/server/handlers"
	"github.com/maruel/modelprov/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router.
//
// Uploads, inference and evaluation are rate limited and require a bearer
// token when cfg.JWTSecret is set. Catalog and audit queries are open.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, limiters *ratelimit.Limiters) http.Handler {
	mux := &http.ServeMux{}
	auth := NewAuthenticator(cfg.JWTSecret)
	if limiters == nil {
		limiters = &ratelimit.Limiters{}
	}

	hh := handlers.NewHealthHandler(cfg.Version)
	mh := handlers.NewModelHandler(svc)
	uh := handlers.NewUploadHandler(svc, cfg)

	// Health check
	mux.Handle("GET /health", Wrap(hh.Health, cfg))

	// Registration
	mux.Handle("POST /upload", WrapAuthRaw(uh.Upload, auth, limiters.Write))

	// Catalog
	mux.Handle("GET /models", Wrap(mh.List, cfg))
	mux.Handle("GET /models/{fingerprint}", Wrap(mh.Get, cfg))
	mux.Handle("GET /schema", Wrap(mh.Schema, cfg))
	mux.Handle("GET /history", Wrap(mh.History, cfg))

	// Inference
	mux.Handle("POST /infer/{fingerprint}", WrapAuth(mh.Infer, auth, cfg, limiters.Infer))
	mux.Handle("POST /evaluate/{fingerprint}", WrapAuth(mh.Evaluate, auth, cfg, limiters.Infer))

	// Audit
	mux.Handle("GET /usage", Wrap(mh.Usage, cfg))
	mux.Handle("GET /verify", Wrap(mh.Verify, cfg))

	return RequestLogger(mux)
}
