// Package roster exposes the read and ingestion-trigger HTTP API.
package roster

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rosterhub/rostersync/internal/auth"
	"github.com/rosterhub/rostersync/internal/ingest"
	"github.com/rosterhub/rostersync/internal/query"
	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/common/keys"
	"github.com/rosterhub/rostersync/pkg/common/logger"
	"github.com/rosterhub/rostersync/pkg/common/numenc"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
	"github.com/rosterhub/rostersync/pkg/repositories/secrets"
)

type Handler struct {
	store    rosterstore.Repository
	queries  *query.Engine
	syncer   *ingest.Engine
	verifier *auth.Verifier
	secrets  secrets.Provider
}

// NewHandler wires the handler from its collaborators. The query engine and
// sync engine are shared, read-only state across requests.
func NewHandler(store rosterstore.Repository, queries *query.Engine, syncer *ingest.Engine, verifier *auth.Verifier, secretsProvider secrets.Provider) *Handler {
	return &Handler{
		store:    store,
		queries:  queries,
		syncer:   syncer,
		verifier: verifier,
		secrets:  secretsProvider,
	}
}

// Router returns the chi router for the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/health", h.health)
	r.Get("/.well-known/jwks.json", h.jwks)
	r.Handle("/metrics", promhttp.Handler())

	// Read path
	r.Get("/api/me", h.me)
	r.Post("/api/profile", h.profile)
	r.Get("/api/all", h.all)

	// Ingestion trigger
	r.Post("/api/sync", h.sync)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.store.Health(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// jwks serves the dev-mode verification keys.
func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	data, err := keys.JWKSJSON()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindAuth, err, "JWKS unavailable"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// writeJSON encodes v after normalizing store numerics to floats. A value the
// adapter cannot convert becomes an internal error, never a stringified leak.
func writeJSON(w http.ResponseWriter, status int, v any) {
	norm, err := numenc.Normalize(v)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(norm)
}

// writeError maps the error taxonomy to a status code and a structured body.
// Internal detail goes to the logs only.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed: %v", err)
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		logger.Debug("request rejected: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": apperr.PublicMessage(err)})
}
