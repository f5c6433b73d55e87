package roster

import (
	"errors"
	"net/http"

	"github.com/rosterhub/rostersync/internal/identity"
	"github.com/rosterhub/rostersync/internal/metrics"
	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/models"
)

// me GET /api/me
// Verifies the bearer token, resolves the subject claim to the internal user
// key and returns the aggregated view. Auth failures short-circuit before any
// store access; an unknown user is 404, which callers treat as "roster sync
// has not reached this identity yet", not as an error.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.VerifyBearer(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		metrics.QueryRequests.WithLabelValues("unauthorized").Inc()
		writeError(w, err)
		return
	}

	userKey, err := identity.Resolve(identity.Subject(claims.Sub))
	if err != nil {
		metrics.QueryRequests.WithLabelValues("unauthorized").Inc()
		writeError(w, err)
		return
	}

	h.respondWithView(w, r, userKey)
}

// respondWithView runs the aggregation for userKey and writes the response,
// shared by the token and code-exchange entry points.
func (h *Handler) respondWithView(w http.ResponseWriter, r *http.Request, userKey string) {
	view, err := h.queries.GetUserView(r.Context(), userKey)
	if err != nil {
		var e *apperr.Error
		if errors.As(err, &e) && e.Kind == apperr.KindNotFound {
			metrics.QueryRequests.WithLabelValues("not_found").Inc()
		} else {
			metrics.QueryRequests.WithLabelValues("error").Inc()
		}
		writeError(w, err)
		return
	}
	metrics.QueryRequests.WithLabelValues("ok").Inc()
	writeView(w, view)
}

func writeView(w http.ResponseWriter, view *models.UserView) {
	writeJSON(w, http.StatusOK, map[string]any{
		"userProfile": view.UserProfile,
		"enrollments": view.Enrollments,
		"classes":     view.Classes,
	})
}
