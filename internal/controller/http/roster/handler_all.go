package roster

import "net/http"

// all GET /api/all
// Administrative full dump of the three collections.
func (h *Handler) all(w http.ResponseWriter, r *http.Request) {
	dump, err := h.queries.Dump(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":       dump["users"],
		"enrollments": dump["enrollments"],
		"classes":     dump["classes"],
	})
}
