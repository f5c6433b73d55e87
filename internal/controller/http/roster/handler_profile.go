package roster

import (
	"encoding/json"
	"net/http"

	"github.com/rosterhub/rostersync/internal/auth"
	"github.com/rosterhub/rostersync/internal/identity"
	"github.com/rosterhub/rostersync/pkg/common/apperr"
)

// profile POST /api/profile
// Authorization-code variant of the read path: exchanges the one-time code,
// looks up the caller's roster identity and resolves the tenant-qualified
// key with the same derivation the sync pass uses.
func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, apperr.Validation("authorization code not provided"))
		return
	}

	oidc, err := auth.NewOIDCClient(r.Context(), h.secrets)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := oidc.ExchangeCode(r.Context(), body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := oidc.LookupUserInfo(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	userKey, err := identity.Resolve(identity.TenantExternal(info.TenantID, info.SourcedID))
	if err != nil {
		writeError(w, err)
		return
	}

	h.respondWithView(w, r, userKey)
}
