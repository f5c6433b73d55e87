// Package identity maps verified caller identities to internal user keys.
// Token verification itself happens elsewhere; this is only the resolution
// step, and it must derive keys exactly the way the ingestion transforms do,
// otherwise sync-written rows become unreachable by resolved queries.
package identity

import (
	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/models"
)

// Identity is one of the two supported verified-identity shapes.
type Identity struct {
	// Sub is a bare subject identifier used directly as the user key
	// (single-tenant deployments).
	Sub string
	// TenantID and ExternalID form the multi-tenant pair combined with the
	// shared composite-key rule.
	TenantID   string
	ExternalID string
}

// Subject builds an identity from a bare subject claim.
func Subject(sub string) Identity { return Identity{Sub: sub} }

// TenantExternal builds an identity from a tenant and external id pair.
func TenantExternal(tenantID, externalID string) Identity {
	return Identity{TenantID: tenantID, ExternalID: externalID}
}

// Resolve returns the internal user key for id.
func Resolve(id Identity) (string, error) {
	switch {
	case id.Sub != "":
		return id.Sub, nil
	case id.TenantID != "" && id.ExternalID != "":
		return models.UserKey(id.TenantID, id.ExternalID), nil
	default:
		return "", apperr.Auth("identity has neither subject nor tenant/external id pair")
	}
}
