// Package secrets is the credential-provider collaborator boundary. The core
// only depends on named secrets resolving to flat string payloads; where they
// actually live (environment, file, a cloud secret manager) is backend detail.
package secrets

import "context"

// Well-known secret names.
const (
	RosterAPICredentials = "roster-api-credentials"
	OIDCCredentials      = "oidc-credentials"
)

// Keys within the roster API credentials payload.
const (
	KeyBaseURL     = "base_url"
	KeyAdminAPIKey = "admin_api_key"
)

// Keys within the OIDC credentials payload.
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyTokenURL     = "token_url"
	KeyUserInfoURL  = "userinfo_url"
	KeyRedirectURI  = "redirect_uri"
)

// Provider resolves a named secret to its payload. A failed lookup is fatal
// to the invocation that needed it.
type Provider interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}
