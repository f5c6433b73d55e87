package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/common/logger"
	"github.com/rosterhub/rostersync/pkg/repositories/secrets"
)

// UserInfo is what the userinfo endpoint yields after a code exchange.
// Providers disagree on field casing, so both SourcedId/sourcedId and
// TenantId/tenantId spellings are accepted.
type UserInfo struct {
	SourcedID string
	TenantID  string
}

// OIDCClient performs the authorization-code exchange and userinfo lookup
// against the roster identity provider.
type OIDCClient struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	UserInfoURL  string
	RedirectURI  string
	HTTP         *http.Client
}

// NewOIDCClient builds the client from the configured OIDC credentials
// secret.
func NewOIDCClient(ctx context.Context, provider secrets.Provider) (*OIDCClient, error) {
	creds, err := provider.GetSecret(ctx, secrets.OIDCCredentials)
	if err != nil {
		return nil, err
	}
	c := &OIDCClient{
		ClientID:     creds[secrets.KeyClientID],
		ClientSecret: creds[secrets.KeyClientSecret],
		TokenURL:     creds[secrets.KeyTokenURL],
		UserInfoURL:  creds[secrets.KeyUserInfoURL],
		RedirectURI:  creds[secrets.KeyRedirectURI],
		HTTP:         &http.Client{Timeout: 15 * time.Second},
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.TokenURL == "" || c.UserInfoURL == "" {
		return nil, apperr.Upstream("OIDC credentials incomplete")
	}
	return c, nil
}

// ExchangeCode trades a one-time authorization code for an access token.
func (c *OIDCClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("grant_type", "authorization_code")
	if c.RedirectURI != "" {
		form.Set("redirect_uri", c.RedirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, err, "token endpoint request")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		logger.Debug("token endpoint returned %d: %s", resp.StatusCode, string(body))
		return "", apperr.Auth("authorization code exchange failed")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.AccessToken == "" {
		return "", apperr.Auth("token endpoint returned no access token")
	}
	return payload.AccessToken, nil
}

// LookupUserInfo fetches the caller's roster identity with an access token.
func (c *OIDCClient) LookupUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.UserInfoURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "build userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "userinfo request")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "decode userinfo response")
	}
	info := &UserInfo{
		SourcedID: firstString(raw, "SourcedId", "sourcedId"),
		TenantID:  firstString(raw, "TenantId", "tenantId"),
	}
	if info.SourcedID == "" || info.TenantID == "" {
		return nil, apperr.Upstream("userinfo response missing SourcedId or TenantId")
	}
	return info, nil
}

func firstString(m map[string]any, names ...string) string {
	for _, n := range names {
		if v, ok := m[n].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
