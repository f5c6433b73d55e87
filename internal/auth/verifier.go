// Package auth holds the token-verification and OAuth collaborator clients.
// The core consumes only the verified claims these produce; key fetching,
// signature and audience checks are all delegated to jwx.
package auth

import (
	"context"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/common/jwkscache"
	"github.com/rosterhub/rostersync/pkg/common/keys"
)

// Claims is the subset of verified token claims the query path consumes.
type Claims struct {
	Sub string
}

// Verifier validates bearer tokens against the configured identity provider's
// JWKS. With DevMode set it instead verifies against the local signing key,
// which makes the sandbox self-contained.
type Verifier struct {
	JWKSURL  string
	Issuer   string
	Audience string
	Cache    jwkscache.Cache
	DevMode  bool
}

// VerifyBearer extracts and verifies the token from an Authorization header
// value and returns its claims. Every failure mode maps to an Auth error; the
// caller short-circuits before any store access.
func (v *Verifier) VerifyBearer(ctx context.Context, authHeader string) (*Claims, error) {
	if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return nil, apperr.Auth("missing or malformed Authorization header")
	}
	tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

	var tok jwt.Token
	var err error
	if v.DevMode {
		tok, err = v.parseDev(tokenStr)
	} else {
		tok, err = v.parseRemote(ctx, tokenStr)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, err, "invalid token")
	}

	sub := tok.Subject()
	if sub == "" {
		return nil, apperr.Auth("token has no sub claim")
	}
	return &Claims{Sub: sub}, nil
}

func (v *Verifier) options() []jwt.ParseOption {
	opts := []jwt.ParseOption{jwt.WithValidate(true)}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}

func (v *Verifier) parseRemote(ctx context.Context, tokenStr string) (jwt.Token, error) {
	if v.JWKSURL == "" {
		return nil, apperr.Auth("verifier has no JWKS URL configured")
	}
	set, err := v.Cache.Get(ctx, v.JWKSURL)
	if err != nil {
		return nil, err
	}
	opts := append(v.options(), jwt.WithKeySet(set))
	return jwt.Parse([]byte(tokenStr), opts...)
}

func (v *Verifier) parseDev(tokenStr string) (jwt.Token, error) {
	if err := keys.Init(); err != nil {
		return nil, err
	}
	priv := keys.PrivateKey()
	if priv == nil {
		return nil, apperr.Auth("local signing key unavailable")
	}
	opts := append(v.options(), jwt.WithKey(jwa.RS256, priv.Public()))
	return jwt.Parse([]byte(tokenStr), opts...)
}
