package roster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterhub/rostersync/internal/auth"
	"github.com/rosterhub/rostersync/internal/query"
	"github.com/rosterhub/rostersync/internal/repositories/rosterstore/badgerkv"
	"github.com/rosterhub/rostersync/pkg/common/keys"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
	"github.com/rosterhub/rostersync/pkg/repositories/secrets"
)

type fakeSecrets map[string]map[string]string

func (f fakeSecrets) GetSecret(_ context.Context, name string) (map[string]string, error) {
	if s, ok := f[name]; ok {
		return s, nil
	}
	return nil, assert.AnError
}

func newTestHandler(t *testing.T, secretsProvider secrets.Provider) *Handler {
	t.Helper()
	store, err := badgerkv.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(store.Disconnect)
	ctx := context.Background()

	require.NoError(t, store.PutItem(ctx, rosterstore.Users, rosterstore.Record{
		"userId": "T_s1", "sourcedId": "s1", "tenantId": "T",
		"role": "student", "firstName": "Sam", "lastName": "Student",
	}))
	require.NoError(t, store.PutItem(ctx, rosterstore.Enrollments, rosterstore.Record{
		"userId": "T_s1", "classId": "C1", "role": "student",
	}))
	require.NoError(t, store.PutItem(ctx, rosterstore.Classes, rosterstore.Record{
		"classId": "C1", "className": "Algebra", "courseCode": "M1",
		"credits": json.Number("3.5"),
	}))

	queries := &query.Engine{Store: store, IncludeMemberNames: true}
	verifier := &auth.Verifier{DevMode: true}
	return NewHandler(store, queries, nil, verifier, secretsProvider)
}

func mintToken(t *testing.T, sub string) string {
	t.Helper()
	require.NoError(t, keys.Init())
	tok, err := jwt.NewBuilder().
		Subject(sub).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, keys.PrivateKey()))
	require.NoError(t, err)
	return string(signed)
}

func doRequest(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthUnhealthyStore(t *testing.T) {
	h := newTestHandler(t, nil)
	h.store.Disconnect()

	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}

func TestJWKSEndpoint(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 1)
	assert.Equal(t, "RS256", body.Keys[0]["alg"])
	assert.Equal(t, "RSA", body.Keys[0]["kty"])
}

func TestMeRejectsMissingToken(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestMeRejectsGarbageToken(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := doRequest(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeUnknownUserIs404(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "T_unknown"))
	rec := doRequest(h, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user not found in roster database", body["error"])
}

func TestMeReturnsAggregatedView(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "T_s1"))
	rec := doRequest(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		UserProfile map[string]any   `json:"userProfile"`
		Enrollments []map[string]any `json:"enrollments"`
		Classes     []map[string]any `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "T_s1", body.UserProfile["userId"])
	require.Len(t, body.Enrollments, 1)
	require.Len(t, body.Classes, 1)
	assert.Equal(t, "Algebra", body.Classes[0]["className"])
	// Stored numerics come out as plain JSON numbers.
	assert.Equal(t, 3.5, body.Classes[0]["credits"])
}

func TestAllDumpsCollections(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/api/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["users"], 1)
	assert.Len(t, body["enrollments"], 1)
	assert.Len(t, body["classes"], 1)
}

func TestProfileRejectsMissingCode(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(`{}`))
	rec := doRequest(h, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authorization code not provided", body["error"])
}

func TestProfileCodeExchangeFlow(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			if r.FormValue("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "at-1"})
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer at-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"SourcedId": "s1", "TenantId": "T"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer provider.Close()

	h := newTestHandler(t, fakeSecrets{
		secrets.OIDCCredentials: {
			secrets.KeyClientID:     "cid",
			secrets.KeyClientSecret: "cs",
			secrets.KeyTokenURL:     provider.URL + "/token",
			secrets.KeyUserInfoURL:  provider.URL + "/userinfo",
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(`{"code":"good-code"}`))
	rec := doRequest(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		UserProfile map[string]any `json:"userProfile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "T_s1", body.UserProfile["userId"])

	req = httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(`{"code":"bad-code"}`))
	rec = doRequest(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
