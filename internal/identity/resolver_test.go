package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterhub/rostersync/internal/ingest"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

func TestResolveSubject(t *testing.T) {
	key, err := Resolve(Subject("cognito-sub-123"))
	require.NoError(t, err)
	assert.Equal(t, "cognito-sub-123", key)
}

func TestResolveTenantExternal(t *testing.T) {
	key, err := Resolve(TenantExternal("T", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "T_abc", key)
}

func TestResolveEmptyIdentity(t *testing.T) {
	_, err := Resolve(Identity{})
	require.Error(t, err)
}

// Keys written by sync must be reachable by resolved queries: the resolver
// and the user transform must agree on the derivation for any pair.
func TestDerivationMatchesSyncTransform(t *testing.T) {
	pairs := [][2]string{
		{"T", "a"},
		{"district-42", "user_9"},
		{"X", "a_b"}, // underscore in the external id
	}
	for _, p := range pairs {
		tf := ingest.UserTransform(p[0])
		rec, err := tf(rosterstore.Record{"sourcedId": p[1], "role": "student", "status": "active"})
		require.NoError(t, err)

		resolved, err := Resolve(TenantExternal(p[0], p[1]))
		require.NoError(t, err)
		assert.Equal(t, rec["userId"], resolved)
	}
}
