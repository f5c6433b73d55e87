package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

func TestUserTransform(t *testing.T) {
	tf := UserTransform("T")

	rec, err := tf(rosterstore.Record{
		"sourcedId": "a", "role": "student", "status": "active",
		"givenName": "Ada", "familyName": "Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, "T_a", rec["userId"])
	assert.Equal(t, "a", rec["sourcedId"])
	assert.Equal(t, "T", rec["tenantId"])
	assert.Equal(t, "Ada", rec["firstName"])
	assert.Equal(t, "Lovelace", rec["lastName"])

	// Status comparison is case-insensitive.
	_, err = tf(rosterstore.Record{"sourcedId": "a", "role": "student", "status": "Active"})
	require.NoError(t, err)

	// Missing names get placeholders.
	rec, err = tf(rosterstore.Record{"sourcedId": "a", "role": "student", "status": "active"})
	require.NoError(t, err)
	assert.Equal(t, "N/A", rec["firstName"])
	assert.Equal(t, "N/A", rec["lastName"])

	for name, raw := range map[string]rosterstore.Record{
		"missing sourcedId": {"role": "student", "status": "active"},
		"missing role":      {"sourcedId": "a", "status": "active"},
		"inactive":          {"sourcedId": "a", "role": "student", "status": "inactive"},
		"missing status":    {"sourcedId": "a", "role": "student"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tf(raw)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
		})
	}
}

func TestEnrollmentTransform(t *testing.T) {
	tf := EnrollmentTransform("T")

	rec, err := tf(rosterstore.Record{
		"user":  map[string]any{"sourcedId": "u1"},
		"class": map[string]any{"sourcedId": "C1"},
		"role":  "student",
	})
	require.NoError(t, err)
	assert.Equal(t, "T_u1", rec["userId"])
	assert.Equal(t, "C1", rec["classId"])
	assert.Equal(t, "student", rec["role"])

	rec, err = tf(rosterstore.Record{
		"user":  map[string]any{"sourcedId": "u1"},
		"class": map[string]any{"sourcedId": "C1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "N/A", rec["role"])

	_, err = tf(rosterstore.Record{"class": map[string]any{"sourcedId": "C1"}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = tf(rosterstore.Record{"user": map[string]any{"sourcedId": "u1"}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestClassTransform(t *testing.T) {
	tf := ClassTransform()

	rec, err := tf(rosterstore.Record{"sourcedId": "C1", "title": "Algebra", "courseCode": "MATH-1"})
	require.NoError(t, err)
	assert.Equal(t, "C1", rec["classId"])
	assert.Equal(t, "Algebra", rec["className"])
	assert.Equal(t, "MATH-1", rec["courseCode"])

	rec, err = tf(rosterstore.Record{"sourcedId": "C2"})
	require.NoError(t, err)
	assert.Equal(t, "N/A", rec["className"])
	assert.Equal(t, "N/A", rec["courseCode"])

	_, err = tf(rosterstore.Record{"title": "Orphan"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
