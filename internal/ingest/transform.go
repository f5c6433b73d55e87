package ingest

import (
	"strings"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/models"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

// TransformFunc validates one raw upstream record and produces the store
// record. A Validation error means the record is skipped and counted, never
// fatal to the pass.
type TransformFunc func(raw rosterstore.Record) (rosterstore.Record, error)

func rawString(rec rosterstore.Record, field string) string {
	v, _ := rec[field].(string)
	return v
}

func rawNested(rec rosterstore.Record, outer, inner string) string {
	m, _ := rec[outer].(map[string]any)
	if m == nil {
		return ""
	}
	v, _ := m[inner].(string)
	return v
}

func orPlaceholder(v string) string {
	if v == "" {
		return models.PlaceholderValue
	}
	return v
}

// UserTransform builds the users transform for one tenant. A user record
// needs a sourcedId, a role and an active status; anything else is skipped.
// The composite key embeds the tenant so external ids from different tenants
// never collide.
func UserTransform(tenantID string) TransformFunc {
	return func(raw rosterstore.Record) (rosterstore.Record, error) {
		sourcedID := rawString(raw, "sourcedId")
		role := rawString(raw, "role")
		status := strings.ToLower(rawString(raw, "status"))
		if sourcedID == "" {
			return nil, apperr.Validation("user record missing sourcedId")
		}
		if role == "" {
			return nil, apperr.Validation("user %s missing role", sourcedID)
		}
		if status != "active" {
			return nil, apperr.Validation("user %s not active (status %q)", sourcedID, status)
		}
		return rosterstore.Record{
			"userId":    models.UserKey(tenantID, sourcedID),
			"sourcedId": sourcedID,
			"tenantId":  tenantID,
			"role":      role,
			"firstName": orPlaceholder(rawString(raw, "givenName")),
			"lastName":  orPlaceholder(rawString(raw, "familyName")),
		}, nil
	}
}

// EnrollmentTransform builds the enrollments transform for one tenant. The
// user key uses the same derivation as UserTransform.
func EnrollmentTransform(tenantID string) TransformFunc {
	return func(raw rosterstore.Record) (rosterstore.Record, error) {
		userSourcedID := rawNested(raw, "user", "sourcedId")
		classID := rawNested(raw, "class", "sourcedId")
		if userSourcedID == "" {
			return nil, apperr.Validation("enrollment record missing user sourcedId")
		}
		if classID == "" {
			return nil, apperr.Validation("enrollment for user %s missing class sourcedId", userSourcedID)
		}
		return rosterstore.Record{
			"userId":  models.UserKey(tenantID, userSourcedID),
			"classId": classID,
			"role":    orPlaceholder(rawString(raw, "role")),
		}, nil
	}
}

// ClassTransform validates class records. Only the id is required.
func ClassTransform() TransformFunc {
	return func(raw rosterstore.Record) (rosterstore.Record, error) {
		sourcedID := rawString(raw, "sourcedId")
		if sourcedID == "" {
			return nil, apperr.Validation("class record missing sourcedId")
		}
		return rosterstore.Record{
			"classId":    sourcedID,
			"className":  orPlaceholder(rawString(raw, "title")),
			"courseCode": orPlaceholder(rawString(raw, "courseCode")),
		}, nil
	}
}
