// Package models holds the roster domain types and the composite user key
// derivation shared by the ingestion and identity-resolution paths.
package models

// Roles as delivered by the rostering source.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// PlaceholderValue stands in for optional fields the upstream omitted.
const PlaceholderValue = "N/A"

// UserKey derives the tenant-qualified user key. The ingestion transforms and
// the identity resolver must both go through this function: identically-named
// external ids from different tenants must never collide, and a key written by
// sync must be reachable by a resolved query.
func UserKey(tenantID, externalID string) string {
	return tenantID + "_" + externalID
}

// User is a roster user row. Written only by sync passes.
type User struct {
	UserID    string `json:"userId"`
	SourcedID string `json:"sourcedId"`
	TenantID  string `json:"tenantId"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Enrollment links a user to a class. Primary key (userId, classId).
type Enrollment struct {
	UserID  string `json:"userId"`
	ClassID string `json:"classId"`
	Role    string `json:"role"`
}

// Class is a roster class row.
type Class struct {
	ClassID    string `json:"classId"`
	ClassName  string `json:"className"`
	CourseCode string `json:"courseCode"`
}

// UserView is the aggregated identity-scoped response. Records stay schemaless
// maps so fields the store carries beyond the core schema survive untouched;
// for teachers each class record additionally carries a "roster" array.
type UserView struct {
	UserProfile map[string]any   `json:"userProfile"`
	Enrollments []map[string]any `json:"enrollments"`
	Classes     []map[string]any `json:"classes"`
}

// UserFromRecord extracts the typed fields the query engine branches on.
// Missing or non-string fields yield empty strings.
func UserFromRecord(rec map[string]any) User {
	return User{
		UserID:    stringField(rec, "userId"),
		SourcedID: stringField(rec, "sourcedId"),
		TenantID:  stringField(rec, "tenantId"),
		Role:      stringField(rec, "role"),
		FirstName: stringField(rec, "firstName"),
		LastName:  stringField(rec, "lastName"),
	}
}

func stringField(rec map[string]any, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}
