package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterhub/rostersync/internal/repositories/rosterstore/badgerkv"
	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

func seedStore(t *testing.T) rosterstore.Repository {
	t.Helper()
	store, err := badgerkv.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(store.Disconnect)
	ctx := context.Background()

	users := []rosterstore.Record{
		{"userId": "T_s1", "sourcedId": "s1", "tenantId": "T", "role": "student", "firstName": "Sam", "lastName": "Student"},
		{"userId": "T_s2", "sourcedId": "s2", "tenantId": "T", "role": "student", "firstName": "Sky", "lastName": "Second"},
		{"userId": "T_t1", "sourcedId": "t1", "tenantId": "T", "role": "teacher", "firstName": "Tess", "lastName": "Teacher"},
	}
	enrollments := []rosterstore.Record{
		{"userId": "T_s1", "classId": "C1", "role": "student"},
		{"userId": "T_s1", "classId": "C2", "role": "student"}, // C2 has no class record
		{"userId": "T_s2", "classId": "C1", "role": "student"},
		{"userId": "T_t1", "classId": "C1", "role": "teacher"},
		{"userId": "T_ghost", "classId": "C1", "role": "student"}, // no user record
	}
	classes := []rosterstore.Record{
		{"classId": "C1", "className": "Algebra", "courseCode": "M1"},
	}
	for _, rec := range users {
		require.NoError(t, store.PutItem(ctx, rosterstore.Users, rec))
	}
	for _, rec := range enrollments {
		require.NoError(t, store.PutItem(ctx, rosterstore.Enrollments, rec))
	}
	for _, rec := range classes {
		require.NoError(t, store.PutItem(ctx, rosterstore.Classes, rec))
	}
	return store
}

func TestGetUserViewUnknownUser(t *testing.T) {
	e := &Engine{Store: seedStore(t)}
	_, err := e.GetUserView(context.Background(), "T_nobody")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

// A student enrolled in C1 and C2 where C2's class record is gone gets
// exactly [C1]: the dangling reference is dropped, not an error.
func TestGetUserViewStudentDanglingClassDropped(t *testing.T) {
	e := &Engine{Store: seedStore(t)}
	view, err := e.GetUserView(context.Background(), "T_s1")
	require.NoError(t, err)

	assert.Equal(t, "T_s1", view.UserProfile["userId"])
	assert.Len(t, view.Enrollments, 2)
	require.Len(t, view.Classes, 1)
	assert.Equal(t, "C1", view.Classes[0]["classId"])
	// Students never get rosters.
	_, hasRoster := view.Classes[0]["roster"]
	assert.False(t, hasRoster)
}

func TestGetUserViewTeacherRosterWithNames(t *testing.T) {
	e := &Engine{Store: seedStore(t), IncludeMemberNames: true}
	view, err := e.GetUserView(context.Background(), "T_t1")
	require.NoError(t, err)

	require.Len(t, view.Classes, 1)
	roster, ok := view.Classes[0]["roster"].([]rosterstore.Record)
	require.True(t, ok, "teacher class must carry a roster, got %T", view.Classes[0]["roster"])
	require.Len(t, roster, 4)

	byUser := map[string]rosterstore.Record{}
	for _, entry := range roster {
		byUser[entry["userId"].(string)] = entry
	}
	assert.Equal(t, "Sam", byUser["T_s1"]["firstName"])
	assert.Equal(t, "Student", byUser["T_s1"]["lastName"])
	assert.Equal(t, "Sky", byUser["T_s2"]["firstName"])
	// A member whose profile is missing gets placeholders, not a failure.
	assert.Equal(t, "N/A", byUser["T_ghost"]["firstName"])
	assert.Equal(t, "N/A", byUser["T_ghost"]["lastName"])
}

func TestGetUserViewTeacherRosterWithoutNames(t *testing.T) {
	e := &Engine{Store: seedStore(t), IncludeMemberNames: false}
	view, err := e.GetUserView(context.Background(), "T_t1")
	require.NoError(t, err)

	require.Len(t, view.Classes, 1)
	roster := view.Classes[0]["roster"].([]rosterstore.Record)
	require.Len(t, roster, 4)
	for _, entry := range roster {
		_, has := entry["firstName"]
		assert.False(t, has, "names must not be joined when disabled")
	}
}

func TestGetUserViewNoEnrollments(t *testing.T) {
	store, err := badgerkv.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(store.Disconnect)
	ctx := context.Background()
	require.NoError(t, store.PutItem(ctx, rosterstore.Users,
		rosterstore.Record{"userId": "T_lone", "role": "student"}))

	e := &Engine{Store: store}
	view, err := e.GetUserView(ctx, "T_lone")
	require.NoError(t, err)
	assert.NotNil(t, view.Enrollments)
	assert.Empty(t, view.Enrollments)
	assert.Empty(t, view.Classes)
}

func TestDump(t *testing.T) {
	e := &Engine{Store: seedStore(t)}
	dump, err := e.Dump(context.Background())
	require.NoError(t, err)
	assert.Len(t, dump["users"], 3)
	assert.Len(t, dump["enrollments"], 5)
	assert.Len(t, dump["classes"], 1)
}
