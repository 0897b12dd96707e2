package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

func TestCurrentUserCreatesOnFirstLogin(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		dir := leave.NewDirectory(s)
		now := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
		leave.SetDirectoryClock(dir, func() time.Time { return now })

		// WHEN: a new identity logs in
		emp, err := dir.CurrentUser(t.Context(), leave.Identity{
			Subject: "user_1", Email: " Carol@Example.COM ", Name: "Carol",
		})
		require.NoError(t, err)

		// THEN: an employee with the default role exists
		assert.Equal(t, leave.RoleEmployee, emp.Role)
		assert.Equal(t, "carol@example.com", emp.Email)
		assert.Equal(t, "user_1", emp.ClerkID)
		assert.True(t, emp.CreatedAt.Equal(now))

		// AND: the next login returns the same record
		again, err := dir.CurrentUser(t.Context(), leave.Identity{Subject: "user_1", Email: "carol@example.com", Name: "Carol"})
		require.NoError(t, err)
		assert.Equal(t, emp.ID, again.ID)
	})
}

func TestCurrentUserRelinksByEmail(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		dir := leave.NewDirectory(s)
		first, err := dir.CurrentUser(t.Context(), leave.Identity{Subject: "user_old", Email: "dan@example.com", Name: "Dan"})
		require.NoError(t, err)

		// GIVEN: the same person returns with a new identity provider subject
		second, err := dir.CurrentUser(t.Context(), leave.Identity{Subject: "user_new", Email: "dan@example.com", Name: "Daniel"})
		require.NoError(t, err)

		// THEN: the existing employee is relinked and renamed
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "user_new", second.ClerkID)
		assert.Equal(t, "Daniel", second.Name)

		stored, err := s.FindEmployeeByClerkID(t.Context(), "user_new")
		require.NoError(t, err)
		assert.Equal(t, first.ID, stored.ID)

		all, err := s.ListEmployees(t.Context(), "")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestCurrentUserFallbacks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		dir := leave.NewDirectory(s)

		_, err := dir.CurrentUser(t.Context(), leave.Identity{Email: "x@example.com"})
		assert.True(t, generic.IsKind(err, generic.KindForbidden))

		emp, err := dir.CurrentUser(t.Context(), leave.Identity{Subject: "user_anon"})
		require.NoError(t, err)
		assert.Equal(t, "user-user_anon@temp.com", emp.Email)
		assert.Equal(t, "User", emp.Name)

		named, err := dir.CurrentUser(t.Context(), leave.Identity{Subject: "user_e", Email: "eve@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "eve@example.com", named.Name)
	})
}

func TestSetRole(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		dir := leave.NewDirectory(s)
		_, err := dir.CurrentUser(t.Context(), leave.Identity{Subject: "user_f", Email: "frank@example.com", Name: "Frank"})
		require.NoError(t, err)

		emp, err := dir.SetRole(t.Context(), "FRANK@example.com", leave.RoleAdmin)
		require.NoError(t, err)
		assert.True(t, emp.IsAdmin())

		_, err = dir.SetRole(t.Context(), "frank@example.com", "owner")
		assert.True(t, generic.IsKind(err, generic.KindValidation))

		_, err = dir.SetRole(t.Context(), "nobody@example.com", leave.RoleAdmin)
		assert.True(t, generic.IsNotFound(err))
	})
}
