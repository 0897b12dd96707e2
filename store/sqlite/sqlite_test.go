package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) leave.Store {
		return newTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	// GIVEN: a file database opened twice
	path := filepath.Join(t.TempDir(), "leave.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.SetConfigValue(context.Background(), leave.ConfigDefaultMonthlyAccrual, "2"))
	require.NoError(t, s.Close())

	// WHEN: reopening runs migrate again
	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	// THEN: data survives
	v, ok, err := s.GetConfigValue(context.Background(), leave.ConfigDefaultMonthlyAccrual)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Balance rows must reference existing employees and leave types
	_, err := s.AdjustBalance(ctx, leave.BalanceKey{EmployeeID: "ghost", LeaveTypeID: "ghost"}, decimal.NewFromInt(1))
	assert.True(t, generic.IsNotFound(err), "got %v", err)

	bal, err := s.GetBalance(ctx, leave.BalanceKey{EmployeeID: "ghost", LeaveTypeID: "ghost"})
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestEmailLookupIgnoresCase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, leave.Employee{
		ID: "e1", ClerkID: "c1", Name: "Alice", Email: "alice@example.com", Role: leave.RoleEmployee,
	}))

	got, err := s.FindEmployeeByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, leave.EmployeeID("e1"), got.ID)

	err = s.CreateEmployee(ctx, leave.Employee{
		ID: "e2", ClerkID: "c2", Name: "Alice Again", Email: "Alice@Example.com", Role: leave.RoleEmployee,
	})
	assert.True(t, generic.IsKind(err, generic.KindDuplicateKey), "got %v", err)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
