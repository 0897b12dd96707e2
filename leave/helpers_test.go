package leave_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/memory"
	"github.com/warp/leave-ledger/store/sqlite"
)

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s leave.Store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, memory.New())
	})
}

// fixture is a seeded store with one admin and two employees.
type fixture struct {
	ctx      context.Context
	store    leave.Store
	ledger   *leave.Ledger
	balances *leave.BalanceQuery
	registry *leave.Registry
	accrual  *leave.AccrualEngine

	admin *leave.Employee
	alice *leave.Employee
	bob   *leave.Employee

	vacation leave.LeaveType
	sick     leave.LeaveType
	personal leave.LeaveType
}

func newFixture(t *testing.T, s leave.Store) *fixture {
	t.Helper()
	ctx := context.Background()

	_, err := leave.Seed(ctx, s)
	require.NoError(t, err)

	dir := leave.NewDirectory(s)
	admin, err := dir.CurrentUser(ctx, leave.Identity{Subject: "user_admin", Email: "admin@example.com", Name: "Admin"})
	require.NoError(t, err)
	admin, err = dir.SetRole(ctx, admin.Email, leave.RoleAdmin)
	require.NoError(t, err)
	alice, err := dir.CurrentUser(ctx, leave.Identity{Subject: "user_alice", Email: "alice@example.com", Name: "Alice"})
	require.NoError(t, err)
	bob, err := dir.CurrentUser(ctx, leave.Identity{Subject: "user_bob", Email: "bob@example.com", Name: "Bob"})
	require.NoError(t, err)

	f := &fixture{
		ctx:      ctx,
		store:    s,
		ledger:   leave.NewLedger(s),
		balances: leave.NewBalanceQuery(s),
		registry: leave.NewRegistry(s),
		accrual:  leave.NewAccrualEngine(s, slog.New(slog.NewTextHandler(io.Discard, nil))),
		admin:    admin,
		alice:    alice,
		bob:      bob,
	}

	types, err := s.ListLeaveTypes(ctx, false)
	require.NoError(t, err)
	for _, lt := range types {
		switch lt.Name {
		case "Vacation":
			f.vacation = lt
		case "Sick Leave":
			f.sick = lt
		case "Personal":
			f.personal = lt
		}
	}
	require.NotEmpty(t, f.vacation.ID)
	return f
}

// grant credits days to emp's balance of lt.
func (f *fixture) grant(t *testing.T, emp *leave.Employee, lt leave.LeaveType, days string) {
	t.Helper()
	_, err := f.ledger.AssignAdditional(f.ctx, f.admin, emp.ID, lt.ID, decimal.RequireFromString(days))
	require.NoError(t, err)
}

func (f *fixture) settled(t *testing.T, emp *leave.Employee, lt leave.LeaveType) decimal.Decimal {
	t.Helper()
	bal, err := f.store.GetBalance(f.ctx, leave.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID})
	require.NoError(t, err)
	return bal
}

func (f *fixture) line(t *testing.T, emp *leave.Employee, lt leave.LeaveType) leave.BalanceLine {
	t.Helper()
	lines, err := f.balances.Summary(f.ctx, emp.ID)
	require.NoError(t, err)
	for _, l := range lines {
		if l.LeaveTypeID == lt.ID {
			return l
		}
	}
	t.Fatalf("no balance line for %s", lt.Name)
	return leave.BalanceLine{}
}

// pendingRequest inserts a pending request directly, bypassing the
// submission check, so tests control CreatedAt.
func (f *fixture) pendingRequest(t *testing.T, id string, emp *leave.Employee, lt leave.LeaveType, days int, created time.Time) leave.LeaveRequest {
	t.Helper()
	start := generic.NewDate(2030, time.January, 7)
	r := leave.LeaveRequest{
		ID:          leave.RequestID(id),
		EmployeeID:  emp.ID,
		LeaveTypeID: lt.ID,
		StartDate:   start,
		EndDate:     start.AddDays(days - 1),
		Days:        generic.DaysFromInt(days),
		Status:      leave.StatusPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, f.store.CreateRequest(f.ctx, r))
	return r
}

func date(y int, m time.Month, d int) generic.Date {
	return generic.NewDate(y, m, d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
