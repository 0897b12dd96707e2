/*
Package storetest is a conformance suite for leave.Store implementations.

USAGE:
  func TestConformance(t *testing.T) {
      storetest.Run(t, func(t *testing.T) leave.Store {
          s, err := sqlite.New(":memory:")
          require.NoError(t, err)
          t.Cleanup(func() { s.Close() })
          return s
      })
  }

Each subtest gets a fresh store from the factory.
*/
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// Factory returns an empty store.
type Factory func(t *testing.T) leave.Store

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s leave.Store)
	}{
		{"Employees", testEmployees},
		{"EmployeeUniqueness", testEmployeeUniqueness},
		{"LeaveTypes", testLeaveTypes},
		{"SystemConfig", testSystemConfig},
		{"Balances", testBalances},
		{"Requests", testRequests},
		{"PendingDays", testPendingDays},
		{"ReviewRequest", testReviewRequest},
		{"AccrualRecords", testAccrualRecords},
		{"WithTxRollback", testWithTxRollback},
		{"WithTxNested", testWithTxNested},
		{"ConcurrentDebits", testConcurrentDebits},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

var base = time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func employee(t *testing.T, s leave.Store, id, name string, role leave.Role) leave.Employee {
	t.Helper()
	e := leave.Employee{
		ID:        leave.EmployeeID(id),
		ClerkID:   "clerk_" + id,
		Name:      name,
		Email:     id + "@example.com",
		Role:      role,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, s.CreateEmployee(context.Background(), e))
	return e
}

func leaveType(t *testing.T, s leave.Store, id, name string, active bool) leave.LeaveType {
	t.Helper()
	lt := leave.LeaveType{
		ID:        leave.LeaveTypeID(id),
		Name:      name,
		Color:     "#3b82f6",
		IsActive:  active,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, s.CreateLeaveType(context.Background(), lt))
	return lt
}

func request(t *testing.T, s leave.Store, id string, emp leave.EmployeeID, lt leave.LeaveTypeID, days string, created time.Time) leave.LeaveRequest {
	t.Helper()
	r := leave.LeaveRequest{
		ID:          leave.RequestID(id),
		EmployeeID:  emp,
		LeaveTypeID: lt,
		StartDate:   generic.NewDate(2030, 1, 7),
		EndDate:     generic.NewDate(2030, 1, 9),
		Days:        d(days),
		Status:      leave.StatusPending,
		Message:     "trip",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, s.CreateRequest(context.Background(), r))
	return r
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func testEmployees(t *testing.T, s leave.Store) {
	ctx := context.Background()
	bob := employee(t, s, "e2", "Bob", leave.RoleEmployee)
	employee(t, s, "e1", "Alice", leave.RoleEmployee)
	employee(t, s, "a1", "Zed", leave.RoleAdmin)

	got, err := s.GetEmployee(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Name)
	assert.Equal(t, leave.RoleEmployee, got.Role)
	assert.True(t, got.CreatedAt.Equal(base))

	byClerk, err := s.FindEmployeeByClerkID(ctx, "clerk_e2")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, byClerk.ID)

	byEmail, err := s.FindEmployeeByEmail(ctx, "e2@example.com")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, byEmail.ID)

	_, err = s.GetEmployee(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
	_, err = s.FindEmployeeByClerkID(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
	_, err = s.FindEmployeeByEmail(ctx, "missing@example.com")
	assert.True(t, generic.IsNotFound(err))

	employees, err := s.ListEmployees(ctx, leave.RoleEmployee)
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, "Alice", employees[0].Name)
	assert.Equal(t, "Bob", employees[1].Name)

	all, err := s.ListEmployees(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Update relinks identity and promotes
	bob.ClerkID = "clerk_new"
	bob.Role = leave.RoleAdmin
	bob.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.UpdateEmployee(ctx, bob))
	got, err = s.FindEmployeeByClerkID(ctx, "clerk_new")
	require.NoError(t, err)
	assert.Equal(t, leave.RoleAdmin, got.Role)
}

func testEmployeeUniqueness(t *testing.T, s leave.Store) {
	ctx := context.Background()
	alice := employee(t, s, "e1", "Alice", leave.RoleEmployee)

	dupClerk := alice
	dupClerk.ID = "e2"
	dupClerk.Email = "other@example.com"
	err := s.CreateEmployee(ctx, dupClerk)
	assert.True(t, generic.IsKind(err, generic.KindDuplicateKey), "got %v", err)

	dupEmail := alice
	dupEmail.ID = "e3"
	dupEmail.ClerkID = "clerk_other"
	err = s.CreateEmployee(ctx, dupEmail)
	assert.True(t, generic.IsKind(err, generic.KindDuplicateKey), "got %v", err)
}

// =============================================================================
// LEAVE TYPES & CONFIG
// =============================================================================

func testLeaveTypes(t *testing.T, s leave.Store) {
	ctx := context.Background()
	vacation := leaveType(t, s, "lt-vac", "Vacation", true)
	leaveType(t, s, "lt-per", "Personal", false)

	dup := vacation
	dup.ID = "lt-other"
	err := s.CreateLeaveType(ctx, dup)
	assert.True(t, generic.IsKind(err, generic.KindDuplicateKey), "got %v", err)

	active, err := s.ListLeaveTypes(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Vacation", active[0].Name)
	assert.False(t, active[0].DefaultMonthlyAccrual.Valid)

	all, err := s.ListLeaveTypes(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Personal", all[0].Name)

	vacation.DefaultMonthlyAccrual = decimal.NewNullDecimal(d("1.25"))
	vacation.Color = "#ef4444"
	require.NoError(t, s.UpdateLeaveType(ctx, vacation))

	got, err := s.GetLeaveType(ctx, vacation.ID)
	require.NoError(t, err)
	assert.Equal(t, "#ef4444", got.Color)
	require.True(t, got.DefaultMonthlyAccrual.Valid)
	assert.True(t, got.DefaultMonthlyAccrual.Decimal.Equal(d("1.25")))

	_, err = s.GetLeaveType(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}

func testSystemConfig(t *testing.T, s leave.Store) {
	ctx := context.Background()

	_, ok, err := s.GetConfigValue(ctx, leave.ConfigDefaultMonthlyAccrual)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetConfigValue(ctx, leave.ConfigDefaultMonthlyAccrual, "1"))
	require.NoError(t, s.SetConfigValue(ctx, leave.ConfigDefaultMonthlyAccrual, "1.5"))

	v, ok, err := s.GetConfigValue(ctx, leave.ConfigDefaultMonthlyAccrual)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.5", v)

	all, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{leave.ConfigDefaultMonthlyAccrual: "1.5"}, all)
}

// =============================================================================
// BALANCES
// =============================================================================

func testBalances(t *testing.T, s leave.Store) {
	ctx := context.Background()
	emp := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)
	key := leave.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: vac.ID}

	// Never written reads as zero
	bal, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	bal, err = s.AdjustBalance(ctx, key, d("2.5"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("2.5")), "got %s", bal)

	bal, err = s.AdjustBalance(ctx, key, d("-1"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("1.5")), "got %s", bal)

	// Overdraft is refused and leaves the balance untouched
	_, err = s.AdjustBalance(ctx, key, d("-2"))
	assert.True(t, generic.IsKind(err, generic.KindInsufficientBalance), "got %v", err)
	bal, err = s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("1.5")), "got %s", bal)

	// Debit to exactly zero is allowed
	bal, err = s.AdjustBalance(ctx, key, d("-1.5"))
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	balances, err := s.ListBalances(ctx, emp.ID)
	require.NoError(t, err)
	require.Contains(t, balances, vac.ID)
	assert.True(t, balances[vac.ID].IsZero())
}

func testConcurrentDebits(t *testing.T, s leave.Store) {
	ctx := context.Background()
	emp := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)
	key := leave.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: vac.ID}
	_, err := s.AdjustBalance(ctx, key, d("5"))
	require.NoError(t, err)

	// GIVEN: 10 concurrent debits of 1 against a balance of 5
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		failed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdjustBalance(ctx, key, d("-1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if generic.IsKind(err, generic.KindInsufficientBalance) {
				failed++
			}
		}()
	}
	wg.Wait()

	// THEN: exactly 5 succeed and the balance ends at zero
	assert.Equal(t, 5, ok)
	assert.Equal(t, 5, failed)
	bal, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "got %s", bal)
}

// =============================================================================
// REQUESTS
// =============================================================================

func testRequests(t *testing.T, s leave.Store) {
	ctx := context.Background()
	alice := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	bob := employee(t, s, "e2", "Bob", leave.RoleEmployee)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)
	sick := leaveType(t, s, "lt-sick", "Sick Leave", true)

	request(t, s, "r1", alice.ID, vac.ID, "3", base)
	request(t, s, "r2", bob.ID, vac.ID, "1", base.Add(time.Minute))
	request(t, s, "r3", alice.ID, sick.ID, "2", base.Add(2*time.Minute))

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.True(t, got.Days.Equal(d("3")))
	assert.Equal(t, "2030-01-07", got.StartDate.String())
	assert.Equal(t, "2030-01-09", got.EndDate.String())
	assert.Equal(t, "trip", got.Message)
	assert.Nil(t, got.ReviewedAt)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.GetRequest(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))

	// Newest first
	all, err := s.ListRequests(ctx, leave.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, leave.RequestID("r3"), all[0].ID)
	assert.Equal(t, leave.RequestID("r1"), all[2].ID)

	mine, err := s.ListRequests(ctx, leave.RequestFilter{EmployeeID: alice.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	byType, err := s.ListRequests(ctx, leave.RequestFilter{LeaveTypeID: vac.ID})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	limited, err := s.ListRequests(ctx, leave.RequestFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, leave.RequestID("r3"), limited[0].ID)

	approved, err := s.ListRequests(ctx, leave.RequestFilter{Status: leave.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, approved)
}

func testPendingDays(t *testing.T, s leave.Store) {
	ctx := context.Background()
	alice := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)
	sick := leaveType(t, s, "lt-sick", "Sick Leave", true)
	key := leave.BalanceKey{EmployeeID: alice.ID, LeaveTypeID: vac.ID}

	r1 := request(t, s, "r1", alice.ID, vac.ID, "3", base)
	r2 := request(t, s, "r2", alice.ID, vac.ID, "2", base.Add(time.Minute))
	request(t, s, "r3", alice.ID, sick.ID, "4", base)
	// Same timestamp as r2; the ID breaks the tie
	r4 := request(t, s, "r4", alice.ID, vac.ID, "1", base.Add(time.Minute))

	total, err := s.PendingDays(ctx, key, nil)
	require.NoError(t, err)
	assert.True(t, total.Equal(d("6")), "got %s", total)

	older, err := s.PendingDays(ctx, key, &r1)
	require.NoError(t, err)
	assert.True(t, older.IsZero(), "got %s", older)

	older, err = s.PendingDays(ctx, key, &r2)
	require.NoError(t, err)
	assert.True(t, older.Equal(d("3")), "got %s", older)

	older, err = s.PendingDays(ctx, key, &r4)
	require.NoError(t, err)
	assert.True(t, older.Equal(d("5")), "got %s", older)

	// Reviewed requests stop counting
	require.NoError(t, s.ReviewRequest(ctx, r1.ID, leave.Review{
		Status: leave.StatusDeclined, ReviewedBy: alice.ID, ReviewedAt: base.Add(time.Hour), AdminNotes: "no",
	}))
	total, err = s.PendingDays(ctx, key, nil)
	require.NoError(t, err)
	assert.True(t, total.Equal(d("3")), "got %s", total)
}

func testReviewRequest(t *testing.T, s leave.Store) {
	ctx := context.Background()
	alice := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	admin := employee(t, s, "a1", "Admin", leave.RoleAdmin)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)
	request(t, s, "r1", alice.ID, vac.ID, "3", base)

	at := base.Add(time.Hour)
	require.NoError(t, s.ReviewRequest(ctx, "r1", leave.Review{
		Status: leave.StatusApproved, ReviewedBy: admin.ID, ReviewedAt: at, AdminNotes: "enjoy",
	}))

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, admin.ID, got.ReviewedBy)
	assert.Equal(t, "enjoy", got.AdminNotes)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, got.ReviewedAt.Equal(at))

	// Terminal states are final
	err = s.ReviewRequest(ctx, "r1", leave.Review{
		Status: leave.StatusDeclined, ReviewedBy: admin.ID, ReviewedAt: at, AdminNotes: "changed my mind",
	})
	assert.True(t, errors.Is(err, generic.ErrAlreadyProcessed), "got %v", err)

	err = s.ReviewRequest(ctx, "missing", leave.Review{Status: leave.StatusApproved, ReviewedBy: admin.ID, ReviewedAt: at})
	assert.True(t, generic.IsNotFound(err), "got %v", err)
}

// =============================================================================
// ACCRUAL RECORDS
// =============================================================================

func testAccrualRecords(t *testing.T, s leave.Store) {
	ctx := context.Background()
	alice := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)

	rec := leave.AccrualRecord{
		ID: "acc1", EmployeeID: alice.ID, LeaveTypeID: vac.ID,
		Amount: d("1"), Month: "2030-01", CreatedAt: base,
	}
	require.NoError(t, s.CreateAccrualRecord(ctx, rec))

	dup := rec
	dup.ID = "acc2"
	err := s.CreateAccrualRecord(ctx, dup)
	assert.True(t, generic.IsKind(err, generic.KindDuplicateKey), "got %v", err)

	next := rec
	next.ID = "acc3"
	next.Month = "2030-02"
	require.NoError(t, s.CreateAccrualRecord(ctx, next))

	all, err := s.ListAccrualRecords(ctx, leave.AccrualFilter{EmployeeID: alice.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2030-01", all[0].Month)

	feb, err := s.ListAccrualRecords(ctx, leave.AccrualFilter{Month: "2030-02"})
	require.NoError(t, err)
	require.Len(t, feb, 1)
	assert.True(t, feb[0].Amount.Equal(d("1")))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testWithTxRollback(t *testing.T, s leave.Store) {
	ctx := context.Background()
	alice := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)
	key := leave.BalanceKey{EmployeeID: alice.ID, LeaveTypeID: vac.ID}

	// GIVEN: a transaction that records an accrual, credits, then fails
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx leave.Store) error {
		require.NoError(t, tx.CreateAccrualRecord(ctx, leave.AccrualRecord{
			ID: "acc1", EmployeeID: alice.ID, LeaveTypeID: vac.ID, Amount: d("1"), Month: "2030-01", CreatedAt: base,
		}))
		_, err := tx.AdjustBalance(ctx, key, d("1"))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// THEN: neither the record nor the credit is visible
	bal, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "got %s", bal)
	recs, err := s.ListAccrualRecords(ctx, leave.AccrualFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	// WHEN: the same work commits
	err = s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.CreateAccrualRecord(ctx, leave.AccrualRecord{
			ID: "acc1", EmployeeID: alice.ID, LeaveTypeID: vac.ID, Amount: d("1"), Month: "2030-01", CreatedAt: base,
		}); err != nil {
			return err
		}
		_, err := tx.AdjustBalance(ctx, key, d("1"))
		return err
	})
	require.NoError(t, err)

	bal, err = s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("1")), "got %s", bal)
}

func testWithTxNested(t *testing.T, s leave.Store) {
	ctx := context.Background()
	alice := employee(t, s, "e1", "Alice", leave.RoleEmployee)
	vac := leaveType(t, s, "lt-vac", "Vacation", true)
	key := leave.BalanceKey{EmployeeID: alice.ID, LeaveTypeID: vac.ID}

	// A nested WithTx joins the outer transaction
	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.WithTx(ctx, func(inner leave.Store) error {
			_, err := inner.AdjustBalance(ctx, key, d("2"))
			return err
		}); err != nil {
			return err
		}
		return generic.ErrConflict
	})
	assert.True(t, generic.IsKind(err, generic.KindConflict))

	bal, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "got %s", bal)
}
