/*
store.go - Persistence interface for the leave ledger

PURPOSE:
  Defines the boundary between ledger rules and the database. The ledger
  never does arithmetic on a balance it read earlier and then saves; every
  balance change goes through AdjustBalance, which the store applies as one
  atomic read-modify-write that refuses to go below zero.

INTEGRITY CONSTRAINTS (enforced by the storage layer itself):
  - employees.clerk_id UNIQUE
  - employees.email UNIQUE
  - leave_types.name UNIQUE
  - accrual_records (employee_id, leave_type_id, month) UNIQUE
  Violations surface as generic.KindDuplicateKey.

TRANSACTIONS:
  WithTx runs fn against a transactional view of the store. If fn returns
  an error nothing it wrote is visible; otherwise everything commits at once.
  Implementations serialize transactions touching the same balance row, so
  a check inside fn followed by AdjustBalance cannot race another approval.

IMPLEMENTATIONS:
  - store/sqlite:   Embedded default (single writer connection)
  - store/postgres: pgxpool-backed, row locks on balances
  - store/memory:   In-memory for tests and demos

SEE ALSO:
  - ledger.go: The request lifecycle built on Store
  - accrual.go: Record + credit inside one WithTx
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

// Store persists employees, leave types, balances, requests and accrual records.
//
// Lookups of a single record return a generic.KindNotFound error when absent.
type Store interface {
	// Employees
	CreateEmployee(ctx context.Context, e Employee) error
	UpdateEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	FindEmployeeByClerkID(ctx context.Context, clerkID string) (*Employee, error)
	FindEmployeeByEmail(ctx context.Context, email string) (*Employee, error)
	// ListEmployees returns employees sorted by name. An empty role means all.
	ListEmployees(ctx context.Context, role Role) ([]Employee, error)

	// Leave types
	CreateLeaveType(ctx context.Context, lt LeaveType) error
	UpdateLeaveType(ctx context.Context, lt LeaveType) error
	GetLeaveType(ctx context.Context, id LeaveTypeID) (*LeaveType, error)
	// ListLeaveTypes returns leave types sorted by name.
	ListLeaveTypes(ctx context.Context, activeOnly bool) ([]LeaveType, error)

	// System config
	GetConfig(ctx context.Context) (map[string]string, error)
	GetConfigValue(ctx context.Context, key string) (value string, ok bool, err error)
	SetConfigValue(ctx context.Context, key, value string) error

	// Balances. A balance that was never written reads as zero.
	GetBalance(ctx context.Context, key BalanceKey) (decimal.Decimal, error)
	ListBalances(ctx context.Context, employeeID EmployeeID) (map[LeaveTypeID]decimal.Decimal, error)
	// AdjustBalance adds delta and returns the new balance. It fails with
	// generic.KindInsufficientBalance, leaving the balance untouched, when
	// the result would be negative.
	AdjustBalance(ctx context.Context, key BalanceKey, delta decimal.Decimal) (decimal.Decimal, error)

	// Requests
	CreateRequest(ctx context.Context, r LeaveRequest) error
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)
	// ListRequests returns matching requests newest first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)
	// PendingDays sums the days of pending requests for key. When olderThan
	// is set only requests created before it count (ties broken by ID).
	PendingDays(ctx context.Context, key BalanceKey, olderThan *LeaveRequest) (decimal.Decimal, error)
	// ReviewRequest moves a pending request to a terminal status. It fails
	// with generic.KindAlreadyProcessed if the request is no longer pending.
	ReviewRequest(ctx context.Context, id RequestID, review Review) error

	// Accrual records. Duplicate (employee, type, month) fails with
	// generic.KindDuplicateKey.
	CreateAccrualRecord(ctx context.Context, rec AccrualRecord) error
	ListAccrualRecords(ctx context.Context, filter AccrualFilter) ([]AccrualRecord, error)

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	Status      Status
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	// Limit caps the result size; 0 means unbounded.
	Limit int
}

// AccrualFilter narrows ListAccrualRecords. Zero values match everything.
type AccrualFilter struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Month       string
}

// RequestOrderBefore reports whether a was created before b, using the ID
// to break ties. Stores use the same order for PendingDays and listing.
func RequestOrderBefore(a, b LeaveRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
