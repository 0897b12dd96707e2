/*
Package leave implements the leave-balance ledger and request lifecycle.

PURPOSE:
  Employees request time off against per-type balances; admins approve or
  decline; balances accrue monthly. This package owns the rules that decide
  whether a request fits, when a balance moves, and how accrual stays
  idempotent. Persistence is behind the Store interface (store.go).

KEY TYPES IN THIS FILE (types.go):
  - Employee:      A person with a role (admin | employee)
  - LeaveType:     A category of leave with its monthly accrual rate
  - LeaveRequest:  One request moving pending -> approved | declined
  - AccrualRecord: Proof that a (employee, type, month) was credited
  - BalanceLine:   Settled / pending / available for one leave type

BALANCE TERMS:
  Settled:   what the employee owns; moved only by approval, accrual, grants
  Pending:   sum of days on the employee's undecided requests of that type
  Available: Settled - Pending; what a new request may consume

SEE ALSO:
  - ledger.go:  Submit / Approve / Decline / AssignAdditional
  - accrual.go: Monthly accrual cycle
  - balance.go: Balance summaries
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type RequestID string

// =============================================================================
// EMPLOYEE
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

type Employee struct {
	ID        EmployeeID `json:"id"`
	ClerkID   string     `json:"clerkId"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (e Employee) IsAdmin() bool { return e.Role == RoleAdmin }

// =============================================================================
// LEAVE TYPE
// =============================================================================

type LeaveType struct {
	ID       LeaveTypeID `json:"id"`
	Name     string      `json:"name"`
	Color    string      `json:"color"`
	IsActive bool        `json:"isActive"`
	// DefaultMonthlyAccrual is credited each cycle. Invalid (unset) means
	// the system-wide default applies.
	DefaultMonthlyAccrual decimal.NullDecimal `json:"defaultMonthlyAccrual"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

// AccrualRate returns the type's own rate, or fallback when unset.
func (lt LeaveType) AccrualRate(fallback decimal.Decimal) decimal.Decimal {
	if lt.DefaultMonthlyAccrual.Valid {
		return lt.DefaultMonthlyAccrual.Decimal
	}
	return fallback
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusDeclined
}

// IsTerminal returns true for approved and declined.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

type LeaveRequest struct {
	ID          RequestID       `json:"id"`
	EmployeeID  EmployeeID      `json:"employeeId"`
	LeaveTypeID LeaveTypeID     `json:"leaveTypeId"`
	StartDate   generic.Date    `json:"startDate"`
	EndDate     generic.Date    `json:"endDate"`
	Days        decimal.Decimal `json:"days"`
	Status      Status          `json:"status"`
	Message     string          `json:"message,omitempty"`
	AdminNotes  string          `json:"adminNotes,omitempty"`
	ReviewedBy  EmployeeID      `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time      `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Review carries the fields written together with a terminal transition.
type Review struct {
	Status     Status
	ReviewedBy EmployeeID
	ReviewedAt time.Time
	AdminNotes string
}

// RequestView is a request decorated with the names a reviewer needs.
type RequestView struct {
	LeaveRequest
	EmployeeName   string `json:"employeeName"`
	EmployeeEmail  string `json:"employeeEmail"`
	LeaveTypeName  string `json:"leaveTypeName"`
	LeaveTypeColor string `json:"leaveTypeColor"`
	ReviewerName   string `json:"reviewerName,omitempty"`
}

// =============================================================================
// ACCRUAL RECORD
// =============================================================================

type AccrualRecord struct {
	ID          string          `json:"id"`
	EmployeeID  EmployeeID      `json:"employeeId"`
	LeaveTypeID LeaveTypeID     `json:"leaveTypeId"`
	Amount      decimal.Decimal `json:"amount"`
	Month       string          `json:"month"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceKey addresses one balance field.
type BalanceKey struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
}

// BalanceLine is the per-type view returned to employees.
type BalanceLine struct {
	LeaveTypeID    LeaveTypeID     `json:"leaveTypeId"`
	LeaveTypeName  string          `json:"leaveTypeName"`
	LeaveTypeColor string          `json:"leaveTypeColor"`
	Settled        decimal.Decimal `json:"currentBalance"`
	PendingDays    decimal.Decimal `json:"pendingDays"`
	Available      decimal.Decimal `json:"availableBalance"`
}

// TypeBalance is one settled balance shown in the admin employee list.
type TypeBalance struct {
	LeaveTypeID    LeaveTypeID     `json:"leaveTypeId"`
	LeaveTypeName  string          `json:"leaveTypeName"`
	LeaveTypeColor string          `json:"leaveTypeColor"`
	Balance        decimal.Decimal `json:"balance"`
}

// EmployeeBalances is an employee with settled balances for every active type.
type EmployeeBalances struct {
	ID        EmployeeID    `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Balances  []TypeBalance `json:"balances"`
	CreatedAt time.Time     `json:"createdAt"`
}

// =============================================================================
// SYSTEM CONFIG
// =============================================================================

// ConfigDefaultMonthlyAccrual is the fallback rate for types without one.
const ConfigDefaultMonthlyAccrual = "defaultMonthlyAccrual"

// FallbackMonthlyAccrual applies when the config key is missing or invalid.
var FallbackMonthlyAccrual = decimal.NewFromInt(1)

// =============================================================================
// LIMITS
// =============================================================================

const (
	// AdminListLimit bounds the admin request queue.
	AdminListLimit = 100
	// HistoryLimit bounds an employee's own history.
	HistoryLimit = 50
)
