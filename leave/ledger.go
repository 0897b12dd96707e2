/*
ledger.go - Leave request lifecycle

PURPOSE:
  Handles the full lifecycle of leave requests:
  1. Submission: Count business days and reserve against available balance
  2. Pending:    The request holds capacity; the settled balance is untouched
  3. Approval:   Re-check the reservation, debit the balance, mark approved
  4. Decline:    Mark declined with the reviewer's notes; no balance change

REQUEST FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  Employee submits   available =          Create pending          │
  │  dates + type  ──▶  settled - pending ──▶ request                 │
  │                                              │                   │
  │                                   ┌──────────┴──────────┐        │
  │                                   ▼                     ▼        │
  │                             ┌──────────┐          ┌──────────┐   │
  │                             │ Approved │          │ Declined │   │
  │                             └──────────┘          └──────────┘   │
  │                           balance -= days        balance kept    │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

RESERVATION AT APPROVAL:
  Approval re-runs the submission check against the requests that were
  already pending when this one was submitted:

    settled - pending(older requests of same employee/type) >= days

  Requests queue in submission order. An older pending request keeps its
  claim until it is approved or declined, and two approvals racing on the
  same balance cannot both pass because the check and the debit share one
  store transaction.

ATOMICITY:
  Every mutation runs inside Store.WithTx. A failed check leaves no trace.

SEE ALSO:
  - store.go: AdjustBalance and ReviewRequest contracts
  - balance.go: The same available-balance arithmetic, read-only
*/
package leave

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// Ledger owns leave requests and the balance movements they cause.
type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// SubmitInput is an employee's leave request.
type SubmitInput struct {
	LeaveTypeID LeaveTypeID
	StartDate   generic.Date
	EndDate     generic.Date
	Message     string
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit creates a pending request for the caller.
func (l *Ledger) Submit(ctx context.Context, actor *Employee, in SubmitInput) (*LeaveRequest, error) {
	if err := RequireAuth(actor); err != nil {
		return nil, err
	}
	if in.LeaveTypeID == "" {
		return nil, generic.E(generic.KindValidation, "Leave type is required")
	}
	if in.StartDate.IsZero() {
		return nil, generic.E(generic.KindValidation, "Start date is required")
	}
	if in.EndDate.IsZero() {
		return nil, generic.E(generic.KindValidation, "End date is required")
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, generic.E(generic.KindValidation, "End date must be after or equal to start date")
	}

	var created LeaveRequest
	err := l.store.WithTx(ctx, func(tx Store) error {
		lt, err := tx.GetLeaveType(ctx, in.LeaveTypeID)
		if err != nil {
			if generic.IsNotFound(err) {
				return generic.E(generic.KindValidation, "Invalid leave type")
			}
			return err
		}
		if !lt.IsActive {
			return generic.E(generic.KindValidation, "Invalid leave type")
		}

		days := generic.DaysFromInt(generic.BusinessDays(in.StartDate, in.EndDate))
		if !days.IsPositive() {
			return generic.ErrInvalidRange
		}

		key := BalanceKey{EmployeeID: actor.ID, LeaveTypeID: lt.ID}
		available, err := availableBalance(ctx, tx, key, nil)
		if err != nil {
			return err
		}
		if days.GreaterThan(available) {
			return insufficient("Insufficient balance", available)
		}

		now := l.now().UTC()
		created = LeaveRequest{
			ID:          RequestID(generic.NewID()),
			EmployeeID:  actor.ID,
			LeaveTypeID: lt.ID,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			Days:        days,
			Status:      StatusPending,
			Message:     strings.TrimSpace(in.Message),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.CreateRequest(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// =============================================================================
// APPROVE / DECLINE
// =============================================================================

// Approve settles a pending request: the balance is debited and the request
// becomes approved in one transaction.
func (l *Ledger) Approve(ctx context.Context, actor *Employee, id RequestID, adminNotes string) (*LeaveRequest, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}

	var approved *LeaveRequest
	err := l.store.WithTx(ctx, func(tx Store) error {
		req, err := loadPending(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.GetEmployee(ctx, req.EmployeeID); err != nil {
			if generic.IsNotFound(err) {
				return generic.E(generic.KindNotFound, "Employee not found")
			}
			return err
		}

		key := BalanceKey{EmployeeID: req.EmployeeID, LeaveTypeID: req.LeaveTypeID}
		available, err := availableBalance(ctx, tx, key, req)
		if err != nil {
			return err
		}
		if available.LessThan(req.Days) {
			return insufficient("Employee has insufficient balance", available)
		}
		if _, err := tx.AdjustBalance(ctx, key, req.Days.Neg()); err != nil {
			return err
		}

		review := Review{
			Status:     StatusApproved,
			ReviewedBy: actor.ID,
			ReviewedAt: l.now().UTC(),
			AdminNotes: strings.TrimSpace(adminNotes),
		}
		if err := tx.ReviewRequest(ctx, id, review); err != nil {
			return err
		}
		approved = applyReview(req, review)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Decline rejects a pending request. Notes are mandatory.
func (l *Ledger) Decline(ctx context.Context, actor *Employee, id RequestID, adminNotes string) (*LeaveRequest, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(adminNotes)
	if notes == "" {
		return nil, generic.E(generic.KindValidation, "Notes are required when declining")
	}

	var declined *LeaveRequest
	err := l.store.WithTx(ctx, func(tx Store) error {
		req, err := loadPending(ctx, tx, id)
		if err != nil {
			return err
		}
		review := Review{
			Status:     StatusDeclined,
			ReviewedBy: actor.ID,
			ReviewedAt: l.now().UTC(),
			AdminNotes: notes,
		}
		if err := tx.ReviewRequest(ctx, id, review); err != nil {
			return err
		}
		declined = applyReview(req, review)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return declined, nil
}

// =============================================================================
// ADMINISTRATIVE GRANT
// =============================================================================

// AssignAdditional credits amount days directly to an employee's balance.
// Returns the new settled balance.
func (l *Ledger) AssignAdditional(ctx context.Context, actor *Employee, employeeID EmployeeID, leaveTypeID LeaveTypeID, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := RequireAdmin(actor); err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, generic.E(generic.KindValidation, "Amount must be positive")
	}

	var balance decimal.Decimal
	err := l.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetEmployee(ctx, employeeID); err != nil {
			if generic.IsNotFound(err) {
				return generic.E(generic.KindNotFound, "User not found")
			}
			return err
		}
		if _, err := tx.GetLeaveType(ctx, leaveTypeID); err != nil {
			if generic.IsNotFound(err) {
				return generic.E(generic.KindNotFound, "Leave type not found")
			}
			return err
		}
		var err error
		balance, err = tx.AdjustBalance(ctx, BalanceKey{EmployeeID: employeeID, LeaveTypeID: leaveTypeID}, amount)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListRequests is the admin queue: all requests matching filter, newest first,
// at most AdminListLimit.
func (l *Ledger) ListRequests(ctx context.Context, actor *Employee, filter RequestFilter) ([]RequestView, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, generic.Errorf(generic.KindValidation, "Invalid status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > AdminListLimit {
		filter.Limit = AdminListLimit
	}
	return l.list(ctx, filter)
}

// History returns the caller's own requests, newest first, at most HistoryLimit.
func (l *Ledger) History(ctx context.Context, actor *Employee) ([]RequestView, error) {
	if err := RequireAuth(actor); err != nil {
		return nil, err
	}
	return l.list(ctx, RequestFilter{EmployeeID: actor.ID, Limit: HistoryLimit})
}

// Pending returns the caller's undecided requests, newest first.
func (l *Ledger) Pending(ctx context.Context, actor *Employee) ([]RequestView, error) {
	if err := RequireAuth(actor); err != nil {
		return nil, err
	}
	return l.list(ctx, RequestFilter{EmployeeID: actor.ID, Status: StatusPending})
}

func (l *Ledger) list(ctx context.Context, filter RequestFilter) ([]RequestView, error) {
	reqs, err := l.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}

	employees := make(map[EmployeeID]*Employee)
	types := make(map[LeaveTypeID]*LeaveType)
	employee := func(id EmployeeID) (*Employee, error) {
		if e, ok := employees[id]; ok {
			return e, nil
		}
		e, err := l.store.GetEmployee(ctx, id)
		if err != nil && !generic.IsNotFound(err) {
			return nil, err
		}
		employees[id] = e
		return e, nil
	}

	views := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		v := RequestView{LeaveRequest: r}
		emp, err := employee(r.EmployeeID)
		if err != nil {
			return nil, err
		}
		if emp != nil {
			v.EmployeeName, v.EmployeeEmail = emp.Name, emp.Email
		}
		if r.ReviewedBy != "" {
			reviewer, err := employee(r.ReviewedBy)
			if err != nil {
				return nil, err
			}
			if reviewer != nil {
				v.ReviewerName = reviewer.Name
			}
		}
		lt, ok := types[r.LeaveTypeID]
		if !ok {
			lt, err = l.store.GetLeaveType(ctx, r.LeaveTypeID)
			if err != nil && !generic.IsNotFound(err) {
				return nil, err
			}
			types[r.LeaveTypeID] = lt
		}
		if lt != nil {
			v.LeaveTypeName, v.LeaveTypeColor = lt.Name, lt.Color
		}
		views = append(views, v)
	}
	return views, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// availableBalance is settled minus pending days. With olderThan set, only
// requests submitted before it are subtracted.
func availableBalance(ctx context.Context, s Store, key BalanceKey, olderThan *LeaveRequest) (decimal.Decimal, error) {
	settled, err := s.GetBalance(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	pending, err := s.PendingDays(ctx, key, olderThan)
	if err != nil {
		return decimal.Zero, err
	}
	return settled.Sub(pending), nil
}

func loadPending(ctx context.Context, s Store, id RequestID) (*LeaveRequest, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		if generic.IsNotFound(err) {
			return nil, generic.E(generic.KindNotFound, "Leave request not found")
		}
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, generic.ErrAlreadyProcessed
	}
	return req, nil
}

func applyReview(req *LeaveRequest, review Review) *LeaveRequest {
	out := *req
	at := review.ReviewedAt
	out.Status = review.Status
	out.ReviewedBy = review.ReviewedBy
	out.ReviewedAt = &at
	out.AdminNotes = review.AdminNotes
	out.UpdatedAt = at
	return &out
}

func insufficient(prefix string, available decimal.Decimal) error {
	return generic.Errorf(generic.KindInsufficientBalance, "%s. Available: %s days", prefix, generic.FormatDays(available))
}
