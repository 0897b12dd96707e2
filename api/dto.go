/*
dto.go - Request and response bodies for the HTTP API

PURPOSE:
  Defines the JSON structures for API communication. Domain types from the
  leave package are serialized directly where their JSON tags already match
  the API contract; the types here cover request bodies and the envelope.

ENVELOPE:
  {"success": true,  "data": ...}
  {"success": false, "error": {"code": "NOT_FOUND", "message": "..."}}

DECIMALS:
  Day amounts are serialized as JSON strings ("2.5") and accepted as either
  strings or numbers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries the error kind code and a user-facing message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// REQUEST BODIES
// =============================================================================

// SubmitRequestBody is the body of POST /api/requests.
type SubmitRequestBody struct {
	LeaveTypeID string `json:"leaveTypeId"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Message     string `json:"message"`
}

// ReviewBody is the body of approve and decline.
type ReviewBody struct {
	AdminNotes string `json:"adminNotes"`
}

// AssignBalanceBody is the body of POST /api/admin/employees/{id}/balances.
type AssignBalanceBody struct {
	LeaveTypeID string          `json:"leaveTypeId"`
	Amount      decimal.Decimal `json:"amount"`
}

// AssignBalanceResponse reports the new settled balance.
type AssignBalanceResponse struct {
	EmployeeID  leave.EmployeeID  `json:"employeeId"`
	LeaveTypeID leave.LeaveTypeID `json:"leaveTypeId"`
	Balance     decimal.Decimal   `json:"balance"`
}

// CreateLeaveTypeBody is the body of POST /api/admin/leave-types.
type CreateLeaveTypeBody struct {
	Name                  string           `json:"name"`
	Color                 string           `json:"color"`
	DefaultMonthlyAccrual *decimal.Decimal `json:"defaultMonthlyAccrual"`
}

func (b CreateLeaveTypeBody) input() leave.LeaveTypeInput {
	in := leave.LeaveTypeInput{Name: b.Name, Color: b.Color}
	if b.DefaultMonthlyAccrual != nil {
		in.DefaultMonthlyAccrual = decimal.NewNullDecimal(*b.DefaultMonthlyAccrual)
	}
	return in
}

// UpdateLeaveTypeBody is the body of PATCH /api/admin/leave-types/{id}.
// An explicit null for defaultMonthlyAccrual clears the per-type rate.
type UpdateLeaveTypeBody struct {
	Name                  *string         `json:"name"`
	Color                 *string         `json:"color"`
	IsActive              *bool           `json:"isActive"`
	DefaultMonthlyAccrual json.RawMessage `json:"defaultMonthlyAccrual"`
}

func (b UpdateLeaveTypeBody) update() (leave.LeaveTypeUpdate, error) {
	upd := leave.LeaveTypeUpdate{Name: b.Name, Color: b.Color, IsActive: b.IsActive}
	if len(b.DefaultMonthlyAccrual) == 0 {
		return upd, nil
	}
	rate := decimal.NullDecimal{}
	if !bytes.Equal(bytes.TrimSpace(b.DefaultMonthlyAccrual), []byte("null")) {
		var d decimal.Decimal
		if err := json.Unmarshal(b.DefaultMonthlyAccrual, &d); err != nil {
			return upd, generic.E(generic.KindValidation, "Invalid accrual amount")
		}
		rate = decimal.NewNullDecimal(d)
	}
	upd.DefaultMonthlyAccrual = &rate
	return upd, nil
}

// ConfigBody is the body of PUT /api/admin/config.
type ConfigBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// CronInfoResponse is returned by GET /api/cron/accrual.
type CronInfoResponse struct {
	Message string `json:"message"`
}
