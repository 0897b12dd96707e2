/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the leave ledger via REST API. Handles HTTP request/response and
  JSON serialization, and delegates to the leave package. Authorization is
  decided by the domain operations; handlers only pass the actor through.

ENDPOINTS:
  Self-service (bearer token):
    GET    /api/me                          Current employee
    GET    /api/leave-types                 Active leave types
    GET    /api/balances                    Settled / pending / available per type
    POST   /api/requests                    Submit a leave request
    GET    /api/requests/history            Own requests, newest first
    GET    /api/requests/pending            Own pending requests

  Admin (bearer token, role admin):
    GET    /api/admin/requests              Filter by ?status= and ?employeeId=
    POST   /api/admin/requests/{id}/approve Approve (debits balance)
    POST   /api/admin/requests/{id}/decline Decline (notes required)
    GET    /api/admin/employees             Employees with balances
    GET    /api/admin/employees/export      Same, as XLSX
    POST   /api/admin/employees/{id}/balances Grant extra days
    GET    /api/admin/leave-types           All leave types
    POST   /api/admin/leave-types           Create leave type
    PATCH  /api/admin/leave-types/{id}      Update leave type
    GET    /api/admin/config                System config
    PUT    /api/admin/config                Upsert one config key

  Cron (shared secret):
    GET    /api/cron/accrual                Info message
    POST   /api/cron/accrual                Run the current month's accrual

ERROR HANDLING:
  Every error is mapped from its generic.Kind in writeError:
  - 400: Validation, invalid range, malformed body
  - 401: Missing or invalid credentials
  - 403: Authenticated but not allowed
  - 404: Resource not found
  - 409: Already processed, conflict, duplicate
  - 422: Insufficient balance
  - 500: Internal errors (message hidden, logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Token verification and actor resolution
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/report"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *leave.Ledger
	Registry  *leave.Registry
	Balances  *leave.BalanceQuery
	Directory *leave.Directory
	Accrual   *leave.AccrualEngine
	Auth      *TokenAuth
	Logger    *slog.Logger

	// CronSecret guards POST /api/cron/accrual. Empty disables the endpoint.
	CronSecret string

	store leave.Store
}

// NewHandler wires every domain service onto store.
func NewHandler(store leave.Store, auth *TokenAuth, logger *slog.Logger, cronSecret string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Ledger:     leave.NewLedger(store),
		Registry:   leave.NewRegistry(store),
		Balances:   leave.NewBalanceQuery(store),
		Directory:  leave.NewDirectory(store),
		Accrual:    leave.NewAccrualEngine(store, logger),
		Auth:       auth,
		Logger:     logger,
		CronSecret: cronSecret,
		store:      store,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and, when supported, store connectivity.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok"}
	if p, ok := h.store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			h.Logger.Warn("health check: store unreachable", slog.Any("error", err))
			resp.Status = "degraded"
			resp.Store = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, Envelope{Success: false, Data: resp})
			return
		}
	}
	writeData(w, http.StatusOK, resp)
}

// =============================================================================
// SELF-SERVICE ENDPOINTS
// =============================================================================

// Me returns the current employee.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if err := leave.RequireAuth(actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, actor)
}

// ListActiveLeaveTypes returns the leave types employees can request.
// GET /api/leave-types
func (h *Handler) ListActiveLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Registry.ActiveLeaveTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(types))
}

// MyBalances returns the caller's balance lines.
// GET /api/balances
func (h *Handler) MyBalances(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Balances.MySummary(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(lines))
}

// SubmitRequest creates a pending leave request.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequestBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	in := leave.SubmitInput{
		LeaveTypeID: leave.LeaveTypeID(strings.TrimSpace(body.LeaveTypeID)),
		Message:     body.Message,
	}
	var err error
	if in.StartDate, err = optionalDate(body.StartDate, "Invalid start date"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.EndDate, err = optionalDate(body.EndDate, "Invalid end date"); err != nil {
		h.writeError(w, r, err)
		return
	}

	req, err := h.Ledger.Submit(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, req)
}

// History returns the caller's most recent requests.
// GET /api/requests/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	views, err := h.Ledger.History(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(views))
}

// MyPending returns the caller's pending requests.
// GET /api/requests/pending
func (h *Handler) MyPending(w http.ResponseWriter, r *http.Request) {
	views, err := h.Ledger.Pending(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(views))
}

// =============================================================================
// ADMIN: REQUESTS
// =============================================================================

// ListRequests returns the admin request queue.
// GET /api/admin/requests?status=pending&employeeId=...
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := leave.RequestFilter{
		Status:     leave.Status(strings.TrimSpace(q.Get("status"))),
		EmployeeID: leave.EmployeeID(strings.TrimSpace(q.Get("employeeId"))),
	}
	views, err := h.Ledger.ListRequests(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(views))
}

// ApproveRequest approves a pending request and debits the balance.
// POST /api/admin/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body ReviewBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := leave.RequestID(chi.URLParam(r, "id"))
	req, err := h.Ledger.Approve(r.Context(), actorFrom(r.Context()), id, body.AdminNotes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

// DeclineRequest declines a pending request. Notes are required.
// POST /api/admin/requests/{id}/decline
func (h *Handler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	var body ReviewBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := leave.RequestID(chi.URLParam(r, "id"))
	req, err := h.Ledger.Decline(r.Context(), actorFrom(r.Context()), id, body.AdminNotes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

// =============================================================================
// ADMIN: EMPLOYEES AND BALANCES
// =============================================================================

// ListEmployees returns employees with their balances.
// GET /api/admin/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Balances.EmployeesWithBalances(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(rows))
}

// ExportEmployees streams the employee balance sheet as XLSX.
// GET /api/admin/employees/export
func (h *Handler) ExportEmployees(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Balances.EmployeesWithBalances(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	book, err := report.Balances(rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer book.Close()

	filename := fmt.Sprintf("leave-balances-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if err := book.Write(w); err != nil {
		h.Logger.Error("export: write workbook", slog.Any("error", err))
	}
}

// AssignBalance grants additional days to an employee.
// POST /api/admin/employees/{id}/balances
func (h *Handler) AssignBalance(w http.ResponseWriter, r *http.Request) {
	var body AssignBalanceBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	employeeID := leave.EmployeeID(chi.URLParam(r, "id"))
	typeID := leave.LeaveTypeID(strings.TrimSpace(body.LeaveTypeID))

	balance, err := h.Ledger.AssignAdditional(r.Context(), actorFrom(r.Context()), employeeID, typeID, body.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, AssignBalanceResponse{
		EmployeeID:  employeeID,
		LeaveTypeID: typeID,
		Balance:     balance,
	})
}

// =============================================================================
// ADMIN: LEAVE TYPES AND CONFIG
// =============================================================================

// ListAllLeaveTypes returns every leave type including inactive ones.
// GET /api/admin/leave-types
func (h *Handler) ListAllLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Registry.ListLeaveTypes(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(types))
}

// CreateLeaveType adds a leave type.
// POST /api/admin/leave-types
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var body CreateLeaveTypeBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	lt, err := h.Registry.CreateLeaveType(r.Context(), actorFrom(r.Context()), body.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, lt)
}

// UpdateLeaveType applies a partial update.
// PATCH /api/admin/leave-types/{id}
func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	var body UpdateLeaveTypeBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	upd, err := body.update()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id := leave.LeaveTypeID(chi.URLParam(r, "id"))
	lt, err := h.Registry.UpdateLeaveType(r.Context(), actorFrom(r.Context()), id, upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, lt)
}

// GetConfig returns the system config map.
// GET /api/admin/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Registry.SystemConfig(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cfg)
}

// UpdateConfig upserts one config key and returns the full map.
// PUT /api/admin/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var body ConfigBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	actor := actorFrom(ctx)
	if err := h.Registry.UpdateSystemConfig(ctx, actor, body.Key, body.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	cfg, err := h.Registry.SystemConfig(ctx, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cfg)
}

// =============================================================================
// CRON
// =============================================================================

// CronInfo describes the accrual trigger.
// GET /api/cron/accrual
func (h *Handler) CronInfo(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, CronInfoResponse{Message: "Accrual endpoint. Use POST with authorization."})
}

// RunAccrual runs the accrual cycle for the current month.
// POST /api/cron/accrual
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	if !h.cronAuthorized(r) {
		writeUnauthorized(w)
		return
	}
	result, err := h.Accrual.RunCurrent(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) cronAuthorized(r *http.Request) bool {
	if h.CronSecret == "" {
		return false
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	given := []byte(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare(given, []byte(h.CronSecret)) == 1
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, Envelope{
		Error: &ErrorBody{Code: "UNAUTHORIZED", Message: "Unauthorized"},
	})
}

// writeError maps an error's kind onto an HTTP status. Internal errors are
// logged and replaced with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := generic.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusForbidden && actorFrom(r.Context()) == nil {
		writeUnauthorized(w)
		return
	}
	if !generic.IsClientError(err) {
		h.Logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Bool("retryable", generic.IsRetryable(err)),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, Envelope{
		Error: &ErrorBody{Code: kind.String(), Message: generic.MessageOf(err)},
	})
}

func statusFor(kind generic.Kind) int {
	switch kind {
	case generic.KindValidation, generic.KindInvalidRange:
		return http.StatusBadRequest
	case generic.KindForbidden:
		return http.StatusForbidden
	case generic.KindNotFound:
		return http.StatusNotFound
	case generic.KindAlreadyProcessed, generic.KindConflict, generic.KindDuplicateKey:
		return http.StatusConflict
	case generic.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

var errEmptyBody = generic.E(generic.KindValidation, "Request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return generic.Wrap(generic.KindValidation, "Invalid request body", err)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := decodeJSON(r, dst)
	if err == errEmptyBody {
		return nil
	}
	return err
}

// optionalDate parses s, leaving the zero Date for an empty string so the
// ledger reports the missing field.
func optionalDate(s, invalid string) (generic.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return generic.Date{}, nil
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}, generic.E(generic.KindValidation, invalid)
	}
	return d, nil
}

// nonNil keeps empty lists as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
