/*
handlers_test.go - HTTP tests for the leave API

Tests for:
- Authentication (missing token, first login, admin gate)
- The Vacation scenario end to end (assign, submit, reject, approve)
- Review errors (decline without notes, double approve)
- Cron accrual (secret check, idempotent second run)
- Leave type admin and XLSX export
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/report"
	"github.com/warp/leave-ledger/store/sqlite"
)

const (
	testSecret     = "test-jwt-secret"
	testCronSecret = "test-cron-secret"
)

type testEnv struct {
	t       *testing.T
	store   *sqlite.Store
	handler *Handler
	server  http.Handler
	types   map[string]leave.LeaveTypeID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = leave.Seed(ctx, store)
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := NewHandler(store, NewTokenAuth(testSecret, ""), logger, testCronSecret)

	types, err := store.ListLeaveTypes(ctx, true)
	require.NoError(t, err)
	byName := make(map[string]leave.LeaveTypeID)
	for _, lt := range types {
		byName[lt.Name] = lt.ID
	}

	return &testEnv{
		t:       t,
		store:   store,
		handler: h,
		server:  NewRouter(h, RouterOptions{LogLevel: slog.LevelError}),
		types:   byName,
	}
}

// login resolves an identity (creating the employee) and returns a token.
func (e *testEnv) login(sub, email, name string, role leave.Role) (string, *leave.Employee) {
	e.t.Helper()
	ctx := context.Background()
	id := leave.Identity{Subject: sub, Email: email, Name: name}
	emp, err := e.handler.Directory.CurrentUser(ctx, id)
	require.NoError(e.t, err)
	if role == leave.RoleAdmin {
		emp, err = e.handler.Directory.SetRole(ctx, email, leave.RoleAdmin)
		require.NoError(e.t, err)
	}
	token, err := e.handler.Auth.Issue(id, time.Hour)
	require.NoError(e.t, err)
	return token, emp
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func (e *testEnv) do(method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestAuth_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(http.MethodGet, "/api/me", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestAuth_BadSignature(t *testing.T) {
	env := newTestEnv(t)
	other := NewTokenAuth("some-other-secret", "")
	token, err := other.Issue(leave.Identity{Subject: "user_x"}, time.Hour)
	require.NoError(t, err)

	rec, _ := env.do(http.MethodGet, "/api/me", token, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe_CreatesEmployeeOnFirstLogin(t *testing.T) {
	// GIVEN: A valid token for a subject the store has never seen
	env := newTestEnv(t)
	token, err := env.handler.Auth.Issue(leave.Identity{
		Subject: "user_new", Email: "New.Person@Example.com", Name: "New Person",
	}, time.Hour)
	require.NoError(t, err)

	// WHEN: The user calls /api/me
	rec, resp := env.do(http.MethodGet, "/api/me", token, nil)

	// THEN: An employee is created with role employee and a lowercased email
	require.Equal(t, http.StatusOK, rec.Code)
	var me leave.Employee
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "user_new", me.ClerkID)
	assert.Equal(t, "new.person@example.com", me.Email)
	assert.Equal(t, leave.RoleEmployee, me.Role)
}

func TestAdminRoutes_ForbiddenForEmployee(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)

	rec, resp := env.do(http.MethodGet, "/api/admin/employees", token, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

func TestVacationScenario(t *testing.T) {
	// GIVEN: An employee with 5 Vacation days granted by an admin
	env := newTestEnv(t)
	adminToken, _ := env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)
	empToken, emp := env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)
	vacation := env.types["Vacation"]

	rec, _ := env.do(http.MethodPost, "/api/admin/employees/"+string(emp.ID)+"/balances", adminToken,
		map[string]any{"leaveTypeId": vacation, "amount": 5})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: The employee requests Mon-Wed (3 business days)
	rec, resp := env.do(http.MethodPost, "/api/requests", empToken, SubmitRequestBody{
		LeaveTypeID: string(vacation), StartDate: "2030-01-07", EndDate: "2030-01-09", Message: "Trip",
	})

	// THEN: The request is pending for 3 days
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first leave.LeaveRequest
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Equal(t, leave.StatusPending, first.Status)
	assert.True(t, first.Days.Equal(decimal.NewFromInt(3)))

	// WHEN: A second 3-day request is made while the first is pending
	rec, resp = env.do(http.MethodPost, "/api/requests", empToken, SubmitRequestBody{
		LeaveTypeID: string(vacation), StartDate: "2030-01-14", EndDate: "2030-01-16",
	})

	// THEN: It is rejected against the 2 available days
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.Error.Code)
	assert.Equal(t, "Insufficient balance. Available: 2 days", resp.Error.Message)

	// WHEN: The admin approves the first request
	rec, resp = env.do(http.MethodPost, "/api/admin/requests/"+string(first.ID)+"/approve", adminToken,
		ReviewBody{AdminNotes: "Enjoy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved leave.LeaveRequest
	require.NoError(t, json.Unmarshal(resp.Data, &approved))
	assert.Equal(t, leave.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)

	// THEN: Settled and available are both 2
	rec, resp = env.do(http.MethodGet, "/api/balances", empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lines []leave.BalanceLine
	require.NoError(t, json.Unmarshal(resp.Data, &lines))
	var line *leave.BalanceLine
	for i := range lines {
		if lines[i].LeaveTypeID == vacation {
			line = &lines[i]
		}
	}
	require.NotNil(t, line)
	assert.True(t, line.Settled.Equal(decimal.NewFromInt(2)), line.Settled.String())
	assert.True(t, line.PendingDays.IsZero())
	assert.True(t, line.Available.Equal(decimal.NewFromInt(2)))

	// AND: History shows the approved request with its leave type name
	rec, resp = env.do(http.MethodGet, "/api/requests/history", empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []leave.RequestView
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "Vacation", history[0].LeaveTypeName)
	assert.Equal(t, "Admin", history[0].ReviewerName)
}

func TestSubmit_WeekendOnlyIsInvalidRange(t *testing.T) {
	env := newTestEnv(t)
	empToken, _ := env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)

	// 2030-01-12/13 is a Saturday and Sunday
	rec, resp := env.do(http.MethodPost, "/api/requests", empToken, SubmitRequestBody{
		LeaveTypeID: string(env.types["Vacation"]), StartDate: "2030-01-12", EndDate: "2030-01-13",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_RANGE", resp.Error.Code)
}

func TestSubmit_MissingDates(t *testing.T) {
	env := newTestEnv(t)
	empToken, _ := env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)

	rec, resp := env.do(http.MethodPost, "/api/requests", empToken, SubmitRequestBody{
		LeaveTypeID: string(env.types["Vacation"]),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Start date is required", resp.Error.Message)
}

func TestReview_DeclineWithoutNotesAndDoubleApprove(t *testing.T) {
	// GIVEN: A pending 1-day request
	env := newTestEnv(t)
	adminToken, _ := env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)
	empToken, emp := env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)
	sick := env.types["Sick Leave"]

	_, err := env.store.AdjustBalance(context.Background(),
		leave.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: sick}, decimal.NewFromInt(3))
	require.NoError(t, err)

	rec, resp := env.do(http.MethodPost, "/api/requests", empToken, SubmitRequestBody{
		LeaveTypeID: string(sick), StartDate: "2030-01-08", EndDate: "2030-01-08",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var req leave.LeaveRequest
	require.NoError(t, json.Unmarshal(resp.Data, &req))

	// WHEN: The admin declines without notes
	rec, resp = env.do(http.MethodPost, "/api/admin/requests/"+string(req.ID)+"/decline", adminToken, ReviewBody{})

	// THEN: Validation error, request still pending
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Notes are required when declining", resp.Error.Message)

	// WHEN: Approved twice
	rec, _ = env.do(http.MethodPost, "/api/admin/requests/"+string(req.ID)+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, resp = env.do(http.MethodPost, "/api/admin/requests/"+string(req.ID)+"/approve", adminToken, nil)

	// THEN: The second approval conflicts and the balance is debited once
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ALREADY_PROCESSED", resp.Error.Code)

	bal, err := env.store.GetBalance(context.Background(), leave.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: sick})
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(2)), bal.String())
}

func TestReview_UnknownRequest(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)

	rec, resp := env.do(http.MethodPost, "/api/admin/requests/does-not-exist/approve", adminToken, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Leave request not found", resp.Error.Message)
}

func TestAdminListRequests_FilterByStatus(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)
	empToken, emp := env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)
	personal := env.types["Personal"]
	_, err := env.store.AdjustBalance(context.Background(),
		leave.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: personal}, decimal.NewFromInt(4))
	require.NoError(t, err)

	for _, day := range []string{"2030-01-07", "2030-01-08"} {
		rec, _ := env.do(http.MethodPost, "/api/requests", empToken, SubmitRequestBody{
			LeaveTypeID: string(personal), StartDate: day, EndDate: day,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, resp := env.do(http.MethodGet, "/api/admin/requests?status=pending&employeeId="+string(emp.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []leave.RequestView
	require.NoError(t, json.Unmarshal(resp.Data, &views))
	assert.Len(t, views, 2)

	rec, resp = env.do(http.MethodGet, "/api/admin/requests?status=approved", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	rec, _ = env.do(http.MethodGet, "/api/admin/requests?status=bogus", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCronAccrual(t *testing.T) {
	// GIVEN: One employee, one admin and three seeded leave types
	env := newTestEnv(t)
	env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)
	_, emp := env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)

	rec, resp := env.do(http.MethodGet, "/api/cron/accrual", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Accrual endpoint. Use POST with authorization."}`, string(resp.Data))

	// WHEN: POST without or with a wrong secret
	rec, _ = env.do(http.MethodPost, "/api/cron/accrual", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/cron/accrual", "wrong-secret", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// WHEN: POST with the right secret, twice
	rec, resp = env.do(http.MethodPost, "/api/cron/accrual", testCronSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first leave.AccrualResult
	require.NoError(t, json.Unmarshal(resp.Data, &first))

	rec, resp = env.do(http.MethodPost, "/api/cron/accrual", testCronSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second leave.AccrualResult
	require.NoError(t, json.Unmarshal(resp.Data, &second))

	// THEN: Only the employee is credited, and only once per type
	assert.Equal(t, 3, first.Processed)
	assert.Equal(t, 0, first.Errors)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, first.Period, second.Period)

	balances, err := env.store.ListBalances(context.Background(), emp.ID)
	require.NoError(t, err)
	for _, id := range env.types {
		assert.True(t, balances[id].Equal(decimal.NewFromInt(1)))
	}
}

func TestCronAccrual_DisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t)
	env.handler.CronSecret = ""

	rec, _ := env.do(http.MethodPost, "/api/cron/accrual", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLeaveTypeAdmin(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)

	// Create
	rec, resp := env.do(http.MethodPost, "/api/admin/leave-types", adminToken,
		map[string]any{"name": "Parental", "color": "#123abc", "defaultMonthlyAccrual": "0.5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lt leave.LeaveType
	require.NoError(t, json.Unmarshal(resp.Data, &lt))
	assert.True(t, lt.IsActive)
	require.True(t, lt.DefaultMonthlyAccrual.Valid)
	assert.Equal(t, "0.5", lt.DefaultMonthlyAccrual.Decimal.String())

	// Duplicate name
	rec, resp = env.do(http.MethodPost, "/api/admin/leave-types", adminToken, map[string]any{"name": "Parental"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Leave type with this name already exists", resp.Error.Message)

	// Bad color
	rec, _ = env.do(http.MethodPost, "/api/admin/leave-types", adminToken, map[string]any{"name": "X", "color": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Clear accrual and deactivate
	rec, resp = env.do(http.MethodPatch, "/api/admin/leave-types/"+string(lt.ID), adminToken,
		map[string]any{"defaultMonthlyAccrual": nil, "isActive": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, &lt))
	assert.False(t, lt.IsActive)
	assert.False(t, lt.DefaultMonthlyAccrual.Valid)

	// Inactive types disappear from the employee-facing list
	rec, resp = env.do(http.MethodGet, "/api/leave-types", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []leave.LeaveType
	require.NoError(t, json.Unmarshal(resp.Data, &active))
	assert.Len(t, active, 3)

	rec, resp = env.do(http.MethodGet, "/api/admin/leave-types", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []leave.LeaveType
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	assert.Len(t, all, 4)
}

func TestSystemConfig(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)

	rec, resp := env.do(http.MethodPut, "/api/admin/config", adminToken,
		ConfigBody{Key: leave.ConfigDefaultMonthlyAccrual, Value: "1.50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cfg map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &cfg))
	assert.Equal(t, "1.5", cfg[leave.ConfigDefaultMonthlyAccrual])

	rec, _ = env.do(http.MethodPut, "/api/admin/config", adminToken,
		ConfigBody{Key: leave.ConfigDefaultMonthlyAccrual, Value: "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportEmployees(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.login("user_admin", "admin@example.com", "Admin", leave.RoleAdmin)
	env.login("user_emp", "emp@example.com", "Emp", leave.RoleEmployee)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/employees/export", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "leave-balances-")
	assert.NotZero(t, rec.Body.Len())
}
