// Package memory provides an in-memory leave.Store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps behind one mutex. Transactions hold the
// write lock for their whole duration and restore a snapshot on error.
type Memory struct {
	mu sync.RWMutex
	state
}

type accrualKey struct {
	EmployeeID  leave.EmployeeID
	LeaveTypeID leave.LeaveTypeID
	Month       string
}

type state struct {
	employees  map[leave.EmployeeID]leave.Employee
	leaveTypes map[leave.LeaveTypeID]leave.LeaveType
	config     map[string]string
	balances   map[leave.BalanceKey]decimal.Decimal
	requests   map[leave.RequestID]leave.LeaveRequest
	accruals   map[accrualKey]leave.AccrualRecord
}

func New() *Memory {
	return &Memory{state: state{
		employees:  make(map[leave.EmployeeID]leave.Employee),
		leaveTypes: make(map[leave.LeaveTypeID]leave.LeaveType),
		config:     make(map[string]string),
		balances:   make(map[leave.BalanceKey]decimal.Decimal),
		requests:   make(map[leave.RequestID]leave.LeaveRequest),
		accruals:   make(map[accrualKey]leave.AccrualRecord),
	}}
}

// Close is a no-op; it lets Memory stand in wherever a closable store is expected.
func (m *Memory) Close() error { return nil }

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) read(fn func(*state) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&m.state)
}

func (m *Memory) write(fn func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.state)
}

func (m *Memory) CreateEmployee(ctx context.Context, e leave.Employee) error {
	return m.write(func(s *state) error { return s.CreateEmployee(ctx, e) })
}

func (m *Memory) UpdateEmployee(ctx context.Context, e leave.Employee) error {
	return m.write(func(s *state) error { return s.UpdateEmployee(ctx, e) })
}

func (m *Memory) GetEmployee(ctx context.Context, id leave.EmployeeID) (out *leave.Employee, err error) {
	err = m.read(func(s *state) error { out, err = s.GetEmployee(ctx, id); return err })
	return out, err
}

func (m *Memory) FindEmployeeByClerkID(ctx context.Context, clerkID string) (out *leave.Employee, err error) {
	err = m.read(func(s *state) error { out, err = s.FindEmployeeByClerkID(ctx, clerkID); return err })
	return out, err
}

func (m *Memory) FindEmployeeByEmail(ctx context.Context, email string) (out *leave.Employee, err error) {
	err = m.read(func(s *state) error { out, err = s.FindEmployeeByEmail(ctx, email); return err })
	return out, err
}

func (m *Memory) ListEmployees(ctx context.Context, role leave.Role) (out []leave.Employee, err error) {
	err = m.read(func(s *state) error { out, err = s.ListEmployees(ctx, role); return err })
	return out, err
}

func (m *Memory) CreateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	return m.write(func(s *state) error { return s.CreateLeaveType(ctx, lt) })
}

func (m *Memory) UpdateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	return m.write(func(s *state) error { return s.UpdateLeaveType(ctx, lt) })
}

func (m *Memory) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (out *leave.LeaveType, err error) {
	err = m.read(func(s *state) error { out, err = s.GetLeaveType(ctx, id); return err })
	return out, err
}

func (m *Memory) ListLeaveTypes(ctx context.Context, activeOnly bool) (out []leave.LeaveType, err error) {
	err = m.read(func(s *state) error { out, err = s.ListLeaveTypes(ctx, activeOnly); return err })
	return out, err
}

func (m *Memory) GetConfig(ctx context.Context) (out map[string]string, err error) {
	err = m.read(func(s *state) error { out, err = s.GetConfig(ctx); return err })
	return out, err
}

func (m *Memory) GetConfigValue(ctx context.Context, key string) (value string, ok bool, err error) {
	err = m.read(func(s *state) error { value, ok, err = s.GetConfigValue(ctx, key); return err })
	return value, ok, err
}

func (m *Memory) SetConfigValue(ctx context.Context, key, value string) error {
	return m.write(func(s *state) error { return s.SetConfigValue(ctx, key, value) })
}

func (m *Memory) GetBalance(ctx context.Context, key leave.BalanceKey) (out decimal.Decimal, err error) {
	err = m.read(func(s *state) error { out, err = s.GetBalance(ctx, key); return err })
	return out, err
}

func (m *Memory) ListBalances(ctx context.Context, employeeID leave.EmployeeID) (out map[leave.LeaveTypeID]decimal.Decimal, err error) {
	err = m.read(func(s *state) error { out, err = s.ListBalances(ctx, employeeID); return err })
	return out, err
}

func (m *Memory) AdjustBalance(ctx context.Context, key leave.BalanceKey, delta decimal.Decimal) (out decimal.Decimal, err error) {
	err = m.write(func(s *state) error { out, err = s.AdjustBalance(ctx, key, delta); return err })
	return out, err
}

func (m *Memory) CreateRequest(ctx context.Context, r leave.LeaveRequest) error {
	return m.write(func(s *state) error { return s.CreateRequest(ctx, r) })
}

func (m *Memory) GetRequest(ctx context.Context, id leave.RequestID) (out *leave.LeaveRequest, err error) {
	err = m.read(func(s *state) error { out, err = s.GetRequest(ctx, id); return err })
	return out, err
}

func (m *Memory) ListRequests(ctx context.Context, filter leave.RequestFilter) (out []leave.LeaveRequest, err error) {
	err = m.read(func(s *state) error { out, err = s.ListRequests(ctx, filter); return err })
	return out, err
}

func (m *Memory) PendingDays(ctx context.Context, key leave.BalanceKey, olderThan *leave.LeaveRequest) (out decimal.Decimal, err error) {
	err = m.read(func(s *state) error { out, err = s.PendingDays(ctx, key, olderThan); return err })
	return out, err
}

func (m *Memory) ReviewRequest(ctx context.Context, id leave.RequestID, review leave.Review) error {
	return m.write(func(s *state) error { return s.ReviewRequest(ctx, id, review) })
}

func (m *Memory) CreateAccrualRecord(ctx context.Context, rec leave.AccrualRecord) error {
	return m.write(func(s *state) error { return s.CreateAccrualRecord(ctx, rec) })
}

func (m *Memory) ListAccrualRecords(ctx context.Context, filter leave.AccrualFilter) (out []leave.AccrualRecord, err error) {
	err = m.read(func(s *state) error { out, err = s.ListAccrualRecords(ctx, filter); return err })
	return out, err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txView{state: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// txView runs against state that the enclosing WithTx already locked.
type txView struct {
	*state
}

func (tv *txView) WithTx(_ context.Context, fn func(leave.Store) error) error {
	return fn(tv)
}

func (s *state) clone() state {
	c := state{
		employees:  make(map[leave.EmployeeID]leave.Employee, len(s.employees)),
		leaveTypes: make(map[leave.LeaveTypeID]leave.LeaveType, len(s.leaveTypes)),
		config:     make(map[string]string, len(s.config)),
		balances:   make(map[leave.BalanceKey]decimal.Decimal, len(s.balances)),
		requests:   make(map[leave.RequestID]leave.LeaveRequest, len(s.requests)),
		accruals:   make(map[accrualKey]leave.AccrualRecord, len(s.accruals)),
	}
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.leaveTypes {
		c.leaveTypes[k] = v
	}
	for k, v := range s.config {
		c.config[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.accruals {
		c.accruals[k] = v
	}
	return c
}

// =============================================================================
// UNLOCKED OPERATIONS
// =============================================================================

func (s *state) CreateEmployee(_ context.Context, e leave.Employee) error {
	if _, ok := s.employees[e.ID]; ok {
		return generic.E(generic.KindDuplicateKey, "employee already exists")
	}
	if err := s.checkEmployeeUnique(e); err != nil {
		return err
	}
	s.employees[e.ID] = e
	return nil
}

func (s *state) UpdateEmployee(_ context.Context, e leave.Employee) error {
	if _, ok := s.employees[e.ID]; !ok {
		return generic.E(generic.KindNotFound, "employee not found")
	}
	if err := s.checkEmployeeUnique(e); err != nil {
		return err
	}
	s.employees[e.ID] = e
	return nil
}

func (s *state) checkEmployeeUnique(e leave.Employee) error {
	for id, other := range s.employees {
		if id == e.ID {
			continue
		}
		if other.ClerkID == e.ClerkID {
			return generic.E(generic.KindDuplicateKey, "employee with this identity already exists")
		}
		if strings.EqualFold(other.Email, e.Email) {
			return generic.E(generic.KindDuplicateKey, "employee with this email already exists")
		}
	}
	return nil
}

func (s *state) GetEmployee(_ context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return nil, generic.E(generic.KindNotFound, "employee not found")
	}
	return &e, nil
}

func (s *state) FindEmployeeByClerkID(_ context.Context, clerkID string) (*leave.Employee, error) {
	for _, e := range s.employees {
		if e.ClerkID == clerkID {
			return &e, nil
		}
	}
	return nil, generic.E(generic.KindNotFound, "employee not found")
}

func (s *state) FindEmployeeByEmail(_ context.Context, email string) (*leave.Employee, error) {
	for _, e := range s.employees {
		if strings.EqualFold(e.Email, email) {
			return &e, nil
		}
	}
	return nil, generic.E(generic.KindNotFound, "employee not found")
}

func (s *state) ListEmployees(_ context.Context, role leave.Role) ([]leave.Employee, error) {
	var out []leave.Employee
	for _, e := range s.employees {
		if role == "" || e.Role == role {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) CreateLeaveType(_ context.Context, lt leave.LeaveType) error {
	if _, ok := s.leaveTypes[lt.ID]; ok {
		return generic.E(generic.KindDuplicateKey, "leave type already exists")
	}
	if err := s.checkLeaveTypeName(lt); err != nil {
		return err
	}
	s.leaveTypes[lt.ID] = lt
	return nil
}

func (s *state) UpdateLeaveType(_ context.Context, lt leave.LeaveType) error {
	if _, ok := s.leaveTypes[lt.ID]; !ok {
		return generic.E(generic.KindNotFound, "leave type not found")
	}
	if err := s.checkLeaveTypeName(lt); err != nil {
		return err
	}
	s.leaveTypes[lt.ID] = lt
	return nil
}

func (s *state) checkLeaveTypeName(lt leave.LeaveType) error {
	for id, other := range s.leaveTypes {
		if id != lt.ID && other.Name == lt.Name {
			return generic.E(generic.KindDuplicateKey, "leave type name already exists")
		}
	}
	return nil
}

func (s *state) GetLeaveType(_ context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	lt, ok := s.leaveTypes[id]
	if !ok {
		return nil, generic.E(generic.KindNotFound, "leave type not found")
	}
	return &lt, nil
}

func (s *state) ListLeaveTypes(_ context.Context, activeOnly bool) ([]leave.LeaveType, error) {
	var out []leave.LeaveType
	for _, lt := range s.leaveTypes {
		if !activeOnly || lt.IsActive {
			out = append(out, lt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) GetConfig(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.config))
	for k, v := range s.config {
		out[k] = v
	}
	return out, nil
}

func (s *state) GetConfigValue(_ context.Context, key string) (string, bool, error) {
	v, ok := s.config[key]
	return v, ok, nil
}

func (s *state) SetConfigValue(_ context.Context, key, value string) error {
	s.config[key] = value
	return nil
}

func (s *state) GetBalance(_ context.Context, key leave.BalanceKey) (decimal.Decimal, error) {
	return s.balances[key], nil
}

func (s *state) ListBalances(_ context.Context, employeeID leave.EmployeeID) (map[leave.LeaveTypeID]decimal.Decimal, error) {
	out := make(map[leave.LeaveTypeID]decimal.Decimal)
	for k, v := range s.balances {
		if k.EmployeeID == employeeID {
			out[k.LeaveTypeID] = v
		}
	}
	return out, nil
}

func (s *state) AdjustBalance(_ context.Context, key leave.BalanceKey, delta decimal.Decimal) (decimal.Decimal, error) {
	current := s.balances[key]
	next := current.Add(delta)
	if next.IsNegative() {
		return current, generic.Errorf(generic.KindInsufficientBalance,
			"Insufficient balance. Available: %s days", generic.FormatDays(current))
	}
	s.balances[key] = next
	return next, nil
}

func (s *state) CreateRequest(_ context.Context, r leave.LeaveRequest) error {
	if _, ok := s.requests[r.ID]; ok {
		return generic.E(generic.KindDuplicateKey, "request already exists")
	}
	s.requests[r.ID] = r
	return nil
}

func (s *state) GetRequest(_ context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, generic.E(generic.KindNotFound, "request not found")
	}
	return &r, nil
}

func (s *state) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	var out []leave.LeaveRequest
	for _, r := range s.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
			continue
		}
		if f.LeaveTypeID != "" && r.LeaveTypeID != f.LeaveTypeID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return leave.RequestOrderBefore(out[j], out[i]) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *state) PendingDays(_ context.Context, key leave.BalanceKey, olderThan *leave.LeaveRequest) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range s.requests {
		if r.Status != leave.StatusPending || r.EmployeeID != key.EmployeeID || r.LeaveTypeID != key.LeaveTypeID {
			continue
		}
		if olderThan != nil && !leave.RequestOrderBefore(r, *olderThan) {
			continue
		}
		total = total.Add(r.Days)
	}
	return total, nil
}

func (s *state) ReviewRequest(_ context.Context, id leave.RequestID, review leave.Review) error {
	r, ok := s.requests[id]
	if !ok {
		return generic.E(generic.KindNotFound, "request not found")
	}
	if r.Status != leave.StatusPending {
		return generic.ErrAlreadyProcessed
	}
	at := review.ReviewedAt
	r.Status = review.Status
	r.ReviewedBy = review.ReviewedBy
	r.ReviewedAt = &at
	r.AdminNotes = review.AdminNotes
	r.UpdatedAt = at
	s.requests[id] = r
	return nil
}

func (s *state) CreateAccrualRecord(_ context.Context, rec leave.AccrualRecord) error {
	k := accrualKey{EmployeeID: rec.EmployeeID, LeaveTypeID: rec.LeaveTypeID, Month: rec.Month}
	if _, ok := s.accruals[k]; ok {
		return generic.E(generic.KindDuplicateKey, "accrual already recorded for this month")
	}
	s.accruals[k] = rec
	return nil
}

func (s *state) ListAccrualRecords(_ context.Context, f leave.AccrualFilter) ([]leave.AccrualRecord, error) {
	var out []leave.AccrualRecord
	for k, rec := range s.accruals {
		if f.EmployeeID != "" && k.EmployeeID != f.EmployeeID {
			continue
		}
		if f.LeaveTypeID != "" && k.LeaveTypeID != f.LeaveTypeID {
			continue
		}
		if f.Month != "" && k.Month != f.Month {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var (
	_ leave.Store = (*Memory)(nil)
	_ leave.Store = (*txView)(nil)
)
