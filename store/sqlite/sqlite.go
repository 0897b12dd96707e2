/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  The default embedded store. Everything the ledger persists lives in one
  file (or in memory for tests): employees, leave types, balances, requests,
  accrual records and system config.

KEY TABLES:
  employees:       People and their role (clerk_id, email UNIQUE)
  leave_types:     Catalog of leave categories (name UNIQUE)
  leave_balances:  Settled balance per (employee, leave type)
  leave_requests:  Request lifecycle rows
  accrual_records: One row per credited (employee, leave type, month)
  system_config:   Key/value settings

INTEGRITY:
  The storage layer enforces the invariants the ledger relies on:
  - UNIQUE(employee_id, leave_type_id, month) on accrual_records is the
    accrual idempotency guard
  - UNIQUE clerk_id / email on employees
  - CHECK balance >= 0 on leave_balances as a last line of defence
  - CHECK that review fields are set exactly when status is terminal

CONCURRENCY:
  SQLite has a single writer. The store keeps one open connection and a
  sync.RWMutex: reads share the lock, WithTx and every write hold it
  exclusively, so a read-check-debit inside WithTx cannot interleave with
  another approval.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better crash recovery.

DECIMALS AND TIMES:
  Day amounts are stored as canonical decimal strings. Timestamps use a
  fixed-width UTC layout so string order equals time order.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := leave.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New() with CREATE ... IF NOT EXISTS.

SEE ALSO:
  - leave/store.go: Interface definition
  - store/postgres: Server-backed implementation
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// timeLayout is fixed width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements leave.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite allows a single writer, and ":memory:" is
	// private to the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		clerk_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		role TEXT NOT NULL DEFAULT 'employee' CHECK (role IN ('admin', 'employee')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_role_name
		ON employees(role, name);

	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		color TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		default_monthly_accrual TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		balance TEXT NOT NULL CHECK (CAST(balance AS REAL) >= 0),
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id)
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'declined')),
		message TEXT,
		admin_notes TEXT,
		reviewed_by TEXT REFERENCES employees(id),
		reviewed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_date >= start_date),
		CHECK ((status = 'pending') = (reviewed_at IS NULL))
	);

	-- Reservation sums (hot path for submit and approve)
	CREATE INDEX IF NOT EXISTS idx_requests_employee_type_status
		ON leave_requests(employee_id, leave_type_id, status, created_at);

	-- Newest-first listings
	CREATE INDEX IF NOT EXISTS idx_requests_created
		ON leave_requests(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_status_created
		ON leave_requests(status, created_at DESC);

	-- CRITICAL: one accrual per employee, leave type and month
	CREATE TABLE IF NOT EXISTS accrual_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		amount TEXT NOT NULL,
		month TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (employee_id, leave_type_id, month)
	);

	CREATE TABLE IF NOT EXISTS system_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE - Locked entry points
// =============================================================================

func (s *Store) conn() *conn { return &conn{q: s.db} }

func (s *Store) CreateEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateEmployee(ctx, e)
}

func (s *Store) UpdateEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpdateEmployee(ctx, e)
}

func (s *Store) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetEmployee(ctx, id)
}

func (s *Store) FindEmployeeByClerkID(ctx context.Context, clerkID string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().FindEmployeeByClerkID(ctx, clerkID)
}

func (s *Store) FindEmployeeByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().FindEmployeeByEmail(ctx, email)
}

func (s *Store) ListEmployees(ctx context.Context, role leave.Role) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListEmployees(ctx, role)
}

func (s *Store) CreateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateLeaveType(ctx, lt)
}

func (s *Store) UpdateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpdateLeaveType(ctx, lt)
}

func (s *Store) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetLeaveType(ctx, id)
}

func (s *Store) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListLeaveTypes(ctx, activeOnly)
}

func (s *Store) GetConfig(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetConfig(ctx)
}

func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetConfigValue(ctx, key)
}

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().SetConfigValue(ctx, key, value)
}

func (s *Store) GetBalance(ctx context.Context, key leave.BalanceKey) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetBalance(ctx, key)
}

func (s *Store) ListBalances(ctx context.Context, employeeID leave.EmployeeID) (map[leave.LeaveTypeID]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListBalances(ctx, employeeID)
}

// AdjustBalance runs its read-modify-write in its own transaction.
func (s *Store) AdjustBalance(ctx context.Context, key leave.BalanceKey, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.WithTx(ctx, func(tx leave.Store) error {
		var err error
		balance, err = tx.AdjustBalance(ctx, key, delta)
		return err
	})
	return balance, err
}

func (s *Store) CreateRequest(ctx context.Context, r leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListRequests(ctx, filter)
}

func (s *Store) PendingDays(ctx context.Context, key leave.BalanceKey, olderThan *leave.LeaveRequest) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().PendingDays(ctx, key, olderThan)
}

func (s *Store) ReviewRequest(ctx context.Context, id leave.RequestID, review leave.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().ReviewRequest(ctx, id, review)
}

func (s *Store) CreateAccrualRecord(ctx context.Context, rec leave.AccrualRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateAccrualRecord(ctx, rec)
}

func (s *Store) ListAccrualRecords(ctx context.Context, filter leave.AccrualFilter) ([]leave.AccrualRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListAccrualRecords(ctx, filter)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn: conn{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	conn
}

// WithTx inside a transaction joins it.
func (ts *txStore) WithTx(_ context.Context, fn func(store leave.Store) error) error {
	return fn(ts)
}

// =============================================================================
// CONN - Queries shared by the pool and transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q querier
}

// -----------------------------------------------------------------------------
// Employees
// -----------------------------------------------------------------------------

const employeeColumns = `id, clerk_id, name, email, role, created_at, updated_at`

func (c *conn) CreateEmployee(ctx context.Context, e leave.Employee) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClerkID, e.Name, e.Email, e.Role,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return translate(err, "failed to create employee")
	}
	return nil
}

func (c *conn) UpdateEmployee(ctx context.Context, e leave.Employee) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE employees SET clerk_id = ?, name = ?, email = ?, role = ?, updated_at = ?
		WHERE id = ?`,
		e.ClerkID, e.Name, e.Email, e.Role, formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return translate(err, "failed to update employee")
	}
	return requireRow(res, "employee not found")
}

func (c *conn) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	return c.queryEmployee(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
}

func (c *conn) FindEmployeeByClerkID(ctx context.Context, clerkID string) (*leave.Employee, error) {
	return c.queryEmployee(ctx, `SELECT `+employeeColumns+` FROM employees WHERE clerk_id = ?`, clerkID)
}

func (c *conn) FindEmployeeByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	return c.queryEmployee(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email = ?`, email)
}

func (c *conn) queryEmployee(ctx context.Context, query string, args ...any) (*leave.Employee, error) {
	e, err := scanEmployee(c.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, generic.E(generic.KindNotFound, "employee not found")
		}
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return &e, nil
}

func (c *conn) ListEmployees(ctx context.Context, role leave.Role) ([]leave.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// -----------------------------------------------------------------------------
// Leave types
// -----------------------------------------------------------------------------

const leaveTypeColumns = `id, name, color, is_active, default_monthly_accrual, created_at, updated_at`

func (c *conn) CreateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lt.ID, lt.Name, lt.Color, lt.IsActive, nullDecimal(lt.DefaultMonthlyAccrual),
		formatTime(lt.CreatedAt), formatTime(lt.UpdatedAt),
	)
	if err != nil {
		return translate(err, "failed to create leave type")
	}
	return nil
}

func (c *conn) UpdateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE leave_types
		SET name = ?, color = ?, is_active = ?, default_monthly_accrual = ?, updated_at = ?
		WHERE id = ?`,
		lt.Name, lt.Color, lt.IsActive, nullDecimal(lt.DefaultMonthlyAccrual), formatTime(lt.UpdatedAt), lt.ID,
	)
	if err != nil {
		return translate(err, "failed to update leave type")
	}
	return requireRow(res, "leave type not found")
}

func (c *conn) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	lt, err := scanLeaveType(c.q.QueryRowContext(ctx,
		`SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, generic.E(generic.KindNotFound, "leave type not found")
		}
		return nil, fmt.Errorf("failed to get leave type: %w", err)
	}
	return &lt, nil
}

func (c *conn) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]leave.LeaveType, error) {
	query := `SELECT ` + leaveTypeColumns + ` FROM leave_types`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := c.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave types: %w", err)
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leave type: %w", err)
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

// -----------------------------------------------------------------------------
// System config
// -----------------------------------------------------------------------------

func (c *conn) GetConfig(ctx context.Context) (map[string]string, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

func (c *conn) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.q.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read config %q: %w", key, err)
	}
	return value, true, nil
}

func (c *conn) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to write config %q: %w", key, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Balances
// -----------------------------------------------------------------------------

func (c *conn) GetBalance(ctx context.Context, key leave.BalanceKey) (decimal.Decimal, error) {
	var raw string
	err := c.q.QueryRowContext(ctx, `
		SELECT balance FROM leave_balances WHERE employee_id = ? AND leave_type_id = ?`,
		key.EmployeeID, key.LeaveTypeID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseDecimal(raw)
}

func (c *conn) ListBalances(ctx context.Context, employeeID leave.EmployeeID) (map[leave.LeaveTypeID]decimal.Decimal, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT leave_type_id, balance FROM leave_balances WHERE employee_id = ?`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[leave.LeaveTypeID]decimal.Decimal)
	for rows.Next() {
		var (
			typeID leave.LeaveTypeID
			raw    string
		)
		if err := rows.Scan(&typeID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		d, err := parseDecimal(raw)
		if err != nil {
			return nil, err
		}
		balances[typeID] = d
	}
	return balances, rows.Err()
}

// AdjustBalance is only atomic when called on a transaction or under the
// store lock; Store.AdjustBalance takes care of the latter.
func (c *conn) AdjustBalance(ctx context.Context, key leave.BalanceKey, delta decimal.Decimal) (decimal.Decimal, error) {
	current, err := c.GetBalance(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return current, generic.Errorf(generic.KindInsufficientBalance,
			"Insufficient balance. Available: %s days", generic.FormatDays(current))
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO leave_balances (employee_id, leave_type_id, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, leave_type_id)
		DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		key.EmployeeID, key.LeaveTypeID, next.String(), formatTime(time.Now()),
	)
	if err != nil {
		return decimal.Zero, translate(err, "failed to update balance")
	}
	return next, nil
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

const requestColumns = `id, employee_id, leave_type_id, start_date, end_date, days, status,
	message, admin_notes, reviewed_by, reviewed_at, created_at, updated_at`

func (c *conn) CreateRequest(ctx context.Context, r leave.LeaveRequest) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.LeaveTypeID, r.StartDate.String(), r.EndDate.String(),
		r.Days.String(), r.Status,
		nullString(r.Message), nullString(r.AdminNotes), nullString(string(r.ReviewedBy)),
		nullTime(r.ReviewedAt), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return translate(err, "failed to create request")
	}
	return nil
}

func (c *conn) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	r, err := scanRequest(c.q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, generic.E(generic.KindNotFound, "request not found")
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &r, nil
}

func (c *conn) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.LeaveTypeID != "" {
		where = append(where, "leave_type_id = ?")
		args = append(args, f.LeaveTypeID)
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (c *conn) PendingDays(ctx context.Context, key leave.BalanceKey, olderThan *leave.LeaveRequest) (decimal.Decimal, error) {
	query := `
		SELECT days FROM leave_requests
		WHERE employee_id = ? AND leave_type_id = ? AND status = 'pending'`
	args := []any{key.EmployeeID, key.LeaveTypeID}
	if olderThan != nil {
		created := formatTime(olderThan.CreatedAt)
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, created, created, olderThan.ID)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending days: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan pending days: %w", err)
		}
		d, err := parseDecimal(raw)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func (c *conn) ReviewRequest(ctx context.Context, id leave.RequestID, review leave.Review) error {
	at := formatTime(review.ReviewedAt)
	res, err := c.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, reviewed_by = ?, reviewed_at = ?, admin_notes = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		review.Status, review.ReviewedBy, at, nullString(review.AdminNotes), at, id,
	)
	if err != nil {
		return translate(err, "failed to review request")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to review request: %w", err)
	}
	if n == 1 {
		return nil
	}
	// Distinguish a missing request from one decided concurrently.
	if _, err := c.GetRequest(ctx, id); err != nil {
		return err
	}
	return generic.ErrAlreadyProcessed
}

// -----------------------------------------------------------------------------
// Accrual records
// -----------------------------------------------------------------------------

func (c *conn) CreateAccrualRecord(ctx context.Context, rec leave.AccrualRecord) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO accrual_records (id, employee_id, leave_type_id, amount, month, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EmployeeID, rec.LeaveTypeID, rec.Amount.String(), rec.Month, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return translate(err, "failed to create accrual record")
	}
	return nil
}

func (c *conn) ListAccrualRecords(ctx context.Context, f leave.AccrualFilter) ([]leave.AccrualRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.LeaveTypeID != "" {
		where = append(where, "leave_type_id = ?")
		args = append(args, f.LeaveTypeID)
	}
	if f.Month != "" {
		where = append(where, "month = ?")
		args = append(args, f.Month)
	}
	query := `SELECT id, employee_id, leave_type_id, amount, month, created_at FROM accrual_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY month ASC, id ASC`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accrual records: %w", err)
	}
	defer rows.Close()

	var records []leave.AccrualRecord
	for rows.Next() {
		var (
			rec       leave.AccrualRecord
			amount    string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.LeaveTypeID, &amount, &rec.Month, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan accrual record: %w", err)
		}
		if rec.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		e                    leave.Employee
		createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.ClerkID, &e.Name, &e.Email, &e.Role, &createdAt, &updatedAt)
	if err != nil {
		return e, err
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

func scanLeaveType(row scanner) (leave.LeaveType, error) {
	var (
		lt                   leave.LeaveType
		accrual              sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&lt.ID, &lt.Name, &lt.Color, &lt.IsActive, &accrual, &createdAt, &updatedAt)
	if err != nil {
		return lt, err
	}
	if accrual.Valid {
		d, err := parseDecimal(accrual.String)
		if err != nil {
			return lt, err
		}
		lt.DefaultMonthlyAccrual = decimal.NewNullDecimal(d)
	}
	lt.CreatedAt = parseTime(createdAt)
	lt.UpdatedAt = parseTime(updatedAt)
	return lt, nil
}

func scanRequest(row scanner) (leave.LeaveRequest, error) {
	var (
		r                    leave.LeaveRequest
		startDate, endDate   string
		days                 string
		message, adminNotes  sql.NullString
		reviewedBy           sql.NullString
		reviewedAt           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &r.LeaveTypeID, &startDate, &endDate, &days, &r.Status,
		&message, &adminNotes, &reviewedBy, &reviewedAt, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	if r.StartDate, err = generic.ParseDate(startDate); err != nil {
		return r, err
	}
	if r.EndDate, err = generic.ParseDate(endDate); err != nil {
		return r, err
	}
	if r.Days, err = parseDecimal(days); err != nil {
		return r, err
	}
	r.Message = message.String
	r.AdminNotes = adminNotes.String
	r.ReviewedBy = leave.EmployeeID(reviewedBy.String)
	if reviewedAt.Valid {
		t := parseTime(reviewedAt.String)
		r.ReviewedAt = &t
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d, nil
}

func requireRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.E(generic.KindNotFound, notFound)
	}
	return nil
}

// translate maps constraint violations onto error kinds.
func translate(err error, msg string) error {
	if isUniqueConstraintError(err) {
		return generic.Wrap(generic.KindDuplicateKey, "duplicate key", err)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintCheck:
			return generic.Wrap(generic.KindConflict, "constraint check failed", err)
		case sqlite3.ErrConstraintForeignKey:
			return generic.Wrap(generic.KindNotFound, "referenced record not found", err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ leave.Store = (*Store)(nil)
	_ leave.Store = (*txStore)(nil)
)
