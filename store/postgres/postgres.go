/*
Package postgres provides a PostgreSQL implementation of leave.Store.

PURPOSE:
  The server-backed store for multi-instance deployments. Same tables and
  constraints as the sqlite store, with NUMERIC amounts, DATE request
  bounds and TIMESTAMPTZ audit columns.

POOL:
  The pgxpool.Pool is created on first use, guarded by a mutex, and torn
  down by Close. A failed connect is not cached; the next call retries.

CONCURRENCY:
  Inside WithTx, GetBalance takes a row lock (SELECT ... FOR UPDATE) so a
  check-then-debit sequence is serialized per (employee, leave type).
  AdjustBalance is a single conditional UPDATE that refuses to go below
  zero, so it is safe with or without a transaction.

SEE ALSO:
  - leave/store.go: Interface definition
  - store/sqlite: Embedded implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// Options configures the connection pool.
type Options struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements leave.Store on PostgreSQL.
type Store struct {
	opts Options

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New returns a store that connects on first use.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("postgres: DSN is required")
	}
	if _, err := pgxpool.ParseConfig(opts.DSN); err != nil {
		return nil, fmt.Errorf("postgres: invalid DSN: %w", err)
	}
	return &Store{opts: opts}, nil
}

// Close tears down the pool if it was opened. The store may be reused
// afterwards; the next call reconnects.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

// Ping connects if needed and verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (s *Store) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return s.pool, nil
	}

	cfg, err := pgxpool.ParseConfig(s.opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if s.opts.MaxConns > 0 {
		cfg.MaxConns = s.opts.MaxConns
	}
	if s.opts.MinConns > 0 {
		cfg.MinConns = s.opts.MinConns
	}
	if s.opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = s.opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s.pool = pool
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		clerk_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'employee' CHECK (role IN ('admin', 'employee')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_employees_email ON employees (lower(email))`,
	`CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		color TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		default_monthly_accrual NUMERIC,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (employee_id, leave_type_id)
	)`,
	`CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		days NUMERIC NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'declined')),
		message TEXT,
		admin_notes TEXT,
		reviewed_by TEXT REFERENCES employees(id),
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (end_date >= start_date),
		CHECK ((status = 'pending') = (reviewed_at IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_employee_type_status
		ON leave_requests (employee_id, leave_type_id, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_created ON leave_requests (created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS accrual_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		amount NUMERIC NOT NULL,
		month TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (employee_id, leave_type_id, month)
	)`,
	`CREATE TABLE IF NOT EXISTS system_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// STORE - Pool-backed entry points
// =============================================================================

func (s *Store) conn(ctx context.Context) (*conn, error) {
	pool, err := s.getPool(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{q: pool}, nil
}

func (s *Store) CreateEmployee(ctx context.Context, e leave.Employee) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.CreateEmployee(ctx, e)
}

func (s *Store) UpdateEmployee(ctx context.Context, e leave.Employee) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.UpdateEmployee(ctx, e)
}

func (s *Store) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetEmployee(ctx, id)
}

func (s *Store) FindEmployeeByClerkID(ctx context.Context, clerkID string) (*leave.Employee, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.FindEmployeeByClerkID(ctx, clerkID)
}

func (s *Store) FindEmployeeByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.FindEmployeeByEmail(ctx, email)
}

func (s *Store) ListEmployees(ctx context.Context, role leave.Role) ([]leave.Employee, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListEmployees(ctx, role)
}

func (s *Store) CreateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.CreateLeaveType(ctx, lt)
}

func (s *Store) UpdateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.UpdateLeaveType(ctx, lt)
}

func (s *Store) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetLeaveType(ctx, id)
}

func (s *Store) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]leave.LeaveType, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListLeaveTypes(ctx, activeOnly)
}

func (s *Store) GetConfig(ctx context.Context) (map[string]string, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetConfig(ctx)
}

func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return "", false, err
	}
	return c.GetConfigValue(ctx, key)
}

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.SetConfigValue(ctx, key, value)
}

func (s *Store) GetBalance(ctx context.Context, key leave.BalanceKey) (decimal.Decimal, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return c.GetBalance(ctx, key)
}

func (s *Store) ListBalances(ctx context.Context, employeeID leave.EmployeeID) (map[leave.LeaveTypeID]decimal.Decimal, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListBalances(ctx, employeeID)
}

func (s *Store) AdjustBalance(ctx context.Context, key leave.BalanceKey, delta decimal.Decimal) (decimal.Decimal, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return c.AdjustBalance(ctx, key, delta)
}

func (s *Store) CreateRequest(ctx context.Context, r leave.LeaveRequest) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.CreateRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.LeaveRequest, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListRequests(ctx, filter)
}

func (s *Store) PendingDays(ctx context.Context, key leave.BalanceKey, olderThan *leave.LeaveRequest) (decimal.Decimal, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return c.PendingDays(ctx, key, olderThan)
}

func (s *Store) ReviewRequest(ctx context.Context, id leave.RequestID, review leave.Review) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.ReviewRequest(ctx, id, review)
}

func (s *Store) CreateAccrualRecord(ctx context.Context, rec leave.AccrualRecord) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return c.CreateAccrualRecord(ctx, rec)
}

func (s *Store) ListAccrualRecords(ctx context.Context, filter leave.AccrualFilter) ([]leave.AccrualRecord, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListAccrualRecords(ctx, filter)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn inside a database transaction. The transaction is
// rolled back when fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	pool, err := s.getPool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&txStore{conn: conn{q: tx, lockBalances: true}}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	conn
}

func (ts *txStore) WithTx(_ context.Context, fn func(store leave.Store) error) error {
	return fn(ts)
}

// =============================================================================
// CONN - Queries shared by the pool and transactions
// =============================================================================

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type conn struct {
	q            querier
	lockBalances bool
}

// -----------------------------------------------------------------------------
// Employees
// -----------------------------------------------------------------------------

const employeeColumns = `id, clerk_id, name, email, role, created_at, updated_at`

func (c *conn) CreateEmployee(ctx context.Context, e leave.Employee) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.ID), e.ClerkID, e.Name, e.Email, string(e.Role), e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		return translate(err, "create employee")
	}
	return nil
}

func (c *conn) UpdateEmployee(ctx context.Context, e leave.Employee) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE employees SET clerk_id = $1, name = $2, email = $3, role = $4, updated_at = $5
		WHERE id = $6`,
		e.ClerkID, e.Name, e.Email, string(e.Role), e.UpdatedAt.UTC(), string(e.ID),
	)
	if err != nil {
		return translate(err, "update employee")
	}
	if tag.RowsAffected() == 0 {
		return generic.E(generic.KindNotFound, "employee not found")
	}
	return nil
}

func (c *conn) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	return c.queryEmployee(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, string(id))
}

func (c *conn) FindEmployeeByClerkID(ctx context.Context, clerkID string) (*leave.Employee, error) {
	return c.queryEmployee(ctx, `SELECT `+employeeColumns+` FROM employees WHERE clerk_id = $1`, clerkID)
}

func (c *conn) FindEmployeeByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	return c.queryEmployee(ctx, `SELECT `+employeeColumns+` FROM employees WHERE lower(email) = lower($1)`, email)
}

func (c *conn) queryEmployee(ctx context.Context, query string, args ...any) (*leave.Employee, error) {
	e, err := scanEmployee(c.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, generic.E(generic.KindNotFound, "employee not found")
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

func (c *conn) ListEmployees(ctx context.Context, role leave.Role) ([]leave.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	var args []any
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, string(role))
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// -----------------------------------------------------------------------------
// Leave types
// -----------------------------------------------------------------------------

const leaveTypeSelect = `SELECT id, name, color, is_active, default_monthly_accrual::text, created_at, updated_at FROM leave_types`

func (c *conn) CreateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_types (id, name, color, is_active, default_monthly_accrual, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		string(lt.ID), lt.Name, lt.Color, lt.IsActive, nullDecimal(lt.DefaultMonthlyAccrual),
		lt.CreatedAt.UTC(), lt.UpdatedAt.UTC(),
	)
	if err != nil {
		return translate(err, "create leave type")
	}
	return nil
}

func (c *conn) UpdateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE leave_types
		SET name = $1, color = $2, is_active = $3, default_monthly_accrual = $4::numeric, updated_at = $5
		WHERE id = $6`,
		lt.Name, lt.Color, lt.IsActive, nullDecimal(lt.DefaultMonthlyAccrual), lt.UpdatedAt.UTC(), string(lt.ID),
	)
	if err != nil {
		return translate(err, "update leave type")
	}
	if tag.RowsAffected() == 0 {
		return generic.E(generic.KindNotFound, "leave type not found")
	}
	return nil
}

func (c *conn) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	lt, err := scanLeaveType(c.q.QueryRow(ctx, leaveTypeSelect+` WHERE id = $1`, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, generic.E(generic.KindNotFound, "leave type not found")
		}
		return nil, fmt.Errorf("get leave type: %w", err)
	}
	return &lt, nil
}

func (c *conn) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]leave.LeaveType, error) {
	query := leaveTypeSelect
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC`

	rows, err := c.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list leave types: %w", err)
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leave type: %w", err)
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

// -----------------------------------------------------------------------------
// System config
// -----------------------------------------------------------------------------

func (c *conn) GetConfig(ctx context.Context) (map[string]string, error) {
	rows, err := c.q.Query(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

func (c *conn) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.q.QueryRow(ctx, `SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read config %q: %w", key, err)
	}
	return value, true, nil
}

func (c *conn) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO system_config (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write config %q: %w", key, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Balances
// -----------------------------------------------------------------------------

// GetBalance locks the row when called inside a transaction.
func (c *conn) GetBalance(ctx context.Context, key leave.BalanceKey) (decimal.Decimal, error) {
	query := `SELECT balance::text FROM leave_balances WHERE employee_id = $1 AND leave_type_id = $2`
	if c.lockBalances {
		query += ` FOR UPDATE`
	}
	var raw string
	err := c.q.QueryRow(ctx, query, string(key.EmployeeID), string(key.LeaveTypeID)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return parseDecimal(raw)
}

func (c *conn) ListBalances(ctx context.Context, employeeID leave.EmployeeID) (map[leave.LeaveTypeID]decimal.Decimal, error) {
	rows, err := c.q.Query(ctx, `
		SELECT leave_type_id, balance::text FROM leave_balances WHERE employee_id = $1`, string(employeeID))
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[leave.LeaveTypeID]decimal.Decimal)
	for rows.Next() {
		var typeID, raw string
		if err := rows.Scan(&typeID, &raw); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		d, err := parseDecimal(raw)
		if err != nil {
			return nil, err
		}
		balances[leave.LeaveTypeID(typeID)] = d
	}
	return balances, rows.Err()
}

func (c *conn) AdjustBalance(ctx context.Context, key leave.BalanceKey, delta decimal.Decimal) (decimal.Decimal, error) {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_balances (employee_id, leave_type_id, balance, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (employee_id, leave_type_id) DO NOTHING`,
		string(key.EmployeeID), string(key.LeaveTypeID),
	)
	if err != nil {
		return decimal.Zero, translate(err, "create balance")
	}

	var raw string
	err = c.q.QueryRow(ctx, `
		UPDATE leave_balances
		SET balance = balance + $3::numeric, updated_at = now()
		WHERE employee_id = $1 AND leave_type_id = $2 AND balance + $3::numeric >= 0
		RETURNING balance::text`,
		string(key.EmployeeID), string(key.LeaveTypeID), delta.String(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := c.GetBalance(ctx, key)
		if getErr != nil {
			return decimal.Zero, getErr
		}
		return current, generic.Errorf(generic.KindInsufficientBalance,
			"Insufficient balance. Available: %s days", generic.FormatDays(current))
	}
	if err != nil {
		return decimal.Zero, translate(err, "adjust balance")
	}
	return parseDecimal(raw)
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

const requestSelect = `SELECT id, employee_id, leave_type_id, start_date, end_date, days::text, status,
	message, admin_notes, reviewed_by, reviewed_at, created_at, updated_at FROM leave_requests`

func (c *conn) CreateRequest(ctx context.Context, r leave.LeaveRequest) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_requests (id, employee_id, leave_type_id, start_date, end_date, days, status,
			message, admin_notes, reviewed_by, reviewed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13)`,
		string(r.ID), string(r.EmployeeID), string(r.LeaveTypeID), r.StartDate.Time, r.EndDate.Time,
		r.Days.String(), string(r.Status),
		nullString(r.Message), nullString(r.AdminNotes), nullString(string(r.ReviewedBy)),
		r.ReviewedAt, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return translate(err, "create request")
	}
	return nil
}

func (c *conn) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	r, err := scanRequest(c.q.QueryRow(ctx, requestSelect+` WHERE id = $1`, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, generic.E(generic.KindNotFound, "request not found")
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &r, nil
}

func (c *conn) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.EmployeeID != "" {
		add("employee_id = $%d", string(f.EmployeeID))
	}
	if f.LeaveTypeID != "" {
		add("leave_type_id = $%d", string(f.LeaveTypeID))
	}

	query := requestSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (c *conn) PendingDays(ctx context.Context, key leave.BalanceKey, olderThan *leave.LeaveRequest) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(days), 0)::text FROM leave_requests
		WHERE employee_id = $1 AND leave_type_id = $2 AND status = 'pending'`
	args := []any{string(key.EmployeeID), string(key.LeaveTypeID)}
	if olderThan != nil {
		query += ` AND (created_at < $3 OR (created_at = $3 AND id < $4))`
		args = append(args, olderThan.CreatedAt.UTC(), string(olderThan.ID))
	}

	var raw string
	if err := c.q.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("sum pending days: %w", err)
	}
	return parseDecimal(raw)
}

func (c *conn) ReviewRequest(ctx context.Context, id leave.RequestID, review leave.Review) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE leave_requests
		SET status = $1, reviewed_by = $2, reviewed_at = $3, admin_notes = $4, updated_at = $3
		WHERE id = $5 AND status = 'pending'`,
		string(review.Status), string(review.ReviewedBy), review.ReviewedAt.UTC(),
		nullString(review.AdminNotes), string(id),
	)
	if err != nil {
		return translate(err, "review request")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := c.GetRequest(ctx, id); err != nil {
		return err
	}
	return generic.ErrAlreadyProcessed
}

// -----------------------------------------------------------------------------
// Accrual records
// -----------------------------------------------------------------------------

func (c *conn) CreateAccrualRecord(ctx context.Context, rec leave.AccrualRecord) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO accrual_records (id, employee_id, leave_type_id, amount, month, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		rec.ID, string(rec.EmployeeID), string(rec.LeaveTypeID), rec.Amount.String(), rec.Month, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return translate(err, "create accrual record")
	}
	return nil
}

func (c *conn) ListAccrualRecords(ctx context.Context, f leave.AccrualFilter) ([]leave.AccrualRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EmployeeID != "" {
		add("employee_id = $%d", string(f.EmployeeID))
	}
	if f.LeaveTypeID != "" {
		add("leave_type_id = $%d", string(f.LeaveTypeID))
	}
	if f.Month != "" {
		add("month = $%d", f.Month)
	}

	query := `SELECT id, employee_id, leave_type_id, amount::text, month, created_at FROM accrual_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY month ASC, id ASC`

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accrual records: %w", err)
	}
	defer rows.Close()

	var records []leave.AccrualRecord
	for rows.Next() {
		var (
			rec                 leave.AccrualRecord
			empID, typeID, amnt string
		)
		if err := rows.Scan(&rec.ID, &empID, &typeID, &amnt, &rec.Month, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan accrual record: %w", err)
		}
		rec.EmployeeID = leave.EmployeeID(empID)
		rec.LeaveTypeID = leave.LeaveTypeID(typeID)
		if rec.Amount, err = parseDecimal(amnt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

func scanEmployee(row pgx.Row) (leave.Employee, error) {
	var (
		e        leave.Employee
		id, role string
	)
	if err := row.Scan(&id, &e.ClerkID, &e.Name, &e.Email, &role, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return e, err
	}
	e.ID = leave.EmployeeID(id)
	e.Role = leave.Role(role)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func scanLeaveType(row pgx.Row) (leave.LeaveType, error) {
	var (
		lt      leave.LeaveType
		id      string
		accrual *string
	)
	if err := row.Scan(&id, &lt.Name, &lt.Color, &lt.IsActive, &accrual, &lt.CreatedAt, &lt.UpdatedAt); err != nil {
		return lt, err
	}
	lt.ID = leave.LeaveTypeID(id)
	if accrual != nil {
		d, err := parseDecimal(*accrual)
		if err != nil {
			return lt, err
		}
		lt.DefaultMonthlyAccrual = decimal.NewNullDecimal(d)
	}
	lt.CreatedAt = lt.CreatedAt.UTC()
	lt.UpdatedAt = lt.UpdatedAt.UTC()
	return lt, nil
}

func scanRequest(row pgx.Row) (leave.LeaveRequest, error) {
	var (
		r                        leave.LeaveRequest
		id, empID, typeID        string
		status, days             string
		startDate, endDate       time.Time
		message, notes, reviewer *string
	)
	err := row.Scan(&id, &empID, &typeID, &startDate, &endDate, &days, &status,
		&message, &notes, &reviewer, &r.ReviewedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.ID = leave.RequestID(id)
	r.EmployeeID = leave.EmployeeID(empID)
	r.LeaveTypeID = leave.LeaveTypeID(typeID)
	r.Status = leave.Status(status)
	r.StartDate = generic.DateOf(startDate)
	r.EndDate = generic.DateOf(endDate)
	if r.Days, err = parseDecimal(days); err != nil {
		return r, err
	}
	if message != nil {
		r.Message = *message
	}
	if notes != nil {
		r.AdminNotes = *notes
	}
	if reviewer != nil {
		r.ReviewedBy = leave.EmployeeID(*reviewer)
	}
	if r.ReviewedAt != nil {
		t := r.ReviewedAt.UTC()
		r.ReviewedAt = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d, nil
}

// translate maps SQLSTATE codes onto error kinds.
func translate(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return generic.Wrap(generic.KindDuplicateKey, "duplicate key", err)
		case "23503":
			return generic.Wrap(generic.KindNotFound, "referenced record not found", err)
		case "23514":
			return generic.Wrap(generic.KindConflict, "constraint check failed", err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

var (
	_ leave.Store = (*Store)(nil)
	_ leave.Store = (*txStore)(nil)
)
