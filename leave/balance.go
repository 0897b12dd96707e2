package leave

import "context"

// =============================================================================
// BALANCE QUERY - Read-only composition of balances and pending requests
// =============================================================================

// BalanceQuery reports balances. It never mutates.
type BalanceQuery struct {
	store Store
}

func NewBalanceQuery(store Store) *BalanceQuery {
	return &BalanceQuery{store: store}
}

// Summary returns settled, pending and available days for every active
// leave type, sorted by leave type name. Available uses the same arithmetic
// as Ledger.Submit.
func (q *BalanceQuery) Summary(ctx context.Context, employeeID EmployeeID) ([]BalanceLine, error) {
	types, err := q.store.ListLeaveTypes(ctx, true)
	if err != nil {
		return nil, err
	}
	balances, err := q.store.ListBalances(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	lines := make([]BalanceLine, 0, len(types))
	for _, lt := range types {
		key := BalanceKey{EmployeeID: employeeID, LeaveTypeID: lt.ID}
		pending, err := q.store.PendingDays(ctx, key, nil)
		if err != nil {
			return nil, err
		}
		settled := balances[lt.ID]
		lines = append(lines, BalanceLine{
			LeaveTypeID:    lt.ID,
			LeaveTypeName:  lt.Name,
			LeaveTypeColor: lt.Color,
			Settled:        settled,
			PendingDays:    pending,
			Available:      settled.Sub(pending),
		})
	}
	return lines, nil
}

// MySummary is Summary for the caller.
func (q *BalanceQuery) MySummary(ctx context.Context, actor *Employee) ([]BalanceLine, error) {
	if err := RequireAuth(actor); err != nil {
		return nil, err
	}
	return q.Summary(ctx, actor.ID)
}

// EmployeesWithBalances lists employees (role employee) sorted by name,
// each with the settled balance of every active leave type.
func (q *BalanceQuery) EmployeesWithBalances(ctx context.Context, actor *Employee) ([]EmployeeBalances, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	return q.AllEmployeeBalances(ctx)
}

// AllEmployeeBalances is EmployeesWithBalances without the role check, for
// trusted callers such as the export CLI.
func (q *BalanceQuery) AllEmployeeBalances(ctx context.Context) ([]EmployeeBalances, error) {
	employees, err := q.store.ListEmployees(ctx, RoleEmployee)
	if err != nil {
		return nil, err
	}
	types, err := q.store.ListLeaveTypes(ctx, true)
	if err != nil {
		return nil, err
	}

	out := make([]EmployeeBalances, 0, len(employees))
	for _, emp := range employees {
		balances, err := q.store.ListBalances(ctx, emp.ID)
		if err != nil {
			return nil, err
		}
		row := EmployeeBalances{
			ID:        emp.ID,
			Name:      emp.Name,
			Email:     emp.Email,
			Balances:  make([]TypeBalance, 0, len(types)),
			CreatedAt: emp.CreatedAt,
		}
		for _, lt := range types {
			row.Balances = append(row.Balances, TypeBalance{
				LeaveTypeID:    lt.ID,
				LeaveTypeName:  lt.Name,
				LeaveTypeColor: lt.Color,
				Balance:        balances[lt.ID],
			})
		}
		out = append(out, row)
	}
	return out, nil
}
