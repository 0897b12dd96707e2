/*
accrual.go - Monthly accrual cycle

PURPOSE:
  Credits every active leave type to every employee once per month. The
  trigger is at-least-once (cron retries, manual reruns, overlapping
  schedulers), so the cycle must be safe to run any number of times.

IDEMPOTENCY:
  Each (employee, leave type, month) pair is processed in its own store
  transaction:

    WithTx {
        CreateAccrualRecord(emp, type, month)   <- UNIQUE in storage
        AdjustBalance(emp, type, +amount)
    }

  A second run hits the unique constraint on the record insert, the
  transaction rolls back, and the pair is counted as skipped. Record and
  credit always commit together.

RATE:
  LeaveType.DefaultMonthlyAccrual when set, otherwise the system config
  value "defaultMonthlyAccrual", otherwise 1.

FAILURES:
  A failing pair is logged and counted; the cycle continues. A crash
  mid-cycle leaves finished pairs accrued and the rest untouched, so
  re-running the same month resumes the work.

SEE ALSO:
  - api/scheduler.go: In-process trigger
  - api/handlers.go: Cron endpoint (shared secret)
*/
package leave

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// AccrualResult reports one cycle.
type AccrualResult struct {
	Period    string `json:"period"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
}

// AccrualEngine runs accrual cycles.
type AccrualEngine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewAccrualEngine(store Store, logger *slog.Logger) *AccrualEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccrualEngine{store: store, logger: logger, now: time.Now}
}

// RunCurrent runs the cycle for the month containing now.
func (e *AccrualEngine) RunCurrent(ctx context.Context) (AccrualResult, error) {
	return e.RunCycle(ctx, generic.CurrentMonth(e.now()))
}

// RunCycle credits every active leave type to every employee with
// RoleEmployee for period. Pairs already accrued for period are skipped.
//
// An error is returned only when the cycle could not start or ctx was
// cancelled; per-pair failures are counted in the result.
func (e *AccrualEngine) RunCycle(ctx context.Context, period generic.Month) (AccrualResult, error) {
	result := AccrualResult{Period: period.String()}

	fallback, err := DefaultMonthlyAccrual(ctx, e.store)
	if err != nil {
		return result, err
	}
	types, err := e.store.ListLeaveTypes(ctx, true)
	if err != nil {
		return result, err
	}
	employees, err := e.store.ListEmployees(ctx, RoleEmployee)
	if err != nil {
		return result, err
	}

	for _, emp := range employees {
		for _, lt := range types {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			amount := lt.AccrualRate(fallback)
			err := e.accruePair(ctx, emp.ID, lt.ID, amount, result.Period)
			switch {
			case err == nil:
				result.Processed++
			case generic.IsKind(err, generic.KindDuplicateKey):
				result.Skipped++
			default:
				result.Errors++
				e.logger.Error("accrual failed",
					slog.String("employee_id", string(emp.ID)),
					slog.String("leave_type_id", string(lt.ID)),
					slog.String("period", result.Period),
					slog.Any("error", err))
			}
		}
	}

	e.logger.Info("accrual cycle finished",
		slog.String("period", result.Period),
		slog.Int("processed", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors))
	return result, nil
}

func (e *AccrualEngine) accruePair(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, amount decimal.Decimal, month string) error {
	return e.store.WithTx(ctx, func(tx Store) error {
		rec := AccrualRecord{
			ID:          generic.NewID(),
			EmployeeID:  employeeID,
			LeaveTypeID: leaveTypeID,
			Amount:      amount,
			Month:       month,
			CreatedAt:   e.now().UTC(),
		}
		if err := tx.CreateAccrualRecord(ctx, rec); err != nil {
			return err
		}
		_, err := tx.AdjustBalance(ctx, BalanceKey{EmployeeID: employeeID, LeaveTypeID: leaveTypeID}, amount)
		return err
	})
}

// DefaultMonthlyAccrual reads the system-wide fallback rate. A missing,
// malformed or negative value yields FallbackMonthlyAccrual.
func DefaultMonthlyAccrual(ctx context.Context, store Store) (decimal.Decimal, error) {
	raw, ok, err := store.GetConfigValue(ctx, ConfigDefaultMonthlyAccrual)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return FallbackMonthlyAccrual, nil
	}
	rate, err := generic.ParseDays(raw)
	if err != nil || rate.IsNegative() {
		return FallbackMonthlyAccrual, nil
	}
	return rate, nil
}
