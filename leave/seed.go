package leave

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// DefaultLeaveTypes are created by Seed.
var DefaultLeaveTypes = []LeaveTypeInput{
	{Name: "Sick Leave", Color: "#ef4444", DefaultMonthlyAccrual: decimal.NewNullDecimal(decimal.NewFromInt(1))},
	{Name: "Vacation", Color: "#3b82f6", DefaultMonthlyAccrual: decimal.NewNullDecimal(decimal.NewFromInt(1))},
	{Name: "Personal", Color: "#10b981", DefaultMonthlyAccrual: decimal.NewNullDecimal(decimal.NewFromInt(1))},
}

// SeedResult reports what Seed created.
type SeedResult struct {
	LeaveTypesCreated int
	ConfigCreated     bool
}

// Seed installs the default leave types and accrual config. Existing leave
// types (matched by name) and an existing config value are left alone, so
// Seed can run on every start.
func Seed(ctx context.Context, store Store) (SeedResult, error) {
	var result SeedResult
	reg := NewRegistry(store)

	for _, in := range DefaultLeaveTypes {
		_, err := reg.createLeaveType(ctx, in)
		switch {
		case err == nil:
			result.LeaveTypesCreated++
		case generic.IsKind(err, generic.KindDuplicateKey):
			// already seeded
		default:
			return result, err
		}
	}

	_, ok, err := store.GetConfigValue(ctx, ConfigDefaultMonthlyAccrual)
	if err != nil {
		return result, err
	}
	if !ok {
		if err := store.SetConfigValue(ctx, ConfigDefaultMonthlyAccrual, FallbackMonthlyAccrual.String()); err != nil {
			return result, err
		}
		result.ConfigCreated = true
	}
	return result, nil
}
