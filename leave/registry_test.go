package leave_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

func TestCreateLeaveType(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		f := newFixture(t, s)

		lt, err := f.registry.CreateLeaveType(f.ctx, f.admin, leave.LeaveTypeInput{Name: " Parental "})
		require.NoError(t, err)
		assert.Equal(t, "Parental", lt.Name)
		assert.Equal(t, leave.DefaultColor, lt.Color)
		assert.True(t, lt.IsActive)
		assert.False(t, lt.DefaultMonthlyAccrual.Valid)

		tests := []struct {
			name string
			in   leave.LeaveTypeInput
			kind generic.Kind
			msg  string
		}{
			{"duplicate name", leave.LeaveTypeInput{Name: "Vacation"}, generic.KindDuplicateKey, "Leave type with this name already exists"},
			{"missing name", leave.LeaveTypeInput{Name: "  "}, generic.KindValidation, "Name is required"},
			{"bad color", leave.LeaveTypeInput{Name: "Study", Color: "blue"}, generic.KindValidation, "Invalid color format"},
			{"negative accrual", leave.LeaveTypeInput{Name: "Study", DefaultMonthlyAccrual: decimal.NewNullDecimal(dec("-1"))}, generic.KindValidation, "Accrual must be non-negative"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.registry.CreateLeaveType(f.ctx, f.admin, tc.in)
				require.Error(t, err)
				assert.Equal(t, tc.kind, generic.KindOf(err))
				assert.Equal(t, tc.msg, generic.MessageOf(err))
			})
		}

		_, err = f.registry.CreateLeaveType(f.ctx, f.alice, leave.LeaveTypeInput{Name: "Sneaky"})
		assert.True(t, generic.IsKind(err, generic.KindForbidden))
	})
}

func TestUpdateLeaveType(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		f := newFixture(t, s)

		color := "#123ABC"
		inactive := false
		updated, err := f.registry.UpdateLeaveType(f.ctx, f.admin, f.personal.ID, leave.LeaveTypeUpdate{
			Color:    &color,
			IsActive: &inactive,
		})
		require.NoError(t, err)
		assert.Equal(t, "Personal", updated.Name)
		assert.Equal(t, "#123ABC", updated.Color)
		assert.False(t, updated.IsActive)

		active, err := f.registry.ActiveLeaveTypes(f.ctx)
		require.NoError(t, err)
		assert.Len(t, active, 2)

		all, err := f.registry.ListLeaveTypes(f.ctx, f.admin)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		rename := "Vacation"
		_, err = f.registry.UpdateLeaveType(f.ctx, f.admin, f.personal.ID, leave.LeaveTypeUpdate{Name: &rename})
		assert.True(t, generic.IsKind(err, generic.KindDuplicateKey))

		_, err = f.registry.UpdateLeaveType(f.ctx, f.admin, "missing", leave.LeaveTypeUpdate{Name: &rename})
		assert.True(t, generic.IsNotFound(err))

		_, err = f.registry.ListLeaveTypes(f.ctx, f.alice)
		assert.True(t, generic.IsKind(err, generic.KindForbidden))
	})
}

func TestUpdateSystemConfig(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		f := newFixture(t, s)

		require.NoError(t, f.registry.UpdateSystemConfig(f.ctx, f.admin, leave.ConfigDefaultMonthlyAccrual, " 1.50 "))
		cfg, err := f.registry.SystemConfig(f.ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, "1.5", cfg[leave.ConfigDefaultMonthlyAccrual])

		require.NoError(t, f.registry.UpdateSystemConfig(f.ctx, f.admin, "companyName", "Acme"))
		cfg, err = f.registry.SystemConfig(f.ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, "Acme", cfg["companyName"])

		err = f.registry.UpdateSystemConfig(f.ctx, f.admin, leave.ConfigDefaultMonthlyAccrual, "-2")
		assert.True(t, generic.IsKind(err, generic.KindValidation))
		err = f.registry.UpdateSystemConfig(f.ctx, f.admin, leave.ConfigDefaultMonthlyAccrual, "lots")
		assert.True(t, generic.IsKind(err, generic.KindValidation))
		err = f.registry.UpdateSystemConfig(f.ctx, f.admin, "", "x")
		assert.True(t, generic.IsKind(err, generic.KindValidation))
		err = f.registry.UpdateSystemConfig(f.ctx, f.alice, "companyName", "Evil")
		assert.True(t, generic.IsKind(err, generic.KindForbidden))
		_, err = f.registry.SystemConfig(f.ctx, f.bob)
		assert.True(t, generic.IsKind(err, generic.KindForbidden))
	})
}
