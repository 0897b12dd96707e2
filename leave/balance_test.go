package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

func TestSummaryListsActiveTypesByName(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		f := newFixture(t, s)
		f.grant(t, f.alice, f.vacation, "4")
		f.pendingRequest(t, "r1", f.alice, f.vacation, 1, time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC))

		inactive := false
		_, err := f.registry.UpdateLeaveType(f.ctx, f.admin, f.sick.ID, leave.LeaveTypeUpdate{IsActive: &inactive})
		require.NoError(t, err)

		lines, err := f.balances.MySummary(f.ctx, f.alice)
		require.NoError(t, err)
		require.Len(t, lines, 2)
		assert.Equal(t, "Personal", lines[0].LeaveTypeName)
		assert.True(t, lines[0].Settled.IsZero())
		assert.Equal(t, "Vacation", lines[1].LeaveTypeName)
		assert.True(t, lines[1].Settled.Equal(dec("4")))
		assert.True(t, lines[1].PendingDays.Equal(dec("1")))
		assert.True(t, lines[1].Available.Equal(dec("3")))

		_, err = f.balances.MySummary(f.ctx, nil)
		assert.True(t, generic.IsKind(err, generic.KindForbidden))
	})
}

func TestEmployeesWithBalances(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		f := newFixture(t, s)
		f.grant(t, f.bob, f.sick, "2")

		_, err := f.balances.EmployeesWithBalances(f.ctx, f.alice)
		assert.True(t, generic.IsKind(err, generic.KindForbidden))

		rows, err := f.balances.EmployeesWithBalances(f.ctx, f.admin)
		require.NoError(t, err)

		// Admins are not listed; employees are sorted by name
		require.Len(t, rows, 2)
		assert.Equal(t, "Alice", rows[0].Name)
		assert.Equal(t, "Bob", rows[1].Name)
		require.Len(t, rows[1].Balances, 3)
		for _, b := range rows[1].Balances {
			if b.LeaveTypeID == f.sick.ID {
				assert.True(t, b.Balance.Equal(dec("2")))
			} else {
				assert.True(t, b.Balance.IsZero())
			}
		}
	})
}
