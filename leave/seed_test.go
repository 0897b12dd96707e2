package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/leave"
)

func TestSeedIsRepeatable(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.Store) {
		ctx := t.Context()

		res, err := leave.Seed(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, leave.SeedResult{LeaveTypesCreated: 3, ConfigCreated: true}, res)

		// An admin's config change survives a restart
		require.NoError(t, s.SetConfigValue(ctx, leave.ConfigDefaultMonthlyAccrual, "2"))

		res, err = leave.Seed(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, leave.SeedResult{}, res)

		types, err := s.ListLeaveTypes(ctx, true)
		require.NoError(t, err)
		require.Len(t, types, 3)
		assert.Equal(t, []string{"Personal", "Sick Leave", "Vacation"},
			[]string{types[0].Name, types[1].Name, types[2].Name})

		v, _, err := s.GetConfigValue(ctx, leave.ConfigDefaultMonthlyAccrual)
		require.NoError(t, err)
		assert.Equal(t, "2", v)
	})
}
