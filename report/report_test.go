package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/leave"
	"github.com/xuri/excelize/v2"
)

func TestWriteBalances(t *testing.T) {
	// GIVEN: Two employees with balances in two leave types
	joined := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := []leave.EmployeeBalances{
		{
			ID: "e1", Name: "Alice", Email: "alice@example.com", CreatedAt: joined,
			Balances: []leave.TypeBalance{
				{LeaveTypeID: "t1", LeaveTypeName: "Sick Leave", Balance: decimal.NewFromInt(3)},
				{LeaveTypeID: "t2", LeaveTypeName: "Vacation", Balance: decimal.RequireFromString("2.5")},
			},
		},
		{
			ID: "e2", Name: "Bob", Email: "bob@example.com", CreatedAt: joined,
			Balances: []leave.TypeBalance{
				{LeaveTypeID: "t1", LeaveTypeName: "Sick Leave", Balance: decimal.Zero},
				{LeaveTypeID: "t2", LeaveTypeName: "Vacation", Balance: decimal.NewFromInt(10)},
			},
		},
	}

	// WHEN: The workbook is written
	var buf bytes.Buffer
	require.NoError(t, WriteBalances(&buf, rows))

	// THEN: It reads back with a header row and one row per employee
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Name", "Email", "Joined", "Sick Leave", "Vacation"}, got[0])
	assert.Equal(t, []string{"Alice", "alice@example.com", "2025-03-01", "3", "2.5"}, got[1])
	assert.Equal(t, []string{"Bob", "bob@example.com", "2025-03-01", "0", "10"}, got[2])
}

func TestWriteBalances_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBalances(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Name", "Email", "Joined"}, got[0])
}
