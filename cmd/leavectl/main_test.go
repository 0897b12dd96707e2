package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/generic"
	"github.com/xuri/excelize/v2"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "data", "leave.db")
	cfg.Auth.JWTSecret = "cli-secret"
	return cfg
}

func runCmd(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), cfg, logger, args[0], args[1:], &out)
	return out.String(), err
}

func TestSeedAndAccrue(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCmd(t, cfg, "seed")
	require.NoError(t, err)
	assert.Equal(t, "leave types created: 3, config created: true\n", out)

	out, err = runCmd(t, cfg, "seed")
	require.NoError(t, err)
	assert.Equal(t, "leave types created: 0, config created: false\n", out)

	out, err = runCmd(t, cfg, "accrue", "-month", "2030-03")
	require.NoError(t, err)
	assert.Equal(t, "period 2030-03: processed 0, skipped 0, errors 0\n", out)

	_, err = runCmd(t, cfg, "accrue", "-month", "March")
	assert.True(t, generic.IsKind(err, generic.KindValidation))
}

func TestPromoteUnknownEmployee(t *testing.T) {
	cfg := testConfig(t)

	_, err := runCmd(t, cfg, "promote", "-email", "nobody@example.com")
	assert.True(t, generic.IsNotFound(err))

	_, err = runCmd(t, cfg, "promote")
	assert.ErrorIs(t, err, errUsage)
}

func TestExportWritesWorkbook(t *testing.T) {
	cfg := testConfig(t)
	_, err := runCmd(t, cfg, "seed")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "balances.xlsx")
	out, err := runCmd(t, cfg, "export", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 0 employees")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	wb, err := excelize.OpenReader(f)
	require.NoError(t, err)
	rows, err := wb.GetRows("Balances")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Name", "Email", "Joined"}, rows[0])
}

func TestToken(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCmd(t, cfg, "token", "-sub", "user_1", "-email", "a@example.com")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	_, err = runCmd(t, cfg, "token")
	assert.ErrorIs(t, err, errUsage)

	cfg.Auth.JWTSecret = ""
	_, err = runCmd(t, cfg, "token", "-sub", "user_1")
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCmd(t, testConfig(t), "frobnicate")
	assert.ErrorIs(t, err, errUsage)
}
