/*
main.go - Operator command line for the leave ledger

PURPOSE:
  Runs maintenance tasks directly against the configured store, without
  going through the HTTP API. Uses the same environment as the server.

COMMANDS:
  seed                                 Install default leave types and config
  promote -email E [-role admin]       Change an employee's role
  accrue  [-month YYYY-MM]             Run one accrual cycle (default: current)
  export  -o balances.xlsx             Write the employee balance workbook
  token   -sub S [-email E] [-name N]  Mint a development bearer token

EXAMPLES:
  leavectl promote -email alice@example.com
  leavectl accrue -month 2025-03
  JWT_SECRET=dev leavectl token -sub user_1 -email bob@example.com -ttl 24h

SEE ALSO:
  - cmd/server: HTTP server
  - store/store.go: Backend selection
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/report"
	"github.com/warp/leave-ledger/store"
)

const usage = `usage: leavectl <command> [flags]

commands:
  seed      install default leave types and config
  promote   change an employee's role
  accrue    run one accrual cycle
  export    write the employee balance workbook
  token     mint a development bearer token
`

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := api.NewLogger(os.Stderr, cfg.SlogLevel(), "leavectl", cfg.App.Env)

	err = run(context.Background(), cfg, logger, os.Args[1], os.Args[2:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "leavectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "token":
		return runToken(cfg, args, out)
	case "seed", "promote", "accrue", "export":
	default:
		fmt.Fprint(os.Stderr, usage)
		return errUsage
	}

	backend, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()

	switch cmd {
	case "seed":
		return runSeed(ctx, backend, out)
	case "promote":
		return runPromote(ctx, backend, args, out)
	case "accrue":
		return runAccrue(ctx, backend, logger, args, out)
	default:
		return runExport(ctx, backend, args, out)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func runSeed(ctx context.Context, s leave.Store, out io.Writer) error {
	res, err := leave.Seed(ctx, s)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "leave types created: %d, config created: %t\n", res.LeaveTypesCreated, res.ConfigCreated)
	return nil
}

func runPromote(ctx context.Context, s leave.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	email := fs.String("email", "", "employee email (required)")
	role := fs.String("role", string(leave.RoleAdmin), "new role: admin or employee")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errUsage
	}

	emp, err := leave.NewDirectory(s).SetRole(ctx, *email, leave.Role(*role))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s) is now %s\n", emp.Name, emp.Email, emp.Role)
	return nil
}

func runAccrue(ctx context.Context, s leave.Store, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("accrue", flag.ContinueOnError)
	month := fs.String("month", "", "period as YYYY-MM (default: current month)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine := leave.NewAccrualEngine(s, logger)
	var (
		res leave.AccrualResult
		err error
	)
	if *month == "" {
		res, err = engine.RunCurrent(ctx)
	} else {
		period, perr := generic.ParseMonth(*month)
		if perr != nil {
			return perr
		}
		res, err = engine.RunCycle(ctx, period)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "period %s: processed %d, skipped %d, errors %d\n", res.Period, res.Processed, res.Skipped, res.Errors)
	return nil
}

func runExport(ctx context.Context, s leave.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	path := fs.String("o", "balances.xlsx", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rows, err := leave.NewBalanceQuery(s).AllEmployeeBalances(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(*path)
	if err != nil {
		return err
	}
	if err := report.WriteBalances(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d employees to %s\n", len(rows), *path)
	return nil
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "identity subject (required)")
	email := fs.String("email", "", "email claim")
	name := fs.String("name", "", "name claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sub == "" {
		fs.Usage()
		return errUsage
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	token, err := api.NewTokenAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).
		Issue(leave.Identity{Subject: *sub, Email: *email, Name: *name}, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
