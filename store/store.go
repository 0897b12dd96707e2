// Package store opens the configured leave.Store backend.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/postgres"
	"github.com/warp/leave-ledger/store/sqlite"
)

// Backend is a leave.Store that owns a connection pool.
type Backend interface {
	leave.Store
	Close() error
}

// Open returns the backend selected by cfg.Driver. The postgres pool is
// created lazily on first use.
func Open(cfg config.DatabaseConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return sqlite.New(cfg.SQLitePath)
	case config.DriverPostgres:
		return postgres.New(postgres.Options{
			DSN:             cfg.URL,
			MaxConns:        int32(cfg.MaxConns),
			MinConns:        int32(cfg.MinConns),
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func ensureDir(path string) error {
	if path == "" || strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}
