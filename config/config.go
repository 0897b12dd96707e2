// Package config loads server settings from the environment, with an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Accrual   AccrualConfig
	CORSAllow []string
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Port         int
	Env          string
	LogLevel     string
	SeedDefaults bool
}

// DatabaseConfig selects and tunes the store.
type DatabaseConfig struct {
	Driver          string
	SQLitePath      string
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
}

// AuthConfig holds token and cron secrets.
type AuthConfig struct {
	JWTSecret  string
	JWTIssuer  string
	CronSecret string
}

// AccrualConfig drives the in-process accrual scheduler.
type AccrualConfig struct {
	SchedulerEnabled bool
	Interval         time.Duration
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		App: AppConfig{
			Port:         getEnvInt("APP_PORT", 8080),
			Env:          getEnv("APP_ENV", "development"),
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			SeedDefaults: getEnvBool("SEED_DEFAULTS", true),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			SQLitePath:      getEnv("SQLITE_PATH", "./data/leave.db"),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			JWTIssuer:  getEnv("JWT_ISSUER", ""),
			CronSecret: getEnv("CRON_SECRET", ""),
		},
		Accrual: AccrualConfig{
			SchedulerEnabled: getEnvBool("ACCRUAL_SCHEDULER_ENABLED", false),
			Interval:         getEnvDuration("ACCRUAL_INTERVAL", 24*time.Hour),
		},
		CORSAllow: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT must be between 1 and 65535")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER is sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is postgres")
		}
		if c.Database.MaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
		}
		if strings.TrimSpace(c.Auth.CronSecret) == "" {
			return fmt.Errorf("CRON_SECRET must be set in production")
		}
	}
	if c.Accrual.SchedulerEnabled && c.Accrual.Interval < time.Minute {
		return fmt.Errorf("ACCRUAL_INTERVAL must be at least 1m")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
