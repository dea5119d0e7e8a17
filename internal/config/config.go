// Package config holds the process configuration for pgist. It is loaded
// once at startup and not modified afterwards.
//
// Values are resolved in this order, first match wins:
//
//	OS environment -> .env file -> AWS SSM Parameter Store
//
// A missing required value or a malformed one fails the load.
package config

import (
	"time"

	"pgist/internal/types"
)

// SecretString is the redacted string type used for secrets.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the
// sub-struct they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database   DatabaseConfig
	Migrations MigrationsConfig
	Cursor     CursorConfig

	// Set from linker flags, not the environment.
	Build BuildInfo
}

// DatabaseConfig holds the connection string and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"0" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"5s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	ApplicationName   string        `envconfig:"DB_APPLICATION_NAME" default:"pgist"`

	// Consecutive acquisition failures before the pool fails fast.
	// Zero disables the breaker.
	BreakerFailures int `envconfig:"DB_BREAKER_FAILURES" default:"5" validate:"min=0"`
}

// MigrationsConfig locates the migration directory. Dir is optional here;
// commands that need it report ErrCodeMigrationsDirUnset.
type MigrationsConfig struct {
	Dir string `envconfig:"MIGRATIONS_DIR"`
}

// CursorConfig tunes streaming reads.
type CursorConfig struct {
	BatchSize int `envconfig:"CURSOR_BATCH_SIZE" default:"100" validate:"min=1"`
}

// BuildInfo holds build metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure fetching secrets from SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the populated struct failed validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a value could not be parsed into its field type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
