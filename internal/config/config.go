// Package config loads document store options from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Auto-create policies, spelled as in YAML.
const (
	AutoCreateAll            = "all"
	AutoCreateCreateOrUpdate = "create_or_update"
	AutoCreateCreateOnly     = "create_only"
	AutoCreateNone           = "none"
)

// StoreOptions configures a document store.
type StoreOptions struct {
	// Driver selects the database: "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `yaml:"database_url,omitempty"`

	// Schema holds document tables. Empty means the driver default
	// ("public" for postgres, "main" for sqlite).
	Schema string `yaml:"schema,omitempty"`

	// AutoCreate is the schema policy applied when a document type is first used.
	AutoCreate string `yaml:"auto_create"`

	// HiloMaxLo is the number of integer ids reserved per HiLo round trip.
	HiloMaxLo int `yaml:"hilo_max_lo"`

	Pool PoolOptions `yaml:"pool"`
	Log  LogOptions  `yaml:"log"`
}

// PoolOptions configures the PostgreSQL connection pool.
type PoolOptions struct {
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
}

// LogOptions configures logging.
type LogOptions struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns options for a local SQLite store.
func Default() *StoreOptions {
	return &StoreOptions{
		Driver:     DriverSQLite,
		Path:       "marten.db",
		AutoCreate: AutoCreateAll,
		HiloMaxLo:  1000,
		Pool: PoolOptions{
			MaxConns:    10,
			MinConns:    1,
			MaxIdleTime: 30 * time.Minute,
			MaxLifetime: time.Hour,
		},
		Log: LogOptions{Level: "info", Format: "text"},
	}
}

// Load reads options from a YAML file, applies MARTEN_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*StoreOptions, error) {
	opts := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, opts); err != nil {
			return nil, err
		}
	}
	opts.applyEnv()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return opts, nil
}

// Parse decodes YAML into opts. Unknown fields are rejected.
func Parse(data []byte, opts *StoreOptions) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(opts); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (o *StoreOptions) applyEnv() {
	o.Driver = getEnv("MARTEN_DRIVER", o.Driver)
	o.Path = getEnv("MARTEN_SQLITE_PATH", o.Path)
	o.DatabaseURL = getEnv("MARTEN_DATABASE_URL", o.DatabaseURL)
	o.Schema = getEnv("MARTEN_SCHEMA", o.Schema)
	o.AutoCreate = getEnv("MARTEN_AUTO_CREATE", o.AutoCreate)
	o.HiloMaxLo = getEnvInt("MARTEN_HILO_MAX_LO", o.HiloMaxLo)
	o.Pool.MaxConns = getEnvInt("MARTEN_POOL_MAX_CONNS", o.Pool.MaxConns)
	o.Pool.MinConns = getEnvInt("MARTEN_POOL_MIN_CONNS", o.Pool.MinConns)
	o.Pool.MaxIdleTime = getEnvDuration("MARTEN_POOL_MAX_IDLE_TIME", o.Pool.MaxIdleTime)
	o.Pool.MaxLifetime = getEnvDuration("MARTEN_POOL_MAX_LIFETIME", o.Pool.MaxLifetime)
	o.Log.Level = getEnv("MARTEN_LOG_LEVEL", o.Log.Level)
	o.Log.Format = getEnv("MARTEN_LOG_FORMAT", o.Log.Format)
}

// Validate checks if options are usable.
func (o *StoreOptions) Validate() error {
	var errs []error

	switch o.Driver {
	case DriverSQLite:
		if o.Path == "" {
			errs = append(errs, errors.New("sqlite driver requires path"))
		}
		if o.Schema != "" && o.Schema != "main" {
			errs = append(errs, fmt.Errorf("sqlite only has schema main, got %q", o.Schema))
		}
	case DriverPostgres:
		if o.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres driver requires database_url"))
		}
		if o.Pool.MaxConns < o.Pool.MinConns {
			errs = append(errs, errors.New("pool max_conns must be >= min_conns"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", o.Driver))
	}

	switch o.AutoCreate {
	case AutoCreateAll, AutoCreateCreateOrUpdate, AutoCreateCreateOnly, AutoCreateNone:
	default:
		errs = append(errs, fmt.Errorf("unknown auto_create policy %q", o.AutoCreate))
	}

	if o.HiloMaxLo < 1 {
		errs = append(errs, fmt.Errorf("hilo_max_lo must be positive, got %d", o.HiloMaxLo))
	}

	return errors.Join(errs...)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
