// Package config resolves chunklite configuration and storage directories.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Source identifies where the database file lives.
const (
	SourceCDN    = "cdn"
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Server modes. Partial selects the chunked-fetch path; full downloads the
// whole file before opening it.
const (
	ModeFull    = "full"
	ModePartial = "partial"
)

// DatabaseConfig describes one remote (or local) database.
type DatabaseConfig struct {
	Source           string `validate:"oneof=cdn local remote"`
	ServerMode       string `validate:"oneof=full partial"`
	RequestChunkSize int    `validate:"gt=0"`
	URL              string `validate:"required"`
}

// CacheConfig bounds the in-memory caches.
type CacheConfig struct {
	ChunkBudgetBytes   int64         `validate:"gt=0"`
	QueryTTL           time.Duration `validate:"gt=0"`
	SlowQueryThreshold time.Duration `validate:"gt=0"`
}

// TimeoutConfig holds the per-tier timeout budgets.
type TimeoutConfig struct {
	EngineInit time.Duration `validate:"gt=0"`
	BulkFetch  time.Duration `validate:"gt=0"`
	QueryExec  time.Duration `validate:"gt=0"`
	Emergency  time.Duration `validate:"gt=0"`
}

// TelemetryConfig controls the local slow-query/transfer store.
type TelemetryConfig struct {
	Enabled bool
	DBPath  string
}

// Config is the full runtime configuration.
type Config struct {
	Database  DatabaseConfig
	Cache     CacheConfig
	Timeouts  TimeoutConfig
	Telemetry TelemetryConfig
	Debug     bool
}

// Default returns the configuration defaults. The caller fills in
// Database.URL before use.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Source:           SourceRemote,
			ServerMode:       ModePartial,
			RequestChunkSize: 64 * 1024,
		},
		Cache: CacheConfig{
			ChunkBudgetBytes:   64 * 1024 * 1024,
			QueryTTL:           5 * time.Minute,
			SlowQueryThreshold: 500 * time.Millisecond,
		},
		Timeouts: TimeoutConfig{
			EngineInit: 45 * time.Second,
			BulkFetch:  120 * time.Second,
			QueryExec:  90 * time.Second,
			Emergency:  180 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			DBPath:  GetTelemetryDBPath(),
		},
	}
}

// Load builds a Config from defaults, an optional .env file, and
// CHUNKLITE_* environment overrides. Callers fill in the database URL and
// then Validate.
func Load() (Config, error) {
	// Missing .env is fine; only surface real parse failures.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if v := os.Getenv("CHUNKLITE_SOURCE"); v != "" {
		cfg.Database.Source = v
	}
	if v := os.Getenv("CHUNKLITE_SERVER_MODE"); v != "" {
		cfg.Database.ServerMode = v
	}
	if v := os.Getenv("CHUNKLITE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if err := overrideInt("CHUNKLITE_CHUNK_SIZE", &cfg.Database.RequestChunkSize); err != nil {
		return Config{}, err
	}
	if err := overrideInt64("CHUNKLITE_CHUNK_BUDGET", &cfg.Cache.ChunkBudgetBytes); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CHUNKLITE_QUERY_TTL", &cfg.Cache.QueryTTL); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CHUNKLITE_SLOW_QUERY_THRESHOLD", &cfg.Cache.SlowQueryThreshold); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CHUNKLITE_TIMEOUT_INIT", &cfg.Timeouts.EngineInit); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CHUNKLITE_TIMEOUT_FETCH", &cfg.Timeouts.BulkFetch); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CHUNKLITE_TIMEOUT_QUERY", &cfg.Timeouts.QueryExec); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CHUNKLITE_TIMEOUT_EMERGENCY", &cfg.Timeouts.Emergency); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("CHUNKLITE_TELEMETRY"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CHUNKLITE_TELEMETRY value %q: %w", v, err)
		}
		cfg.Telemetry.Enabled = enabled
	}
	if v := os.Getenv("CHUNKLITE_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CHUNKLITE_DEBUG value %q: %w", v, err)
		}
		cfg.Debug = debug
	}

	return cfg, nil
}

// Validate checks the assembled configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func overrideInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func overrideInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func overrideDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

// GetBaseDir resolves the base directory for all chunklite state. It checks
// CHUNKLITE_DIR first, then XDG paths, and finally falls back to a temp
// directory.
func GetBaseDir() string {
	if explicit := os.Getenv("CHUNKLITE_DIR"); explicit != "" {
		return explicit
	}

	xdg.Reload()

	dataHome := xdg.DataHome
	if dataHome == "" {
		home := xdg.Home
		if home == "" {
			var err error
			home, err = os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "chunklite")
			}
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(dataHome, "chunklite")
}

// GetCacheDir returns the directory holding fully downloaded database files.
func GetCacheDir() string {
	return filepath.Join(GetBaseDir(), "cache")
}

// GetTelemetryDBPath returns the path of the local telemetry database.
func GetTelemetryDBPath() string {
	return filepath.Join(GetBaseDir(), "telemetry.db")
}
