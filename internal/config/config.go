// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (EASEL_* plus DATABASE_URL)
//  2. Config file (~/.easel/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL connection for the durable canvas store (see storage.go)
//   - Cache: two-tier cache limits and the on-device cache database path
//   - Sync: reconciliation queue capacity and remote push throttling
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidCacheLimit indicates an L1 cache limit is out of range.
	ErrInvalidCacheLimit = errors.New("invalid cache limit")

	// ErrInvalidCacheTTL indicates the default cache TTL is negative.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidCachePath indicates the on-device cache database path is empty.
	ErrInvalidCachePath = errors.New("invalid cache database path")

	// ErrInvalidQueueSize indicates the sync queue capacity is out of range.
	ErrInvalidQueueSize = errors.New("invalid sync queue size")

	// ErrInvalidPushRate indicates the remote push rate is out of range.
	ErrInvalidPushRate = errors.New("invalid sync push rate")
)

const (
	// DefaultL1MaxEntries caps the number of resident L1 cache entries.
	DefaultL1MaxEntries = 1024

	// DefaultL1MaxBytes caps the total payload size resident in L1 (16 MiB).
	DefaultL1MaxBytes = 16 << 20

	// DefaultCacheTTLSeconds is the default entry lifetime when a caller
	// supplies no TTL. Zero means entries never expire.
	DefaultCacheTTLSeconds = 3600

	// DefaultQueueSize bounds the reconciliation task queue.
	DefaultQueueSize = 256

	// MaxQueueSize is the absolute queue capacity limit to prevent OOM.
	MaxQueueSize = 65536
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Cache configuration
	L1MaxEntries    int    `mapstructure:"l1_max_entries" json:"l1_max_entries"`
	L1MaxBytes      int64  `mapstructure:"l1_max_bytes" json:"l1_max_bytes"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	CacheDBPath     string `mapstructure:"cache_db_path" json:"cache_db_path"`

	// Sync configuration
	SyncQueueSize int     `mapstructure:"sync_queue_size" json:"sync_queue_size"`
	SyncPushRate  float64 `mapstructure:"sync_push_rate" json:"sync_push_rate"` // remote pushes per second
	SyncPushBurst int     `mapstructure:"sync_push_burst" json:"sync_push_burst"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".easel")

	// Ensure directory exists (0750: config may hold credentials)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, configDir)

	v.SetEnvPrefix("EASEL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "easel")
	v.SetDefault("postgres_password", "easel_dev_password")
	v.SetDefault("postgres_db_name", "easel")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Cache defaults
	v.SetDefault("l1_max_entries", DefaultL1MaxEntries)
	v.SetDefault("l1_max_bytes", DefaultL1MaxBytes)
	v.SetDefault("cache_ttl_seconds", DefaultCacheTTLSeconds)
	v.SetDefault("cache_db_path", filepath.Join(configDir, "cache.db"))

	// Sync defaults
	v.SetDefault("sync_queue_size", DefaultQueueSize)
	v.SetDefault("sync_push_rate", 4.0)
	v.SetDefault("sync_push_burst", 8)
}
