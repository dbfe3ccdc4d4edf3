package config

import (
	"fmt"
	"log/slog"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn on the default dev password but don't block local development.
	if c.PostgresPassword == "easel_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// Cache configuration
	if c.L1MaxEntries < 1 {
		return fmt.Errorf("%w: l1_max_entries must be at least 1, got %d",
			ErrInvalidCacheLimit, c.L1MaxEntries)
	}

	if c.L1MaxBytes < 1 {
		return fmt.Errorf("%w: l1_max_bytes must be at least 1, got %d",
			ErrInvalidCacheLimit, c.L1MaxBytes)
	}

	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("%w: cache_ttl_seconds cannot be negative, got %d",
			ErrInvalidCacheTTL, c.CacheTTLSeconds)
	}

	if c.CacheDBPath == "" {
		return fmt.Errorf("%w: cache_db_path cannot be empty", ErrInvalidCachePath)
	}

	// Sync configuration
	if c.SyncQueueSize < 1 || c.SyncQueueSize > MaxQueueSize {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidQueueSize, MaxQueueSize, c.SyncQueueSize)
	}

	if c.SyncPushRate <= 0 {
		return fmt.Errorf("%w: sync_push_rate must be positive, got %f",
			ErrInvalidPushRate, c.SyncPushRate)
	}

	if c.SyncPushBurst < 1 {
		return fmt.Errorf("%w: sync_push_burst must be at least 1, got %d",
			ErrInvalidPushRate, c.SyncPushBurst)
	}

	return nil
}
