package config

import (
	"errors"
	"testing"
)

// validConfig returns a configuration that passes Validate().
func validConfig() *Config {
	return &Config{
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "easel",
		PostgresPassword: "easel_dev_password",
		PostgresDBName:   "easel",
		PostgresSSLMode:  "disable",
		L1MaxEntries:     DefaultL1MaxEntries,
		L1MaxBytes:       DefaultL1MaxBytes,
		CacheTTLSeconds:  DefaultCacheTTLSeconds,
		CacheDBPath:      "/tmp/easel-cache.db",
		SyncQueueSize:    DefaultQueueSize,
		SyncPushRate:     4.0,
		SyncPushBurst:    8,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var c *Config
	if err := c.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("expected ErrConfigNil, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port too low", func(c *Config) { c.PostgresPort = 0 }, ErrInvalidPostgresPort},
		{"port too high", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"empty password", func(c *Config) { c.PostgresPassword = "" }, ErrInvalidPostgresPassword},
		{"zero l1 entries", func(c *Config) { c.L1MaxEntries = 0 }, ErrInvalidCacheLimit},
		{"zero l1 bytes", func(c *Config) { c.L1MaxBytes = 0 }, ErrInvalidCacheLimit},
		{"negative ttl", func(c *Config) { c.CacheTTLSeconds = -1 }, ErrInvalidCacheTTL},
		{"empty cache path", func(c *Config) { c.CacheDBPath = "" }, ErrInvalidCachePath},
		{"zero queue size", func(c *Config) { c.SyncQueueSize = 0 }, ErrInvalidQueueSize},
		{"huge queue size", func(c *Config) { c.SyncQueueSize = MaxQueueSize + 1 }, ErrInvalidQueueSize},
		{"zero push rate", func(c *Config) { c.SyncPushRate = 0 }, ErrInvalidPushRate},
		{"zero push burst", func(c *Config) { c.SyncPushBurst = 0 }, ErrInvalidPushRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
