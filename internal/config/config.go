// Package config defines the top-level configuration for the veridict
// settlement engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VERIDICT_* environment variables.
type Config struct {
	Authority  AuthorityConfig  `toml:"authority"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Oracle     OracleConfig     `toml:"oracle"`
	Resolution ResolutionConfig `toml:"resolution"`
	Market     MarketConfig     `toml:"market"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// AuthorityConfig holds the settlement authority's signing key. The key signs
// settlement attestations; either a raw hex key or an encrypted key file may
// be supplied.
type AuthorityConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for settlement
// reports and market archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds the verdict oracle endpoint parameters.
type OracleConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// ResolutionConfig holds the resolution pipeline parameters.
type ResolutionConfig struct {
	ScanInterval duration `toml:"scan_interval"`
	RetryBase    duration `toml:"retry_base"`
	RetryMax     duration `toml:"retry_max"`
	RetryBudget  int      `toml:"retry_budget"`
	LockTTL      duration `toml:"lock_ttl"`
}

// MarketConfig holds market-wide economic parameters.
type MarketConfig struct {
	// Stake is the fixed per-prediction stake, in ledger units.
	Stake string `toml:"stake"`
	// SubmitLimit caps predictions per address per minute.
	SubmitLimit int `toml:"submit_limit"`
	// ArchiveRetentionDays is how long resolved markets stay in the primary
	// store before the archiver copies them to object storage.
	ArchiveRetentionDays int `toml:"archive_retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "veridict",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "veridict-data",
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			Timeout: duration{10 * time.Second},
		},
		Resolution: ResolutionConfig{
			ScanInterval: duration{15 * time.Second},
			RetryBase:    duration{2 * time.Second},
			RetryMax:     duration{time.Minute},
			RetryBudget:  5,
			LockTTL:      duration{2 * time.Minute},
		},
		Market: MarketConfig{
			Stake:                "100",
			SubmitLimit:          10,
			ArchiveRetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_settled", "oracle_stuck", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":      true,
	"resolver": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, resolver, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Authority key is needed wherever settlement can happen.
	needsKey := c.Mode == "resolver" || c.Mode == "full"
	if needsKey {
		if c.Authority.PrivateKey == "" && c.Authority.EncryptedKeyPath == "" {
			errs = append(errs, "authority: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Authority.EncryptedKeyPath != "" && c.Authority.KeyPassword == "" {
			errs = append(errs, "authority: key_password is required when encrypted_key_path is set")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Oracle is required wherever the resolution pipeline runs.
	if needsKey {
		if c.Oracle.BaseURL == "" {
			errs = append(errs, "oracle: base_url is required for mode "+c.Mode)
		}
		if c.Oracle.Timeout.Duration <= 0 {
			errs = append(errs, "oracle: timeout must be > 0")
		}
	}

	// Resolution
	if c.Resolution.ScanInterval.Duration <= 0 {
		errs = append(errs, "resolution: scan_interval must be > 0")
	}
	if c.Resolution.RetryBudget < 1 {
		errs = append(errs, "resolution: retry_budget must be >= 1")
	}
	if c.Resolution.RetryBase.Duration <= 0 {
		errs = append(errs, "resolution: retry_base must be > 0")
	}
	if c.Resolution.RetryMax.Duration < c.Resolution.RetryBase.Duration {
		errs = append(errs, "resolution: retry_max must be >= retry_base")
	}
	if c.Resolution.LockTTL.Duration <= 0 {
		errs = append(errs, "resolution: lock_ttl must be > 0")
	}

	// Market
	if strings.TrimSpace(c.Market.Stake) == "" {
		errs = append(errs, "market: stake must not be empty")
	}
	if c.Market.SubmitLimit < 1 {
		errs = append(errs, "market: submit_limit must be >= 1")
	}
	if c.Market.ArchiveRetentionDays < 1 {
		errs = append(errs, "market: archive_retention_days must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
