package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VERIDICT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VERIDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Authority ──
	setStr(&cfg.Authority.PrivateKey, "VERIDICT_AUTHORITY_PRIVATE_KEY")
	setStr(&cfg.Authority.EncryptedKeyPath, "VERIDICT_AUTHORITY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Authority.KeyPassword, "VERIDICT_AUTHORITY_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VERIDICT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VERIDICT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VERIDICT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VERIDICT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VERIDICT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VERIDICT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VERIDICT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VERIDICT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VERIDICT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VERIDICT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VERIDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VERIDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VERIDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VERIDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VERIDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VERIDICT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VERIDICT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VERIDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VERIDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VERIDICT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VERIDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VERIDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VERIDICT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VERIDICT_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "VERIDICT_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.APIKey, "VERIDICT_ORACLE_API_KEY")
	setDuration(&cfg.Oracle.Timeout, "VERIDICT_ORACLE_TIMEOUT")

	// ── Resolution ──
	setDuration(&cfg.Resolution.ScanInterval, "VERIDICT_RESOLUTION_SCAN_INTERVAL")
	setDuration(&cfg.Resolution.RetryBase, "VERIDICT_RESOLUTION_RETRY_BASE")
	setDuration(&cfg.Resolution.RetryMax, "VERIDICT_RESOLUTION_RETRY_MAX")
	setInt(&cfg.Resolution.RetryBudget, "VERIDICT_RESOLUTION_RETRY_BUDGET")
	setDuration(&cfg.Resolution.LockTTL, "VERIDICT_RESOLUTION_LOCK_TTL")

	// ── Market ──
	setStr(&cfg.Market.Stake, "VERIDICT_MARKET_STAKE")
	setInt(&cfg.Market.SubmitLimit, "VERIDICT_MARKET_SUBMIT_LIMIT")
	setInt(&cfg.Market.ArchiveRetentionDays, "VERIDICT_MARKET_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VERIDICT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VERIDICT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VERIDICT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "VERIDICT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "VERIDICT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VERIDICT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VERIDICT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VERIDICT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VERIDICT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VERIDICT_MODE")
	setStr(&cfg.LogLevel, "VERIDICT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
