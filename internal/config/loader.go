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
// built-in defaults, applies RESOLVD_* environment variable overrides, and
// returns the final Config. When path is empty only defaults and environment
// overrides apply. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RESOLVD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "RESOLVD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RESOLVD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RESOLVD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "RESOLVD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "RESOLVD_SERVER_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RESOLVD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RESOLVD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RESOLVD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RESOLVD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RESOLVD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RESOLVD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RESOLVD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RESOLVD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RESOLVD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RESOLVD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RESOLVD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RESOLVD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RESOLVD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RESOLVD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RESOLVD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RESOLVD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RESOLVD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RESOLVD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RESOLVD_S3_REGION")
	setStr(&cfg.S3.Bucket, "RESOLVD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RESOLVD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RESOLVD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RESOLVD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RESOLVD_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "RESOLVD_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.APIKey, "RESOLVD_ORACLE_API_KEY")
	setDuration(&cfg.Oracle.Timeout, "RESOLVD_ORACLE_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RESOLVD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RESOLVD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RESOLVD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RESOLVD_NOTIFY_EVENTS")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "RESOLVD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "RESOLVD_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "RESOLVD_MODE")
	setStr(&cfg.LogLevel, "RESOLVD_LOG_LEVEL")
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
