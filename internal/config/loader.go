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
// built-in defaults, applies HEDGEBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known HEDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Venue credentials are addressed by venue name, e.g.
// HEDGEBOT_VENUE_BINANCE_MAIN_API_KEY for a venue named "binance-main".
func applyEnvOverrides(cfg *Config) {
	// ── Engines ──
	setBool(&cfg.Arbitrage.Enabled, "HEDGEBOT_ARBITRAGE_ENABLED")
	setBool(&cfg.Arbitrage.AutoStart, "HEDGEBOT_ARBITRAGE_AUTO_START")
	setDuration(&cfg.Arbitrage.Period, "HEDGEBOT_ARBITRAGE_PERIOD")
	setDuration(&cfg.Arbitrage.MaxQuoteAge, "HEDGEBOT_ARBITRAGE_MAX_QUOTE_AGE")
	setBool(&cfg.Twap.Enabled, "HEDGEBOT_TWAP_ENABLED")
	setDuration(&cfg.Twap.MinInterval, "HEDGEBOT_TWAP_MIN_INTERVAL")
	setDuration(&cfg.Price.DefaultMaxAge, "HEDGEBOT_PRICE_DEFAULT_MAX_AGE")
	setDuration(&cfg.Executor.OrderTimeout, "HEDGEBOT_EXECUTOR_ORDER_TIMEOUT")

	// ── Audit ──
	setStr(&cfg.Audit.Dir, "HEDGEBOT_AUDIT_DIR")
	setBool(&cfg.Audit.Archive, "HEDGEBOT_AUDIT_ARCHIVE")
	setInt(&cfg.Audit.ArchiveAfterDays, "HEDGEBOT_AUDIT_ARCHIVE_AFTER_DAYS")
	setDuration(&cfg.Audit.ArchiveInterval, "HEDGEBOT_AUDIT_ARCHIVE_INTERVAL")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "HEDGEBOT_FEED_ENABLED")
	setStr(&cfg.Feed.Store, "HEDGEBOT_FEED_STORE")
	setDuration(&cfg.Feed.QuoteTTL, "HEDGEBOT_FEED_QUOTE_TTL")

	// ── Venues ──
	setStr(&cfg.SecretPassword, "HEDGEBOT_SECRET_PASSWORD")
	for i := range cfg.Venues {
		prefix := "HEDGEBOT_VENUE_" + envName(cfg.Venues[i].Name) + "_"
		setStr(&cfg.Venues[i].ApiKey, prefix+"API_KEY")
		setStr(&cfg.Venues[i].ApiSecret, prefix+"API_SECRET")
		setStr(&cfg.Venues[i].ApiSecretFile, prefix+"API_SECRET_FILE")
		setStr(&cfg.Venues[i].SpotURL, prefix+"SPOT_URL")
		setStr(&cfg.Venues[i].LinearURL, prefix+"LINEAR_URL")
		setStr(&cfg.Venues[i].InverseURL, prefix+"INVERSE_URL")
	}

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HEDGEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "HEDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HEDGEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HEDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGEBOT_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "HEDGEBOT_REDIS_STREAM_MAX_LEN")
	setStr(&cfg.Redis.KeyPrefix, "HEDGEBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HEDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HEDGEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HEDGEBOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGEBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HEDGEBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HEDGEBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "HEDGEBOT_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGEBOT_MODE")
	setStr(&cfg.LogLevel, "HEDGEBOT_LOG_LEVEL")
}

// envName upper-cases name and replaces every non-alphanumeric rune with '_'.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
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
