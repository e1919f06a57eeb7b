// Package config defines the top-level configuration for hedgebot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGEBOT_* environment variables.
type Config struct {
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Twap      TwapConfig      `toml:"twap"`
	Price     PriceConfig     `toml:"price"`
	Executor  ExecutorConfig  `toml:"executor"`
	Audit     AuditConfig     `toml:"audit"`
	Feed      FeedConfig      `toml:"feed"`
	Venues    []VenueConfig   `toml:"venues"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`

	// SecretPassword decrypts venue api_secret_file entries.
	SecretPassword string `toml:"secret_password"`
}

// ArbitrageConfig holds the spread-triggered engine parameters.
type ArbitrageConfig struct {
	Enabled bool `toml:"enabled"`
	// AutoStart begins evaluation at boot; otherwise the loop waits for
	// POST /api/arbitrage/start.
	AutoStart bool     `toml:"auto_start"`
	Period    duration `toml:"period"`
	// MaxQuoteAge bounds how old a quote may be when evaluating a pair.
	MaxQuoteAge duration `toml:"max_quote_age"`
}

// TwapConfig holds the time-sliced engine parameters.
type TwapConfig struct {
	Enabled bool `toml:"enabled"`
	// MinInterval rejects plans scheduled tighter than this.
	MinInterval duration `toml:"min_interval"`
}

// PriceConfig holds PriceAggregator parameters.
type PriceConfig struct {
	DefaultMaxAge duration `toml:"default_max_age"`
}

// ExecutorConfig holds leg placement and price backfill parameters.
type ExecutorConfig struct {
	OrderTimeout   duration   `toml:"order_timeout"`
	BackfillDelays []duration `toml:"backfill_delays"`
}

// AuditConfig holds execution log parameters.
type AuditConfig struct {
	Dir              string   `toml:"dir"`
	Archive          bool     `toml:"archive"`
	ArchiveAfterDays int      `toml:"archive_after_days"`
	ArchiveInterval  duration `toml:"archive_interval"`
	ArchivePrefix    string   `toml:"archive_prefix"`
}

// FeedConfig holds push-feed parameters.
type FeedConfig struct {
	Enabled bool `toml:"enabled"`
	// Store selects the push snapshot store: "memory" or "redis".
	Store    string         `toml:"store"`
	QuoteTTL duration       `toml:"quote_ttl"`
	Streams  []StreamConfig `toml:"streams"`
}

// StreamConfig describes one websocket bookTicker subscription.
type StreamConfig struct {
	Venue    string   `toml:"venue"`
	Category string   `toml:"category"`
	URL      string   `toml:"url"`
	Symbols  []string `toml:"symbols"`
}

// VenueConfig describes one execution venue adapter.
type VenueConfig struct {
	Name string `toml:"name"`
	// Kind selects the adapter: "binance" or "paper".
	Kind        string `toml:"kind"`
	SpotURL     string `toml:"spot_url"`
	LinearURL   string `toml:"linear_url"`
	InverseURL  string `toml:"inverse_url"`
	ApiKey      string `toml:"api_key"`
	ApiSecret   string `toml:"api_secret"`
	RecvWindow  int    `toml:"recv_window"`
	PullPerMin  int    `toml:"pull_per_min"`
	PaperSlipBp int    `toml:"paper_slip_bps"`

	// ApiSecretFile is an encrypted secret file used when ApiSecret is empty.
	ApiSecretFile string `toml:"api_secret_file"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`

	// KeyPrefix namespaces keys and channels so several bots can share one
	// server.
	KeyPrefix string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "250ms", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`

	// RateLimitPerMin caps API requests per client IP when Redis is
	// enabled. 0 disables the limit.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Arbitrage: ArbitrageConfig{
			Enabled:     true,
			AutoStart:   true,
			Period:      duration{250 * time.Millisecond},
			MaxQuoteAge: duration{5 * time.Second},
		},
		Twap: TwapConfig{
			Enabled:     true,
			MinInterval: duration{time.Second},
		},
		Price: PriceConfig{
			DefaultMaxAge: duration{5 * time.Second},
		},
		Executor: ExecutorConfig{
			OrderTimeout: duration{10 * time.Second},
			BackfillDelays: []duration{
				{2 * time.Second},
				{3 * time.Second},
				{5 * time.Second},
			},
		},
		Audit: AuditConfig{
			Dir:              "data/executions",
			Archive:          false,
			ArchiveAfterDays: 7,
			ArchiveInterval:  duration{time.Hour},
			ArchivePrefix:    "archive/executions",
		},
		Feed: FeedConfig{
			Enabled:  false,
			Store:    "memory",
			QuoteTTL: duration{time.Minute},
		},
		Venues: []VenueConfig{
			{Name: "paper-a", Kind: "paper"},
			{Name: "paper-b", Kind: "paper"},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
			KeyPrefix:    "hedgebot",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hedgebot-audit",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 600,
		},
		Notify: NotifyConfig{
			Events: []string{"unhedged_position", "pair_disabled", "twap_state"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"arbitrage": true,
	"twap":      true,
	"full":      true,
	"monitor":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenueKinds = map[string]bool{
	"binance": true,
	"paper":   true,
}

var validCategories = map[string]bool{
	"spot":    true,
	"linear":  true,
	"inverse": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: arbitrage, twap, full, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engines
	if c.Arbitrage.Period.Duration <= 0 {
		errs = append(errs, "arbitrage: period must be > 0")
	}
	if c.Arbitrage.MaxQuoteAge.Duration <= 0 {
		errs = append(errs, "arbitrage: max_quote_age must be > 0")
	}
	if c.Twap.MinInterval.Duration < 0 {
		errs = append(errs, "twap: min_interval must be >= 0")
	}
	if c.Price.DefaultMaxAge.Duration <= 0 {
		errs = append(errs, "price: default_max_age must be > 0")
	}
	if c.Executor.OrderTimeout.Duration <= 0 {
		errs = append(errs, "executor: order_timeout must be > 0")
	}
	for i, d := range c.Executor.BackfillDelays {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("executor: backfill_delays[%d] must be > 0", i))
		}
	}

	// Audit
	if strings.TrimSpace(c.Audit.Dir) == "" {
		errs = append(errs, "audit: dir must not be empty")
	}
	if c.Audit.Archive {
		if c.Audit.ArchiveAfterDays < 1 {
			errs = append(errs, "audit: archive_after_days must be >= 1 when archive is enabled")
		}
		if c.Audit.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "audit: archive_interval must be > 0 when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when audit.archive is enabled")
		}
	}

	// Venues
	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured")
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
		} else if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("venues[%d]: duplicate name %q", i, v.Name))
		}
		seen[v.Name] = true
		if !validVenueKinds[v.Kind] {
			errs = append(errs, fmt.Sprintf("venues[%d]: unknown kind %q (valid: binance, paper)", i, v.Kind))
		}
		if v.Kind == "binance" && (v.ApiKey == "" || (v.ApiSecret == "" && v.ApiSecretFile == "")) {
			errs = append(errs, fmt.Sprintf("venues[%d]: api_key and api_secret (or api_secret_file) are required for binance", i))
		}
		if v.ApiSecret == "" && v.ApiSecretFile != "" && c.SecretPassword == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: api_secret_file requires secret_password", i))
		}
	}

	// Feed
	if c.Feed.Store != "memory" && c.Feed.Store != "redis" {
		errs = append(errs, fmt.Sprintf("feed: unknown store %q (valid: memory, redis)", c.Feed.Store))
	}
	if c.Feed.Store == "redis" && !c.Redis.Enabled {
		errs = append(errs, "feed: store \"redis\" requires redis.enabled")
	}
	if c.Feed.Enabled {
		for i, s := range c.Feed.Streams {
			if !seen[s.Venue] {
				errs = append(errs, fmt.Sprintf("feed.streams[%d]: venue %q is not configured", i, s.Venue))
			}
			if !validCategories[s.Category] {
				errs = append(errs, fmt.Sprintf("feed.streams[%d]: unknown category %q", i, s.Category))
			}
			if s.URL == "" {
				errs = append(errs, fmt.Sprintf("feed.streams[%d]: url must not be empty", i))
			}
			if len(s.Symbols) == 0 {
				errs = append(errs, fmt.Sprintf("feed.streams[%d]: symbols must not be empty", i))
			}
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Delays returns the configured backfill schedule as plain durations.
func (c *ExecutorConfig) Delays() []time.Duration {
	out := make([]time.Duration, len(c.BackfillDelays))
	for i, d := range c.BackfillDelays {
		out[i] = d.Duration
	}
	return out
}
