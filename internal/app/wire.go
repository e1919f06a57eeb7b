package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/arbitrage"
	"github.com/alanyoungcy/hedgebot/internal/audit"
	s3blob "github.com/alanyoungcy/hedgebot/internal/blob/s3"
	"github.com/alanyoungcy/hedgebot/internal/cache/redis"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/executor"
	"github.com/alanyoungcy/hedgebot/internal/feed"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/price"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
	"github.com/alanyoungcy/hedgebot/internal/service"
	"github.com/alanyoungcy/hedgebot/internal/store/postgres"
	"github.com/alanyoungcy/hedgebot/internal/twap"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	// Infrastructure, nil when disabled.
	Redis    *redis.Client
	Postgres *postgres.Client
	S3       *s3blob.Client

	// Quotes
	Venues     *venue.Registry
	Snapshots  domain.PushFeed
	Feed       *feed.BookTickerFeed
	Aggregator *price.Aggregator

	// Execution
	Executor *executor.Executor
	Backfill *executor.Backfiller
	Audit    *audit.Log
	Archiver *s3blob.Archiver

	// Events
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	Notifier    *notify.Notifier
	Hub         *ws.Hub
	Events      *service.EventService

	// Engines, nil when the mode does not run them.
	Arb  *arbitrage.Engine
	Twap *twap.Engine

	// Checks feeds GET /api/health.
	Checks map[string]handler.Check
}

// runsArbitrage reports whether mode evaluates monitored pairs.
func runsArbitrage(mode string) bool {
	switch mode {
	case "arbitrage", "full":
		return true
	default:
		return false
	}
}

// runsTwap reports whether mode executes TWAP plans.
func runsTwap(mode string) bool {
	switch mode {
	case "twap", "full":
		return true
	default:
		return false
	}
}

// Wire constructs every concrete dependency from cfg and returns them with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	mode := strings.ToLower(cfg.Mode)
	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL ---
	var (
		pairStore domain.PairStore
		planStore domain.PlanStore
		execStore domain.ExecutionStore
	)
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		pairStore = postgres.NewPairStore(pool)
		planStore = postgres.NewPlanStore(pool)
		execStore = postgres.NewExecutionStore(pool)
		deps.Postgres = pgClient
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close failed", slog.String("error", err.Error()))
			}
		})

		deps.Redis = redisClient
		deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- Push snapshots ---
	var sink domain.QuoteSink
	if cfg.Feed.Store == "redis" && deps.Redis != nil {
		qc := redis.NewQuoteCache(deps.Redis, cfg.Feed.QuoteTTL.Duration)
		deps.Snapshots, sink = qc, qc
	} else {
		snaps := feed.NewSnapshots()
		deps.Snapshots, sink = snaps, snaps
	}

	// --- Venues and quotes ---
	venues, err := resolveVenueSecrets(cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	registry, err := venue.Build(venues, venue.Deps{
		Quotes:  deps.Snapshots,
		Limiter: deps.RateLimiter,
		Logger:  logger,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Venues = registry
	deps.Aggregator = price.NewAggregator(deps.Snapshots, registry, logger,
		price.WithDefaultMaxAge(cfg.Price.DefaultMaxAge.Duration),
	)

	if cfg.Feed.Enabled {
		deps.Feed = feed.NewBookTickerFeed(feedStreams(cfg.Feed.Streams), sink, logger)
		closers = append(closers, deps.Feed.Close)
	}

	// --- Audit log ---
	var auditOpts []audit.Option
	if execStore != nil {
		auditOpts = append(auditOpts, audit.WithMirror(execStore))
	}
	auditLog, err := audit.New(cfg.Audit.Dir, logger, auditOpts...)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Audit = auditLog

	// --- S3 archive ---
	if cfg.Audit.Archive {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.S3 = s3Client
		deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverConfig{
			Prefix:    cfg.Audit.ArchivePrefix,
			AfterDays: cfg.Audit.ArchiveAfterDays,
			Interval:  cfg.Audit.ArchiveInterval.Duration,
		}, auditLog, s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Events ---
	deps.Notifier = notify.NewNotifier(notifySenders(cfg.Notify), cfg.Notify.Events, logger)
	var alerts service.Alerter
	if deps.Notifier.Enabled() {
		alerts = deps.Notifier
	}
	var local service.Broadcaster
	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(deps.SignalBus, service.Channels, mode, logger)
		local = deps.Hub
	}
	deps.Events = service.NewEventService(deps.SignalBus, alerts, local, logger)

	// --- Execution ---
	deps.Executor = executor.New(registry, cfg.Executor.OrderTimeout.Duration, logger)
	deps.Backfill = executor.NewBackfiller(registry, auditLog, deps.Events, cfg.Executor.Delays(), logger)
	closers = append(closers, deps.Backfill.Close)

	// --- Engines ---
	if runsArbitrage(mode) && cfg.Arbitrage.Enabled {
		deps.Arb = arbitrage.NewEngine(arbitrage.Config{
			Period:      cfg.Arbitrage.Period.Duration,
			MaxQuoteAge: cfg.Arbitrage.MaxQuoteAge.Duration,
		}, arbitrage.Deps{
			Quotes:   deps.Aggregator,
			Venues:   registry,
			Executor: deps.Executor,
			Audit:    auditLog,
			Backfill: deps.Backfill,
			Events:   deps.Events,
			Store:    pairStore,
			Logger:   logger,
		})
	}
	if runsTwap(mode) && cfg.Twap.Enabled {
		deps.Twap = twap.NewEngine(twap.Config{
			MinInterval: cfg.Twap.MinInterval.Duration,
		}, twap.Deps{
			Venues:   registry,
			Executor: deps.Executor,
			Audit:    auditLog,
			Backfill: deps.Backfill,
			Events:   deps.Events,
			Store:    planStore,
			Logger:   logger,
		})
	}

	return deps, cleanup, nil
}

// resolveVenueSecrets returns a copy of the venue configs with encrypted
// api secrets decrypted. cfg itself is left untouched.
func resolveVenueSecrets(cfg *config.Config) ([]config.VenueConfig, error) {
	out := make([]config.VenueConfig, len(cfg.Venues))
	copy(out, cfg.Venues)
	for i := range out {
		if out[i].ApiSecret != "" || out[i].ApiSecretFile == "" {
			continue
		}
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			EncryptedPath: out[i].ApiSecretFile,
			Password:      cfg.SecretPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("venue %s: api secret: %w", out[i].Name, err)
		}
		out[i].ApiSecret = secret
	}
	return out, nil
}

// feedStreams converts configured streams into feed subscriptions.
func feedStreams(cfgs []config.StreamConfig) []feed.Stream {
	out := make([]feed.Stream, 0, len(cfgs))
	for _, s := range cfgs {
		out = append(out, feed.Stream{
			Venue:    s.Venue,
			Category: domain.MarketCategory(s.Category),
			URL:      s.URL,
			Symbols:  s.Symbols,
		})
	}
	return out
}

// notifySenders builds one sender per configured channel.
func notifySenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return senders
}
