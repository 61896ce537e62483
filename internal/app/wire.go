package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/offerstream/internal/blob/s3"
	"github.com/alanyoungcy/offerstream/internal/cache/redis"
	"github.com/alanyoungcy/offerstream/internal/config"
	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
	"github.com/alanyoungcy/offerstream/internal/server/ws"
	"github.com/alanyoungcy/offerstream/internal/store/postgres"
)

// Dependencies bundles the optional infrastructure the modes build on. Every
// field is nil when its backing service is disabled in the configuration.
type Dependencies struct {
	Registry *prometheus.Registry

	// Redis
	RateLimiter domain.RateLimiter
	Relay       *redis.OfferRelay
	JobLock     *redis.JobLock

	// Postgres
	Journal *postgres.EventJournal

	// Object storage
	BlobWriter domain.BlobWriter
}

// Sinks returns the hub sinks that are wired.
func (d *Dependencies) Sinks() []ws.Sink {
	var sinks []ws.Sink
	if d.Relay != nil {
		sinks = append(sinks, d.Relay)
	}
	if d.Journal != nil {
		sinks = append(sinks, d.Journal)
	}
	return sinks
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Registry: prometheus.NewRegistry()}
	if err := metrics.Register(deps.Registry); err != nil {
		return nil, nil, fmt.Errorf("wire: metrics: %w", err)
	}
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// --- Redis (relay sink, API rate limiting, job leases) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Relay = redis.NewOfferRelay(bus, cfg.Redis.Channel, cfg.Redis.Stream)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.JobLock = redis.NewJobLock(redisClient)
		logger.InfoContext(ctx, "wire: redis connected",
			slog.String("channel", cfg.Redis.Channel),
			slog.String("stream", cfg.Redis.Stream),
		)
	}

	// --- PostgreSQL (change journal) ---
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
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if _, err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Journal = postgres.NewEventJournal(pgClient.Pool())
	}

	// --- S3 blob storage (snapshot exports and journal archives) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: s3 bucket not reachable, uploads will be retried",
				slog.String("error", err.Error()),
			)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	return deps, cleanup, nil
}
