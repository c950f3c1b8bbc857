package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/harborline/backend-tracking/internal/aggregator"
	"github.com/harborline/backend-tracking/internal/cache"
	"github.com/harborline/backend-tracking/internal/config"
	"github.com/harborline/backend-tracking/internal/lock"
	"github.com/harborline/backend-tracking/internal/obs"
	"github.com/harborline/backend-tracking/internal/provider"
	"github.com/harborline/backend-tracking/internal/queue"
	"github.com/harborline/backend-tracking/internal/ratelimit"
	"github.com/harborline/backend-tracking/internal/routing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var (
		pool     *pgxpool.Pool
		dlqStore queue.Store
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pool = mustInitDatabase(ctx, cfg, logger)
		defer pool.Close()
		dlqStore = queue.NewStore(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, dead letters fall back to redis")
	}

	registry := provider.NewRegistry(cfg.Providers, logger)
	router := routing.NewRouter(registry.Configs(), nil, routing.Weights{})
	results := cache.NewResults(redisClient, cfg.CacheTTL)
	agg := aggregator.New(
		registry,
		router,
		results,
		ratelimit.NewWindowLimiter(time.Minute),
		ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:"},
		aggregator.NewHistory(cfg.FailureWindow),
		&lock.Locker{R: redisClient},
		logger,
		aggregator.Config{
			EarlyExitReliability: cfg.EarlyExitReliability,
			OverallTimeout:       cfg.OverallTimeout,
		},
	)

	refreshWorker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueuePrefix,
		Kind:              queue.KindRefresh,
		Concurrency:       cfg.WorkerConcurrency,
		VisibilityTimeout: cfg.WorkerVisibility,
		SoftDeadline:      cfg.OverallTimeout,
		RetryBase:         cfg.WorkerRetryBase,
		RetryJitter:       0.2,
		Store:             dlqStore,
		Logger:            &logger,
		Handler: func(jobCtx context.Context, task queue.Task) error {
			payload, err := queue.DecodeRefresh(task)
			if err != nil {
				return err
			}
			_, err = agg.Refresh(jobCtx, payload.TrackingNumber, provider.ParseKind(payload.Kind))
			if obs.RefreshTaskTotal != nil {
				outcome := "ok"
				if err != nil {
					outcome = "error"
				}
				obs.RefreshTaskTotal.WithLabelValues(outcome).Inc()
			}
			return err
		},
	}

	obs.MustRegisterDomainMetrics("tracking", nil)

	logger.Info().Strs("providers", registry.Names()).Msg("worker starting")
	if err := refreshWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "tracking-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}
