package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acadvault/acadvault-api/config"
	redisadapter "github.com/acadvault/acadvault-api/internal/adapters/redis"
	"github.com/acadvault/acadvault-api/internal/data"
	httpx "github.com/acadvault/acadvault-api/internal/http"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
)

// NewMetrics returns a StatsD client, or nil when metrics are disabled.
func NewMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	if !cfg.IsEnabled() {
		return nil, nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled:    true,
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		GlobalTags: map[string]string{"service": "acadvault"},
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create statsd client: %w", err)
	}
	return client, nil
}

// Run connects Postgres and Redis, serves the application and blocks until ctx
// is cancelled or the server fails.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (err error) {
	if err = ValidateConfig(cfg); err != nil {
		return err
	}

	db, err := ConnectDB(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err = RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	redisClient, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close redis: %w", cerr))
		}
	}()

	metricsClient, err := NewMetrics(cfg.Observability.Metrics, logger)
	if err != nil {
		return err
	}
	var sink statsd.Sink
	if metricsClient != nil {
		sink = statsd.WithTags(metricsClient, map[string]string{"auth_mode": string(cfg.Auth.Mode)})
		defer func() {
			if cerr := metricsClient.Close(); cerr != nil {
				logger.WarnContext(ctx, "close statsd client", "error", cerr)
			}
		}()
	}

	profileRepo := data.NewProfileRepo(db)
	backend, err := NewIdentityBackend(ctx, IdentityDeps{
		Auth:        cfg.Auth,
		Accounts:    data.NewAccountRepo(db),
		Provisioner: profileRepo,
		Clock:       data.RealClock{},
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	app, err := NewApp(AppDeps{
		Config:   cfg,
		Backend:  backend,
		Sessions: redisadapter.NewSessionPersistence(redisClient, cfg.Redis.KeyPrefix),
		Profiles: redisadapter.NewProfileCache(redisadapter.ProfileCacheOptions{
			Client: redisClient,
			Next:   profileRepo,
			Prefix: cfg.Redis.KeyPrefix,
			TTL:    cfg.Auth.ProfileCacheTTL,
			Logger: logger,
		}),
		Clock:     data.RealClock{},
		Metrics:   sink,
		Logger:    logger,
		Readiness: map[string]httpx.ReadinessCheck{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})
	if err != nil {
		return err
	}

	return Serve(ctx, ServeConfig{
		Server:     NewHTTPServer(cfg.HTTP.Addr, app.Handler),
		OnShutdown: app.Registry.Close,
		Logger:     logger,
	})
}
