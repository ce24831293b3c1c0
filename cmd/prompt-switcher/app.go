// cmd/prompt-switcher/app.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prompt-switcher/internal/common/config"
	"prompt-switcher/internal/common/database"
	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/common/observability"
	"prompt-switcher/internal/router"
	"prompt-switcher/internal/settings"
	"prompt-switcher/internal/switcher"
	"prompt-switcher/pkg/registry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds everything the subcommands share: config, logging, storage
// handles and the switcher service.
type app struct {
	cfg    *config.Config
	zapLog *zap.Logger
	log    logger.Logger

	redis    *database.RedisClient
	postgres *database.PostgresClient
	obs      *observability.Observability
	svc      *switcher.Service
}

type appOptions struct {
	configPath string
	// withObservability registers the OpenTelemetry providers; one-shot
	// commands leave it off.
	withObservability bool
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	a := &app{
		cfg:    cfg,
		zapLog: zapLog,
		log:    logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"service": cfg.App.Name}),
	}

	if err := a.init(ctx, opts); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg := a.cfg

	if opts.withObservability {
		var obsOpts []observability.Option
		if cfg.Tracing.Enabled {
			obsOpts = append(obsOpts, observability.WithJaeger(cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio))
		}
		obs, err := observability.New(cfg.App.Name, obsOpts...)
		if err != nil {
			return fmt.Errorf("observability init failed: %w", err)
		}
		a.obs = obs
	}

	if cfg.Settings.Backend == settings.BackendRedis || cfg.Router.CacheEnabled {
		a.redis = database.NewRedis(cfg.Database.Redis)
		err := retryWithBackoff(ctx, a.redis.Ping, 5, time.Second, a.log, "Redis connection")
		if err != nil {
			return err
		}
	}

	if cfg.Settings.Backend == settings.BackendPostgres {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.postgres = pg
		if err := retryWithBackoff(ctx, pg.Ping, 5, time.Second, a.log, "PostgreSQL connection"); err != nil {
			return err
		}
	}

	store, err := a.settingsStore(ctx)
	if err != nil {
		return err
	}

	defaults, err := registry.LoadTemplates(cfg.Templates.DefaultsPath)
	if err != nil {
		return fmt.Errorf("load default templates: %w", err)
	}

	routerOpts := []router.Option{
		router.WithTimeout(config.GetDuration(cfg.Router.ClassifyTimeout)),
		router.WithLogger(a.log),
	}
	if cfg.Router.CacheEnabled {
		ttl := time.Duration(cfg.Router.CacheTTL) * time.Second
		routerOpts = append(routerOpts, router.WithCache(router.NewRedisCache(a.redis.Client, ttl)))
	}

	a.svc = switcher.New(store, switcher.Defaults{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		Prompts: defaults,
	}, a.log, switcher.Options{
		BaseURL:       cfg.OpenAI.BaseURL,
		ClientTimeout: config.GetDuration(cfg.OpenAI.Timeout),
		Router:        router.New(routerOpts...),
		Observability: a.obs,
	})

	if err := a.svc.Reload(ctx); err != nil {
		return fmt.Errorf("load prompt templates: %w", err)
	}
	status := a.svc.Status()
	a.log.Info("prompt templates loaded", map[string]interface{}{
		"templates":   status.Templates,
		"fingerprint": status.Fingerprint,
		"configured":  status.Configured,
		"backend":     cfg.Settings.Backend,
	})
	return nil
}

func (a *app) settingsStore(ctx context.Context) (settings.Store, error) {
	var rdb redis.Cmdable
	if a.redis != nil {
		rdb = a.redis.Client
	}
	var db *sql.DB
	if a.postgres != nil {
		db = a.postgres.DB
	}

	store, err := settings.NewStore(a.cfg.Settings, rdb, db)
	if err != nil {
		return nil, fmt.Errorf("settings store init failed: %w", err)
	}

	if pgStore, ok := store.(*settings.PostgresStore); ok {
		if err := pgStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("settings migration failed: %w", err)
		}
	}
	return store, nil
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error("shutdown error", map[string]interface{}{"error": err.Error()})
	}
	_ = a.zapLog.Sync()
}

// retryWithBackoff calls operation until it succeeds or maxRetries attempts
// have failed, doubling the delay between attempts.
func retryWithBackoff(ctx context.Context, operation func(context.Context) error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(ctx); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}

		log.Warn(operationName+" failed, retrying", map[string]interface{}{
			"error":       err.Error(),
			"attempt":     i + 1,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
