package app

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"go.temporal.io/sdk/client"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"visa-case-tracker/internal/catalog"
	"visa-case-tracker/internal/config"
	"visa-case-tracker/internal/logging"
	"visa-case-tracker/internal/remote"
	"visa-case-tracker/internal/storage"
	"visa-case-tracker/internal/tracker"
)

// Core wires the dependencies every binary shares.
var Core = fx.Options(
	fx.Provide(
		config.Load,
		NewLogger,
		NewMinioClient,
		NewRemoteClient,
		NewTemporalClient,
	),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),
)

// Cases adds persistence, the category source and the tracker service on
// top of Core.
var Cases = fx.Options(
	fx.Provide(
		NewPostgresStore,
		NewMinioStore,
		NewCatalogSource,
		NewTrackerService,
	),
)

func NewLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

// NewPostgresStore opens the pool, then pings and migrates on start.
func NewPostgresStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*storage.PostgresStore, error) {
	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("postgres ping: %w", err)
			}
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("postgres migrate: %w", err)
			}
			logger.Info("postgres ready")
			return nil
		},
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func NewMinioClient(cfg config.Config) (*minio.Client, error) {
	c, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}
	return c, nil
}

func NewMinioStore(c *minio.Client, cfg config.Config) (*storage.MinioStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.NewMinioStore(ctx, c, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("prepare bucket %s: %w", cfg.MinioBucket, err)
	}
	return store, nil
}

func NewRemoteClient(cfg config.Config) *remote.HTTPClient {
	return remote.NewHTTPClient(cfg.RemoteEngineURL, cfg.RemoteEngineAPIKey, time.Duration(cfg.RemoteTimeoutSec)*time.Second)
}

// NewCatalogSource returns the embedded catalog, or the remote engine when
// MANIFEST_SOURCE=remote. A remote source sits behind Redis when REDIS_ADDR
// is set.
func NewCatalogSource(lc fx.Lifecycle, cfg config.Config, engine *remote.HTTPClient, logger *zap.Logger) (catalog.Source, error) {
	if cfg.ManifestSource == config.ManifestSourceStatic {
		return catalog.NewStaticCatalog()
	}
	if cfg.RedisAddr == "" {
		logger.Warn("manifest source is remote without a cache")
		return engine, nil
	}

	rdb := catalog.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				logger.Warn("redis unavailable, lookups will bypass the cache", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})
	return catalog.NewRedisCache(rdb, engine, time.Duration(cfg.ManifestCacheTTL)*time.Second, logger), nil
}

func NewTrackerService(store *storage.PostgresStore, blobs *storage.MinioStore, source catalog.Source, cfg config.Config, logger *zap.Logger) *tracker.Service {
	return tracker.NewService(store, blobs, source, cfg.AllowedUploadBytes, logger)
}

func NewTemporalClient(lc fx.Lifecycle, cfg config.Config) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect temporal: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			c.Close()
			return nil
		},
	})
	return c, nil
}
