package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/photo-bot/internal/config"
	domain "github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/database"
	"github.com/janhq/photo-bot/internal/infrastructure/lock"
	repo "github.com/janhq/photo-bot/internal/infrastructure/repository/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/storage"
	"github.com/janhq/photo-bot/internal/interfaces/httpserver"
)

// metadataStore is a repository that can also report readiness.
type metadataStore interface {
	domain.Repository
	Ping(ctx context.Context) error
}

// cleanup releases a resource acquired during wiring.
type cleanup func(ctx context.Context) error

// provideMetadataStore connects the configured metadata backend.
func provideMetadataStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (metadataStore, cleanup, error) {
	switch cfg.MetadataBackend {
	case config.MetadataPostgres:
		db, err := database.Connect(database.Config{
			DSN:             cfg.DBPostgresqlWriteDSN,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
			LogLevel:        gormlogger.Warn,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := database.AutoMigrate(ctx, db, log); err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("get sql db: %w", err)
		}
		return repo.NewGormRepository(db), func(context.Context) error { return sqlDB.Close() }, nil
	default:
		client, err := database.ConnectMongo(ctx, database.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.MetadataTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		if err := database.EnsureMongoIndexes(ctx, coll, log); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return repo.NewMongoRepository(coll, log), client.Disconnect, nil
	}
}

// provideStorage creates the appropriate storage backend based on configuration.
// The local backend is also returned separately so its files can be served over HTTP.
func provideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.Storage, *storage.LocalStorage, []httpserver.Check, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal:
		localStorage, err := storage.NewLocalStorage(cfg, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return localStorage, localStorage, []httpserver.Check{{Name: "storage", Fn: localStorage.Health}}, nil
	case config.StorageImageHost:
		return storage.NewImageHostStorage(cfg, log), nil, nil, nil
	default:
		s3Storage, err := storage.NewS3Storage(ctx, cfg, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return s3Storage, nil, []httpserver.Check{{Name: "storage", Fn: s3Storage.Health}}, nil
	}
}

// provideLocker picks the redsync locker when Redis is configured.
func provideLocker(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.Locker, []httpserver.Check, cleanup, error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, using in-process owner lock")
		return lock.NewLocalLocker(), nil, func(context.Context) error { return nil }, nil
	}
	redisLocker, err := lock.NewRedisLocker(ctx, cfg.RedisURL, cfg.OwnerLockTTL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	checks := []httpserver.Check{{Name: "redis", Fn: redisLocker.Ping}}
	return redisLocker, checks, func(context.Context) error { return redisLocker.Close() }, nil
}
