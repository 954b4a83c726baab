//go:build wireinject

package main

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/config"
	domain "github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/logger"
	"github.com/janhq/photo-bot/internal/infrastructure/storage"
	"github.com/janhq/photo-bot/internal/infrastructure/telegram"
	"github.com/janhq/photo-bot/internal/interfaces/bot"
	"github.com/janhq/photo-bot/internal/interfaces/httpserver"
	transport "github.com/janhq/photo-bot/internal/interfaces/telegram"
)

var uploadSet = wire.NewSet(
	newMetadataStore,
	wire.Bind(new(domain.Repository), new(metadataStore)),
	newStorageBundle,
	wire.FieldsOf(new(storageBundle), "Storage"),
	newLockBundle,
	wire.FieldsOf(new(lockBundle), "Locker"),
	domain.NewService,
)

var botSet = wire.NewSet(
	telegram.NewBotAPI,
	wire.Bind(new(telegram.FileResolver), new(*tgbotapi.BotAPI)),
	wire.Bind(new(transport.BotClient), new(*tgbotapi.BotAPI)),
	telegram.NewFetcher,
	wire.Bind(new(bot.Fetcher), new(*telegram.Fetcher)),
	wire.Bind(new(bot.Coordinator), new(*domain.Service)),
	bot.NewRouter,
	wire.Bind(new(transport.Handler), new(*bot.Router)),
	transport.NewListener,
)

// BuildApplication assembles the bot with Wire.
func BuildApplication(ctx context.Context) (*Application, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		uploadSet,
		botSet,
		newHTTPServer,
		NewApplication,
	)
	return nil, nil, nil
}

type storageBundle struct {
	Storage domain.Storage
	Local   *storage.LocalStorage
	Checks  []httpserver.Check
}

type lockBundle struct {
	Locker domain.Locker
	Checks []httpserver.Check
}

func newMetadataStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (metadataStore, func(), error) {
	store, closeStore, err := provideMetadataStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = closeStore(context.Background()) }, nil
}

func newStorageBundle(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storageBundle, error) {
	backend, local, checks, err := provideStorage(ctx, cfg, log)
	if err != nil {
		return storageBundle{}, err
	}
	return storageBundle{Storage: backend, Local: local, Checks: checks}, nil
}

func newLockBundle(ctx context.Context, cfg *config.Config, log zerolog.Logger) (lockBundle, func(), error) {
	locker, checks, closeLocker, err := provideLocker(ctx, cfg, log)
	if err != nil {
		return lockBundle{}, nil, err
	}
	return lockBundle{Locker: locker, Checks: checks}, func() { _ = closeLocker(context.Background()) }, nil
}

func newHTTPServer(cfg *config.Config, log zerolog.Logger, metadata metadataStore, stores storageBundle, locks lockBundle) *httpserver.HttpServer {
	checks := []httpserver.Check{{Name: "metadata", Fn: metadata.Ping}}
	checks = append(checks, stores.Checks...)
	checks = append(checks, locks.Checks...)
	var files httpserver.FileOpener
	if stores.Local != nil {
		files = stores.Local
	}
	return httpserver.New(cfg, log, checks, files)
}
