package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/photo-bot/internal/config"
	domain "github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/logger"
	"github.com/janhq/photo-bot/internal/infrastructure/observability"
	"github.com/janhq/photo-bot/internal/infrastructure/telegram"
	"github.com/janhq/photo-bot/internal/interfaces/bot"
	"github.com/janhq/photo-bot/internal/interfaces/httpserver"
	transport "github.com/janhq/photo-bot/internal/interfaces/telegram"
)

// Application runs the update listener next to the liveness server.
type Application struct {
	listener   *transport.Listener
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(listener *transport.Listener, httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		listener:   listener,
		httpServer: httpServer,
		log:        log,
	}
}

// Start blocks until ctx is cancelled or either component fails.
func (a *Application) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listener.Run(ctx) })
	g.Go(func() error { return a.httpServer.Run(ctx) })
	return g.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}

	var cleanups []cleanup
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](shutdownCtx); err != nil {
				log.Error().Err(err).Msg("release resource")
			}
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	metadata, closeMetadata, err := provideMetadataStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.MetadataBackend).Msg("connect metadata store")
	}
	cleanups = append(cleanups, closeMetadata)

	storageClient, localStorage, storageChecks, err := provideStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("initialize storage")
	}

	locker, lockChecks, closeLocker, err := provideLocker(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize owner lock")
	}
	cleanups = append(cleanups, closeLocker)

	botAPI, err := telegram.NewBotAPI(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect telegram")
	}

	uploadService := domain.NewService(cfg, metadata, storageClient, locker, log)
	router := bot.NewRouter(uploadService, telegram.NewFetcher(cfg, botAPI, log), log)
	listener := transport.NewListener(cfg, botAPI, router, log)

	checks := []httpserver.Check{{Name: "metadata", Fn: metadata.Ping}}
	checks = append(checks, storageChecks...)
	checks = append(checks, lockChecks...)
	var files httpserver.FileOpener
	if localStorage != nil {
		files = localStorage
	}
	httpServer := httpserver.New(cfg, log, checks, files)

	app := NewApplication(listener, httpServer, log)
	log.Info().
		Str("metadata", cfg.MetadataBackend).
		Str("storage", cfg.StorageBackend).
		Str("lifecycle", string(uploadService.Lifecycle())).
		Msg("photo bot starting")

	if err := app.Start(ctx); err != nil {
		log.Error().Err(err).Msg("application stopped with error")
		return
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
