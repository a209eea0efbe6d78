package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speakroom/backend/internal/api/handler"
	"speakroom/backend/internal/chathub"
	"speakroom/backend/internal/config"
	"speakroom/backend/internal/localization"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/speaking"
	"speakroom/backend/internal/storage"
	"speakroom/backend/internal/storage/memstore"
	"speakroom/backend/internal/telegram"

	"github.com/rs/zerolog"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

func setupStorage(cfg *config.Config, logger zerolog.Logger) storage.Storage {
	if cfg.StorageDriver == "memory" {
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return memstore.New()
	}

	svc, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	logger.Info().Msg("running database migrations...")
	if err := svc.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("connected to PostgreSQL")
	return svc
}

func setupBus(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (realtime.Bus, func()) {
	if cfg.RealtimeDriver == "memory" {
		return realtime.NewMemoryBus(logger), func() {}
	}

	rdb, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	logger.Info().Msg("connected to Redis")
	return realtime.NewRedisBus(rdb, logger), func() { _ = rdb.Close() }
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := setupStorage(cfg, logger)
	bus, closeBus := setupBus(ctx, cfg, logger.With().Str("component", "bus").Logger())
	defer closeBus()

	coord := speaking.NewCoordinator(store, bus, logger)
	chat := chathub.NewChannel(store, bus, coord.Rooms, logger.With().Str("component", "chat").Logger())
	hub := chathub.NewHub(logger.With().Str("component", "hub").Logger())
	auth := handler.NewAuthenticator(cfg.JWTSecret)

	go hub.Run(ctx)
	go speaking.NewSweeper(coord.Requests, cfg.SweepInterval, logger.With().Str("component", "sweeper").Logger()).Run(ctx)

	if cfg.TelegramBotToken != "" {
		botLogger := logger.With().Str("component", "telegram").Logger()
		parseToken := func(token string) (string, error) {
			claims, err := auth.Parse(token)
			if err != nil {
				return "", err
			}
			return claims.Subject, nil
		}
		bot, err := telegram.NewBotService(cfg.TelegramBotToken, store, parseToken, localization.Default(), botLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram bot failed to start")
		}
		coord.Requests.Notifier = telegram.NewNotifier(bot.Sender, store, localization.Default(), botLogger)
		go bot.Run(ctx)
	} else {
		logger.Info().Msg("TELEGRAM_BOT_TOKEN not set, request notifications stay in-app")
	}

	h := handler.NewHandler(coord, chat, hub, store, auth, logger)
	h.BaseContext = ctx

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        handler.NewRouter(h, cfg.IsDevelopment()),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("storage", cfg.StorageDriver).
			Str("realtime", cfg.RealtimeDriver).
			Msg("starting speakroom server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
