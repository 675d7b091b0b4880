package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/api"
	"github.com/itsvicky-dev/chatio/internal/auth"
	"github.com/itsvicky-dev/chatio/internal/config"
	"github.com/itsvicky-dev/chatio/internal/database"
	"github.com/itsvicky-dev/chatio/internal/handlers"
	"github.com/itsvicky-dev/chatio/internal/realtime"
	"github.com/itsvicky-dev/chatio/internal/store"
	ws "github.com/itsvicky-dev/chatio/internal/websocket"
)

// callArchiver bridges the realtime core's archive hook to the call
// history repository.
type callArchiver struct {
	db database.Database
}

func (a callArchiver) ArchiveCall(ctx context.Context, rec realtime.CallRecord) error {
	return a.db.SaveCallRecord(ctx, rec)
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer db.Close()
	logger.Info().Msg("connected to PostgreSQL")

	// Initialize Redis last-seen store (optional)
	var lastSeen realtime.LastSeenStore
	var redisStore *store.RedisStore
	if cfg.Redis.URL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		lastSeen = redisStore
		logger.Info().Msg("connected to Redis")
	}

	// Initialize the realtime core
	core := realtime.New(realtime.Config{
		TypingTTL:   cfg.Realtime.TypingTTL,
		RingTimeout: cfg.Realtime.RingTimeout,
	}, db, callArchiver{db: db}, lastSeen, logger)
	go core.Run(ctx)

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWT.Secret)
	wsHandlers := handlers.NewWebSocketHandlers(authService, core, db, ws.Options{
		SendQueueSize: cfg.Realtime.SendQueueSize,
		PongWait:      cfg.Realtime.PongWait,
		PingInterval:  cfg.Realtime.PingInterval,
		WriteWait:     cfg.Realtime.WriteWait,
	}, logger)
	presenceHandlers := handlers.NewPresenceHandlers(core, redisStore, logger)

	router := api.NewRouter(logger, wsHandlers, presenceHandlers)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Server.Port).
			Str("env", cfg.Server.Env).
			Msg("starting chatio server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	// Close live connections after the HTTP listener stops accepting.
	core.Shutdown()
	cancel()

	logger.Info().Msg("server stopped")
}
