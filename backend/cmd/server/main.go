// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/memories/backend/bot"
	"github.com/efchatnet/memories/backend/config"
	"github.com/efchatnet/memories/backend/integration"
	"github.com/efchatnet/memories/backend/storage"
	"github.com/efchatnet/memories/backend/storage/memory"
	"github.com/efchatnet/memories/backend/storage/postgres"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pinger, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return exitFailed, err
	}
	defer closeStore()

	if err := store.EnsureBotProfile(ctx); err != nil {
		return exitFailed, fmt.Errorf("ensure bot profile: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return exitConfig, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return exitFailed, fmt.Errorf("redis unavailable: %w", err)
		}
	}

	var generator bot.Generator
	if cfg.GeminiAPIKey != "" {
		generator = bot.NewGemini(cfg.GeminiConfig())
	} else {
		log.Warn("GEMINI_API_KEY not set, mentions and roasts are disabled")
	}

	svc, err := integration.New(ctx, integration.Config{
		Store:          store,
		Pinger:         pinger,
		Redis:          rdb,
		JWTSecret:      cfg.JWTSecret,
		JWTIssuer:      cfg.JWTIssuer,
		Generator:      generator,
		Bot:            cfg.BotConfig(),
		UnlockCron:     cfg.UnlockCron,
		WS:             cfg.WSOptions(),
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         log,
	})
	if err != nil {
		return exitConfig, err
	}
	background := svc.Start(ctx)

	router := mux.NewRouter()
	svc.RegisterRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Memories server starting", "port", cfg.Port, "storage", cfg.StorageDriver, "relay", rdb != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
	case runErr = <-background:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	svc.Shutdown()

	if runErr != nil {
		return exitFailed, runErr
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (storage.Store, integration.Pinger, func(), error) {
	if cfg.StorageDriver == "memory" {
		log.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeDB := func() {
		log.Info("Closing database...")
		_ = db.Close()
	}

	store := postgres.NewStore(db)
	if err := store.Ping(ctx); err != nil {
		closeDB()
		return nil, nil, nil, fmt.Errorf("database unavailable: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, store, closeDB, nil
}
