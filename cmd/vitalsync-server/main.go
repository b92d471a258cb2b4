// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

// vitalsync-server hosts the sync API: device authentication plus the pull
// and push replication endpoints, backed by PostgreSQL.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaltrack/go-vitalsync/internal/config"
	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	service, err := vitalsync.NewSyncService(pool, &vitalsync.ServiceConfig{
		AppName:          cfg.App.Name,
		DefaultPullLimit: cfg.Sync.DefaultPullLimit,
		MaxPullLimit:     cfg.Sync.MaxPullLimit,
	}, nil, logger)
	if err != nil {
		logger.Error("Failed to initialize sync service", "error", err)
		os.Exit(1)
	}

	authenticator := vitalsync.NewDeviceAuthenticator(service.Sessions(), nil, logger)
	handlers := vitalsync.NewHTTPSyncHandlers(service, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      newRouter(handlers, authenticator),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Sync server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down sync server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

func newRouter(handlers *vitalsync.HTTPSyncHandlers, authenticator *vitalsync.DeviceAuthenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/sync/authenticate", handlers.HandleAuthenticate)
	r.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)
		r.Post("/sync/pull", handlers.HandlePull)
		r.Post("/sync/push", handlers.HandlePush)
	})
	return r
}

func newPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.App.Name

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Debug("Connected to database", "max_conns", cfg.Database.MaxConns)
	return pool, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
