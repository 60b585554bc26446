// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

// Command server runs the CRM mirror service: the sync engine, the mirror
// store, and the HTTP API, supervised as one tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/crmlens/crmlens/internal/api"
	"github.com/crmlens/crmlens/internal/config"
	"github.com/crmlens/crmlens/internal/database"
	"github.com/crmlens/crmlens/internal/hubspot"
	"github.com/crmlens/crmlens/internal/logging"
	"github.com/crmlens/crmlens/internal/supervisor"
	"github.com/crmlens/crmlens/internal/supervisor/services"
	"github.com/crmlens/crmlens/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet; the default logger handles this.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("remote_url", cfg.HubSpot.BaseURL).
		Bool("schedule_enabled", cfg.Sync.ScheduleEnabled).
		Msg("Starting Crmlens")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize mirror store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing mirror store")
		}
	}()
	logging.Info().Msg("Mirror store initialized")

	// The breaker wrap is optional; retries and rate pacing live in the
	// client either way.
	var remote hubspot.API = hubspot.NewClient(&cfg.HubSpot)
	if cfg.HubSpot.BreakerEnabled {
		remote = hubspot.NewBreakerClient(hubspot.NewClient(&cfg.HubSpot))
		logging.Info().Msg("Remote client circuit breaker enabled")
	}

	engine := sync.NewEngine(db, remote, cfg.Sync)

	handler := api.NewHandler(engine, db, &cfg.API)
	router := api.NewRouter(handler, &cfg.API)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	if cfg.Sync.ScheduleEnabled {
		tree.AddSyncService(sync.NewScheduler(engine, cfg.Sync.Interval))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")

	errCh := tree.ServeBackground(ctx)
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("Shutdown complete")
}
