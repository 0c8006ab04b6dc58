// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package main is the entry point for the Daruma server.
//
// Daruma is a personal timeline store: entities with timestamps, optional
// time spans, optional GPS coordinates, and opaque JSON payloads, ingested
// over HTTP and queried by time window or spatial bounding box. Producers
// (location-history importers, journal exporters, photo indexers) push
// entities through the ingest endpoints; consumers pull them back with
// time, bbox, resampling, and streaming export queries.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Database: Open DuckDB and create the entity schema
//  3. Cache: In-memory TTL cache backing the stats endpoint
//  4. HTTP Server: Chi router with auth, rate limiting, and metrics
//  5. Supervisor Tree: suture-managed lifecycle with restart backoff
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (DUCKDB_PATH, HTTP_PORT, API_KEY, ...)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests (including running exports) to complete
//   - Checkpoints and closes the database
//
// # Example Usage
//
// Development, no auth:
//
//	export DUCKDB_PATH=data/daruma.db
//	./daruma
//
// Production:
//
//	export DUCKDB_PATH=/var/lib/daruma/daruma.db
//	export API_KEY=$(openssl rand -hex 32)
//	export HTTP_PORT=8421
//	./daruma
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/daruma/internal/api"
	"github.com/tomtom215/daruma/internal/cache"
	"github.com/tomtom215/daruma/internal/config"
	"github.com/tomtom215/daruma/internal/database"
	"github.com/tomtom215/daruma/internal/logging"
	"github.com/tomtom215/daruma/internal/supervisor"
	"github.com/tomtom215/daruma/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Daruma")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Msg("Failed to close database")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	// Stats cache
	statsCache := cache.New(cfg.API.StatsCacheTTL)

	// HTTP surface
	handler := api.NewHandler(db, statsCache, cfg)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Supervisor tree
	treeConfig := supervisor.DefaultTreeConfig()
	treeConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeConfig)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
