// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package config provides centralized configuration for all Daruma
// components: database, HTTP server, API behavior, security, and logging.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting
//
// Example - Load configuration from environment:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load config")
//	}
//	// cfg.Database.Path, cfg.Server.Port, etc. are now populated
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from
// multiple goroutines.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (default: data/daruma.db)
//   - DATABASE_MAX_MEMORY: DuckDB memory ceiling (default: 1GB)
//   - DATABASE_THREADS: Worker threads, 0 = NumCPU (default: 0)
type DatabaseConfig struct {
	// Path is the database file path. ":memory:" gives an in-process
	// ephemeral database, used by the test suite.
	Path string `koanf:"path"`

	// MaxMemory is passed to DuckDB as max_memory (e.g. "1GB", "512MB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB worker thread count. Zero means runtime.NumCPU.
	Threads int `koanf:"threads"`

	// MaxOpenConns bounds the database/sql pool feeding DuckDB.
	MaxOpenConns int `koanf:"max_open_conns"`

	// MaxIdleConns is the idle connection count kept in the pool.
	MaxIdleConns int `koanf:"max_idle_conns"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_PORT: Listen port (default: 8421)
//   - HTTP_TIMEOUT: Read/write timeout (default: 60s)
//   - HTTP_SHUTDOWN_TIMEOUT: Graceful shutdown grace period (default: 10s)
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port bind address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APIConfig holds request/response behavior knobs.
type APIConfig struct {
	// StatsCacheTTL is how long a computed stats snapshot is served from
	// cache before being recomputed.
	StatsCacheTTL time.Duration `koanf:"stats_cache_ttl"`

	// ExportBatchSize is the row batch hint for streaming exports.
	ExportBatchSize int `koanf:"export_batch_size"`
}

// SecurityConfig holds authentication and rate limiting settings.
//
// Environment Variables:
//   - API_KEY: Pre-shared key required in the X-API-Key header. Empty
//     disables authentication (development only).
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW: Per-IP rate limit
//   - CORS_ORIGINS: Comma-separated allowed origins
type SecurityConfig struct {
	APIKey            string        `koanf:"api_key"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values. Called by Load after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1, got %d", c.Database.MaxOpenConns)
	}
	if c.API.StatsCacheTTL < 0 {
		return fmt.Errorf("api.stats_cache_ttl must not be negative, got %s", c.API.StatsCacheTTL)
	}
	if c.API.ExportBatchSize < 1 {
		return fmt.Errorf("api.export_batch_size must be at least 1, got %d", c.API.ExportBatchSize)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitRequests < 1 {
			return fmt.Errorf("security.rate_limit_requests must be at least 1, got %d", c.Security.RateLimitRequests)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// defaultConfig returns the built-in defaults, the lowest-priority layer.
func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path:         "data/daruma.db",
			MaxMemory:    "1GB",
			Threads:      0,
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8421,
			Timeout:         60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		API: APIConfig{
			StatsCacheTTL:   5 * time.Minute,
			ExportBatchSize: 5000,
		},
		Security: SecurityConfig{
			APIKey:            "",
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
