// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8421 {
		t.Errorf("expected default port 8421, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/daruma.db" {
		t.Errorf("unexpected default database path %q", cfg.Database.Path)
	}
	if cfg.API.StatsCacheTTL != 5*time.Minute {
		t.Errorf("unexpected default stats TTL %s", cfg.API.StatsCacheTTL)
	}
	if cfg.Security.APIKey != "" {
		t.Errorf("API key should default to empty, got %q", cfg.Security.APIKey)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "/tmp/test.db")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("API_KEY", "hunter2")
	t.Setenv("STATS_CACHE_TTL", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("DUCKDB_PATH not applied, got %q", cfg.Database.Path)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("HTTP_PORT not applied, got %d", cfg.Server.Port)
	}
	if cfg.Security.APIKey != "hunter2" {
		t.Errorf("API_KEY not applied, got %q", cfg.Security.APIKey)
	}
	if cfg.API.StatsCacheTTL != 30*time.Second {
		t.Errorf("STATS_CACHE_TTL not applied, got %s", cfg.API.StatsCacheTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LOG_LEVEL not applied, got %q", cfg.Logging.Level)
	}
}

func TestLoadPrefixedEnvOverrides(t *testing.T) {
	t.Setenv("DARUMA_SERVER_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("DARUMA_SERVER_PORT not applied, got %d", cfg.Server.Port)
	}
}

func TestLoadCORSOriginsCommaSeparated(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Security.CORSOrigins)
	}
	if cfg.Security.CORSOrigins[0] != "https://a.example" || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("origins not trimmed/split correctly: %v", cfg.Security.CORSOrigins)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "70000")

	if _, err := Load(); err == nil {
		t.Error("expected validation failure for out-of-range port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "empty database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Server.Timeout = 0 }, wantErr: true},
		{name: "negative stats ttl", mutate: func(c *Config) { c.API.StatsCacheTTL = -time.Second }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{
			name: "rate limit ignored when disabled",
			mutate: func(c *Config) {
				c.Security.RateLimitDisabled = true
				c.Security.RateLimitRequests = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	cases := map[string]string{
		"DUCKDB_PATH":        "database.path",
		"HTTP_PORT":          "server.port",
		"API_KEY":            "security.api_key",
		"LOG_LEVEL":          "logging.level",
		"DARUMA_SERVER_HOST": "server.host",
		"PATH":               "",
		"HOME":               "",
	}
	for in, want := range cases {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
