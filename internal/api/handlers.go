// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package api implements the HTTP surface: entity ingest, time-window and
// bounding-box queries, streaming NDJSON export, statistics, and health.
// Routing uses Chi with middleware from the Chi ecosystem.
package api

import (
	"time"

	"github.com/tomtom215/daruma/internal/cache"
	"github.com/tomtom215/daruma/internal/config"
	"github.com/tomtom215/daruma/internal/database"
)

// Handler holds the dependencies shared by all endpoint handlers.
type Handler struct {
	db        *database.DB
	cache     *cache.Cache
	cfg       *config.Config
	startTime time.Time
}

// NewHandler creates a Handler. startTime anchors the uptime reported by
// the stats endpoint.
func NewHandler(db *database.DB, c *cache.Cache, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		cache:     c,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// Uptime returns how long this handler (and in practice the process) has
// been serving.
func (h *Handler) Uptime() time.Duration {
	return time.Since(h.startTime)
}
