// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/daruma/internal/cache"
	"github.com/tomtom215/daruma/internal/metrics"
	"github.com/tomtom215/daruma/internal/models"
)

// Stats handles GET /v1/stats.
//
// The aggregate snapshot is cached for the configured TTL to bound the
// cost of repeated polling. Uptime is recomputed on every response even
// when the rest of the body comes from cache.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	key := cache.GenerateKey("stats", nil)

	if cached, ok := h.cache.Get(key); ok {
		if stats, valid := cached.(*models.Stats); valid {
			metrics.RecordCacheHit("stats")
			h.respondStats(w, stats)
			return
		}
	}
	metrics.RecordCacheMiss("stats")

	stats, err := h.db.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeDatabase, "Failed to compute stats", err)
		return
	}

	h.cache.SetWithTTL(key, stats, h.cfg.API.StatsCacheTTL)
	h.respondStats(w, stats)
}

func (h *Handler) respondStats(w http.ResponseWriter, stats *models.Stats) {
	response := models.StatsResponse{
		Stats:         *stats,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	respondPayload(w, http.StatusOK, response)
}
