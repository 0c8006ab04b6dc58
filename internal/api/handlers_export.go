// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/daruma/internal/logging"
	"github.com/tomtom215/daruma/internal/models"
)

// Export handles GET /v1/query/export.
//
// Streams the entity set as NDJSON: the first line is {"total": N}, every
// following line one entity. Query parameters:
//
//	types  optional comma-separated type filter
//	order  "newest" (default) or "oldest" by t_start
//
// Rows are written as they are scanned and flushed periodically, so memory
// stays bounded regardless of table size and consumers see data while the
// export is still running. Once the header line is on the wire the status
// can no longer change; a mid-stream failure truncates the output short of
// the announced total, which is the consumer's signal that the export is
// incomplete.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	types := parseCommaSeparated(r.URL.Query().Get("types"))

	order := r.URL.Query().Get("order")
	if order == "" {
		order = models.ExportOrderNewest
	}
	if order != models.ExportOrderNewest && order != models.ExportOrderOldest {
		respondValidationError(w, &models.APIError{
			Code:    models.ErrCodeValidation,
			Message: "order must be newest or oldest",
		})
		return
	}

	total, err := h.db.CountEntities(r.Context(), types)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeDatabase, "Failed to count entities", err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	if err := enc.Encode(models.ExportHeader{Total: total}); err != nil {
		logging.Error().Err(err).Msg("Failed to write export header")
		return
	}
	if flusher != nil {
		flusher.Flush()
	}

	flushEvery := h.cfg.API.ExportBatchSize
	written := 0
	err = h.db.StreamEntities(r.Context(), types, order, func(e *models.Entity) error {
		if encErr := enc.Encode(e); encErr != nil {
			return encErr
		}
		written++
		if flusher != nil && written%flushEvery == 0 {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Too late for an error status; the truncated stream tells the story.
		logging.Error().Err(err).Int("written", written).Int64("total", total).Msg("Export aborted mid-stream")
	}

	if flusher != nil {
		flusher.Flush()
	}
}
