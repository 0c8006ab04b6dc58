// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package api

import (
	"net/http"

	"github.com/tomtom215/daruma/internal/logging"
)

// Health handles GET /health. Liveness only: no auth, no database touch,
// constant body, so orchestrators can probe it at high frequency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		logging.Debug().Err(err).Msg("Failed to write health response")
	}
}
