// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package api

import (
	"net/http"

	"github.com/tomtom215/daruma/internal/models"
)

// QueryTime handles POST /v1/query/time.
//
// Returns entities whose time extent overlaps the requested window,
// ordered and limited per request. With a uniform_time resample spec
// the window is thinned to at most n evenly spaced entities instead.
func (h *Handler) QueryTime(w http.ResponseWriter, r *http.Request) {
	var req models.TimeQueryRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	entities, err := h.db.QueryTime(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeDatabase, "Failed to query entities", err)
		return
	}

	respondPayload(w, http.StatusOK, models.EntitiesResponse{Entities: entities})
}

// QueryBBox handles POST /v1/query/bbox.
//
// Returns located entities inside the bounding box, optionally also
// restricted to a time window. Entities without coordinates never match.
func (h *Handler) QueryBBox(w http.ResponseWriter, r *http.Request) {
	var req models.BBoxQueryRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	entities, err := h.db.QueryBBox(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeDatabase, "Failed to query entities", err)
		return
	}

	respondPayload(w, http.StatusOK, models.EntitiesResponse{Entities: entities})
}
