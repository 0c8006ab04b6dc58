// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/daruma/internal/database"
	"github.com/tomtom215/daruma/internal/logging"
	"github.com/tomtom215/daruma/internal/models"
)

// Entity handles POST /v1/entity.
//
// The body is one entity. A fresh row answers 201 with status "inserted";
// an idempotent replay matching an existing (source, external_id) answers
// 200 with status "updated" and the original row id.
func (h *Handler) Entity(w http.ResponseWriter, r *http.Request) {
	var entity models.Entity
	if apiErr := decodeJSONBody(r, &entity); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}
	if apiErr := validateRequest(&entity); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	result, err := h.db.UpsertEntity(r.Context(), &entity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeDatabase, "Failed to store entity", err)
		return
	}

	status := http.StatusOK
	if result.Status == models.IngestStatusInserted {
		status = http.StatusCreated
	}
	respondPayload(w, status, result)
}

// EntityBatch handles POST /v1/entities/batch.
//
// The body is a bare JSON array of up to 1000 entities. The whole batch
// is rejected, nothing persisted, when it exceeds the cap or any item
// fails validation. Database-level failures of individual items are
// counted in the response and do not abort their siblings.
func (h *Handler) EntityBatch(w http.ResponseWriter, r *http.Request) {
	var entities []models.Entity
	if apiErr := decodeJSONBody(r, &entities); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	if len(entities) == 0 {
		respondValidationError(w, &models.APIError{
			Code:    models.ErrCodeValidation,
			Message: "Batch must contain at least one entity",
		})
		return
	}
	if len(entities) > models.MaxBatchSize {
		respondError(w, http.StatusBadRequest, models.ErrCodeBatchTooLarge,
			fmt.Sprintf("Batch size %d exceeds maximum of %d", len(entities), models.MaxBatchSize), nil)
		return
	}

	for i := range entities {
		if apiErr := validateRequest(&entities[i]); apiErr != nil {
			apiErr.Message = fmt.Sprintf("Entity %d: %s", i, apiErr.Message)
			respondValidationError(w, apiErr)
			return
		}
	}

	result, err := h.db.InsertBatch(r.Context(), entities)
	if err != nil {
		if errors.Is(err, database.ErrBatchTooLarge) {
			respondError(w, http.StatusBadRequest, models.ErrCodeBatchTooLarge,
				fmt.Sprintf("Batch size %d exceeds maximum of %d", len(entities), models.MaxBatchSize), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, models.ErrCodeDatabase, "Failed to store batch", err)
		return
	}

	if result.Errors > 0 {
		logging.Warn().
			Int("errors", result.Errors).
			Int("total", result.Total).
			Msg("Batch completed with item failures")
	}

	respondPayload(w, http.StatusOK, result)
}
