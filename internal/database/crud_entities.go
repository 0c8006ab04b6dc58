// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/daruma/internal/logging"
	"github.com/tomtom215/daruma/internal/metrics"
	"github.com/tomtom215/daruma/internal/models"
)

// executor is satisfied by both *sql.DB and *sql.Conn, letting the
// upsert statement run on the pool or on a pinned batch connection.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const insertEntitySQL = `
	INSERT INTO entities (` + entityColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
`

// upsertEntitySQL resolves identity conflicts on (source, external_id).
// The update branch keeps the existing row id and created_at, rewrites
// the content columns, and stamps updated_at. A freshly inserted row has
// updated_at NULL, which the RETURNING clause uses to report whether the
// statement created or updated.
const upsertEntitySQL = insertEntitySQL + `
	ON CONFLICT (source, external_id) DO UPDATE SET
		type = excluded.type,
		name = excluded.name,
		t_start = excluded.t_start,
		t_end = excluded.t_end,
		lat = excluded.lat,
		lon = excluded.lon,
		loc_source = excluded.loc_source,
		color = excluded.color,
		render_offset = excluded.render_offset,
		payload = excluded.payload,
		updated_at = excluded.created_at
	RETURNING id, (updated_at IS NULL)
`

// UpsertEntity stores a single entity.
//
// Entities carrying both source and external_id are idempotent: replaying
// the same identity updates the existing row in place and reports
// "updated", preserving the original id and created_at. Entities without
// a full identity are always inserted as new rows.
func (db *DB) UpsertEntity(ctx context.Context, e *models.Entity) (*models.IngestResult, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := upsertEntityOn(ctx, db.conn, e)
	metrics.RecordDBQuery("upsert_entity", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if result.Status == models.IngestStatusInserted {
		metrics.RecordIngest(1, 0, 0)
	} else {
		metrics.RecordIngest(0, 1, 0)
	}
	return result, nil
}

// InsertBatch stores up to models.MaxBatchSize entities with per-item
// failure isolation.
//
// All statements run on a single pinned connection, one autocommit
// statement per entity, so a rejected item rolls back only itself and
// the rest of the batch proceeds. Oversized batches are rejected whole
// with ErrBatchTooLarge before anything is written.
func (db *DB) InsertBatch(ctx context.Context, entities []models.Entity) (*models.BatchResult, error) {
	if len(entities) > models.MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		metrics.RecordDBQuery("insert_batch", time.Since(start), err)
		return nil, fmt.Errorf("failed to acquire batch connection: %w", err)
	}
	defer closeWithLog(conn, "batch connection")

	result := &models.BatchResult{Total: len(entities)}
	for i := range entities {
		itemResult, itemErr := upsertEntityOn(ctx, conn, &entities[i])
		if itemErr != nil {
			result.Errors++
			logging.Debug().Err(itemErr).Int("index", i).Msg("Batch entity rejected")
			continue
		}
		if itemResult.Status == models.IngestStatusInserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	metrics.RecordDBQuery("insert_batch", time.Since(start), nil)
	metrics.RecordIngest(result.Inserted, result.Updated, result.Errors)
	metrics.IngestBatchSize.Observe(float64(result.Total))

	return result, nil
}

func upsertEntityOn(ctx context.Context, ex executor, e *models.Entity) (*models.IngestResult, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	args := []interface{}{
		id,
		e.Type,
		nullString(e.Name),
		e.TStart.UTC(),
		nullTimePtr(e.TEnd),
		nullFloatPtr(e.Lat),
		nullFloatPtr(e.Lon),
		nullString(e.LocSource),
		nullString(e.Color),
		nullFloatPtr(e.RenderOffset),
		nullString(e.Source),
		nullString(e.ExternalID),
		nullPayload(e.Payload),
		now,
	}

	if !e.HasExternalIdentity() {
		if _, err := ex.ExecContext(ctx, insertEntitySQL, args...); err != nil {
			return nil, fmt.Errorf("failed to insert entity: %w", err)
		}
		return &models.IngestResult{ID: id, Status: models.IngestStatusInserted}, nil
	}

	var (
		returnedID string
		inserted   bool
	)
	if err := ex.QueryRowContext(ctx, upsertEntitySQL, args...).Scan(&returnedID, &inserted); err != nil {
		return nil, fmt.Errorf("failed to upsert entity: %w", err)
	}

	status := models.IngestStatusUpdated
	if inserted {
		status = models.IngestStatusInserted
	}
	return &models.IngestResult{ID: returnedID, Status: status}, nil
}

// nullString converts an empty string to a SQL NULL binding.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullTimePtr converts a nil time pointer to NULL, otherwise binds UTC.
func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullFloatPtr converts a nil float pointer to NULL.
func nullFloatPtr(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// nullPayload binds raw JSON as text, or NULL when absent.
func nullPayload(p json.RawMessage) interface{} {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
