// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package database

import (
	"context"
	"fmt"
	"time"
)

// entityColumns is the canonical column order used by every SELECT and
// scanEntity. Keep the two in sync when the schema changes.
const entityColumns = "id, type, name, t_start, t_end, lat, lon, loc_source, color, render_offset, source, external_id, payload, created_at, updated_at"

// createTables creates the entities table.
//
// Timestamps are stored as plain TIMESTAMP with all values normalized to
// UTC on the Go side before binding, so no timezone extension is needed.
// The payload column holds raw JSON text; it is opaque to the store and
// never queried into, so a VARCHAR avoids the JSON extension as well.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := `
		CREATE TABLE IF NOT EXISTS entities (
			id VARCHAR PRIMARY KEY,
			type VARCHAR NOT NULL,
			name VARCHAR,
			t_start TIMESTAMP NOT NULL,
			t_end TIMESTAMP,
			lat DOUBLE,
			lon DOUBLE,
			loc_source VARCHAR,
			color VARCHAR,
			render_offset DOUBLE,
			source VARCHAR,
			external_id VARCHAR,
			payload VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP
		)
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create entities table: %w", err)
	}

	return nil
}

// createIndexes creates indexes matching the query paths:
// time-window scans, per-type time scans, and the identity upsert key.
//
// The unique index on (source, external_id) backs ON CONFLICT upserts.
// DuckDB ART indexes do not index NULL keys, so rows without an external
// identity never participate in conflict detection.
func (db *DB) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_source_external ON entities(source, external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_t_start ON entities(t_start)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_type_t_start ON entities(type, t_start)`,
	}

	for _, idx := range indexes {
		if _, err := db.conn.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
