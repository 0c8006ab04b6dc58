// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/daruma/internal/metrics"
	"github.com/tomtom215/daruma/internal/models"
)

// CountEntities returns the number of entities matching the type filter.
// An empty filter counts everything.
func (db *DB) CountEntities(ctx context.Context, types []string) (int64, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	query := "SELECT COUNT(*) FROM entities"
	var args []interface{}
	if len(types) > 0 {
		inClause, inArgs := buildInClause(types)
		query += fmt.Sprintf(" WHERE type IN (%s)", inClause)
		args = inArgs
	}

	start := time.Now()
	var count int64
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count)
	metrics.RecordDBQuery("count_entities", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities for export: %w", err)
	}
	return count, nil
}

// StreamEntities iterates all entities matching the type filter in the
// given export order, invoking fn once per row. Iteration stops at the
// first error fn returns, which is propagated to the caller.
//
// The caller's context is used as-is. Exports can legitimately outlive
// the default query timeout, so no ceiling is imposed here; the HTTP
// request context bounds the work instead.
func (db *DB) StreamEntities(ctx context.Context, types []string, order string, fn func(*models.Entity) error) error {
	query := "SELECT " + entityColumns + " FROM entities"
	var args []interface{}
	if len(types) > 0 {
		inClause, inArgs := buildInClause(types)
		query += fmt.Sprintf(" WHERE type IN (%s)", inClause)
		args = inArgs
	}
	query += " ORDER BY " + exportOrderClause(order)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordDBQuery("stream_entities", time.Since(start), err)
		return fmt.Errorf("failed to start entity export: %w", err)
	}
	defer closeWithLog(rows, "export rows")

	var streamed int64
	for rows.Next() {
		e, scanErr := scanEntity(rows)
		if scanErr != nil {
			metrics.RecordDBQuery("stream_entities", time.Since(start), scanErr)
			return scanErr
		}
		if fnErr := fn(&e); fnErr != nil {
			return fnErr
		}
		streamed++
	}
	if err := rows.Err(); err != nil {
		metrics.RecordDBQuery("stream_entities", time.Since(start), err)
		return fmt.Errorf("failed to iterate export rows: %w", err)
	}

	metrics.RecordDBQuery("stream_entities", time.Since(start), nil)
	metrics.RecordExport(streamed, time.Since(start))
	return nil
}
