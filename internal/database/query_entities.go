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

	"github.com/tomtom215/daruma/internal/metrics"
	"github.com/tomtom215/daruma/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for scanEntity.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntity reads one row in entityColumns order.
// Timestamps come back normalized to UTC regardless of driver locale.
func scanEntity(row rowScanner) (models.Entity, error) {
	var (
		e                                                   models.Entity
		name, locSource, color, source, externalID, payload sql.NullString
		tEnd, updatedAt                                     sql.NullTime
		lat, lon, renderOffset                              sql.NullFloat64
	)

	err := row.Scan(
		&e.ID, &e.Type, &name, &e.TStart, &tEnd,
		&lat, &lon, &locSource, &color, &renderOffset,
		&source, &externalID, &payload, &e.CreatedAt, &updatedAt,
	)
	if err != nil {
		return models.Entity{}, fmt.Errorf("failed to scan entity row: %w", err)
	}

	e.TStart = e.TStart.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	if tEnd.Valid {
		t := tEnd.Time.UTC()
		e.TEnd = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		e.UpdatedAt = &t
	}
	if lat.Valid {
		v := lat.Float64
		e.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		e.Lon = &v
	}
	if renderOffset.Valid {
		v := renderOffset.Float64
		e.RenderOffset = &v
	}
	e.Name = name.String
	e.LocSource = locSource.String
	e.Color = color.String
	e.Source = source.String
	e.ExternalID = externalID.String
	if payload.Valid {
		e.Payload = json.RawMessage(payload.String)
	}

	return e, nil
}

// collectEntities drains a result set through scanEntity.
func collectEntities(rows *sql.Rows) ([]models.Entity, error) {
	entities := make([]models.Entity, 0, 64)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity rows: %w", err)
	}
	return entities, nil
}

// QueryTime returns entities of the requested types whose time extent
// overlaps the [start, end] window, both bounds inclusive. Instantaneous
// entities overlap when t_start falls inside the window; spans overlap
// when any part of [t_start, t_end] does.
//
// When the request carries a uniform_time resample spec, the result is
// downsampled in SQL instead of limited; see queryTimeResampled.
func (db *DB) QueryTime(ctx context.Context, req *models.TimeQueryRequest) ([]models.Entity, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if req.WantsResample() {
		return db.queryTimeResampled(ctx, req)
	}

	inClause, args := buildInClause(req.Types)
	query := fmt.Sprintf(
		"SELECT %s FROM entities WHERE type IN (%s) AND %s ORDER BY %s LIMIT ?",
		entityColumns, inClause, overlapPredicate, orderClause(req.EffectiveOrder()),
	)
	args = append(args, req.End.UTC(), req.Start.UTC(), req.EffectiveLimit())

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("query_time", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by time: %w", err)
	}
	defer closeWithLog(rows, "time query rows")

	return collectEntities(rows)
}

// resampleQueryTemplate thins a time window to at most n entities with
// near-uniform temporal spacing, in one set-oriented statement:
//
//  1. candidates: the window's matching entities with t_start in epoch ms
//  2. binned: candidates whose t_start falls inside the window, each
//     assigned to one of n equal-width bins; spans that overlap the window
//     but start outside it belong to no bin and are dropped
//  3. ranked: within each bin, rank by distance to the bin's center time,
//     id as the deterministic tiebreaker
//
// One winner per bin, returned in ascending time order. Bins with no
// candidates produce nothing, so the result can be shorter than n.
const resampleQueryTemplate = `
	WITH candidates AS (
		SELECT %s, epoch_ms(t_start) AS start_ms
		FROM entities
		WHERE type IN (%s) AND %s
	), binned AS (
		SELECT *, LEAST(CAST(FLOOR((start_ms - ?) * ? / ?) AS BIGINT), ?) AS bin
		FROM candidates
		WHERE start_ms BETWEEN ? AND ?
	), ranked AS (
		SELECT *, ROW_NUMBER() OVER (
			PARTITION BY bin
			ORDER BY ABS(start_ms - (? + (bin + 0.5) * ? / ?)), id
		) AS rn
		FROM binned
	)
	SELECT %s FROM ranked WHERE rn = 1 ORDER BY t_start ASC, id ASC
`

func (db *DB) queryTimeResampled(ctx context.Context, req *models.TimeQueryRequest) ([]models.Entity, error) {
	n := int64(req.Resample.N)
	t0 := req.Start.UTC().UnixMilli()
	span := req.End.UTC().UnixMilli() - t0
	if span <= 0 {
		span = 1
	}

	inClause, args := buildInClause(req.Types)
	query := fmt.Sprintf(resampleQueryTemplate,
		entityColumns, inClause, overlapPredicate, entityColumns)

	args = append(args,
		req.End.UTC(), req.Start.UTC(),
		t0, n, span, n-1,
		t0, t0+span,
		t0, span, n,
	)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("query_time_resample", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to resample entities: %w", err)
	}
	defer closeWithLog(rows, "resample query rows")

	return collectEntities(rows)
}

// QueryBBox returns entities of the requested types located inside the
// bounding box, both bounds inclusive on each axis. Entities without
// coordinates never match. An optional time window further restricts the
// result using the same overlap semantics as QueryTime.
func (db *DB) QueryBBox(ctx context.Context, req *models.BBoxQueryRequest) ([]models.Entity, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	inClause, args := buildInClause(req.Types)
	query := fmt.Sprintf(
		"SELECT %s FROM entities WHERE type IN (%s) AND lat IS NOT NULL AND lon IS NOT NULL"+
			" AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?",
		entityColumns, inClause,
	)
	args = append(args, req.MinLat(), req.MaxLat(), req.MinLon(), req.MaxLon())

	if req.Time != nil {
		query += " AND " + overlapPredicate
		args = append(args, req.Time.End.UTC(), req.Time.Start.UTC())
	}

	query += fmt.Sprintf(" ORDER BY %s LIMIT ?", orderClause(req.EffectiveOrder()))
	args = append(args, req.EffectiveLimit())

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("query_bbox", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by bounding box: %w", err)
	}
	defer closeWithLog(rows, "bbox query rows")

	return collectEntities(rows)
}
