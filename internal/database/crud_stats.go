// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/daruma/internal/metrics"
	"github.com/tomtom215/daruma/internal/models"
)

// Stats computes an aggregate snapshot of the store: entity totals,
// per-type counts, the overall time extent, and storage footprint.
// Callers cache the result; this always hits the database.
func (db *DB) Stats(ctx context.Context) (*models.Stats, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	stats, err := db.collectStats(ctx)
	metrics.RecordDBQuery("stats", time.Since(start), err)
	return stats, err
}

func (db *DB) collectStats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}

	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&stats.TotalEntities); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}

	typeCounts, err := db.typeCounts(ctx)
	if err != nil {
		return nil, err
	}
	stats.TypeCounts = typeCounts

	var oldest, newest sql.NullTime
	err = db.conn.QueryRowContext(ctx,
		"SELECT MIN(t_start), MAX(COALESCE(t_end, t_start)) FROM entities",
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to compute time extent: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		stats.Oldest = &t
	}
	if newest.Valid {
		t := newest.Time.UTC()
		stats.Newest = &t
	}

	storage, err := db.storageStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Storage = storage

	return stats, nil
}

func (db *DB) typeCounts(ctx context.Context) ([]models.TypeCount, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT type, COUNT(*) AS count FROM entities GROUP BY type ORDER BY count DESC, type ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities by type: %w", err)
	}
	defer closeWithLog(rows, "type count rows")

	counts := make([]models.TypeCount, 0, 16)
	for rows.Next() {
		var tc models.TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate type counts: %w", err)
	}
	return counts, nil
}

// storageStats reads DuckDB's own size accounting. Block counts are
// numeric across driver versions; wal_size and memory_usage have shifted
// between BIGINT and human-readable VARCHAR, so both are scanned as text
// and parsed leniently.
func (db *DB) storageStats(ctx context.Context) (models.StorageStats, error) {
	var storage models.StorageStats

	var (
		blockSize, totalBlocks sql.NullInt64
		walSize, memoryUsage   sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		"SELECT block_size, total_blocks, wal_size, memory_usage FROM pragma_database_size()",
	).Scan(&blockSize, &totalBlocks, &walSize, &memoryUsage)
	if err != nil {
		return storage, fmt.Errorf("failed to read database size: %w", err)
	}
	if blockSize.Valid && totalBlocks.Valid {
		storage.DatabaseBytes = blockSize.Int64 * totalBlocks.Int64
	}
	if walSize.Valid {
		storage.WALBytes = parseByteSize(walSize.String)
	}
	if memoryUsage.Valid {
		storage.MemoryBytes = parseByteSize(memoryUsage.String)
	}

	var estimated sql.NullInt64
	err = db.conn.QueryRowContext(ctx,
		"SELECT estimated_size FROM duckdb_tables() WHERE table_name = 'entities'",
	).Scan(&estimated)
	if err != nil && err != sql.ErrNoRows {
		return storage, fmt.Errorf("failed to read table size estimate: %w", err)
	}
	if estimated.Valid {
		storage.EntityRowEstimate = estimated.Int64
	}

	err = db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM duckdb_indexes() WHERE table_name = 'entities'",
	).Scan(&storage.IndexCount)
	if err != nil {
		return storage, fmt.Errorf("failed to count indexes: %w", err)
	}

	return storage, nil
}

// byteSizeUnits maps DuckDB's human-readable size suffixes to multipliers.
var byteSizeUnits = map[string]float64{
	"bytes": 1,
	"B":     1,
	"KB":    1e3,
	"KiB":   1 << 10,
	"MB":    1e6,
	"MiB":   1 << 20,
	"GB":    1e9,
	"GiB":   1 << 30,
	"TB":    1e12,
	"TiB":   1 << 40,
}

// parseByteSize accepts either a plain integer ("4096") or DuckDB's
// formatted form ("1.2 GiB"). Unparseable input yields zero.
func parseByteSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	mult, ok := byteSizeUnits[fields[1]]
	if !ok {
		return 0
	}
	return int64(v * mult)
}
