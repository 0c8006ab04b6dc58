// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package models

import (
	"time"
)

// TypeCount is one row of the per-type breakdown, sorted by count descending.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// StorageStats reports datastore-level size information.
// DuckDB reports whole-database figures rather than per-relation ones, so
// the split is database/WAL/memory plus a row estimate and index count for
// the entities table.
type StorageStats struct {
	DatabaseBytes     int64 `json:"database_bytes"`
	WALBytes          int64 `json:"wal_bytes"`
	MemoryBytes       int64 `json:"memory_bytes"`
	EntityRowEstimate int64 `json:"entity_row_estimate"`
	IndexCount        int64 `json:"index_count"`
}

// Stats is the aggregate snapshot behind GET /v1/stats.
// Oldest is MIN(t_start); Newest is MAX(COALESCE(t_end, t_start)), so a
// long-running span extends the newest edge past any point event.
type Stats struct {
	TotalEntities int64        `json:"total_entities"`
	TypeCounts    []TypeCount  `json:"type_counts"`
	Oldest        *time.Time   `json:"oldest,omitempty"`
	Newest        *time.Time   `json:"newest,omitempty"`
	Storage       StorageStats `json:"storage"`
}

// StatsResponse is the HTTP response for GET /v1/stats. UptimeSeconds is
// recomputed on every response, even when the Stats body is a cache hit.
type StatsResponse struct {
	Stats
	UptimeSeconds float64 `json:"uptime_seconds"`
}
