// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package models defines the data structures shared between the HTTP layer
// and the database layer: timeline entities, query requests, statistics, and
// the API response envelope.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Entity is a single timeline item: something that happened at a point in
// time (t_start) or over a span (t_start..t_end), optionally pinned to a GPS
// coordinate, with an arbitrary JSON payload the server never interprets.
//
// Identity: ID is server-generated. When both Source and ExternalID are set,
// the pair (source, external_id) is the external identity used for idempotent
// upserts; re-ingesting the same pair updates the existing row in place and
// keeps its ID stable. Rows missing either key are always plain inserts.
type Entity struct {
	ID   string `json:"id"`
	Type string `json:"type" validate:"required,max=128"`
	Name string `json:"name,omitempty" validate:"max=512"`

	TStart time.Time  `json:"t_start" validate:"required"`
	TEnd   *time.Time `json:"t_end,omitempty"`

	// Lat and Lon are optional but must be present or absent together.
	Lat *float64 `json:"lat,omitempty" validate:"omitempty,min=-90,max=90"`
	Lon *float64 `json:"lon,omitempty" validate:"omitempty,min=-180,max=180"`

	// LocSource tags where the coordinates came from (e.g. "native", "arc").
	// Optional passthrough metadata.
	LocSource string `json:"loc_source,omitempty" validate:"max=64"`

	// Display metadata, passed through untouched.
	Color        string   `json:"color,omitempty" validate:"max=32"`
	RenderOffset *float64 `json:"render_offset,omitempty"`

	Source     string `json:"source,omitempty" validate:"max=128"`
	ExternalID string `json:"external_id,omitempty" validate:"max=256"`

	// Payload is opaque JSON stored verbatim.
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// HasExternalIdentity reports whether the entity carries the (source,
// external_id) pair that makes it eligible for upsert deduplication.
func (e *Entity) HasExternalIdentity() bool {
	return e.Source != "" && e.ExternalID != ""
}

// HasLocation reports whether both coordinates are present.
func (e *Entity) HasLocation() bool {
	return e.Lat != nil && e.Lon != nil
}

// IngestResult reports the outcome of a single-entity ingest.
// Status is "inserted" for a fresh row and "updated" for an upsert
// that replaced an existing row.
type IngestResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Ingest status values.
const (
	IngestStatusInserted = "inserted"
	IngestStatusUpdated  = "updated"
)

// MaxBatchSize is the hard cap on entities per batch request.
// The batch body is a bare JSON array of entities.
// Larger batches are rejected outright with nothing persisted.
const MaxBatchSize = 1000

// BatchResult summarizes a batch ingest. Errors counts items that failed
// individually; the rest of the batch is unaffected by them.
type BatchResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
	Total    int `json:"total"`
}
