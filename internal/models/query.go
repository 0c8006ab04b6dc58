// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package models

import (
	"time"
)

// Query ordering values. These are closed enums: the database layer maps
// them to fixed SQL templates and never interpolates caller strings.
const (
	OrderTStartAsc  = "t_start_asc"
	OrderTStartDesc = "t_start_desc"
	OrderRandom     = "random"

	ExportOrderNewest = "newest"
	ExportOrderOldest = "oldest"
)

// Resample methods.
const (
	ResampleNone        = "none"
	ResampleUniformTime = "uniform_time"
)

// Query limits. Requests above the max are rejected, not clamped.
const (
	DefaultTimeQueryLimit = 2000
	DefaultBBoxQueryLimit = 5000
	MaxQueryLimit         = 10000

	MaxResampleBins = 10000
)

// ResampleSpec selects a down-sampling strategy for time queries.
// With uniform_time the query window is divided into N equal bins and the
// row nearest each bin midpoint is kept, so the client receives at most N
// evenly spaced entities regardless of raw density.
type ResampleSpec struct {
	Method string `json:"method" validate:"required,oneof=none uniform_time"`
	N      int    `json:"n,omitempty"`
}

// TimeQueryRequest is the body of POST /v1/query/time.
// The window is a closed interval; an entity matches when its own span
// [t_start, coalesce(t_end, t_start)] overlaps [start, end].
type TimeQueryRequest struct {
	Types    []string      `json:"types" validate:"required,min=1,dive,required,max=128"`
	Start    time.Time     `json:"start" validate:"required"`
	End      time.Time     `json:"end" validate:"required"`
	Limit    int           `json:"limit,omitempty" validate:"omitempty,min=1,max=10000"`
	Order    string        `json:"order,omitempty" validate:"omitempty,oneof=t_start_asc t_start_desc"`
	Resample *ResampleSpec `json:"resample,omitempty"`
}

// EffectiveLimit returns the request limit with the default applied.
func (r *TimeQueryRequest) EffectiveLimit() int {
	if r.Limit == 0 {
		return DefaultTimeQueryLimit
	}
	return r.Limit
}

// EffectiveOrder returns the request order with the default applied.
func (r *TimeQueryRequest) EffectiveOrder() string {
	if r.Order == "" {
		return OrderTStartAsc
	}
	return r.Order
}

// WantsResample reports whether uniform-time resampling was requested.
func (r *TimeQueryRequest) WantsResample() bool {
	return r.Resample != nil && r.Resample.Method == ResampleUniformTime
}

// TimeWindow is an optional time filter attached to bbox queries.
type TimeWindow struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

// BBoxQueryRequest is the body of POST /v1/query/bbox.
// BBox is [minLon, minLat, maxLon, maxLat]; edges are inclusive. Entities
// without a location never match.
type BBoxQueryRequest struct {
	Types []string    `json:"types" validate:"required,min=1,dive,required,max=128"`
	BBox  []float64   `json:"bbox" validate:"required,len=4"`
	Time  *TimeWindow `json:"time,omitempty"`
	Limit int         `json:"limit,omitempty" validate:"omitempty,min=1,max=10000"`
	Order string      `json:"order,omitempty" validate:"omitempty,oneof=t_start_asc t_start_desc random"`
}

// EffectiveLimit returns the request limit with the default applied.
func (r *BBoxQueryRequest) EffectiveLimit() int {
	if r.Limit == 0 {
		return DefaultBBoxQueryLimit
	}
	return r.Limit
}

// EffectiveOrder returns the request order with the default applied.
func (r *BBoxQueryRequest) EffectiveOrder() string {
	if r.Order == "" {
		return OrderTStartAsc
	}
	return r.Order
}

// MinLon, MinLat, MaxLon, MaxLat address the bbox corners by name.
// Valid only after validation has checked len(BBox) == 4.
func (r *BBoxQueryRequest) MinLon() float64 { return r.BBox[0] }
func (r *BBoxQueryRequest) MinLat() float64 { return r.BBox[1] }
func (r *BBoxQueryRequest) MaxLon() float64 { return r.BBox[2] }
func (r *BBoxQueryRequest) MaxLat() float64 { return r.BBox[3] }

// EntitiesResponse wraps query results.
type EntitiesResponse struct {
	Entities []Entity `json:"entities"`
}

// ExportHeader is the first NDJSON line of a streaming export, written
// before any entity rows so consumers can size progress bars up front.
type ExportHeader struct {
	Total int64 `json:"total"`
}
