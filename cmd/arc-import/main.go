// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package main implements arc-import, a one-way importer that reads Arc
// Timeline JSON exports and pushes them into a Daruma server as entities.
//
// The importer is an external producer: it owns discovery, normalization,
// and incremental-sync bookkeeping, and talks to the server only through
// the public batch ingest contract. Entities carry (source, external_id)
// so re-running an import is idempotent; a watermark file additionally
// skips items older than the last successful run to keep re-imports cheap.
//
// Usage:
//
//	arc-import -input export.json -server http://localhost:8421 -api-key KEY
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/daruma/internal/logging"
	"github.com/tomtom215/daruma/internal/models"
)

// arcExport mirrors the shape of an Arc Timeline JSON export file.
type arcExport struct {
	TimelineItems []arcItem `json:"timelineItems"`
}

// arcItem is one visit or activity from the export. Fields not listed
// here travel along in the entity payload untouched.
type arcItem struct {
	ItemID       string     `json:"itemId"`
	IsVisit      bool       `json:"isVisit"`
	ActivityType string     `json:"activityType"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
	Center       *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"center"`
	Place *struct {
		Name string `json:"name"`
	} `json:"place"`
}

type importConfig struct {
	input         string
	serverURL     string
	apiKey        string
	source        string
	batchSize     int
	watermarkPath string
	dryRun        bool
}

func main() {
	cfg := importConfig{}
	flag.StringVar(&cfg.input, "input", "", "Arc Timeline JSON export file (required)")
	flag.StringVar(&cfg.serverURL, "server", "http://localhost:8421", "Daruma server base URL")
	flag.StringVar(&cfg.apiKey, "api-key", os.Getenv("DARUMA_API_KEY"), "API key (defaults to DARUMA_API_KEY)")
	flag.StringVar(&cfg.source, "source", "arc", "source tag stored on imported entities")
	flag.IntVar(&cfg.batchSize, "batch", 500, "entities per batch request (max 1000)")
	flag.StringVar(&cfg.watermarkPath, "watermark", ".arc-import-watermark", "watermark file for incremental sync")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "parse and report without posting")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	if cfg.input == "" {
		logging.Fatal().Msg("-input is required")
	}
	if cfg.batchSize < 1 || cfg.batchSize > models.MaxBatchSize {
		logging.Fatal().Int("batch", cfg.batchSize).Msg("-batch must be between 1 and 1000")
	}

	if err := run(&cfg); err != nil {
		logging.Fatal().Err(err).Msg("Import failed")
	}
}

func run(cfg *importConfig) error {
	watermark := readWatermark(cfg.watermarkPath)
	if !watermark.IsZero() {
		logging.Info().Time("watermark", watermark).Msg("Resuming after previous import")
	}

	items, err := readExport(cfg.input)
	if err != nil {
		return err
	}

	entities, highWater := convertItems(items, cfg.source, watermark)
	logging.Info().
		Int("exported", len(items)).
		Int("eligible", len(entities)).
		Msg("Parsed Arc export")

	if len(entities) == 0 {
		logging.Info().Msg("Nothing new to import")
		return nil
	}
	if cfg.dryRun {
		logging.Info().Msg("Dry run, not posting")
		return nil
	}

	totals := models.BatchResult{}
	client := &http.Client{Timeout: 2 * time.Minute}
	for start := 0; start < len(entities); start += cfg.batchSize {
		end := start + cfg.batchSize
		if end > len(entities) {
			end = len(entities)
		}

		result, err := postBatch(client, cfg, entities[start:end])
		if err != nil {
			return fmt.Errorf("batch starting at %d: %w", start, err)
		}
		totals.Inserted += result.Inserted
		totals.Updated += result.Updated
		totals.Errors += result.Errors
		totals.Total += result.Total

		logging.Info().
			Int("inserted", result.Inserted).
			Int("updated", result.Updated).
			Int("errors", result.Errors).
			Msg("Batch accepted")
	}

	if !highWater.IsZero() {
		if err := writeWatermark(cfg.watermarkPath, highWater); err != nil {
			logging.Warn().Err(err).Msg("Failed to write watermark; next run will re-import")
		}
	}

	logging.Info().
		Int("inserted", totals.Inserted).
		Int("updated", totals.Updated).
		Int("errors", totals.Errors).
		Int("total", totals.Total).
		Msg("Import complete")
	return nil
}

func readExport(path string) ([]arcItem, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's own flag
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}

	var export arcExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	return export.TimelineItems, nil
}

// convertItems maps export items to entities, skipping anything at or
// before the watermark. Returns the entities and the new high-water mark
// (max end-or-start timestamp seen among converted items).
func convertItems(items []arcItem, source string, watermark time.Time) ([]models.Entity, time.Time) {
	entities := make([]models.Entity, 0, len(items))
	highWater := time.Time{}

	for i := range items {
		item := &items[i]
		if item.ItemID == "" || item.StartDate.IsZero() {
			continue
		}

		effective := item.StartDate
		if item.EndDate != nil && item.EndDate.After(effective) {
			effective = *item.EndDate
		}
		if !watermark.IsZero() && !effective.After(watermark) {
			continue
		}
		if effective.After(highWater) {
			highWater = effective
		}

		e := models.Entity{
			Type:       entityType(item),
			TStart:     item.StartDate.UTC(),
			Source:     source,
			ExternalID: item.ItemID,
		}
		if item.EndDate != nil {
			t := item.EndDate.UTC()
			e.TEnd = &t
		}
		if item.Center != nil {
			lat, lon := item.Center.Latitude, item.Center.Longitude
			e.Lat = &lat
			e.Lon = &lon
			e.LocSource = "arc"
		}
		if item.Place != nil && item.Place.Name != "" {
			e.Name = item.Place.Name
		}
		if payload, err := json.Marshal(item); err == nil {
			e.Payload = payload
		}

		entities = append(entities, e)
	}

	return entities, highWater
}

func entityType(item *arcItem) string {
	if item.IsVisit {
		return "location.arc.visit"
	}
	if item.ActivityType != "" {
		return "location.arc." + item.ActivityType
	}
	return "location.arc.activity"
}

func postBatch(client *http.Client, cfg *importConfig, batch []models.Entity) (*models.BatchResult, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	url := strings.TrimRight(cfg.serverURL, "/") + "/v1/entities/batch"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.apiKey != "" {
		req.Header.Set("X-API-Key", cfg.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server answered %d: %s", resp.StatusCode, string(snippet))
	}

	var result models.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}
	return &result, nil
}

func readWatermark(path string) time.Time {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's own flag
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		logging.Warn().Str("path", path).Msg("Ignoring unreadable watermark file")
		return time.Time{}
	}
	return t
}

func writeWatermark(path string, t time.Time) error {
	return os.WriteFile(path, []byte(t.UTC().Format(time.RFC3339Nano)+"\n"), 0o600)
}
