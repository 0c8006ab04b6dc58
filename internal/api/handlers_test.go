// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package api

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/daruma/internal/cache"
	"github.com/tomtom215/daruma/internal/config"
	"github.com/tomtom215/daruma/internal/database"
	"github.com/tomtom215/daruma/internal/models"
)

// testDBSemaphore serializes test database lifecycles. Concurrent DuckDB
// CGO calls from parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestServer builds the full route tree against an in-memory database.
// Rate limiting is disabled so loops in tests cannot trip per-IP limits.
func setupTestServer(t *testing.T, apiKey string) (*chi.Mux, *database.DB) {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Path:         ":memory:",
			MaxMemory:    "1GB",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		},
		API: config.APIConfig{
			StatsCacheTTL:   time.Minute,
			ExportBatchSize: 100,
		},
		Security: config.SecurityConfig{
			APIKey:            apiKey,
			RateLimitDisabled: true,
			CORSOrigins:       []string{"*"},
		},
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	handler := NewHandler(db, cache.New(cfg.API.StatsCacheTTL), cfg)
	router := NewRouter(handler, cfg)
	return router.SetupChi(), db
}

// doJSON sends a request with an optional JSON body through the router.
func doJSON(t *testing.T, mux *chi.Mux, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *models.APIError {
	t.Helper()
	var resp models.APIResponse
	decodeBody(t, rec, &resp)
	if resp.Error == nil {
		t.Fatalf("expected error envelope, got %q", rec.Body.String())
	}
	return resp.Error
}

func testEntity(typ string, start time.Time) models.Entity {
	return models.Entity{Type: typ, TStart: start}
}

func TestEntityIngestInsertThenUpdate(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	e := testEntity("event", time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	e.Source = "cal"
	e.ExternalID = "evt-1"
	e.Name = "First"

	rec := doJSON(t, mux, http.MethodPost, "/v1/entity", "", e)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first ingest, got %d: %s", rec.Code, rec.Body.String())
	}
	var first models.IngestResult
	decodeBody(t, rec, &first)
	if first.Status != models.IngestStatusInserted {
		t.Errorf("expected status inserted, got %q", first.Status)
	}
	if first.ID == "" {
		t.Error("expected a generated id")
	}

	e.Name = "Second"
	rec = doJSON(t, mux, http.MethodPost, "/v1/entity", "", e)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d: %s", rec.Code, rec.Body.String())
	}
	var second models.IngestResult
	decodeBody(t, rec, &second)
	if second.Status != models.IngestStatusUpdated {
		t.Errorf("expected status updated, got %q", second.Status)
	}
	if second.ID != first.ID {
		t.Errorf("replay must keep the row id: %q vs %q", second.ID, first.ID)
	}
}

func TestEntityValidationFailure(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	rec := doJSON(t, mux, http.MethodPost, "/v1/entity", "", models.Entity{Name: "no type or t_start"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	apiErr := decodeErrorEnvelope(t, rec)
	if apiErr.Code != models.ErrCodeValidation {
		t.Errorf("expected %s, got %s", models.ErrCodeValidation, apiErr.Code)
	}
}

func TestEntityMalformedJSON(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/entity", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestBatchIngest(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Entity{
		testEntity("event", base),
		testEntity("event", base.Add(time.Hour)),
		testEntity("note", base.Add(2*time.Hour)),
	}

	rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result models.BatchResult
	decodeBody(t, rec, &result)
	if result.Inserted != 3 || result.Total != 3 || result.Errors != 0 {
		t.Errorf("unexpected batch result: %+v", result)
	}
}

func TestBatchRejectsWrapperObject(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	body := map[string]interface{}{
		"entities": []models.Entity{testEntity("event", time.Now().UTC())},
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("wrapper objects must be rejected, got %d", rec.Code)
	}
}

func TestBatchTooLargeNothingPersisted(t *testing.T) {
	mux, db := setupTestServer(t, "")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := make([]models.Entity, models.MaxBatchSize+1)
	for i := range batch {
		batch[i] = testEntity("event", base.Add(time.Duration(i)*time.Second))
	}

	rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", batch)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	apiErr := decodeErrorEnvelope(t, rec)
	if apiErr.Code != models.ErrCodeBatchTooLarge {
		t.Errorf("expected %s, got %s", models.ErrCodeBatchTooLarge, apiErr.Code)
	}

	count, err := db.EntityCount(context.Background())
	if err != nil {
		t.Fatalf("EntityCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("oversized batch must persist nothing, found %d rows", count)
	}
}

func TestBatchInvalidItemRejectsWholeBatch(t *testing.T) {
	mux, db := setupTestServer(t, "")

	batch := []models.Entity{
		testEntity("event", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		{Name: "missing type and t_start"},
	}

	rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", batch)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	count, err := db.EntityCount(context.Background())
	if err != nil {
		t.Fatalf("EntityCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("invalid batch must persist nothing, found %d rows", count)
	}
}

func TestQueryTimeEndpoint(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Entity{
		testEntity("event", base),
		testEntity("event", base.Add(time.Hour)),
		testEntity("event", base.Add(48*time.Hour)),
	}
	if rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", batch); rec.Code != http.StatusOK {
		t.Fatalf("batch ingest failed: %d", rec.Code)
	}

	query := models.TimeQueryRequest{
		Types: []string{"event"},
		Start: base.Add(-time.Minute),
		End:   base.Add(2 * time.Hour),
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/query/time", "", query)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.EntitiesResponse
	decodeBody(t, rec, &resp)
	if len(resp.Entities) != 2 {
		t.Fatalf("expected 2 entities in window, got %d", len(resp.Entities))
	}
	if !resp.Entities[0].TStart.Before(resp.Entities[1].TStart) {
		t.Error("default order must be t_start ascending")
	}
}

func TestQueryTimeRejectsEmptyWindow(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	query := models.TimeQueryRequest{
		Types: []string{"event"},
		Start: at,
		End:   at,
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/query/time", "", query)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("end == start must be rejected, got %d", rec.Code)
	}
}

func TestQueryBBoxEndpoint(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	la := testEntity("visit", base)
	la.Lat, la.Lon = ptrFloat(34.05), ptrFloat(-118.24)
	nyc := testEntity("visit", base.Add(time.Hour))
	nyc.Lat, nyc.Lon = ptrFloat(40.71), ptrFloat(-74.00)
	nowhere := testEntity("visit", base.Add(2*time.Hour))

	if rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", []models.Entity{la, nyc, nowhere}); rec.Code != http.StatusOK {
		t.Fatalf("batch ingest failed: %d", rec.Code)
	}

	query := models.BBoxQueryRequest{
		Types: []string{"visit"},
		BBox:  []float64{-120, 33, -117, 35},
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/query/bbox", "", query)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.EntitiesResponse
	decodeBody(t, rec, &resp)
	if len(resp.Entities) != 1 {
		t.Fatalf("expected 1 entity inside the box, got %d", len(resp.Entities))
	}
	if resp.Entities[0].Lat == nil || *resp.Entities[0].Lat != 34.05 {
		t.Errorf("wrong entity matched: %+v", resp.Entities[0])
	}
}

func TestQueryBBoxRejectsUnorderedCorners(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	query := models.BBoxQueryRequest{
		Types: []string{"visit"},
		BBox:  []float64{-117, 33, -120, 35},
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/query/bbox", "", query)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("minLon >= maxLon must be rejected, got %d", rec.Code)
	}
}

func TestExportNDJSON(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Entity{
		testEntity("event", base),
		testEntity("event", base.Add(time.Hour)),
		testEntity("note", base.Add(2*time.Hour)),
	}
	if rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", batch); rec.Code != http.StatusOK {
		t.Fatalf("batch ingest failed: %d", rec.Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/v1/query/export", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("expected NDJSON content type, got %q", ct)
	}

	scanner := bufio.NewScanner(rec.Body)
	if !scanner.Scan() {
		t.Fatal("expected a header line")
	}
	var header models.ExportHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		t.Fatalf("header line is not valid JSON: %v", err)
	}
	if header.Total != 3 {
		t.Errorf("expected total 3, got %d", header.Total)
	}

	var entities []models.Entity
	for scanner.Scan() {
		var e models.Entity
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("entity line is not valid JSON: %v", err)
		}
		entities = append(entities, e)
	}
	if len(entities) != 3 {
		t.Fatalf("expected 3 entity lines, got %d", len(entities))
	}
	for i := 1; i < len(entities); i++ {
		if entities[i].TStart.After(entities[i-1].TStart) {
			t.Error("default export order must be newest first")
		}
	}
}

func TestExportOldestWithTypeFilter(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Entity{
		testEntity("event", base.Add(time.Hour)),
		testEntity("event", base),
		testEntity("note", base.Add(2*time.Hour)),
	}
	if rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", batch); rec.Code != http.StatusOK {
		t.Fatalf("batch ingest failed: %d", rec.Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/v1/query/export?types=event&order=oldest", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 entities, got %d lines", len(lines))
	}
	var header models.ExportHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("bad header line: %v", err)
	}
	if header.Total != 2 {
		t.Errorf("type filter must apply to the total, got %d", header.Total)
	}
	var first models.Entity
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("bad entity line: %v", err)
	}
	if !first.TStart.Equal(base) {
		t.Errorf("oldest order must start at the earliest t_start, got %s", first.TStart)
	}
}

func TestExportRejectsUnknownOrder(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	rec := doJSON(t, mux, http.MethodGet, "/v1/query/export?order=sideways", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown order must be rejected, got %d", rec.Code)
	}
}

func TestStatsEndpointCachesSnapshot(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.Entity{
		testEntity("event", base),
		testEntity("event", base.Add(time.Hour)),
	}
	if rec := doJSON(t, mux, http.MethodPost, "/v1/entities/batch", "", batch); rec.Code != http.StatusOK {
		t.Fatalf("batch ingest failed: %d", rec.Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/v1/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var first models.StatsResponse
	decodeBody(t, rec, &first)
	if first.TotalEntities != 2 {
		t.Errorf("expected 2 entities, got %d", first.TotalEntities)
	}
	if first.UptimeSeconds < 0 {
		t.Errorf("uptime must not be negative: %f", first.UptimeSeconds)
	}

	// A new row inside the TTL must not change the cached snapshot.
	if rec := doJSON(t, mux, http.MethodPost, "/v1/entity", "", testEntity("event", base.Add(2*time.Hour))); rec.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodGet, "/v1/stats", "", nil)
	var second models.StatsResponse
	decodeBody(t, rec, &second)
	if second.TotalEntities != 2 {
		t.Errorf("expected cached total 2, got %d", second.TotalEntities)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	mux, _ := setupTestServer(t, "sekrit")

	rec := doJSON(t, mux, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health must answer without credentials, got %d", rec.Code)
	}
}

func TestAuthEnforcedOnAPI(t *testing.T) {
	mux, _ := setupTestServer(t, "sekrit")

	cases := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing key", key: "", want: http.StatusUnauthorized},
		{name: "wrong key", key: "guess", want: http.StatusForbidden},
		{name: "correct key", key: "sekrit", want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodGet, "/v1/stats", tc.key, nil)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	mux, _ := setupTestServer(t, "")

	rec := doJSON(t, mux, http.MethodGet, "/health", "", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("every response must carry an X-Request-ID header")
	}
}

func ptrFloat(f float64) *float64 { return &f }
