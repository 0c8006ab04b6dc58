// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/daruma/internal/models"
)

func protectedHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestMiddlewareMissingKey(t *testing.T) {
	called := false
	handler := NewAPIKey("secret").Middleware(protectedHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run without credentials")
	}

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeAuthentication {
		t.Errorf("expected %s, got %+v", models.ErrCodeAuthentication, resp.Error)
	}
}

func TestMiddlewareWrongKey(t *testing.T) {
	called := false
	handler := NewAPIKey("secret").Middleware(protectedHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set(HeaderName, "not-the-secret")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run with a wrong key")
	}

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeAuthorization {
		t.Errorf("expected %s, got %+v", models.ErrCodeAuthorization, resp.Error)
	}
}

func TestMiddlewareCorrectKey(t *testing.T) {
	called := false
	handler := NewAPIKey("secret").Middleware(protectedHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set(HeaderName, "secret")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !called {
		t.Error("handler should have run with the correct key")
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	called := false
	handler := NewAPIKey("").Middleware(protectedHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with auth disabled, got %d", rec.Code)
	}
	if !called {
		t.Error("handler should run when no key is configured")
	}
}

func TestEnabled(t *testing.T) {
	if NewAPIKey("").Enabled() {
		t.Error("empty key must report disabled")
	}
	if !NewAPIKey("k").Enabled() {
		t.Error("non-empty key must report enabled")
	}
}
