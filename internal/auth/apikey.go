// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package auth implements pre-shared key authentication for the API.
//
// Clients present the key in the X-API-Key header. A missing header is
// an authentication failure (401); a present but wrong key is an
// authorization failure (403). Comparison is constant-time.
package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/daruma/internal/logging"
	"github.com/tomtom215/daruma/internal/models"
)

// HeaderName is the request header carrying the pre-shared key.
const HeaderName = "X-API-Key"

// APIKey validates requests against a single pre-shared key.
type APIKey struct {
	key string
}

// NewAPIKey creates an APIKey validator. An empty key disables
// authentication entirely; every request passes through.
func NewAPIKey(key string) *APIKey {
	return &APIKey{key: key}
}

// Enabled reports whether a key is configured.
func (a *APIKey) Enabled() bool {
	return a.key != ""
}

// Middleware enforces the key on the wrapped handler.
func (a *APIKey) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next(w, r)
			return
		}

		presented := r.Header.Get(HeaderName)
		if presented == "" {
			writeAuthError(w, http.StatusUnauthorized, models.ErrCodeAuthentication, "Missing API key")
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.key)) != 1 {
			logging.Warn().Str("remote_addr", r.RemoteAddr).Msg("Rejected request with invalid API key")
			writeAuthError(w, http.StatusForbidden, models.ErrCodeAuthorization, "Invalid API key")
			return
		}

		next(w, r)
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.Error().Err(err).Msg("Failed to encode auth error response")
	}
}
