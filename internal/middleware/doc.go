// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package middleware provides HTTP middleware for the API server:
// gzip compression, request ID propagation, and Prometheus
// instrumentation. All middleware uses the http.HandlerFunc wrapping
// style and composes left to right.
package middleware
