// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package database

import (
	"errors"
	"io"

	"github.com/tomtom215/daruma/internal/logging"
)

// ErrBatchTooLarge is returned when a batch exceeds models.MaxBatchSize.
// Nothing from the batch is persisted.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// closeWithLog closes an io.Closer and logs any error at warn level.
// Used for cleanup paths where the error cannot change the outcome but
// should not vanish silently.
func closeWithLog(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		logging.Warn().Err(err).Str("resource", what).Msg("Failed to close resource")
	}
}

// closeQuietly closes an io.Closer ignoring any error.
// Only for paths where a close failure is meaningless, such as closing
// a connection that already failed to initialize.
func closeQuietly(c io.Closer) {
	_ = c.Close()
}
