// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package database

import (
	"context"
	"fmt"
	"time"
)

// defaultQueryTimeout caps queries whose caller context carries no deadline.
const defaultQueryTimeout = 30 * time.Second

// ensureContext guarantees a deadline on the returned context.
// If the caller's context already has one, it is kept as-is.
func ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// Checkpoint forces a WAL checkpoint, flushing pending writes to the
// main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("failed to checkpoint database: %w", err)
	}
	return nil
}

// GetDatabasePath returns the configured database file path.
func (db *DB) GetDatabasePath() string {
	return db.cfg.Path
}

// EntityCount returns the total number of stored entities.
func (db *DB) EntityCount(ctx context.Context) (int64, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}
