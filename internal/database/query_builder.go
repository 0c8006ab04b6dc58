// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package database

import (
	"strings"

	"github.com/tomtom215/daruma/internal/models"
)

// buildInClause generates a parameterized IN clause for the given values.
// Returns the placeholder string ("?,?,?") and the argument slice.
func buildInClause(values []string) (string, []interface{}) {
	if len(values) == 0 {
		return "", nil
	}

	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}

	return strings.Join(placeholders, ","), args
}

// orderClause maps a validated order value to its ORDER BY expression.
// Order values come from a closed enum checked by request validation;
// SQL text is never built from caller-supplied strings.
func orderClause(order string) string {
	switch order {
	case models.OrderTStartDesc:
		return "t_start DESC, id DESC"
	case models.OrderRandom:
		return "random()"
	default:
		return "t_start ASC, id ASC"
	}
}

// exportOrderClause maps an export order value to its ORDER BY expression.
func exportOrderClause(order string) string {
	if order == models.ExportOrderOldest {
		return "t_start ASC, id ASC"
	}
	return "t_start DESC, id DESC"
}

// overlapPredicate matches entities whose time extent intersects a
// [start, end] window. Instants (t_end IS NULL) collapse to t_start.
// The window is inclusive on both bounds. Bind end first, then start.
const overlapPredicate = "t_start <= ? AND COALESCE(t_end, t_start) >= ?"
