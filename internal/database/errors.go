// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crmlens/crmlens/internal/metrics"
)

// ErrStoreUnavailable indicates the underlying store cannot be reached.
//
// Status reads return this instead of a fabricated zero count so callers can
// distinguish "sync never ran" from "can't tell".
var ErrStoreUnavailable = errors.New("mirror store unavailable")

// IsStoreUnavailable reports whether err wraps ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// ErrNotFound indicates the requested row does not exist in the mirror.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// classifyReadError converts a failed status-read error into a typed
// store-unavailable error when the connection itself is dead, and records
// the failure either way.
func (db *DB) classifyReadError(operation string, err error) error {
	metrics.StoreQueryErrorsTotal.WithLabelValues(operation).Inc()

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if pingErr := db.conn.PingContext(pingCtx); pingErr != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}
