// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crmlens/crmlens/internal/models"
)

// syncMessageKey holds the diagnostic message of the most recent failed run.
// Cleared on every non-failed transition.
const syncMessageKey = "sync_message"

const upsertSyncStateQuery = `INSERT INTO sync_state (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at`

// SetSyncStatus upserts the sync status key. When the status is completed,
// the last-sync-time key is advanced to the current wall-clock time in the
// same transaction; this timestamp is the cursor basis for the next delta
// run. Records modified remotely after the last fetched page but before this
// write may be skipped by the next delta run (accepted wall-clock cursoring
// gap).
func (db *DB) SetSyncStatus(ctx context.Context, status models.SyncStatus, message string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid sync status %q", status)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync state transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, upsertSyncStateQuery, models.SyncStateKeyStatus, string(status), now); err != nil {
		return fmt.Errorf("upsert sync status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, upsertSyncStateQuery, syncMessageKey, message, now); err != nil {
		return fmt.Errorf("upsert sync message: %w", err)
	}

	if status == models.SyncStatusCompleted {
		if _, err := tx.ExecContext(ctx, upsertSyncStateQuery,
			models.SyncStateKeyLastSyncTime, now.Format(time.RFC3339), now); err != nil {
			return fmt.Errorf("upsert last sync time: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync state transaction: %w", err)
	}
	return nil
}

// ResetSyncStatus forces the status back to idle. This is the manual
// recovery path for a run left stuck at syncing by a process crash.
func (db *DB) ResetSyncStatus(ctx context.Context) error {
	return db.SetSyncStatus(ctx, models.SyncStatusIdle, "")
}

// getSyncStateValue reads one key from sync_state. Returns ("", false, nil)
// when the key has never been written.
func (db *DB) getSyncStateValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// LastSyncTime returns the completion time of the last successful run.
// The boolean is false when no run has ever completed or the stored value
// does not parse; an unparseable cursor means a full sync, not a failure.
func (db *DB) LastSyncTime(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := db.getSyncStateValue(ctx, models.SyncStateKeyLastSyncTime)
	if err != nil {
		return time.Time{}, false, db.classifyReadError("last_sync_time read", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// SyncReport returns the current sync status, failure message, mirror row
// counts, and last sync time. A store that has never seen a sync run reports
// idle with zero counts; an unreachable store returns ErrStoreUnavailable.
func (db *DB) SyncReport(ctx context.Context) (*models.SyncReport, error) {
	report := &models.SyncReport{Status: models.SyncStatusIdle}

	statusValue, ok, err := db.getSyncStateValue(ctx, models.SyncStateKeyStatus)
	if err != nil {
		return nil, db.classifyReadError("sync_status read", err)
	}
	if ok {
		if status := models.SyncStatus(statusValue); status.Valid() {
			report.Status = status
		}
	}

	if message, ok, err := db.getSyncStateValue(ctx, syncMessageKey); err == nil && ok {
		report.Message = message
	}

	if err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM contacts`).Scan(&report.ContactCount); err != nil {
		return nil, db.classifyReadError("contact count", err)
	}
	if err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM deals`).Scan(&report.DealCount); err != nil {
		return nil, db.classifyReadError("deal count", err)
	}

	if lastSync, ok, err := db.LastSyncTime(ctx); err == nil && ok {
		report.LastSyncTime = &lastSync
	}

	return report, nil
}
