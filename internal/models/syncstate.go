// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package models

import "time"

// SyncStatus is the persisted state of the sync pipeline.
//
// Valid transitions: idle -> syncing -> {completed, failed}. A new run from
// completed or failed transitions back to syncing. There is no partial
// success status; a run that upserted some pages before failing reports
// failed even though those upserts remain durable.
type SyncStatus string

const (
	SyncStatusIdle      SyncStatus = "idle"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// Valid reports whether s is one of the known status values.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusIdle, SyncStatusSyncing, SyncStatusCompleted, SyncStatusFailed:
		return true
	}
	return false
}

// Keys used in the sync_state key-value table.
const (
	SyncStateKeyStatus       = "sync_status"
	SyncStateKeyLastSyncTime = "last_sync_time"
)

// SyncReport is the polling surface for sync progress.
//
// ContactCount and DealCount reflect the mirror as of the read, which may
// race with an in-flight pipeline; readers see partial progress by design.
type SyncReport struct {
	ContactCount int64      `json:"contact_count"`
	DealCount    int64      `json:"deal_count"`
	Status       SyncStatus `json:"status"`
	Message      string     `json:"message,omitempty"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}
