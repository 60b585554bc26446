// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package database

import (
	"context"
	"fmt"
	"time"
)

// MirrorStats is the aggregated BI view over the mirror.
type MirrorStats struct {
	ContactCount    int64              `json:"contact_count"`
	DealCount       int64              `json:"deal_count"`
	TotalDealAmount float64            `json:"total_deal_amount"`
	LifecycleStages map[string]int64   `json:"lifecycle_stages"`
	DealStages      map[string]int64   `json:"deal_stages"`
	PipelineAmounts map[string]float64 `json:"pipeline_amounts"`
	LastSyncTime    *time.Time         `json:"last_sync_time,omitempty"`
}

// MirrorStats computes row counts and stage/pipeline breakdowns via SQL
// aggregation. Rows with NULL stage values are grouped under "unknown".
func (db *DB) MirrorStats(ctx context.Context) (*MirrorStats, error) {
	stats := &MirrorStats{
		LifecycleStages: make(map[string]int64),
		DealStages:      make(map[string]int64),
		PipelineAmounts: make(map[string]float64),
	}

	if err := db.conn.QueryRowContext(ctx, `SELECT
			(SELECT count(*) FROM contacts),
			(SELECT count(*) FROM deals),
			(SELECT coalesce(sum(amount), 0) FROM deals)`).
		Scan(&stats.ContactCount, &stats.DealCount, &stats.TotalDealAmount); err != nil {
		return nil, db.classifyReadError("mirror stats", err)
	}

	if err := db.groupCount(ctx,
		`SELECT coalesce(lifecyclestage, 'unknown'), count(*) FROM contacts GROUP BY 1`,
		stats.LifecycleStages); err != nil {
		return nil, err
	}
	if err := db.groupCount(ctx,
		`SELECT coalesce(dealstage, 'unknown'), count(*) FROM deals GROUP BY 1`,
		stats.DealStages); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT coalesce(pipeline, 'unknown'), coalesce(sum(amount), 0) FROM deals GROUP BY 1`)
	if err != nil {
		return nil, db.classifyReadError("pipeline amounts", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var pipeline string
		var amount float64
		if err := rows.Scan(&pipeline, &amount); err != nil {
			return nil, fmt.Errorf("scan pipeline amount: %w", err)
		}
		stats.PipelineAmounts[pipeline] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline amounts: %w", err)
	}

	if lastSync, ok, err := db.LastSyncTime(ctx); err == nil && ok {
		stats.LastSyncTime = &lastSync
	}

	return stats, nil
}

// groupCount runs a two-column (key, count) aggregation into dest.
func (db *DB) groupCount(ctx context.Context, query string, dest map[string]int64) error {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return db.classifyReadError("group count", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan group count: %w", err)
		}
		dest[key] = count
	}
	return rows.Err()
}
