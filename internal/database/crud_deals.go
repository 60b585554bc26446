// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/crmlens/crmlens/internal/metrics"
	"github.com/crmlens/crmlens/internal/models"
)

const upsertDealQuery = `INSERT INTO deals (
		id, dealname, amount, dealstage, pipeline, closedate,
		last_modified, contact_id, raw_data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		dealname = EXCLUDED.dealname,
		amount = EXCLUDED.amount,
		dealstage = EXCLUDED.dealstage,
		pipeline = EXCLUDED.pipeline,
		closedate = EXCLUDED.closedate,
		last_modified = EXCLUDED.last_modified,
		contact_id = EXCLUDED.contact_id,
		raw_data = EXCLUDED.raw_data`

// UpsertDeals writes a batch of deals as a single transaction with the same
// all-or-nothing and idempotence guarantees as UpsertContacts.
func (db *DB) UpsertDeals(ctx context.Context, deals []models.Deal) error {
	if len(deals) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deal upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertDealQuery)
	if err != nil {
		return fmt.Errorf("prepare deal upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range deals {
		d := &deals[i]
		if d.ID == "" {
			return fmt.Errorf("deal at index %d has empty id", i)
		}

		lastModified := d.LastModified
		if lastModified.IsZero() {
			lastModified = time.Now().UTC()
		}

		if _, err := stmt.ExecContext(ctx,
			d.ID, d.DealName, d.Amount, d.DealStage, d.Pipeline, d.CloseDate,
			lastModified, d.ContactID, rawDataString(d.RawData)); err != nil {
			return fmt.Errorf("upsert deal %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deal upsert transaction: %w", err)
	}

	metrics.SyncUpsertsTotal.WithLabelValues("deals").Add(float64(len(deals)))
	return nil
}

// ListDeals returns a page of mirrored deals ordered by id, starting after
// the given cursor id ("" for the first page).
func (db *DB) ListDeals(ctx context.Context, after string, limit int) ([]models.Deal, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
			id, dealname, amount, dealstage, pipeline, closedate,
			last_modified, contact_id, raw_data
		FROM deals WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, db.classifyReadError("deal list", err)
	}
	defer func() { _ = rows.Close() }()

	deals := make([]models.Deal, 0, limit)
	for rows.Next() {
		var d models.Deal
		var raw sql.NullString
		var closeDate sql.NullTime

		if err := rows.Scan(&d.ID, &d.DealName, &d.Amount, &d.DealStage,
			&d.Pipeline, &closeDate, &d.LastModified, &d.ContactID, &raw); err != nil {
			return nil, fmt.Errorf("scan deal row: %w", err)
		}
		if closeDate.Valid {
			t := closeDate.Time
			d.CloseDate = &t
		}
		if raw.Valid && raw.String != "" {
			d.RawData = json.RawMessage(raw.String)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deal rows: %w", err)
	}
	return deals, nil
}
