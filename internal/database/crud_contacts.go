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

	"github.com/goccy/go-json"

	"github.com/crmlens/crmlens/internal/metrics"
	"github.com/crmlens/crmlens/internal/models"
)

// upsertContactQuery replaces every mirrored scalar field and the raw
// payload. health_score is deliberately absent from the update set: it is
// computed and written by an external collaborator and must survive sync
// passes.
const upsertContactQuery = `INSERT INTO contacts (
		id, email, firstname, lastname, lifecyclestage, hubspot_owner_id,
		last_modified, raw_data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		email = EXCLUDED.email,
		firstname = EXCLUDED.firstname,
		lastname = EXCLUDED.lastname,
		lifecyclestage = EXCLUDED.lifecyclestage,
		hubspot_owner_id = EXCLUDED.hubspot_owner_id,
		last_modified = EXCLUDED.last_modified,
		raw_data = EXCLUDED.raw_data`

// UpsertContacts writes a batch of contacts as a single transaction.
// If any row fails, the whole batch rolls back and the error propagates;
// partial application would leave the mirror inconsistent within the batch.
// Replaying the same batch is a no-op beyond overwriting identical values.
func (db *DB) UpsertContacts(ctx context.Context, contacts []models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contact upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertContactQuery)
	if err != nil {
		return fmt.Errorf("prepare contact upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range contacts {
		c := &contacts[i]
		if c.ID == "" {
			return fmt.Errorf("contact at index %d has empty id", i)
		}

		lastModified := c.LastModified
		if lastModified.IsZero() {
			lastModified = time.Now().UTC()
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Email, c.FirstName, c.LastName, c.LifecycleStage, c.OwnerID,
			lastModified, rawDataString(c.RawData)); err != nil {
			return fmt.Errorf("upsert contact %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit contact upsert transaction: %w", err)
	}

	metrics.SyncUpsertsTotal.WithLabelValues("contacts").Add(float64(len(contacts)))
	return nil
}

// SetContactHealthScore persists an externally computed health score.
func (db *DB) SetContactHealthScore(ctx context.Context, id string, score float64) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE contacts SET health_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("update health score for %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("health score rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetContact returns one mirrored contact, or nil when absent.
func (db *DB) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT
			id, email, firstname, lastname, lifecyclestage, hubspot_owner_id,
			health_score, last_modified, raw_data
		FROM contacts WHERE id = ?`, id)

	contact, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", id, err)
	}
	return contact, nil
}

// ListContacts returns a page of mirrored contacts ordered by id, starting
// after the given cursor id ("" for the first page).
func (db *DB) ListContacts(ctx context.Context, after string, limit int) ([]models.Contact, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
			id, email, firstname, lastname, lifecyclestage, hubspot_owner_id,
			health_score, last_modified, raw_data
		FROM contacts WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, db.classifyReadError("contact list", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]models.Contact, 0, limit)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, *contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact rows: %w", err)
	}
	return contacts, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan code.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var c models.Contact
	var raw sql.NullString

	if err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName,
		&c.LifecycleStage, &c.OwnerID, &c.HealthScore, &c.LastModified, &raw); err != nil {
		return nil, err
	}
	if raw.Valid && raw.String != "" {
		c.RawData = json.RawMessage(raw.String)
	}
	return &c, nil
}

// rawDataString renders the raw payload for storage; empty payloads are
// stored as SQL NULL.
func rawDataString(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
