// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package database

import "fmt"

// Schema notes:
//   - raw_data is stored as VARCHAR holding the verbatim remote JSON payload;
//     it is never parsed by the store, only round-tripped.
//   - health_score is written by the scoring collaborator, never by sync
//     upserts, so a sync pass cannot clobber it.
//   - contact_id on deals is a value reference only, not an enforced FK.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id VARCHAR PRIMARY KEY,
		email VARCHAR,
		firstname VARCHAR,
		lastname VARCHAR,
		lifecyclestage VARCHAR,
		hubspot_owner_id VARCHAR,
		health_score DOUBLE,
		last_modified TIMESTAMP,
		raw_data VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS deals (
		id VARCHAR PRIMARY KEY,
		dealname VARCHAR,
		amount DOUBLE,
		dealstage VARCHAR,
		pipeline VARCHAR,
		closedate TIMESTAMP,
		last_modified TIMESTAMP,
		contact_id VARCHAR,
		raw_data VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS sync_state (
		key VARCHAR PRIMARY KEY,
		value VARCHAR NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_last_modified ON contacts (last_modified)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_last_modified ON deals (last_modified)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_contact_id ON deals (contact_id)`,
}

// initSchema creates the mirror tables if they do not exist.
func (db *DB) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
