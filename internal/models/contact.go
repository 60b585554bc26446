// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Contact is the local mirror of a remote CRM contact.
//
// Scalar columns are typed projections of the remote properties the rest of
// the system understands. RawData preserves the full remote payload verbatim
// so remote schema additions survive a round trip even before they are
// modeled as columns.
type Contact struct {
	ID             string          `json:"id"`
	Email          *string         `json:"email,omitempty"`
	FirstName      *string         `json:"firstname,omitempty"`
	LastName       *string         `json:"lastname,omitempty"`
	LifecycleStage *string         `json:"lifecyclestage,omitempty"`
	OwnerID        *string         `json:"hubspot_owner_id,omitempty"`
	HealthScore    *float64        `json:"health_score,omitempty"`
	LastModified   time.Time       `json:"last_modified"`
	RawData        json.RawMessage `json:"raw_data,omitempty"`
}

// Deal is the local mirror of a remote CRM deal.
//
// ContactID holds the first associated contact's identifier, by value only;
// the store does not enforce it as a foreign key.
type Deal struct {
	ID           string          `json:"id"`
	DealName     *string         `json:"dealname,omitempty"`
	Amount       *float64        `json:"amount,omitempty"`
	DealStage    *string         `json:"dealstage,omitempty"`
	Pipeline     *string         `json:"pipeline,omitempty"`
	CloseDate    *time.Time      `json:"closedate,omitempty"`
	LastModified time.Time       `json:"last_modified"`
	ContactID    *string         `json:"contact_id,omitempty"`
	RawData      json.RawMessage `json:"raw_data,omitempty"`
}
