// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package sync

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/crmlens/crmlens/internal/hubspot"
	"github.com/crmlens/crmlens/internal/models"
)

// contactFromObject maps one remote contact record to a mirror row. The full
// remote payload is preserved in RawData so fields outside the typed columns
// survive the mirror round trip.
func contactFromObject(obj hubspot.Object, now time.Time) models.Contact {
	contact := models.Contact{
		ID:           obj.ID,
		LastModified: parseRemoteTime(obj.Property("lastmodifieddate"), obj.UpdatedAt, now),
		RawData:      marshalRaw(obj),
	}

	contact.Email = optionalString(obj.Property("email"))
	contact.FirstName = optionalString(obj.Property("firstname"))
	contact.LastName = optionalString(obj.Property("lastname"))
	contact.LifecycleStage = optionalString(obj.Property("lifecyclestage"))
	contact.OwnerID = optionalString(obj.Property("hubspot_owner_id"))
	return contact
}

// dealFromObject maps one remote deal record to a mirror row, extracting the
// first associated contact id when present.
func dealFromObject(obj hubspot.Object, now time.Time) models.Deal {
	deal := models.Deal{
		ID:           obj.ID,
		LastModified: parseRemoteTime(obj.Property("hs_lastmodifieddate"), obj.UpdatedAt, now),
		RawData:      marshalRaw(obj),
	}

	deal.DealName = optionalString(obj.Property("dealname"))
	deal.DealStage = optionalString(obj.Property("dealstage"))
	deal.Pipeline = optionalString(obj.Property("pipeline"))

	if raw := obj.Property("amount"); raw != "" {
		if amount, err := strconv.ParseFloat(raw, 64); err == nil {
			deal.Amount = &amount
		}
	}
	if raw := obj.Property("closedate"); raw != "" {
		if closed, err := time.Parse(time.RFC3339, raw); err == nil {
			closedUTC := closed.UTC()
			deal.CloseDate = &closedUTC
		}
	}
	deal.ContactID = optionalString(obj.FirstAssociationID(hubspot.ObjectTypeContacts))
	return deal
}

// parseRemoteTime resolves a record's last-modified timestamp: the property
// value when parseable, the envelope's updatedAt when set, otherwise the
// ingestion time.
func parseRemoteTime(value string, updatedAt, now time.Time) time.Time {
	if value != "" {
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			return ts.UTC()
		}
		// The search endpoint reports epoch milliseconds for date properties.
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	if !updatedAt.IsZero() {
		return updatedAt.UTC()
	}
	return now.UTC()
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func marshalRaw(obj hubspot.Object) json.RawMessage {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	return raw
}
