// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package sync

import (
	"context"

	"github.com/crmlens/crmlens/internal/hubspot"
	"github.com/crmlens/crmlens/internal/logging"
)

// coreContactProperties is the fixed allow-list of contact fields the mirror
// understands: identity, lifecycle, attribution, engagement counters, and
// timestamps. Order is preserved in outbound requests.
var coreContactProperties = []string{
	"email",
	"firstname",
	"lastname",
	"phone",
	"company",
	"jobtitle",
	"lifecyclestage",
	"hubspot_owner_id",
	"hs_lead_status",
	"hs_analytics_source",
	"hs_analytics_num_page_views",
	"hs_analytics_num_visits",
	"hs_email_open",
	"hs_email_click",
	"num_notes",
	"notes_last_contacted",
	"notes_last_updated",
	"createdate",
	"lastmodifieddate",
}

// dealProperties is the fixed field set requested for deal sync. Deals do not
// go through discovery; the set is small and stable.
var dealProperties = []string{
	"dealname",
	"amount",
	"dealstage",
	"pipeline",
	"closedate",
	"hs_lastmodifieddate",
}

// ResolveContactProperties computes the contact field list to request:
// the core allow-list intersected with the fields currently defined on the
// remote. The intersection drops fields that were archived or renamed
// remotely, which would otherwise turn every list request into a hard 400.
//
// When the metadata fetch fails the full allow-list is used unfiltered; a
// stale field name is less harmful than syncing nothing.
func ResolveContactProperties(ctx context.Context, api hubspot.API) []string {
	defined, err := api.ListProperties(ctx, hubspot.ObjectTypeContacts)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Int("fallback_count", len(coreContactProperties)).
			Msg("Property discovery failed, using full core field list")
		return coreContactProperties
	}

	remote := make(map[string]struct{}, len(defined))
	for _, p := range defined {
		remote[p.Name] = struct{}{}
	}

	resolved := make([]string, 0, len(coreContactProperties))
	for _, name := range coreContactProperties {
		if _, ok := remote[name]; ok {
			resolved = append(resolved, name)
		}
	}

	logging.Ctx(ctx).Debug().
		Int("remote_defined", len(defined)).
		Int("resolved", len(resolved)).
		Msg("Resolved contact property list")
	return resolved
}
