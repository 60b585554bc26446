// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package hubspot

import (
	"strconv"
	"time"
)

// Object types accepted by the list, search, and property endpoints.
const (
	ObjectTypeContacts = "contacts"
	ObjectTypeDeals    = "deals"
)

// Object is one remote CRM record as returned by the v3 objects API.
// Properties is untyped by design: the remote schema drifts and the mirror
// preserves the payload verbatim.
type Object struct {
	ID           string                     `json:"id"`
	Properties   map[string]string          `json:"properties"`
	CreatedAt    time.Time                  `json:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
	Archived     bool                       `json:"archived,omitempty"`
	Associations map[string]AssociationList `json:"associations,omitempty"`
}

// Property returns a named property value, or "" when absent.
func (o *Object) Property(name string) string {
	return o.Properties[name]
}

// FirstAssociationID returns the id of the first associated object of the
// given type, or "" when the object has no such association.
func (o *Object) FirstAssociationID(objectType string) string {
	list, ok := o.Associations[objectType]
	if !ok || len(list.Results) == 0 {
		return ""
	}
	return list.Results[0].ID
}

// AssociationList holds the associated object references for one type.
type AssociationList struct {
	Results []Association `json:"results"`
}

// Association is one associated object reference.
type Association struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Paging carries the cursor for the next page. A nil Next ends pagination.
type Paging struct {
	Next *PagingNext `json:"next,omitempty"`
}

// PagingNext holds the opaque after cursor.
type PagingNext struct {
	After string `json:"after"`
	Link  string `json:"link,omitempty"`
}

// ObjectPage is one page of list or search results.
type ObjectPage struct {
	Results []Object `json:"results"`
	Paging  *Paging  `json:"paging,omitempty"`

	// RateLimitRemaining mirrors the remote's remaining-quota response
	// header; -1 when the header was absent. Consulted only to pick the
	// inter-page delay, never enforced as a hard budget.
	RateLimitRemaining int `json:"-"`
}

// NextAfter returns the cursor for the next page, or "" when pagination is
// finished.
func (p *ObjectPage) NextAfter() string {
	if p.Paging == nil || p.Paging.Next == nil {
		return ""
	}
	return p.Paging.Next.After
}

// ListOptions controls a paginated list request.
type ListOptions struct {
	Limit        int
	After        string
	Properties   []string
	Associations []string
}

// Property is one entry from the property-metadata endpoint.
type Property struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	Type      string `json:"type,omitempty"`
	FieldType string `json:"fieldType,omitempty"`
}

// propertiesResponse is the property-metadata endpoint's envelope.
type propertiesResponse struct {
	Results []Property `json:"results"`
}

// Search filter operators used by this client.
const OperatorGreaterThan = "GREATER_THAN"

// Filter is one search filter clause.
type Filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

// FilterGroup is an AND-combined set of filters.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// SearchRequest is the filtered search endpoint's request body.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

// ModifiedAfterSearch builds the delta-sync search request: one filter group
// with one GREATER_THAN filter on the last-modified property, expressed in
// epoch milliseconds.
func ModifiedAfterSearch(since time.Time, properties []string, limit int) SearchRequest {
	return SearchRequest{
		FilterGroups: []FilterGroup{{
			Filters: []Filter{{
				PropertyName: "lastmodifieddate",
				Operator:     OperatorGreaterThan,
				Value:        strconv.FormatInt(since.UnixMilli(), 10),
			}},
		}},
		Properties: properties,
		Limit:      limit,
	}
}
