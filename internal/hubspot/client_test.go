// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package hubspot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/crmlens/crmlens/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(&config.HubSpotConfig{
		BaseURL:        srv.URL,
		Token:          "test-token",
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	})
	return client, srv
}

func TestListObjects_DecodesPageAndQuota(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crm/v3/objects/contacts" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("Unexpected limit %q", got)
		}
		if got := r.URL.Query().Get("properties"); got != "email,firstname" {
			t.Errorf("Unexpected properties %q", got)
		}

		w.Header().Set(rateLimitRemainingHeader, "87")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ObjectPage{
			Results: []Object{
				{ID: "1", Properties: map[string]string{"email": "a@example.com"}},
				{ID: "2", Properties: map[string]string{"email": "b@example.com"}},
			},
			Paging: &Paging{Next: &PagingNext{After: "cursor-2"}},
		})
	}))

	page, err := client.ListObjects(context.Background(), ObjectTypeContacts, ListOptions{
		Limit:      100,
		Properties: []string{"email", "firstname"},
	})
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(page.Results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(page.Results))
	}
	if page.NextAfter() != "cursor-2" {
		t.Errorf("Expected cursor-2, got %q", page.NextAfter())
	}
	if page.RateLimitRemaining != 87 {
		t.Errorf("Expected quota 87, got %d", page.RateLimitRemaining)
	}
}

func TestListObjects_MissingQuotaHeader(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ObjectPage{})
	}))

	page, err := client.ListObjects(context.Background(), ObjectTypeContacts, ListOptions{})
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if page.RateLimitRemaining != -1 {
		t.Errorf("Expected -1 for missing quota header, got %d", page.RateLimitRemaining)
	}
}

func TestSearchObjects_SendsFilterBody(t *testing.T) {
	since := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/crm/v3/objects/contacts/search" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Decode search request: %v", err)
		}
		if len(req.FilterGroups) != 1 || len(req.FilterGroups[0].Filters) != 1 {
			t.Fatalf("Expected one filter group with one filter, got %+v", req.FilterGroups)
		}
		filter := req.FilterGroups[0].Filters[0]
		if filter.PropertyName != "lastmodifieddate" {
			t.Errorf("Unexpected filter property %q", filter.PropertyName)
		}
		if filter.Operator != OperatorGreaterThan {
			t.Errorf("Unexpected operator %q", filter.Operator)
		}
		if filter.Value != "1785585600000" {
			t.Errorf("Unexpected epoch-ms value %q", filter.Value)
		}

		_ = json.NewEncoder(w).Encode(ObjectPage{Results: []Object{{ID: "9"}}})
	}))

	req := ModifiedAfterSearch(since, []string{"email"}, 100)
	page, err := client.SearchObjects(context.Background(), ObjectTypeContacts, req)
	if err != nil {
		t.Fatalf("SearchObjects failed: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].ID != "9" {
		t.Errorf("Unexpected results %+v", page.Results)
	}
}

func TestListProperties_DecodesNames(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crm/v3/properties/contacts" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(propertiesResponse{
			Results: []Property{{Name: "email"}, {Name: "firstname"}},
		})
	}))

	props, err := client.ListProperties(context.Background(), ObjectTypeContacts)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(props) != 2 || props[0].Name != "email" {
		t.Errorf("Unexpected properties %+v", props)
	}
}

func TestDo_NonSuccessBecomesAPIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad filter","category":"VALIDATION_ERROR","correlationId":"xyz"}`))
	}))

	_, err := client.SearchObjects(context.Background(), ObjectTypeContacts, SearchRequest{})
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "bad filter" {
		t.Errorf("Expected remote message, got %q", apiErr.Message)
	}
	if apiErr.CorrelationID != "xyz" {
		t.Errorf("Expected correlation id, got %q", apiErr.CorrelationID)
	}
}

func TestDo_RetriesServerErrors(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ObjectPage{Results: []Object{{ID: "1"}}})
	}))

	page, err := client.ListObjects(context.Background(), ObjectTypeContacts, ListOptions{})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(page.Results) != 1 {
		t.Errorf("Unexpected results %+v", page.Results)
	}
}
