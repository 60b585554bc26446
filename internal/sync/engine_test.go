// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/crmlens/crmlens/internal/config"
	"github.com/crmlens/crmlens/internal/hubspot"
	"github.com/crmlens/crmlens/internal/models"
)

// fakeStore is an in-memory Store recording every status transition.
type fakeStore struct {
	mu            stdsync.Mutex
	contacts      map[string]models.Contact
	deals         map[string]models.Deal
	status        models.SyncStatus
	message       string
	lastSync      time.Time
	haveLastSync  bool
	statusHistory []models.SyncStatus

	upsertContactErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts: make(map[string]models.Contact),
		deals:    make(map[string]models.Deal),
		status:   models.SyncStatusIdle,
	}
}

func (s *fakeStore) UpsertContacts(_ context.Context, contacts []models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertContactErr != nil {
		return s.upsertContactErr
	}
	for _, c := range contacts {
		s.contacts[c.ID] = c
	}
	return nil
}

func (s *fakeStore) UpsertDeals(_ context.Context, deals []models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deals {
		s.deals[d.ID] = d
	}
	return nil
}

func (s *fakeStore) SetSyncStatus(_ context.Context, status models.SyncStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.message = message
	s.statusHistory = append(s.statusHistory, status)
	if status == models.SyncStatusCompleted {
		s.lastSync = time.Now().UTC()
		s.haveLastSync = true
	}
	return nil
}

func (s *fakeStore) ResetSyncStatus(ctx context.Context) error {
	return s.SetSyncStatus(ctx, models.SyncStatusIdle, "")
}

func (s *fakeStore) LastSyncTime(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync, s.haveLastSync, nil
}

func (s *fakeStore) snapshot() (models.SyncStatus, string, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.message, len(s.contacts), len(s.deals)
}

// fakeAPI routes each call to a configurable function.
type fakeAPI struct {
	mu          stdsync.Mutex
	listFn      func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error)
	searchFn    func(req hubspot.SearchRequest) (*hubspot.ObjectPage, error)
	propsFn     func(objectType string) ([]hubspot.Property, error)
	listCalls   int
	searchCalls int
}

func (a *fakeAPI) ListObjects(_ context.Context, objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
	a.mu.Lock()
	a.listCalls++
	a.mu.Unlock()
	return a.listFn(objectType, opts)
}

func (a *fakeAPI) SearchObjects(_ context.Context, _ string, req hubspot.SearchRequest) (*hubspot.ObjectPage, error) {
	a.mu.Lock()
	a.searchCalls++
	a.mu.Unlock()
	return a.searchFn(req)
}

func (a *fakeAPI) ListProperties(_ context.Context, objectType string) ([]hubspot.Property, error) {
	if a.propsFn != nil {
		return a.propsFn(objectType)
	}
	props := make([]hubspot.Property, 0, len(coreContactProperties))
	for _, name := range coreContactProperties {
		props = append(props, hubspot.Property{Name: name})
	}
	return props, nil
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PageSize:       100,
		PageDelay:      0,
		FastPageDelay:  0,
		SlowPageDelay:  0,
		RateLimitFloor: 50,
		Interval:       time.Hour,
	}
}

// contactPage builds a page of n synthetic contacts starting at id offset,
// with the given next cursor ("" ends pagination).
func contactPage(offset, n int, next string) *hubspot.ObjectPage {
	page := &hubspot.ObjectPage{RateLimitRemaining: -1}
	for i := 0; i < n; i++ {
		id := strconv.Itoa(offset + i)
		page.Results = append(page.Results, hubspot.Object{
			ID: id,
			Properties: map[string]string{
				"email":            fmt.Sprintf("user%s@example.com", id),
				"lastmodifieddate": "2026-08-01T00:00:00Z",
			},
		})
	}
	if next != "" {
		page.Paging = &hubspot.Paging{Next: &hubspot.PagingNext{After: next}}
	}
	return page
}

func dealPage(n int) *hubspot.ObjectPage {
	page := &hubspot.ObjectPage{RateLimitRemaining: -1}
	for i := 0; i < n; i++ {
		id := "d" + strconv.Itoa(i)
		page.Results = append(page.Results, hubspot.Object{
			ID: id,
			Properties: map[string]string{
				"dealname": "Deal " + id,
				"amount":   "1500.50",
			},
			Associations: map[string]hubspot.AssociationList{
				"contacts": {Results: []hubspot.Association{{ID: strconv.Itoa(i)}}},
			},
		})
	}
	return page
}

// waitForRun polls until the engine's guard clears and the status leaves
// syncing.
func waitForRun(t *testing.T, e *Engine, store *fakeStore) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		status, _, _, _ := store.snapshot()
		if !e.Running() && status != models.SyncStatusSyncing {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Sync run did not finish in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngine_FullSyncEndToEnd(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			if objectType == hubspot.ObjectTypeDeals {
				return dealPage(10), nil
			}
			switch opts.After {
			case "":
				return contactPage(0, 100, "p2"), nil
			case "p2":
				return contactPage(100, 100, "p3"), nil
			case "p3":
				return contactPage(200, 37, ""), nil
			default:
				t.Errorf("Unexpected cursor %q", opts.After)
				return contactPage(0, 0, ""), nil
			}
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	before := time.Now().UTC()

	started, err := engine.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	status, message, contacts, deals := store.snapshot()
	if status != models.SyncStatusCompleted {
		t.Errorf("Expected completed, got %s (message %q)", status, message)
	}
	if contacts != 237 {
		t.Errorf("Expected 237 contacts, got %d", contacts)
	}
	if deals != 10 {
		t.Errorf("Expected 10 deals, got %d", deals)
	}

	store.mu.Lock()
	lastSync, have := store.lastSync, store.haveLastSync
	deal, hasDeal := store.deals["d3"]
	store.mu.Unlock()
	if !have || lastSync.Before(before) {
		t.Errorf("Expected last sync time at or after run start, got %v", lastSync)
	}
	if !hasDeal {
		t.Fatal("Deal d3 missing")
	}
	if deal.ContactID == nil || *deal.ContactID != "3" {
		t.Errorf("Expected deal d3 linked to contact 3, got %v", deal.ContactID)
	}
}

func TestEngine_DeltaSyncUsedWhenCursorExists(t *testing.T) {
	store := newFakeStore()
	store.lastSync = time.Now().Add(-time.Hour).UTC()
	store.haveLastSync = true

	api := &fakeAPI{
		searchFn: func(req hubspot.SearchRequest) (*hubspot.ObjectPage, error) {
			return contactPage(0, 5, ""), nil
		},
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			if objectType != hubspot.ObjectTypeDeals {
				t.Errorf("Contact list endpoint called during delta run")
			}
			return dealPage(2), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	status, _, contacts, deals := store.snapshot()
	if status != models.SyncStatusCompleted {
		t.Errorf("Expected completed, got %s", status)
	}
	if contacts != 5 || deals != 2 {
		t.Errorf("Expected 5 contacts and 2 deals, got %d/%d", contacts, deals)
	}
	if api.searchCalls == 0 {
		t.Error("Expected the search endpoint to be used")
	}
}

func TestEngine_DeltaFallsBackToFullOn400(t *testing.T) {
	store := newFakeStore()
	store.lastSync = time.Now().Add(-time.Hour).UTC()
	store.haveLastSync = true

	api := &fakeAPI{
		searchFn: func(req hubspot.SearchRequest) (*hubspot.ObjectPage, error) {
			return nil, &hubspot.APIError{StatusCode: 400, Message: "bad filter"}
		},
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			if objectType == hubspot.ObjectTypeDeals {
				return dealPage(1), nil
			}
			return contactPage(0, 20, ""), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	status, _, contacts, _ := store.snapshot()
	if status != models.SyncStatusCompleted {
		t.Errorf("Expected completed after fallback, got %s", status)
	}
	if contacts != 20 {
		t.Errorf("Expected 20 contacts from full crawl, got %d", contacts)
	}
}

func TestEngine_DeltaFallsBackOnExhaustedRetries(t *testing.T) {
	store := newFakeStore()
	store.lastSync = time.Now().Add(-time.Hour).UTC()
	store.haveLastSync = true

	api := &fakeAPI{
		searchFn: func(req hubspot.SearchRequest) (*hubspot.ObjectPage, error) {
			return nil, fmt.Errorf("retries exhausted after 4 attempts: %w",
				&hubspot.APIError{StatusCode: 503})
		},
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			if objectType == hubspot.ObjectTypeDeals {
				return dealPage(0), nil
			}
			return contactPage(0, 3, ""), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	status, _, contacts, _ := store.snapshot()
	if status != models.SyncStatusCompleted {
		t.Errorf("Expected completed after fallback, got %s", status)
	}
	if contacts != 3 {
		t.Errorf("Expected 3 contacts, got %d", contacts)
	}
}

func TestEngine_NonRetriableDeltaErrorFailsRun(t *testing.T) {
	store := newFakeStore()
	store.lastSync = time.Now().Add(-time.Hour).UTC()
	store.haveLastSync = true

	api := &fakeAPI{
		searchFn: func(req hubspot.SearchRequest) (*hubspot.ObjectPage, error) {
			return nil, &hubspot.APIError{StatusCode: 401, Message: "invalid token"}
		},
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			t.Error("List endpoint must not be called after a fatal delta error")
			return nil, nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	status, message, _, _ := store.snapshot()
	if status != models.SyncStatusFailed {
		t.Errorf("Expected failed, got %s", status)
	}
	if !strings.Contains(message, "status=401") {
		t.Errorf("Expected diagnostic message with status, got %q", message)
	}
}

func TestEngine_ConcurrentStartIsNoOp(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})

	api := &fakeAPI{
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			<-gate
			return contactPage(0, 0, ""), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected first run to start")
	}

	// Wait until the pipeline is blocked inside the list call.
	deadline := time.After(5 * time.Second)
	for !engine.Running() {
		select {
		case <-deadline:
			t.Fatal("Run never became active")
		case <-time.After(time.Millisecond):
		}
	}

	started, err := engine.Start(context.Background())
	if err != nil {
		t.Fatalf("Second start errored: %v", err)
	}
	if started {
		t.Error("Second start must be a no-op while a run is active")
	}

	close(gate)
	waitForRun(t, engine, store)
}

func TestEngine_GuardReleasedAfterFailure(t *testing.T) {
	store := newFakeStore()
	store.upsertContactErr = fmt.Errorf("disk full")

	api := &fakeAPI{
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			if objectType == hubspot.ObjectTypeDeals {
				return dealPage(0), nil
			}
			return contactPage(0, 10, ""), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	status, message, _, _ := store.snapshot()
	if status != models.SyncStatusFailed {
		t.Fatalf("Expected failed, got %s", status)
	}
	if !strings.Contains(message, "disk full") {
		t.Errorf("Expected upsert error in message, got %q", message)
	}

	// A crashed run must not block the next start.
	store.mu.Lock()
	store.upsertContactErr = nil
	store.mu.Unlock()

	if started, _ := engine.Start(context.Background()); !started {
		t.Error("Expected a new run to start after the failed one released the guard")
	}
	waitForRun(t, engine, store)
}

func TestEngine_EmptyPageWithCursorTerminates(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			if objectType == hubspot.ObjectTypeDeals {
				return dealPage(0), nil
			}
			// Empty results but a cursor present: pagination must stop.
			return contactPage(0, 0, "phantom"), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	status, _, _, _ := store.snapshot()
	if status != models.SyncStatusCompleted {
		t.Errorf("Expected completed, got %s", status)
	}

	api.mu.Lock()
	calls := api.listCalls
	api.mu.Unlock()
	// One contact page plus one deal page.
	if calls != 2 {
		t.Errorf("Expected 2 list calls, got %d", calls)
	}
}

func TestEngine_ResetForcesIdle(t *testing.T) {
	store := newFakeStore()
	store.status = models.SyncStatusSyncing // stuck from a killed process

	engine := NewEngine(store, &fakeAPI{}, testSyncConfig())
	if err := engine.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	status, _, _, _ := store.snapshot()
	if status != models.SyncStatusIdle {
		t.Errorf("Expected idle after reset, got %s", status)
	}
}

func TestEngine_StatusTransitions(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			return contactPage(0, 0, ""), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	if started, _ := engine.Start(context.Background()); !started {
		t.Fatal("Expected run to start")
	}
	waitForRun(t, engine, store)

	store.mu.Lock()
	history := append([]models.SyncStatus(nil), store.statusHistory...)
	store.mu.Unlock()

	want := []models.SyncStatus{models.SyncStatusSyncing, models.SyncStatusCompleted}
	if len(history) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, history)
	}
	for i, status := range want {
		if history[i] != status {
			t.Errorf("Transition %d: expected %s, got %s", i, status, history[i])
		}
	}
}
