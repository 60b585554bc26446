// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crmlens/crmlens/internal/hubspot"
)

func TestScheduler_TriggersRuns(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{
		listFn: func(objectType string, opts hubspot.ListOptions) (*hubspot.ObjectPage, error) {
			return contactPage(0, 0, ""), nil
		},
		searchFn: func(req hubspot.SearchRequest) (*hubspot.ObjectPage, error) {
			return contactPage(0, 0, ""), nil
		},
	}

	engine := NewEngine(store, api, testSyncConfig())
	scheduler := NewScheduler(engine, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := scheduler.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error from Serve, got %v", err)
	}

	// Wait for any in-flight run launched near the deadline.
	waitForRun(t, engine, store)

	store.mu.Lock()
	transitions := len(store.statusHistory)
	store.mu.Unlock()
	if transitions == 0 {
		t.Error("Expected at least one scheduled run")
	}
}

func TestScheduler_String(t *testing.T) {
	s := NewScheduler(nil, time.Hour)
	if s.String() != "sync-scheduler" {
		t.Errorf("Unexpected service name %q", s.String())
	}
}
