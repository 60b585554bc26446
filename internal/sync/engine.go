// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

/*
engine.go - Mirror Sync Orchestrator

Owns the sync status state machine (idle -> syncing -> completed|failed),
picks the delta-vs-full strategy from the persisted cursor, and drives the
paginated fetch-and-upsert pipeline for contacts and deals.

One run at a time per process, enforced by an in-process guard. The guard is
not distributed: multiple replicas against one mirror would each believe
themselves exclusive.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/crmlens/crmlens/internal/config"
	"github.com/crmlens/crmlens/internal/hubspot"
	"github.com/crmlens/crmlens/internal/logging"
	"github.com/crmlens/crmlens/internal/metrics"
	"github.com/crmlens/crmlens/internal/models"
)

// Store is the mirror persistence surface the engine writes through.
type Store interface {
	UpsertContacts(ctx context.Context, contacts []models.Contact) error
	UpsertDeals(ctx context.Context, deals []models.Deal) error
	SetSyncStatus(ctx context.Context, status models.SyncStatus, message string) error
	ResetSyncStatus(ctx context.Context) error
	LastSyncTime(ctx context.Context) (time.Time, bool, error)
}

// Engine runs the sync pipeline against a remote CRM API and a mirror store.
type Engine struct {
	store Store
	api   hubspot.API
	cfg   config.SyncConfig

	mu      stdsync.Mutex
	running bool
}

// NewEngine creates a sync engine.
func NewEngine(store Store, api hubspot.API, cfg config.SyncConfig) *Engine {
	return &Engine{
		store: store,
		api:   api,
		cfg:   cfg,
	}
}

// Start triggers a sync run. It returns immediately: (true, nil) when a run
// was launched, (false, nil) when one is already in progress, and an error
// only when the syncing status could not be persisted.
//
// The pipeline runs on a detached context so the caller's request lifecycle
// does not cancel it mid-run.
func (e *Engine) Start(ctx context.Context) (bool, error) {
	if !e.tryAcquire() {
		metrics.SyncRunsTotal.WithLabelValues("rejected").Inc()
		logging.Ctx(ctx).Info().Msg("Sync already in progress, ignoring start request")
		return false, nil
	}

	runID := logging.GenerateCorrelationID()
	runCtx := logging.ContextWithCorrelationID(context.WithoutCancel(ctx), runID)

	if err := e.store.SetSyncStatus(runCtx, models.SyncStatusSyncing, ""); err != nil {
		e.release()
		return false, fmt.Errorf("persist syncing status failed: %w", err)
	}

	go e.run(runCtx)
	return true, nil
}

// Reset forces the persisted status back to idle. This is the manual
// recovery path for a run left stuck at syncing by a killed process; the
// in-process guard itself is always cleared by the run's own deferred
// release.
func (e *Engine) Reset(ctx context.Context) error {
	return e.store.ResetSyncStatus(ctx)
}

// Running reports whether a run is currently active in this process.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) tryAcquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// run executes the pipeline and records the terminal status. The guard is
// released unconditionally so a crashed run never blocks the next start.
func (e *Engine) run(ctx context.Context) {
	defer e.release()

	start := time.Now()
	logging.Ctx(ctx).Info().Msg("Sync run started")

	err := e.pipeline(ctx)
	duration := time.Since(start)
	metrics.SyncRunDuration.Observe(duration.Seconds())

	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		message := diagnosticMessage(err)
		logging.Ctx(ctx).Error().
			Err(err).
			Dur("duration", duration).
			Msg("Sync run failed")
		if serr := e.store.SetSyncStatus(ctx, models.SyncStatusFailed, message); serr != nil {
			logging.Ctx(ctx).Error().Err(serr).Msg("Failed to persist failed status")
		}
		return
	}

	metrics.SyncRunsTotal.WithLabelValues("completed").Inc()
	logging.Ctx(ctx).Info().
		Dur("duration", duration).
		Msg("Sync run completed")
	if serr := e.store.SetSyncStatus(ctx, models.SyncStatusCompleted, ""); serr != nil {
		logging.Ctx(ctx).Error().Err(serr).Msg("Failed to persist completed status")
	}
}

// pipeline syncs contacts (delta when a valid cursor exists, full otherwise)
// and then deals. Deal sync always runs after contact sync finishes.
func (e *Engine) pipeline(ctx context.Context) error {
	properties := ResolveContactProperties(ctx, e.api)

	since, haveCursor, err := e.store.LastSyncTime(ctx)
	if err != nil {
		return fmt.Errorf("read sync cursor failed: %w", err)
	}

	needFull := !haveCursor
	if haveCursor {
		fellBack, err := e.syncContactsDelta(ctx, since, properties)
		if err != nil {
			return err
		}
		needFull = fellBack
	}

	if needFull {
		if err := e.syncContactsFull(ctx, properties); err != nil {
			return err
		}
	}

	return e.syncDeals(ctx)
}

// syncContactsDelta pages through contacts modified after the cursor via the
// filtered search endpoint. A 400 or a retriable-class failure (after the
// client's own retries are exhausted) is strategy-fatal, not run-fatal: the
// engine falls back to a full crawl. Anything else aborts the run.
func (e *Engine) syncContactsDelta(ctx context.Context, since time.Time, properties []string) (fellBack bool, err error) {
	logging.Ctx(ctx).Info().
		Time("modified_after", since).
		Msg("Starting delta contact sync")

	req := hubspot.ModifiedAfterSearch(since, properties, e.cfg.PageSize)
	pages := 0

	for {
		page, err := e.api.SearchObjects(ctx, hubspot.ObjectTypeContacts, req)
		if err != nil {
			if deltaFallback(err) {
				metrics.SyncDeltaFallbacksTotal.Inc()
				logging.Ctx(ctx).Warn().
					Err(err).
					Int("pages_synced", pages).
					Msg("Delta sync failed, falling back to full sync")
				return true, nil
			}
			return false, fmt.Errorf("delta contact sync failed: %w", err)
		}

		if err := e.upsertContactPage(ctx, page, "delta"); err != nil {
			return false, err
		}
		pages++

		after := page.NextAfter()
		if len(page.Results) == 0 || after == "" {
			break
		}
		req.After = after

		if err := e.pause(ctx, e.cfg.PageDelay); err != nil {
			return false, err
		}
	}

	logging.Ctx(ctx).Info().Int("pages", pages).Msg("Delta contact sync finished")
	return false, nil
}

// syncContactsFull crawls the unfiltered contacts list endpoint. The
// inter-page delay adapts to the remote's reported remaining quota: plenty
// of headroom gets the fast delay, low or unknown headroom the slow one.
func (e *Engine) syncContactsFull(ctx context.Context, properties []string) error {
	logging.Ctx(ctx).Info().Msg("Starting full contact sync")

	opts := hubspot.ListOptions{
		Limit:      e.cfg.PageSize,
		Properties: properties,
	}
	pages := 0

	for {
		page, err := e.api.ListObjects(ctx, hubspot.ObjectTypeContacts, opts)
		if err != nil {
			return fmt.Errorf("full contact sync failed: %w", err)
		}

		if err := e.upsertContactPage(ctx, page, "full"); err != nil {
			return err
		}
		pages++

		after := page.NextAfter()
		if len(page.Results) == 0 || after == "" {
			break
		}
		opts.After = after

		delay := e.cfg.SlowPageDelay
		if page.RateLimitRemaining > e.cfg.RateLimitFloor {
			delay = e.cfg.FastPageDelay
		}
		if err := e.pause(ctx, delay); err != nil {
			return err
		}
	}

	logging.Ctx(ctx).Info().Int("pages", pages).Msg("Full contact sync finished")
	return nil
}

// syncDeals crawls the deals list endpoint with the fixed deal field set and
// the contact association, extracting the primary associated contact id.
func (e *Engine) syncDeals(ctx context.Context) error {
	logging.Ctx(ctx).Info().Msg("Starting deal sync")

	opts := hubspot.ListOptions{
		Limit:        e.cfg.PageSize,
		Properties:   dealProperties,
		Associations: []string{hubspot.ObjectTypeContacts},
	}
	pages := 0

	for {
		page, err := e.api.ListObjects(ctx, hubspot.ObjectTypeDeals, opts)
		if err != nil {
			return fmt.Errorf("deal sync failed: %w", err)
		}

		now := time.Now()
		deals := make([]models.Deal, 0, len(page.Results))
		for _, obj := range page.Results {
			deals = append(deals, dealFromObject(obj, now))
		}
		if len(deals) > 0 {
			if err := e.store.UpsertDeals(ctx, deals); err != nil {
				return fmt.Errorf("upsert deal page failed: %w", err)
			}
		}
		metrics.SyncPagesTotal.WithLabelValues(hubspot.ObjectTypeDeals, "full").Inc()
		pages++

		after := page.NextAfter()
		if len(page.Results) == 0 || after == "" {
			break
		}
		opts.After = after

		if err := e.pause(ctx, e.cfg.PageDelay); err != nil {
			return err
		}
	}

	logging.Ctx(ctx).Info().Int("pages", pages).Msg("Deal sync finished")
	return nil
}

// upsertContactPage maps and writes one page of contacts in a single batch.
func (e *Engine) upsertContactPage(ctx context.Context, page *hubspot.ObjectPage, mode string) error {
	now := time.Now()
	contacts := make([]models.Contact, 0, len(page.Results))
	for _, obj := range page.Results {
		contacts = append(contacts, contactFromObject(obj, now))
	}
	if len(contacts) > 0 {
		if err := e.store.UpsertContacts(ctx, contacts); err != nil {
			return fmt.Errorf("upsert contact page failed: %w", err)
		}
	}
	metrics.SyncPagesTotal.WithLabelValues(hubspot.ObjectTypeContacts, mode).Inc()

	logging.Ctx(ctx).Debug().
		Str("mode", mode).
		Int("records", len(contacts)).
		Msg("Contact page applied")
	return nil
}

// pause sleeps for the inter-page delay, abandoning the wait if the run
// context ends.
func (e *Engine) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deltaFallback reports whether a delta search failure should downgrade the
// run to a full crawl instead of aborting it. The remote returns 400 for
// filter payloads it refuses to parse, and a retriable-class error that
// survived the client's retries means the search endpoint specifically is
// struggling; the plain list endpoint may still work.
func deltaFallback(err error) bool {
	if hubspot.StatusCodeOf(err) == http.StatusBadRequest {
		return true
	}
	return hubspot.IsRetriable(err)
}

// diagnosticMessage composes the failure message persisted with a failed
// run from whatever remote error metadata is available.
func diagnosticMessage(err error) string {
	var apiErr *hubspot.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Diagnostic()
	}
	return err.Error()
}
