// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package sync

import (
	"context"
	"time"

	"github.com/crmlens/crmlens/internal/logging"
)

// Scheduler triggers a sync run at a fixed interval. A tick that lands while
// a run is still active is a no-op; the engine's guard handles that.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
}

// NewScheduler creates a periodic sync trigger.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
	}
}

// Serve runs the tick loop until ctx ends. Implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Msg("Sync scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			started, err := s.engine.Start(ctx)
			if err != nil {
				logging.Error().Err(err).Msg("Scheduled sync failed to start")
				continue
			}
			if !started {
				logging.Debug().Msg("Scheduled sync skipped, run already active")
			}
		case <-ctx.Done():
			logging.Info().Msg("Sync scheduler stopping")
			return ctx.Err()
		}
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "sync-scheduler"
}
