// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package hubspot

import (
	"context"
	"fmt"
	"time"

	"github.com/crmlens/crmlens/internal/logging"
	"github.com/crmlens/crmlens/internal/metrics"
)

// requestWithRetry invokes fn, retrying transient failures with exponential
// backoff. Non-retriable errors (400, 401, 403, 404, decode failures)
// propagate immediately without delay. With the default base delay the
// backoff sequence is 500ms, 1s, 2s.
func (c *Client) requestWithRetry(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.retryBaseDelay, attempt-1)

			logging.Ctx(ctx).Warn().
				Str("label", label).
				Int("attempt", attempt).
				Int("status", StatusCodeOf(lastErr)).
				Dur("backoff", delay).
				Err(lastErr).
				Msg("Remote request failed, retrying")
			metrics.RemoteRequestRetriesTotal.WithLabelValues(label).Inc()

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetriable(err) {
			return err
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", c.maxRetries+1, lastErr)
}

// backoffDelay returns base * 2^attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt)
}
