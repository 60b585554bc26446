// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package hubspot

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/crmlens/crmlens/internal/logging"
	"github.com/crmlens/crmlens/internal/metrics"
)

// BreakerClient wraps Client with a circuit breaker so a dead or drowning
// remote API sheds load instead of tying up every sync attempt in retries.
//
// The breaker uses real time for its interval and timeout calculations;
// tests should mock the underlying client rather than the breaker.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// Ensure BreakerClient implements API.
var _ API = (*BreakerClient)(nil)

// NewBreakerClient wraps client in a circuit breaker that opens after a 60%
// failure rate over at least 10 requests, waits 2 minutes before probing,
// and allows 3 concurrent requests while half-open.
func NewBreakerClient(client *Client) *BreakerClient {
	cbName := "hubspot-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateString(from)).
				Str("to", stateString(to)).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &BreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// ListObjects implements API with circuit breaker protection.
func (b *BreakerClient) ListObjects(ctx context.Context, objectType string, opts ListOptions) (*ObjectPage, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.client.ListObjects(ctx, objectType, opts)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ObjectPage), nil
}

// SearchObjects implements API with circuit breaker protection.
func (b *BreakerClient) SearchObjects(ctx context.Context, objectType string, req SearchRequest) (*ObjectPage, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.client.SearchObjects(ctx, objectType, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ObjectPage), nil
}

// ListProperties implements API with circuit breaker protection.
func (b *BreakerClient) ListProperties(ctx context.Context, objectType string) ([]Property, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.client.ListProperties(ctx, objectType)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Property), nil
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	}
	return "unknown"
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return -1
}
