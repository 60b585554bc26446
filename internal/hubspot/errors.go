// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package hubspot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// APIError is a non-2xx response from the remote CRM API, carrying whatever
// diagnostic metadata the remote included in its error body.
type APIError struct {
	StatusCode    int               `json:"statusCode"`
	Status        string            `json:"status,omitempty"`
	Message       string            `json:"message,omitempty"`
	Category      string            `json:"category,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	RequestURL    string            `json:"-"`
	Errors        []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one per-field error from the remote error body.
type ValidationError struct {
	Message string `json:"message,omitempty"`
	In      string `json:"in,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "remote API error %d", e.StatusCode)
	if e.Status != "" {
		fmt.Fprintf(&sb, " (%s)", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&sb, ": %s", e.Message)
	}
	if e.CorrelationID != "" {
		fmt.Fprintf(&sb, " [correlation %s]", e.CorrelationID)
	}
	return sb.String()
}

// Diagnostic composes the best-effort failure message persisted with a
// failed run, assembled from whatever metadata is available.
func (e *APIError) Diagnostic() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	if e.Status != "" {
		parts = append(parts, "statusText="+e.Status)
	}
	if e.Category != "" {
		parts = append(parts, "category="+e.Category)
	}
	if e.Message != "" {
		parts = append(parts, "message="+e.Message)
	}
	if e.CorrelationID != "" {
		parts = append(parts, "correlationId="+e.CorrelationID)
	}
	if e.RequestURL != "" {
		parts = append(parts, "url="+e.RequestURL)
	}
	for _, ve := range e.Errors {
		field := ve.In
		if field == "" {
			field = "request"
		}
		parts = append(parts, fmt.Sprintf("error[%s]=%s", field, ve.Message))
	}
	return strings.Join(parts, " ")
}

// StatusCodeOf returns the HTTP status of an APIError in the chain, or 0.
func StatusCodeOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// retriableStatus reports whether an HTTP status signals a transient
// condition worth retrying.
func retriableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetriable reports whether err is a transient failure: a network-level
// fault (timeout, reset, abort, DNS failure) or a retriable HTTP status.
// Context cancellation is never retriable.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if status := StatusCodeOf(err); status != 0 {
		return retriableStatus(status)
	}

	// Request timeouts (including http.Client.Timeout) surface as net.Error
	// with Timeout() == true.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
