// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

/*
client.go - Remote CRM REST API Client

This file implements a REST client for the HubSpot-shaped CRM v3 API.
It provides paginated object listing, filtered searching, and property
metadata discovery. All requests carry a fixed timeout and run through a
uniform retry policy (request.go).

API shape: /crm/v3/objects/{type}, /crm/v3/objects/{type}/search,
/crm/v3/properties/{type}.
*/

package hubspot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/crmlens/crmlens/internal/config"
)

// rateLimitRemainingHeader reports the remote's remaining request quota.
const rateLimitRemainingHeader = "X-HubSpot-RateLimit-Remaining"

// API defines the remote CRM operations the sync pipeline consumes.
// Implemented by Client and BreakerClient.
type API interface {
	ListObjects(ctx context.Context, objectType string, opts ListOptions) (*ObjectPage, error)
	SearchObjects(ctx context.Context, objectType string, req SearchRequest) (*ObjectPage, error)
	ListProperties(ctx context.Context, objectType string) ([]Property, error)
}

// Ensure Client implements API.
var _ API = (*Client)(nil)

// Client provides access to the remote CRM REST API.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
	limiter        *rate.Limiter
}

// NewClient creates a remote CRM API client from configuration.
func NewClient(cfg *config.HubSpotConfig) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		token:          cfg.Token,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		limiter:        limiter,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ListObjects fetches one page from the unfiltered list endpoint.
func (c *Client) ListObjects(ctx context.Context, objectType string, opts ListOptions) (*ObjectPage, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.After != "" {
		query.Set("after", opts.After)
	}
	if len(opts.Properties) > 0 {
		query.Set("properties", strings.Join(opts.Properties, ","))
	}
	if len(opts.Associations) > 0 {
		query.Set("associations", strings.Join(opts.Associations, ","))
	}

	var page ObjectPage
	label := "list " + objectType
	err := c.requestWithRetry(ctx, label, func(ctx context.Context) error {
		return c.getJSON(ctx, "/crm/v3/objects/"+objectType, query, &page)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", label, err)
	}
	return &page, nil
}

// SearchObjects fetches one page from the filtered search endpoint.
func (c *Client) SearchObjects(ctx context.Context, objectType string, req SearchRequest) (*ObjectPage, error) {
	var page ObjectPage
	label := "search " + objectType
	err := c.requestWithRetry(ctx, label, func(ctx context.Context) error {
		return c.postJSON(ctx, "/crm/v3/objects/"+objectType+"/search", req, &page)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", label, err)
	}
	return &page, nil
}

// ListProperties fetches the full set of currently-defined property
// definitions for an object type.
func (c *Client) ListProperties(ctx context.Context, objectType string) ([]Property, error) {
	var resp propertiesResponse
	label := "properties " + objectType
	err := c.requestWithRetry(ctx, label, func(ctx context.Context) error {
		return c.getJSON(ctx, "/crm/v3/properties/"+objectType, nil, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", label, err)
	}
	return resp.Results, nil
}

// getJSON performs one GET request and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	return c.do(req, out)
}

// postJSON performs one POST request with a JSON body and decodes the
// response into out.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	return c.do(req, out)
}

// do executes one HTTP request, maps non-2xx responses to APIError, and
// decodes successful responses into out. When out is an *ObjectPage the
// remote's remaining-quota header is captured alongside the body.
func (c *Client) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.apiError(req, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if page, ok := out.(*ObjectPage); ok {
		page.RateLimitRemaining = parseRateLimitRemaining(resp.Header)
	}
	return nil
}

// apiError builds an APIError from a non-2xx response, decoding whatever
// error metadata the remote body carries.
func (c *Client) apiError(req *http.Request, resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		RequestURL: req.URL.String(),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(body) > 0 {
		// Best effort; an undecodable body keeps the bare status fields.
		_ = json.Unmarshal(body, apiErr)
	}
	return apiErr
}

// parseRateLimitRemaining reads the remaining-quota header; -1 when absent
// or malformed.
func parseRateLimitRemaining(header http.Header) int {
	value := header.Get(rateLimitRemainingHeader)
	if value == "" {
		return -1
	}
	remaining, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return remaining
}
