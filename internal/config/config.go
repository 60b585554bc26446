// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config file: optional YAML config file (config.yaml)
//  3. Environment variables: CRMLENS_* overrides any setting
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	HubSpot  HubSpotConfig  `koanf:"hubspot"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// HubSpotConfig holds connection settings for the remote CRM API.
//
// Environment Variables:
//   - CRMLENS_HUBSPOT_BASE_URL: API base URL (default: https://api.hubapi.com)
//   - CRMLENS_HUBSPOT_TOKEN: private app access token (required)
type HubSpotConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	Token   string `koanf:"token" validate:"required"`

	// Timeout is the per-request timeout for all remote calls.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// MaxRetries is the number of retries after the initial attempt for
	// retriable failures (network faults, 429/5xx).
	MaxRetries int `koanf:"max_retries" validate:"gte=0"`

	// RetryBaseDelay is the first backoff delay; subsequent retries double it.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gt=0"`

	// RequestsPerSecond caps the outbound request rate. 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`

	// BreakerEnabled wraps the client in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// DatabaseConfig holds DuckDB settings for the mirror store.
type DatabaseConfig struct {
	// Path is the database file path. Use :memory: for an in-memory store.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory limits DuckDB's memory usage (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads sets DuckDB's thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// SyncConfig holds sync pipeline tuning.
//
// The inter-page delays exist to respect the remote API's rate limits: delta
// and deal pages use PageDelay; full-sync pages use FastPageDelay while the
// remote's reported remaining quota stays above RateLimitFloor and
// SlowPageDelay once it drops below.
type SyncConfig struct {
	PageSize       int           `koanf:"page_size" validate:"gt=0,lte=100"`
	PageDelay      time.Duration `koanf:"page_delay" validate:"gte=0"`
	FastPageDelay  time.Duration `koanf:"fast_page_delay" validate:"gte=0"`
	SlowPageDelay  time.Duration `koanf:"slow_page_delay" validate:"gte=0"`
	RateLimitFloor int           `koanf:"rate_limit_floor" validate:"gte=0"`

	// ScheduleEnabled runs the pipeline periodically every Interval.
	// Manual triggering via the API works regardless.
	ScheduleEnabled bool          `koanf:"schedule_enabled"`
	Interval        time.Duration `koanf:"interval" validate:"gt=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// APIConfig holds API response and rate-limit settings.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size" validate:"gt=0"`
	MaxPageSize     int           `koanf:"max_page_size" validate:"gt=0"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gt=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size (%d) exceeds api.max_page_size (%d)",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	return nil
}
