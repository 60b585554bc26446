// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/crmlens/config.yaml",
	"/etc/crmlens/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CRMLENS_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping to keys.
const envPrefix = "CRMLENS_"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		HubSpot: HubSpotConfig{
			BaseURL:           "https://api.hubapi.com",
			Token:             "",
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RetryBaseDelay:    500 * time.Millisecond,
			RequestsPerSecond: 0, // unlimited; inter-page delays do the pacing
			BreakerEnabled:    true,
		},
		Database: DatabaseConfig{
			Path:      "/data/crmlens.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Sync: SyncConfig{
			PageSize:        100,
			PageDelay:       100 * time.Millisecond,
			FastPageDelay:   50 * time.Millisecond,
			SlowPageDelay:   250 * time.Millisecond,
			RateLimitFloor:  50,
			ScheduleEnabled: false, // manual trigger only by default
			Interval:        1 * time.Hour,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8480,
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     200,
			RateLimitReqs:   300,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
// defaults, then an optional YAML file, then CRMLENS_* environment
// variables (highest priority).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// CRMLENS_SYNC_PAGE_DELAY -> sync.page_delay
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, checking the
// CRMLENS_CONFIG_PATH override before the default search paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps an environment variable name to a koanf key.
// The first underscore-delimited token selects the config section; the
// remainder keeps its underscores so multi-word keys resolve correctly:
//
//	CRMLENS_HUBSPOT_TOKEN      -> hubspot.token
//	CRMLENS_SYNC_PAGE_DELAY    -> sync.page_delay
//	CRMLENS_API_CORS_ORIGINS   -> api.cors_origins
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}
