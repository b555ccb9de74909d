// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures a client built with NewClient
type Config struct {
	BaseURL        string        `yaml:"base_url"`        // Todo API root, e.g. "http://localhost:3000"
	CacheKey       string        `yaml:"cache_key"`       // Store key of the collection
	RequestTimeout time.Duration `yaml:"request_timeout"` // Per-request HTTP timeout
	RetryMax       int           `yaml:"retry_max"`       // Attempts for idempotent requests; <= 1 disables retries
	BackoffMin     time.Duration `yaml:"backoff_min"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	SnapshotPath   string        `yaml:"snapshot_path"` // SQLite file for offline snapshots; empty disables
}

// DefaultConfig returns default client configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:3000",
		CacheKey:       DefaultCacheKey,
		RequestTimeout: 15 * time.Second,
		RetryMax:       3,
		BackoffMin:     200 * time.Millisecond,
		BackoffMax:     2 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing or empty file yields
// the defaults; unknown fields are an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from OVERTODO_BASE_URL, OVERTODO_TIMEOUT and OVERTODO_SNAPSHOT
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("OVERTODO_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("OVERTODO_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid OVERTODO_TIMEOUT %q: %w", v, err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("OVERTODO_SNAPSHOT"); v != "" {
		c.SnapshotPath = v
	}
	return nil
}

// Validate checks that config values are usable
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.CacheKey == "" {
		return errors.New("config: cache_key cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("config: retry_max must be non-negative, got %d", c.RetryMax)
	}
	if c.BackoffMin < 0 || c.BackoffMax < 0 {
		return errors.New("config: backoff durations must be non-negative")
	}
	if c.BackoffMax < c.BackoffMin {
		return fmt.Errorf("config: backoff_max (%v) is less than backoff_min (%v)", c.BackoffMax, c.BackoffMin)
	}
	return nil
}
