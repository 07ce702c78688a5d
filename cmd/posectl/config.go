package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/posectl/internal/upload"
)

type fileConfig struct {
	BaseURL           string  `toml:"base_url"`
	IngestPath        string  `toml:"ingest_path"`
	UserAgent         string  `toml:"user_agent"`
	MaxAttempts       int     `toml:"max_attempts"`
	AttemptTimeout    string  `toml:"attempt_timeout"`
	AttemptTimeoutMS  int64   `toml:"attempt_timeout_ms"`
	BackoffBase       string  `toml:"backoff_base"`
	BackoffBaseMS     int64   `toml:"backoff_base_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	BackoffMax        string  `toml:"backoff_max"`
	BackoffJitter     bool    `toml:"backoff_jitter"`
	BackoffDisabled   bool    `toml:"backoff_disabled"`
	User              string  `toml:"user"`
	Label             string  `toml:"label"`
}

// clientConfig is the resolved posectl configuration.
type clientConfig struct {
	Upload upload.Config
	User   string
	Label  string
}

func defaultClientConfig() clientConfig {
	return clientConfig{Upload: upload.DefaultConfig()}
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load posectl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return clientConfig{}, fmt.Errorf("load posectl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("base_url") {
		cfg.Upload.BaseURL = strings.TrimSpace(raw.BaseURL)
	}
	if meta.IsDefined("ingest_path") {
		cfg.Upload.IngestPath = strings.TrimSpace(raw.IngestPath)
	}
	if meta.IsDefined("user_agent") {
		cfg.Upload.UserAgent = strings.TrimSpace(raw.UserAgent)
	}
	if meta.IsDefined("max_attempts") {
		if raw.MaxAttempts < 1 {
			return clientConfig{}, fmt.Errorf("max_attempts must be >= 1, got %d", raw.MaxAttempts)
		}
		cfg.Upload.MaxAttempts = raw.MaxAttempts
	}

	if meta.IsDefined("attempt_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.AttemptTimeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse attempt_timeout: %w", err)
		}
		cfg.Upload.AttemptTimeout = d
	}
	if meta.IsDefined("attempt_timeout_ms") {
		cfg.Upload.AttemptTimeout = time.Duration(raw.AttemptTimeoutMS) * time.Millisecond
	}

	if meta.IsDefined("backoff_base") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BackoffBase))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse backoff_base: %w", err)
		}
		cfg.Upload.Backoff.BaseDelay = d
	}
	if meta.IsDefined("backoff_base_ms") {
		cfg.Upload.Backoff.BaseDelay = time.Duration(raw.BackoffBaseMS) * time.Millisecond
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Upload.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_max") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BackoffMax))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse backoff_max: %w", err)
		}
		cfg.Upload.Backoff.MaxDelay = d
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Upload.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("backoff_disabled") {
		cfg.Upload.Backoff.Disabled = raw.BackoffDisabled
	}

	if meta.IsDefined("user") {
		cfg.User = strings.TrimSpace(raw.User)
	}
	if meta.IsDefined("label") {
		cfg.Label = strings.TrimSpace(raw.Label)
	}

	cfg.Upload = cfg.Upload.WithDefaults()
	if err := cfg.Upload.Validate(); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}
