package upload

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultIngestPath     = "/upload/camera"
	DefaultUserAgent      = "posectl-uploader/1.0"
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 30 * time.Second
)

// BackoffConfig defines the wait between failed attempts. A zero BaseDelay
// takes the default; set Disabled to retry without waiting.
type BackoffConfig struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool
	Disabled   bool
}

// Config defines collector endpoint and retry behavior.
type Config struct {
	BaseURL        string
	IngestPath     string
	UserAgent      string
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        BackoffConfig
}

// DefaultConfig waits 2s then 4s between three 30s attempts.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8000",
		IngestPath:     DefaultIngestPath,
		UserAgent:      DefaultUserAgent,
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: DefaultAttemptTimeout,
		Backoff: BackoffConfig{
			BaseDelay:  time.Second,
			Multiplier: 2.0,
			MaxDelay:   0,
			Jitter:     false,
		},
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if strings.TrimSpace(c.IngestPath) == "" {
		c.IngestPath = def.IngestPath
	}
	if !strings.HasPrefix(c.IngestPath, "/") {
		c.IngestPath = "/" + c.IngestPath
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = def.UserAgent
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = def.AttemptTimeout
	}
	if c.Backoff.BaseDelay <= 0 {
		c.Backoff.BaseDelay = def.Backoff.BaseDelay
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	return c
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("upload: base url required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("upload: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upload: unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upload: base url missing host")
	}
	if c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("upload: backoff multiplier must be >= 1, got %v", c.Backoff.Multiplier)
	}
	return nil
}
