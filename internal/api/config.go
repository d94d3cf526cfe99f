package api

import (
	"fmt"
	"strings"
	"time"
)

// Config contains configuration for the conversation API client.
type Config struct {
	// BaseURL is the REST API root, e.g. http://localhost:8000/api
	BaseURL string

	// Token is sent as a bearer token when set
	Token string

	// Timeout is the HTTP request timeout
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of attempts for retryable failures
	// Default: 3
	MaxRetries int

	// RetryDelay is the pause between attempts
	// Default: 500 milliseconds
	RetryDelay time.Duration

	// CacheTTL is how long fetched conversations are served from memory
	// Default: 1 minute
	CacheTTL time.Duration
}

// Validate checks that required config fields are set.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("BaseURL is required")
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("BaseURL must be an http or https URL")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must not be negative")
	}

	return nil
}

// SetDefaults fills in default values for optional fields.
func (c *Config) SetDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}

	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}

	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
}
