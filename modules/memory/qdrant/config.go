package qdrant

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultURL        = "http://localhost:6333"
	defaultCollection = "mcp_memory"
	defaultTimeout    = 15 * time.Second
)

// Config holds the Qdrant connection settings.
type Config struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`

	// RequireAPIKey treats an empty APIKey as unconfigured. Local Qdrant
	// instances usually run without a key.
	RequireAPIKey bool `yaml:"require_api_key"`
}

// Defaults fills zero-valued fields. APIKey falls back to QDRANT_API_KEY.
func (c *Config) Defaults() {
	if c.URL == "" {
		c.URL = defaultURL
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.APIKey == "" {
		c.APIKey = os.Getenv("QDRANT_API_KEY")
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []error
	if c.URL != "" && !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		errs = append(errs, fmt.Errorf("qdrant: url %q must start with http:// or https://", c.URL))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("qdrant: timeout must be non-negative, got %s", c.Timeout))
	}
	return errors.Join(errs...)
}
