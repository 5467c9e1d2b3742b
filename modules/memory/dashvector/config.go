package dashvector

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultCollection = "mcp_memory"
	defaultTimeout    = 15 * time.Second

	// DefaultDimension matches all-MiniLM-L6-v2, the usual embedding model
	// for this collection.
	DefaultDimension = 384
)

// Config holds the DashVector connection settings.
type Config struct {
	// Endpoint is the cluster endpoint, with or without scheme.
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Defaults fills zero-valued fields. APIKey and Endpoint fall back to
// DASHVECTOR_API_KEY and DASHVECTOR_ENDPOINT.
func (c *Config) Defaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("DASHVECTOR_API_KEY")
	}
	if c.Endpoint == "" {
		c.Endpoint = os.Getenv("DASHVECTOR_ENDPOINT")
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// BaseURL returns the endpoint with a scheme and no trailing slash.
func (c *Config) BaseURL() string {
	u := strings.TrimRight(c.Endpoint, "/")
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// Validate checks the configuration for structural errors. Missing
// credentials are not structural: the tier is substituted instead.
func (c *Config) Validate() error {
	var errs []error
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("dashvector: timeout must be non-negative, got %s", c.Timeout))
	}
	if strings.ContainsAny(c.Collection, "/ ") {
		errs = append(errs, fmt.Errorf("dashvector: invalid collection name %q", c.Collection))
	}
	return errors.Join(errs...)
}
