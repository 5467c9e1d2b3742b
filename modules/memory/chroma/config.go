package chroma

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	defaultHost       = "localhost"
	defaultPort       = 8000
	defaultCollection = "mcp_memory"
	defaultTimeout    = 10 * time.Second
)

// Config holds the ChromaDB connection settings.
type Config struct {
	// URL overrides Host and Port when set, e.g. "https://chroma.internal".
	URL        string        `yaml:"url"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Defaults fills zero-valued fields.
func (c *Config) Defaults() {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// BaseURL returns the server root without a trailing slash.
func (c *Config) BaseURL() string {
	if c.URL != "" {
		return trimSlash(c.URL)
	}
	return "http://" + c.Host + ":" + strconv.Itoa(c.Port)
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("chromadb: port %d out of range", c.Port))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("chromadb: timeout must be non-negative, got %s", c.Timeout))
	}
	return errors.Join(errs...)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
