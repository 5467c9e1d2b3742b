package hybrid

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultCollection       = "mcp_memory_hybrid"
	defaultSyncInterval     = 300 * time.Second
	defaultDrainTimeout     = 10 * time.Second
	defaultBatchSize        = 100
	defaultFailureThreshold = 3
)

// Config configures the hybrid coordinator.
type Config struct {
	// Collection names the collection both tiers use in hybrid mode.
	Collection string `yaml:"collection"`

	// SyncEnabled turns the background mirror on. Defaults to true.
	SyncEnabled *bool `yaml:"sync_enabled"`

	// SyncInterval is the period between background passes.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// DrainTimeout bounds how long Close waits for an in-flight pass.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// BatchSize is the page size used when scanning the primary.
	BatchSize int `yaml:"batch_size"`

	// FailureThreshold is the number of consecutive failed passes after
	// which the sync health reports failing.
	FailureThreshold int `yaml:"failure_threshold"`
}

// Defaults fills zero-valued fields.
func (c *Config) Defaults() {
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.SyncEnabled == nil {
		t := true
		c.SyncEnabled = &t
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
}

func (c *Config) syncEnabled() bool {
	return c.SyncEnabled == nil || *c.SyncEnabled
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []error
	if c.SyncInterval < 0 {
		errs = append(errs, fmt.Errorf("hybrid: sync_interval must be non-negative, got %s", c.SyncInterval))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("hybrid: drain_timeout must be non-negative, got %s", c.DrainTimeout))
	}
	if c.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("hybrid: batch_size must be non-negative, got %d", c.BatchSize))
	}
	if c.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("hybrid: failure_threshold must be non-negative, got %d", c.FailureThreshold))
	}
	return errors.Join(errs...)
}
