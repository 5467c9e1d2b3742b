package sqlite

import (
	"errors"
	"fmt"
	"path/filepath"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "memory.db"
)

// Config holds the baseline store configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/memory.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// MaxRecords caps the number of stored records. Zero means unlimited.
	MaxRecords int `yaml:"max_records"`
}

// Defaults fills zero values, resolving an empty Path under dataDir.
func (c *Config) Defaults(dataDir string) {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.Path == "" {
		c.Path = DefaultPath(dataDir)
	}
}

// DefaultPath returns the database path used when none is configured.
func DefaultPath(dataDir string) string {
	if dataDir == "" {
		return filepath.Join("data", defaultDBFile)
	}
	return filepath.Join(dataDir, defaultDBFile)
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []error
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout))
	}
	if c.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("sqlite: max_records must be non-negative, got %d", c.MaxRecords))
	}
	return errors.Join(errs...)
}
