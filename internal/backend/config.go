package backend

import (
	"errors"
	"fmt"

	"github.com/Hkesd/mcp-memory-service/internal/embed"
	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/modules/memory/chroma"
	"github.com/Hkesd/mcp-memory-service/modules/memory/dashvector"
	"github.com/Hkesd/mcp-memory-service/modules/memory/qdrant"
	"github.com/Hkesd/mcp-memory-service/modules/memory/sqlite"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = "sqlite_vec"

// Config is the memory module configuration.
type Config struct {
	// Backend names the variant, e.g. "hybrid" or "sqlite_vec".
	Backend string `yaml:"backend"`

	SQLite     sqlite.Config     `yaml:"sqlite"`
	Embedding  embed.Config      `yaml:"embedding"`
	ChromaDB   chroma.Config     `yaml:"chromadb"`
	Remote     RemoteConfig      `yaml:"remote"`
	DashVector dashvector.Config `yaml:"dashvector"`
	Qdrant     qdrant.Config     `yaml:"qdrant"`
	Hybrid     hybrid.Config     `yaml:"hybrid"`
}

// RemoteConfig selects the remote driver for the generic "remote" names.
type RemoteConfig struct {
	Driver string `yaml:"driver"`
}

// Defaults fills zero values. Relative defaults resolve under dataDir.
func (c *Config) Defaults(dataDir string) {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Remote.Driver == "" {
		c.Remote.Driver = DriverDashVector
	}
	c.SQLite.Defaults(dataDir)
	c.Embedding.Defaults()
	c.ChromaDB.Defaults()
	c.DashVector.Defaults()
	c.Qdrant.Defaults()
	c.Hybrid.Defaults()
}

// Secrets returns the credentials held by the configuration, for log
// redaction. Empty values are included.
func (c *Config) Secrets() []string {
	return []string{c.Embedding.APIKey, c.DashVector.APIKey, c.Qdrant.APIKey}
}

// Validate checks the configuration for structural errors. An unknown
// backend name and missing remote credentials are not errors: both end in
// the baseline store at Open.
func (c *Config) Validate() error {
	var errs []error
	switch Normalize(c.Remote.Driver) {
	case DriverDashVector, DriverQdrant:
	default:
		errs = append(errs, fmt.Errorf("memory: unknown remote driver %q", c.Remote.Driver))
	}
	for _, err := range []error{
		c.SQLite.Validate(),
		c.Embedding.Validate(),
		c.ChromaDB.Validate(),
		c.DashVector.Validate(),
		c.Qdrant.Validate(),
		c.Hybrid.Validate(),
	} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
