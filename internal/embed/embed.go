// Package embed provides the embedding collaborators used by every memory
// tier: a deterministic local hashing embedder and clients for OpenAI and
// Ollama embedding endpoints, optionally fronted by a ristretto cache.
package embed

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Supported providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`

	// CacheSize is the number of query embeddings kept in memory.
	// Zero disables the cache.
	CacheSize int `yaml:"cache_size"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Provider == "" {
		c.Provider = ProviderHash
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderHash, ProviderOpenAI, ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("embed: unknown provider %q", c.Provider))
	}
	if c.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embed: dimensions must be positive, got %d", c.Dimensions))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("embed: cache_size must be non-negative, got %d", c.CacheSize))
	}
	return errors.Join(errs...)
}

// New builds the configured embedder.
func New(cfg Config, logger *slog.Logger) (memory.Embedder, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		e   memory.Embedder
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		e, err = NewOpenAI(cfg)
	case ProviderOllama:
		e, err = NewOllama(cfg)
	default:
		e = NewHash(cfg.Dimensions)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedder ready",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"dimensions", e.Dimensions(),
	)

	if cfg.CacheSize > 0 {
		return NewCached(e, cfg.CacheSize)
	}
	return e, nil
}

// wrap classifies a provider failure as an embedding error.
func wrap(provider string, err error) error {
	return fmt.Errorf("embed: %s: %w: %w", provider, memory.ErrEmbedding, err)
}
