package embed

import (
	"context"
	"fmt"
	"slices"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/dgraph-io/ristretto"
)

// Cached memoizes embeddings of identical text. Repeated searches for the
// same query skip the provider round trip.
type Cached struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

var _ memory.Embedder = (*Cached)(nil)

// NewCached wraps e with a cache holding about size vectors.
func NewCached(e memory.Embedder, size int) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,

		// Each vector costs 1; MaxCost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create cache: %w", err)
	}
	return &Cached{inner: e, cache: cache}, nil
}

// Dimensions implements memory.Embedder.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Embed implements memory.Embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return slices.Clone(vec), nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, slices.Clone(vec), 1)
	return vec, nil
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *Cached) Close() { c.cache.Close() }
