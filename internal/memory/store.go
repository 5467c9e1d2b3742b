// Package memory defines the storage capability contract shared by every
// memory tier, along with the record model and the helpers tiers use to
// implement it consistently.
package memory

import (
	"context"
	"time"
)

// Kind identifies a backend variant.
type Kind string

// Backend variants.
const (
	KindBaseline Kind = "baseline"
	KindFast     Kind = "fast"
	KindRemote   Kind = "remote"
	KindHybrid   Kind = "hybrid"
)

// Record is the unit of storage.
type Record struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// Entry is the caller-supplied part of a record. The embedding, id and
// creation time are assigned by the backend.
type Entry struct {
	Content  string         `json:"content"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is a search hit.
type Result struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// Backend is the capability contract every tier implements.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Initialize prepares the backend. Calling it twice is a no-op.
	Initialize(ctx context.Context) error

	// Store embeds and persists an entry and returns the new record id.
	Store(ctx context.Context, e Entry) (string, error)

	// Search returns at most limit results ordered by descending score.
	// A search with no matches returns an empty slice and no error.
	Search(ctx context.Context, query string, limit int, f *Filter) ([]Result, error)

	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Delete removes a record. Deleting an absent record succeeds.
	Delete(ctx context.Context, id string) error

	// List returns records in creation order.
	List(ctx context.Context, offset, count int) ([]Record, error)

	// Close releases resources. It is safe to call more than once.
	Close() error

	// Kind reports which variant serves the calls.
	Kind() Kind
}

// Mirror is implemented by backends that accept fully formed records,
// preserving id, embedding and creation time. Upsert overwrites a record
// with the same id instead of duplicating it.
type Mirror interface {
	Upsert(ctx context.Context, r Record) error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// KeywordSearcher is implemented by backends with a full-text index.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, query string, limit int, f *Filter) ([]Result, error)
}

// Unwrapper is implemented by backends that decorate another backend.
type Unwrapper interface {
	Unwrap() Backend
}

// Underlying returns the innermost backend beneath any decorators.
func Underlying(b Backend) Backend {
	for {
		u, ok := b.(Unwrapper)
		if !ok {
			return b
		}
		b = u.Unwrap()
	}
}
