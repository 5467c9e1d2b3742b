// Package memorytest provides test doubles for the memory package.
package memorytest

import (
	"context"
	"sync"

	"github.com/Hkesd/mcp-memory-service/internal/embed"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Dimensions is the vector size produced by NewEmbedder.
const Dimensions = 32

// NewEmbedder returns a small deterministic embedder for tests.
func NewEmbedder() memory.Embedder {
	return embed.NewHash(Dimensions)
}

// Backend is a configurable test double for memory.Backend and
// memory.Mirror. Operations without a Func field fall through to an
// in-memory store. All methods are safe for concurrent use.
type Backend struct {
	InitializeFunc func(ctx context.Context) error
	StoreFunc      func(ctx context.Context, e memory.Entry) (string, error)
	SearchFunc     func(ctx context.Context, query string, limit int, f *memory.Filter) ([]memory.Result, error)
	GetFunc        func(ctx context.Context, id string) (memory.Record, error)
	DeleteFunc     func(ctx context.Context, id string) error
	ListFunc       func(ctx context.Context, offset, count int) ([]memory.Record, error)
	UpsertFunc     func(ctx context.Context, r memory.Record) error

	*memory.InMemoryStore

	mu          sync.Mutex
	InitCalls   int
	StoreCalls  int
	SearchCalls int
	GetCalls    int
	DeleteCalls int
	ListCalls   int
	UpsertCalls int
	CloseCalls  int
}

// NewBackend returns a Backend reporting kind k.
func NewBackend(k memory.Kind) *Backend {
	return &Backend{
		InMemoryStore: memory.NewInMemoryStore(NewEmbedder(), memory.WithKind(k)),
	}
}

// Interface guards.
var (
	_ memory.Backend = (*Backend)(nil)
	_ memory.Mirror  = (*Backend)(nil)
)

func (b *Backend) count(field *int) {
	b.mu.Lock()
	*field++
	b.mu.Unlock()
}

// Initialize delegates to InitializeFunc or the in-memory store.
func (b *Backend) Initialize(ctx context.Context) error {
	b.count(&b.InitCalls)
	if b.InitializeFunc != nil {
		return b.InitializeFunc(ctx)
	}
	return b.InMemoryStore.Initialize(ctx)
}

// Store delegates to StoreFunc or the in-memory store.
func (b *Backend) Store(ctx context.Context, e memory.Entry) (string, error) {
	b.count(&b.StoreCalls)
	if b.StoreFunc != nil {
		return b.StoreFunc(ctx, e)
	}
	return b.InMemoryStore.Store(ctx, e)
}

// Search delegates to SearchFunc or the in-memory store.
func (b *Backend) Search(ctx context.Context, query string, limit int, f *memory.Filter) ([]memory.Result, error) {
	b.count(&b.SearchCalls)
	if b.SearchFunc != nil {
		return b.SearchFunc(ctx, query, limit, f)
	}
	return b.InMemoryStore.Search(ctx, query, limit, f)
}

// Get delegates to GetFunc or the in-memory store.
func (b *Backend) Get(ctx context.Context, id string) (memory.Record, error) {
	b.count(&b.GetCalls)
	if b.GetFunc != nil {
		return b.GetFunc(ctx, id)
	}
	return b.InMemoryStore.Get(ctx, id)
}

// Delete delegates to DeleteFunc or the in-memory store.
func (b *Backend) Delete(ctx context.Context, id string) error {
	b.count(&b.DeleteCalls)
	if b.DeleteFunc != nil {
		return b.DeleteFunc(ctx, id)
	}
	return b.InMemoryStore.Delete(ctx, id)
}

// List delegates to ListFunc or the in-memory store.
func (b *Backend) List(ctx context.Context, offset, count int) ([]memory.Record, error) {
	b.count(&b.ListCalls)
	if b.ListFunc != nil {
		return b.ListFunc(ctx, offset, count)
	}
	return b.InMemoryStore.List(ctx, offset, count)
}

// Upsert delegates to UpsertFunc or the in-memory store.
func (b *Backend) Upsert(ctx context.Context, r memory.Record) error {
	b.count(&b.UpsertCalls)
	if b.UpsertFunc != nil {
		return b.UpsertFunc(ctx, r)
	}
	return b.InMemoryStore.Upsert(ctx, r)
}

// Close tracks calls and closes the in-memory store.
func (b *Backend) Close() error {
	b.count(&b.CloseCalls)
	return b.InMemoryStore.Close()
}

// Calls returns a snapshot of the call counters keyed by operation.
func (b *Backend) Calls() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]int{
		"initialize": b.InitCalls,
		"store":      b.StoreCalls,
		"search":     b.SearchCalls,
		"get":        b.GetCalls,
		"delete":     b.DeleteCalls,
		"list":       b.ListCalls,
		"upsert":     b.UpsertCalls,
		"close":      b.CloseCalls,
	}
}
