package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/memory/memorytest"
)

func TestInMemoryStore_Contract(t *testing.T) {
	t.Parallel()

	memorytest.RunContract(t, func(*testing.T) memory.Backend {
		return memory.NewInMemoryStore(memorytest.NewEmbedder())
	})
}

func TestInMemoryStore_UpsertOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryStore(memorytest.NewEmbedder())

	rec := memory.Record{ID: "r1", Content: "v1", Embedding: make([]float32, memorytest.Dimensions)}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.Content = "v2"
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if got := store.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "v2" {
		t.Errorf("content = %q, want v2", got.Content)
	}
}

func TestInMemoryStore_DimensionMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryStore(memorytest.NewEmbedder())

	if err := store.Upsert(ctx, memory.Record{ID: "a", Content: "a", Embedding: make([]float32, 4)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err := store.Upsert(ctx, memory.Record{ID: "b", Content: "b", Embedding: make([]float32, 8)})
	if !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestInMemoryStore_ClosedRejectsCalls(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore(memorytest.NewEmbedder())
	_ = store.Close()

	if _, err := store.Store(context.Background(), memory.Entry{Content: "x"}); !errors.Is(err, memory.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryStore(memorytest.NewEmbedder())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.Store(ctx, memory.Entry{Content: fmt.Sprintf("concurrent %d", i)})
			if err != nil {
				t.Errorf("store: %v", err)
				return
			}
			_, _ = store.Search(ctx, "concurrent", 3, nil)
			if i%3 == 0 {
				_ = store.Delete(ctx, id)
			}
		}()
	}
	wg.Wait()

	if got := store.Len(); got != 33 {
		t.Errorf("Len() = %d, want 33", got)
	}
}
