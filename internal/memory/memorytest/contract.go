package memorytest

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// RunContract exercises the capability contract against backends built by
// newBackend. Each subtest gets a fresh, initialized backend.
func RunContract(t *testing.T, newBackend func(t *testing.T) memory.Backend) {
	t.Helper()

	open := func(t *testing.T) memory.Backend {
		t.Helper()
		b := newBackend(t)
		if err := b.Initialize(t.Context()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	}

	t.Run("InitializeIdempotent", func(t *testing.T) {
		b := open(t)
		if err := b.Initialize(t.Context()); err != nil {
			t.Fatalf("second initialize: %v", err)
		}
	})

	t.Run("StoreThenGet", func(t *testing.T) {
		b := open(t)
		entry := memory.Entry{
			Content:  "remember the milk",
			Tags:     []string{"errand", "shopping"},
			Metadata: map[string]any{"priority": "high", "done": false},
		}
		id, err := b.Store(t.Context(), entry)
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		if id == "" {
			t.Fatal("store returned empty id")
		}

		got, err := b.Get(t.Context(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != id || got.Content != entry.Content {
			t.Errorf("got %q/%q, want %q/%q", got.ID, got.Content, id, entry.Content)
		}
		if !reflect.DeepEqual(got.Tags, entry.Tags) {
			t.Errorf("tags = %v, want %v", got.Tags, entry.Tags)
		}
		if !reflect.DeepEqual(got.Metadata, entry.Metadata) {
			t.Errorf("metadata = %v, want %v", got.Metadata, entry.Metadata)
		}
		if got.CreatedAt.IsZero() {
			t.Error("created_at not set")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		b := open(t)
		if _, err := b.Get(t.Context(), "does-not-exist"); !errors.Is(err, memory.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("StoreRejectsEmptyContent", func(t *testing.T) {
		b := open(t)
		if _, err := b.Store(t.Context(), memory.Entry{Content: "  "}); !errors.Is(err, memory.ErrInvalidEntry) {
			t.Fatalf("err = %v, want ErrInvalidEntry", err)
		}
	})

	t.Run("DeleteTwice", func(t *testing.T) {
		b := open(t)
		keep, err := b.Store(t.Context(), memory.Entry{Content: "keep me"})
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		id, err := b.Store(t.Context(), memory.Entry{Content: "delete me"})
		if err != nil {
			t.Fatalf("store: %v", err)
		}

		if err := b.Delete(t.Context(), id); err != nil {
			t.Fatalf("first delete: %v", err)
		}
		if err := b.Delete(t.Context(), id); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if _, err := b.Get(t.Context(), id); !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("get after delete: err = %v, want ErrNotFound", err)
		}
		if _, err := b.Get(t.Context(), keep); err != nil {
			t.Errorf("unrelated record lost: %v", err)
		}
		recs, err := b.List(t.Context(), 0, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("list len = %d, want 1", len(recs))
		}
	})

	t.Run("SearchLimitAndOrder", func(t *testing.T) {
		b := open(t)
		for i := range 6 {
			content := fmt.Sprintf("note %d about gardening tomatoes", i)
			if i%2 == 1 {
				content = fmt.Sprintf("note %d about tax returns", i)
			}
			if _, err := b.Store(t.Context(), memory.Entry{Content: content}); err != nil {
				t.Fatalf("store: %v", err)
			}
		}

		results, err := b.Search(t.Context(), "gardening tomatoes", 4, nil)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) > 4 {
			t.Fatalf("len = %d, want <= 4", len(results))
		}
		if len(results) == 0 {
			t.Fatal("expected results")
		}
		for i := 1; i < len(results); i++ {
			if results[i].Score > results[i-1].Score {
				t.Errorf("results not sorted: %v > %v at %d", results[i].Score, results[i-1].Score, i)
			}
		}
	})

	t.Run("SearchEmpty", func(t *testing.T) {
		b := open(t)
		results, err := b.Search(t.Context(), "anything", 5, nil)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("len = %d, want 0", len(results))
		}
	})

	t.Run("SearchTagFilter", func(t *testing.T) {
		b := open(t)
		if _, err := b.Store(t.Context(), memory.Entry{Content: "alpha note", Tags: []string{"work"}}); err != nil {
			t.Fatalf("store: %v", err)
		}
		if _, err := b.Store(t.Context(), memory.Entry{Content: "alpha note too", Tags: []string{"home"}}); err != nil {
			t.Fatalf("store: %v", err)
		}

		results, err := b.Search(t.Context(), "alpha note", 5, &memory.Filter{Tags: []string{"home"}})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) != 1 || results[0].Record.Tags[0] != "home" {
			t.Fatalf("results = %+v, want the single home record", results)
		}
	})

	t.Run("ListCreationOrder", func(t *testing.T) {
		b := open(t)
		var ids []string
		for i := range 5 {
			id, err := b.Store(t.Context(), memory.Entry{Content: fmt.Sprintf("entry number %d", i)})
			if err != nil {
				t.Fatalf("store: %v", err)
			}
			ids = append(ids, id)
		}

		page1, err := b.List(t.Context(), 0, 3)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		page2, err := b.List(t.Context(), 3, 3)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		got := make([]string, 0, 5)
		for _, r := range append(page1, page2...) {
			got = append(got, r.ID)
		}
		if !reflect.DeepEqual(got, ids) {
			t.Errorf("list order = %v, want %v", got, ids)
		}
	})

	t.Run("CloseTwice", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Initialize(t.Context()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("first close: %v", err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
	})
}
