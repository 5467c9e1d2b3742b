package memory

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe, in-memory implementation of Backend and
// Mirror. Search is a brute-force cosine scan. It backs tests and the
// memorytest doubles.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	index    map[string]int // id → index in records slice
	embedder Embedder
	kind     Kind
	dim      int
	closed   bool
	now      func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithKind sets the variant the store reports.
func WithKind(k Kind) InMemoryOption {
	return func(s *InMemoryStore) { s.kind = k }
}

// WithClock overrides time.Now for creation timestamps.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) { s.now = now }
}

// NewInMemoryStore creates a new empty store that embeds with e.
func NewInMemoryStore(e Embedder, opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		index:    make(map[string]int),
		embedder: e,
		kind:     KindBaseline,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface checks.
var (
	_ Backend = (*InMemoryStore)(nil)
	_ Mirror  = (*InMemoryStore)(nil)
)

// Initialize implements Backend.
func (s *InMemoryStore) Initialize(context.Context) error { return nil }

// Kind implements Backend.
func (s *InMemoryStore) Kind() Kind { return s.kind }

// Store implements Backend.
func (s *InMemoryStore) Store(ctx context.Context, e Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	emb, err := s.embedder.Embed(ctx, e.Content)
	if err != nil {
		return "", err
	}
	rec, err := NewRecord(e, emb, s.now())
	if err != nil {
		return "", err
	}
	if err := s.Upsert(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Upsert implements Mirror.
func (s *InMemoryStore) Upsert(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := CheckDimension(s.dim, r.Embedding); err != nil {
		return err
	}
	if s.dim == 0 {
		s.dim = len(r.Embedding)
	}

	r = r.Clone()
	if i, exists := s.index[r.ID]; exists {
		s.records[i] = r
		return nil
	}
	s.index[r.ID] = len(s.records)
	s.records = append(s.records, r)
	return nil
}

// Search implements Backend.
func (s *InMemoryStore) Search(ctx context.Context, query string, limit int, f *Filter) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}
	match, err := f.Matcher()
	if err != nil {
		return nil, err
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	results := make([]Result, 0, len(s.records))
	for i := range s.records {
		if !match(s.records[i]) {
			continue
		}
		results = append(results, Result{
			Record: s.records[i].Clone(),
			Score:  CosineSimilarity(q, s.records[i].Embedding),
		})
	}
	return RankResults(results, limit), nil
}

// Get implements Backend.
func (s *InMemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrClosed
	}
	i, ok := s.index[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return s.records[i].Clone(), nil
}

// Delete implements Backend.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	s.records = slices.Delete(s.records, i, i+1)
	delete(s.index, id)
	for j := i; j < len(s.records); j++ {
		s.index[s.records[j].ID] = j
	}
	return nil
}

// List implements Backend.
func (s *InMemoryStore) List(_ context.Context, offset, count int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if offset < 0 {
		offset = 0
	}
	if count <= 0 || offset >= len(s.records) {
		return []Record{}, nil
	}
	end := min(offset+count, len(s.records))
	out := make([]Record, 0, end-offset)
	for _, r := range s.records[offset:end] {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Backend.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
