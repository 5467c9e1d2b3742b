package tier

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Compile-time interface guards.
var (
	_ memory.Backend = (*Adapter)(nil)
	_ memory.Mirror  = (*Adapter)(nil)
)

// Adapter serves memory.Backend over a LocalClient. The fast and remote
// tiers share it and differ only in the Kind they report.
type Adapter struct {
	kind     memory.Kind
	driver   string
	client   LocalClient
	embedder memory.Embedder
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	dim    int
	ready  bool
	closed bool
}

func newAdapter(kind memory.Kind, driver string, c LocalClient, d Deps) *Adapter {
	return &Adapter{
		kind:     kind,
		driver:   driver,
		client:   c,
		embedder: d.Embedder,
		logger:   d.logger().With("tier", kind, "driver", driver),
		now:      time.Now,
	}
}

// NewFast opens the fast tier over c. On any failure it returns the
// baseline and a diagnostic instead.
func NewFast(ctx context.Context, c LocalClient, d Deps) (memory.Backend, *Diagnostic) {
	a := newAdapter(memory.KindFast, "chromadb", c, d)
	if err := a.Initialize(ctx); err != nil {
		_ = c.Close()
		return Substitute(ctx, memory.KindFast, a.driver, err, d)
	}
	return a, nil
}

// NewRemote opens the remote tier over c. A missing credential or an
// unreachable service yields the baseline and a diagnostic.
func NewRemote(ctx context.Context, c RemoteClient, d Deps) (memory.Backend, *Diagnostic) {
	if err := c.Configured(); err != nil {
		_ = c.Close()
		return Substitute(ctx, memory.KindRemote, c.Driver(), err, d)
	}
	a := newAdapter(memory.KindRemote, c.Driver(), c, d)
	if err := a.Initialize(ctx); err != nil {
		_ = c.Close()
		return Substitute(ctx, memory.KindRemote, c.Driver(), err, d)
	}
	return a, nil
}

// Kind implements memory.Backend.
func (a *Adapter) Kind() memory.Kind { return a.kind }

// Driver names the underlying service.
func (a *Adapter) Driver() string { return a.driver }

// Initialize implements memory.Backend.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return memory.ErrClosed
	}
	if a.ready {
		return nil
	}
	if err := a.client.Heartbeat(ctx); err != nil {
		return memory.Unavailable(fmt.Errorf("%s: heartbeat: %w", a.driver, err))
	}
	dim, err := a.client.EnsureCollection(ctx, a.embedder.Dimensions())
	if err != nil {
		return memory.Unavailable(fmt.Errorf("%s: ensure collection: %w", a.driver, err))
	}
	a.dim = dim
	a.ready = true
	a.logger.Info("tier ready", "dimension", dim)
	return nil
}

func (a *Adapter) check() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, memory.ErrClosed
	}
	if !a.ready {
		return 0, fmt.Errorf("%s: %w: not initialized", a.driver, memory.ErrBackendUnavailable)
	}
	return a.dim, nil
}

// Store implements memory.Backend.
func (a *Adapter) Store(ctx context.Context, e memory.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if _, err := a.check(); err != nil {
		return "", err
	}
	emb, err := a.embedder.Embed(ctx, e.Content)
	if err != nil {
		return "", err
	}
	rec, err := memory.NewRecord(e, emb, a.now())
	if err != nil {
		return "", err
	}
	if err := a.Upsert(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Upsert implements memory.Mirror.
func (a *Adapter) Upsert(ctx context.Context, r memory.Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", memory.ErrInvalidEntry)
	}
	dim, err := a.check()
	if err != nil {
		return err
	}
	if err := memory.CheckDimension(dim, r.Embedding); err != nil {
		a.logger.Error("embedding dimension mismatch", "id", r.ID, "error", err)
		return err
	}
	if err := a.client.Upsert(ctx, []memory.Record{r}); err != nil {
		return fmt.Errorf("%s: upsert: %w", a.driver, err)
	}
	return nil
}

// Search implements memory.Backend.
func (a *Adapter) Search(ctx context.Context, query string, limit int, f *memory.Filter) ([]memory.Result, error) {
	if limit <= 0 {
		return []memory.Result{}, nil
	}
	match, err := f.Matcher()
	if err != nil {
		return nil, err
	}
	if _, err := a.check(); err != nil {
		return nil, err
	}
	q, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := a.client.Query(ctx, q, memory.OverFetch(limit, f))
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", a.driver, err)
	}
	results := make([]memory.Result, 0, len(hits))
	for _, h := range hits {
		if match(h.Record) {
			results = append(results, h)
		}
	}
	return memory.RankResults(results, limit), nil
}

// Get implements memory.Backend.
func (a *Adapter) Get(ctx context.Context, id string) (memory.Record, error) {
	if _, err := a.check(); err != nil {
		return memory.Record{}, err
	}
	recs, err := a.client.Get(ctx, []string{id})
	if err != nil {
		return memory.Record{}, fmt.Errorf("%s: get: %w", a.driver, err)
	}
	for _, r := range recs {
		if r.ID == id {
			return r, nil
		}
	}
	return memory.Record{}, memory.ErrNotFound
}

// Delete implements memory.Backend.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	if _, err := a.check(); err != nil {
		return err
	}
	if err := a.client.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("%s: delete: %w", a.driver, err)
	}
	return nil
}

// List implements memory.Backend. Pages are ordered by creation time.
func (a *Adapter) List(ctx context.Context, offset, count int) ([]memory.Record, error) {
	if count <= 0 {
		return []memory.Record{}, nil
	}
	if _, err := a.check(); err != nil {
		return nil, err
	}
	recs, err := a.client.Page(ctx, max(offset, 0), count)
	if err != nil {
		return nil, fmt.Errorf("%s: list: %w", a.driver, err)
	}
	slices.SortStableFunc(recs, func(x, y memory.Record) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	if recs == nil {
		return []memory.Record{}, nil
	}
	return recs, nil
}

// Len returns the number of records in the collection.
func (a *Adapter) Len(ctx context.Context) (int, error) {
	if _, err := a.check(); err != nil {
		return 0, err
	}
	return a.client.Count(ctx)
}

// Close implements memory.Backend.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.client.Close()
}
