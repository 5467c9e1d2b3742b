// Package sqlite implements the baseline memory tier: a durable store on
// modernc.org/sqlite (pure Go, no CGO) with WAL mode, FTS5 keyword search,
// and an in-process chromem-go index for vector similarity.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Compile-time interface guards.
var (
	_ memory.Backend = (*Store)(nil)
	_ memory.Mirror  = (*Store)(nil)
)

// Store is the always-available baseline tier.
type Store struct {
	config   Config
	embedder memory.Embedder
	logger   *slog.Logger
	now      func() time.Time

	// mu guards the lifecycle fields and serialises writes so the
	// dimension check, row write and index update happen together.
	mu     sync.Mutex
	db     *sql.DB
	index  *vectorIndex
	dim    int
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a baseline store. No I/O happens until Initialize.
func New(cfg Config, e memory.Embedder, opts ...Option) *Store {
	cfg.Defaults("")
	s := &Store{
		config:   cfg,
		embedder: e,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements memory.Backend.
func (s *Store) Kind() memory.Kind { return memory.KindBaseline }

// Path returns the database file path.
func (s *Store) Path() string { return s.config.Path }

// Initialize implements memory.Backend. It opens the database, migrates
// the schema and loads the vector index. Calling it again is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return memory.ErrClosed
	}
	if s.db != nil {
		return nil
	}
	if err := s.config.Validate(); err != nil {
		return memory.Unavailable(err)
	}

	db, err := openDB(ctx, s.config)
	if err != nil {
		return memory.Unavailable(err)
	}

	dim, err := loadDimension(ctx, db)
	if err != nil {
		_ = db.Close()
		return memory.Unavailable(err)
	}

	index, err := loadIndex(ctx, db)
	if err != nil {
		_ = db.Close()
		return memory.Unavailable(err)
	}

	s.db = db
	s.dim = dim
	s.index = index

	s.logger.Info("baseline store ready",
		"path", s.config.Path,
		"wal", s.config.walEnabled(),
		"records", index.Count(),
		"dimension", dim,
	)
	return nil
}

// Close implements memory.Backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	s.logger.Info("baseline store closing", "path", s.config.Path)
	err := s.db.Close()
	s.db = nil
	s.index = nil
	return err
}

// handle returns the open database or an error when the store was never
// initialized or has been closed.
func (s *Store) handle() (*sql.DB, *vectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, memory.ErrClosed
	}
	if s.db == nil {
		return nil, nil, fmt.Errorf("sqlite: %w: not initialized", memory.ErrBackendUnavailable)
	}
	return s.db, s.index, nil
}

func loadDimension(ctx context.Context, db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'dimension'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: read dimension: %w", err)
	}
	dim, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("sqlite: parse dimension %q: %w", raw, err)
	}
	return dim, nil
}
