package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

const recordColumns = "id, content, tags, metadata, embedding, created_at"

// Store implements memory.Backend.
func (s *Store) Store(ctx context.Context, e memory.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	emb, err := s.embedder.Embed(ctx, e.Content)
	if err != nil {
		return "", err
	}
	rec, err := memory.NewRecord(e, emb, s.now())
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, rec, true); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Upsert implements memory.Mirror. The record keeps its id, embedding
// and creation time; an existing row with the same id is overwritten.
func (s *Store) Upsert(ctx context.Context, r memory.Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", memory.ErrInvalidEntry)
	}
	return s.write(ctx, r, false)
}

func (s *Store) write(ctx context.Context, r memory.Record, fresh bool) error {
	tagsJSON, err := json.Marshal(nonNilTags(r.Tags))
	if err != nil {
		return fmt.Errorf("sqlite: marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(nonNilMeta(r.Metadata))
	if err != nil {
		return fmt.Errorf("sqlite: marshal metadata: %w", err)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return memory.ErrClosed
	}
	if s.db == nil {
		return fmt.Errorf("sqlite: %w: not initialized", memory.ErrBackendUnavailable)
	}
	if err := memory.CheckDimension(s.dim, r.Embedding); err != nil {
		s.logger.Error("embedding dimension mismatch", "id", r.ID, "error", err)
		return err
	}
	if err := s.checkCapacity(ctx, r.ID, fresh); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("sqlite: begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, tags, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content    = excluded.content,
			tags       = excluded.tags,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding,
			created_at = excluded.created_at`,
		r.ID, r.Content, string(tagsJSON), string(metaJSON),
		encodeVector(r.Embedding), createdAt.UTC().UnixNano(),
	)
	if err != nil {
		return classify(fmt.Errorf("sqlite: write record: %w", err))
	}

	if s.dim == 0 && len(r.Embedding) > 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO meta (key, value) VALUES ('dimension', ?)",
			strconv.Itoa(len(r.Embedding)),
		); err != nil {
			return classify(fmt.Errorf("sqlite: record dimension: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("sqlite: commit: %w", err))
	}
	if s.dim == 0 {
		s.dim = len(r.Embedding)
	}

	if err := s.index.put(ctx, r.ID, r.Embedding); err != nil {
		s.logger.Error("vector index update failed", "id", r.ID, "error", err)
	}
	return nil
}

// checkCapacity rejects new rows once MaxRecords is reached. Overwrites of
// existing ids are always accepted. Callers hold s.mu.
func (s *Store) checkCapacity(ctx context.Context, id string, fresh bool) error {
	if s.config.MaxRecords <= 0 {
		return nil
	}
	if !fresh {
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE id = ?", id).Scan(&exists)
		if err != nil {
			return classify(fmt.Errorf("sqlite: lookup record: %w", err))
		}
		if exists > 0 {
			return nil
		}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return classify(fmt.Errorf("sqlite: count records: %w", err))
	}
	if n >= s.config.MaxRecords {
		return fmt.Errorf("sqlite: %w: %d records stored, limit %d", memory.ErrCapacity, n, s.config.MaxRecords)
	}
	return nil
}

// Search implements memory.Backend. Candidates come from the vector
// index; when a filter drops some of them the candidate window widens
// until limit matches are found or the index is exhausted.
func (s *Store) Search(ctx context.Context, query string, limit int, f *memory.Filter) ([]memory.Result, error) {
	if limit <= 0 {
		return []memory.Result{}, nil
	}
	match, err := f.Matcher()
	if err != nil {
		return nil, err
	}
	db, index, err := s.handle()
	if err != nil {
		return nil, err
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	total := index.Count()
	n := min(memory.OverFetch(limit, f), total)
	for {
		hits, err := index.nearest(ctx, q, n)
		if err != nil {
			return nil, err
		}
		results, err := s.resolve(ctx, db, hits, match)
		if err != nil {
			return nil, err
		}
		if len(results) >= limit || n >= total {
			return memory.RankResults(results, limit), nil
		}
		n = min(n*2, total)
	}
}

func (s *Store) resolve(ctx context.Context, db *sql.DB, hits []hit, match func(memory.Record) bool) ([]memory.Result, error) {
	if len(hits) == 0 {
		return []memory.Result{}, nil
	}
	ids := make([]any, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM memories WHERE id IN (?"+strings.Repeat(",?", len(ids)-1)+")",
		ids...,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("sqlite: fetch candidates: %w", err))
	}
	defer func() { _ = rows.Close() }()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]memory.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}

	results := make([]memory.Result, 0, len(hits))
	for _, h := range hits {
		r, ok := byID[h.id]
		if !ok || !match(r) {
			continue
		}
		results = append(results, memory.Result{Record: r, Score: h.score})
	}
	return results, nil
}

// Get implements memory.Backend.
func (s *Store) Get(ctx context.Context, id string) (memory.Record, error) {
	db, _, err := s.handle()
	if err != nil {
		return memory.Record{}, err
	}
	rows, err := db.QueryContext(ctx, "SELECT "+recordColumns+" FROM memories WHERE id = ?", id)
	if err != nil {
		return memory.Record{}, classify(fmt.Errorf("sqlite: get record: %w", err))
	}
	defer func() { _ = rows.Close() }()

	recs, err := scanRecords(rows)
	if err != nil {
		return memory.Record{}, err
	}
	if len(recs) == 0 {
		return memory.Record{}, memory.ErrNotFound
	}
	return recs[0], nil
}

// Delete implements memory.Backend. Deleting an absent id succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return memory.ErrClosed
	}
	if s.db == nil {
		return fmt.Errorf("sqlite: %w: not initialized", memory.ErrBackendUnavailable)
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return classify(fmt.Errorf("sqlite: delete record: %w", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}
	if err := s.index.remove(ctx, id); err != nil {
		s.logger.Error("vector index delete failed", "id", id, "error", err)
	}
	return nil
}

// List implements memory.Backend.
func (s *Store) List(ctx context.Context, offset, count int) ([]memory.Record, error) {
	if count <= 0 {
		return []memory.Record{}, nil
	}
	db, _, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM memories ORDER BY created_at, seq LIMIT ? OFFSET ?",
		count, max(offset, 0),
	)
	if err != nil {
		return nil, classify(fmt.Errorf("sqlite: list records: %w", err))
	}
	defer func() { _ = rows.Close() }()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		return []memory.Record{}, nil
	}
	return recs, nil
}

// Len returns the total number of stored records.
func (s *Store) Len(ctx context.Context) (int, error) {
	db, _, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("sqlite: count records: %w", err))
	}
	return n, nil
}

// rawRecord holds one memories row as stored.
type rawRecord struct {
	id        string
	content   string
	tags      string
	metadata  string
	embedding []byte
	createdAt int64
}

func (r rawRecord) record() (memory.Record, error) {
	rec := memory.Record{
		ID:        r.id,
		Content:   r.content,
		Embedding: decodeVector(r.embedding),
		CreatedAt: time.Unix(0, r.createdAt).UTC(),
	}

	if r.tags != "" && r.tags != "[]" && r.tags != "null" {
		if err := json.Unmarshal([]byte(r.tags), &rec.Tags); err != nil {
			return memory.Record{}, fmt.Errorf("sqlite: unmarshal tags of %s: %w", r.id, err)
		}
	}

	if r.metadata != "" && r.metadata != "{}" && r.metadata != "null" {
		if err := json.Unmarshal([]byte(r.metadata), &rec.Metadata); err != nil {
			return memory.Record{}, fmt.Errorf("sqlite: unmarshal metadata of %s: %w", r.id, err)
		}
	}

	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]memory.Record, error) {
	var recs []memory.Record
	for rows.Next() {
		var row rawRecord
		if err := rows.Scan(&row.id, &row.content, &row.tags, &row.metadata, &row.embedding, &row.createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("sqlite: scan records rows: %w", err))
	}

	return recs, nil
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func nonNilTags(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}

func nonNilMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
