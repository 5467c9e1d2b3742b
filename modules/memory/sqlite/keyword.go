package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

var errEmptyQuery = errors.New("sqlite: keyword query has no searchable terms")

// SearchKeyword ranks records by FTS5 bm25 relevance of their content
// against query. Each word of query is matched independently. Scores are
// positive; higher is more relevant.
func (s *Store) SearchKeyword(ctx context.Context, query string, limit int, f *memory.Filter) ([]memory.Result, error) {
	if limit <= 0 {
		return []memory.Result{}, nil
	}
	match, err := f.Matcher()
	if err != nil {
		return nil, err
	}
	expr := ftsQuery(query)
	if expr == "" {
		return nil, fmt.Errorf("%w: %w", memory.ErrInvalidEntry, errEmptyQuery)
	}
	db, _, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.content, m.tags, m.metadata, m.embedding, m.created_at, fts.rank
		FROM memories_fts fts
		JOIN memories m ON m.seq = fts.rowid
		WHERE memories_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`,
		expr, memory.OverFetch(limit, f),
	)
	if err != nil {
		return nil, classify(fmt.Errorf("sqlite: keyword search: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var results []memory.Result
	for rows.Next() {
		var (
			row  rawRecord
			rank float64
		)
		if err := rows.Scan(&row.id, &row.content, &row.tags, &row.metadata, &row.embedding, &row.createdAt, &rank); err != nil {
			return nil, fmt.Errorf("sqlite: scan keyword hit: %w", err)
		}
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		if !match(rec) {
			continue
		}
		results = append(results, memory.Result{Record: rec, Score: -rank})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("sqlite: keyword search rows: %w", err))
	}
	return memory.RankResults(results, limit), nil
}

// ftsQuery turns free text into an FTS5 expression of quoted terms joined
// by OR, so user input never reaches the FTS5 query parser unescaped.
func ftsQuery(q string) string {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
