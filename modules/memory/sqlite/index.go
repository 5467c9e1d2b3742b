package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
)

const indexCollection = "baseline"

// vectorIndex mirrors the embeddings held in the memories table inside an
// in-memory chromem-go collection. SQLite stays the source of truth; the
// index is rebuilt from it on every Initialize.
type vectorIndex struct {
	col *chromem.Collection
}

type hit struct {
	id    string
	score float64
}

func loadIndex(ctx context.Context, db *sql.DB) (*vectorIndex, error) {
	col, err := chromem.NewDB().CreateCollection(indexCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create vector index: %w", err)
	}
	idx := &vectorIndex{col: col}

	rows, err := db.QueryContext(ctx, "SELECT id, embedding FROM memories")
	if err != nil {
		return nil, fmt.Errorf("sqlite: load vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []chromem.Document
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: scan vector: %w", err)
		}
		docs = append(docs, chromem.Document{ID: id, Embedding: decodeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load vectors rows: %w", err)
	}

	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("sqlite: index vectors: %w", err)
		}
	}
	return idx, nil
}

// Count returns the number of indexed vectors.
func (v *vectorIndex) Count() int {
	return v.col.Count()
}

func (v *vectorIndex) put(ctx context.Context, id string, vec []float32) error {
	return v.col.AddDocument(ctx, chromem.Document{ID: id, Embedding: vec})
}

func (v *vectorIndex) remove(ctx context.Context, id string) error {
	return v.col.Delete(ctx, nil, nil, id)
}

// nearest returns up to n ids ordered by descending cosine similarity.
func (v *vectorIndex) nearest(ctx context.Context, q []float32, n int) ([]hit, error) {
	var (
		res []chromem.Result
		err error
	)
	// A concurrent delete can shrink the collection between Count and
	// QueryEmbedding; clamp again and retry once.
	for range 2 {
		k := min(n, v.col.Count())
		if k <= 0 {
			return nil, nil
		}
		res, err = v.col.QueryEmbedding(ctx, q, k, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query vector index: %w", err)
	}
	hits := make([]hit, len(res))
	for i, r := range res {
		hits[i] = hit{id: r.ID, score: float64(r.Similarity)}
	}
	return hits, nil
}
