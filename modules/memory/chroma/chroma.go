// Package chroma is a client for the ChromaDB HTTP API (v1) used by the
// fast memory tier.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

const (
	driverName      = "chromadb"
	maxResponseSize = 32 * 1024 * 1024
)

var _ tier.LocalClient = (*Client)(nil)

// Client talks to one ChromaDB collection.
type Client struct {
	config Config
	base   string
	http   *http.Client

	mu           sync.Mutex
	collectionID string
}

// New creates a client. No request is made until Heartbeat.
func New(cfg Config) *Client {
	cfg.Defaults()
	return &Client{
		config: cfg,
		base:   cfg.BaseURL() + "/api/v1",
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// WithHTTPClient replaces the HTTP client. Intended for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// --- wire types ---

type collectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

type collectionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// docMeta is the scalar-only metadata Chroma stores per document. Tags and
// user metadata travel as JSON strings.
type docMeta struct {
	Tags      string `json:"tags"`
	Metadata  string `json:"metadata"`
	CreatedAt int64  `json:"created_at"`
}

type upsertRequest struct {
	IDs        []string    `json:"ids"`
	Embeddings [][]float32 `json:"embeddings"`
	Metadatas  []docMeta   `json:"metadatas"`
	Documents  []string    `json:"documents"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs        [][]string    `json:"ids"`
	Distances  [][]float64   `json:"distances"`
	Metadatas  [][]*docMeta  `json:"metadatas"`
	Documents  [][]*string   `json:"documents"`
	Embeddings [][][]float32 `json:"embeddings"`
}

type getRequest struct {
	IDs     []string `json:"ids,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Offset  int      `json:"offset,omitempty"`
	Include []string `json:"include"`
}

type getResponse struct {
	IDs        []string    `json:"ids"`
	Metadatas  []*docMeta  `json:"metadatas"`
	Documents  []*string   `json:"documents"`
	Embeddings [][]float32 `json:"embeddings"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

var includeAll = []string{"documents", "metadatas", "embeddings"}

// --- tier.LocalClient ---

// Heartbeat implements tier.LocalClient.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/heartbeat", nil, nil)
}

// EnsureCollection implements tier.LocalClient. The collection uses cosine
// space and records dim under the "dimension" metadata key.
func (c *Client) EnsureCollection(ctx context.Context, dim int) (int, error) {
	req := collectionRequest{
		Name: c.config.Collection,
		Metadata: map[string]any{
			"hnsw:space": "cosine",
			"dimension":  dim,
		},
		GetOrCreate: true,
	}
	var resp collectionResponse
	if err := c.do(ctx, http.MethodPost, "/collections", req, &resp); err != nil {
		return 0, err
	}
	if resp.ID == "" {
		return 0, fmt.Errorf("%s: collection %q returned no id", driverName, c.config.Collection)
	}

	c.mu.Lock()
	c.collectionID = resp.ID
	c.mu.Unlock()

	if d, ok := resp.Metadata["dimension"].(float64); ok && d > 0 {
		return int(d), nil
	}
	return dim, nil
}

// Upsert implements tier.LocalClient.
func (c *Client) Upsert(ctx context.Context, recs []memory.Record) error {
	if len(recs) == 0 {
		return nil
	}
	req := upsertRequest{
		IDs:        make([]string, len(recs)),
		Embeddings: make([][]float32, len(recs)),
		Metadatas:  make([]docMeta, len(recs)),
		Documents:  make([]string, len(recs)),
	}
	for i, r := range recs {
		meta, err := encodeMeta(r)
		if err != nil {
			return err
		}
		req.IDs[i] = r.ID
		req.Embeddings[i] = r.Embedding
		req.Metadatas[i] = meta
		req.Documents[i] = r.Content
	}
	return c.collectionCall(ctx, "upsert", req, nil)
}

// Query implements tier.LocalClient. Scores are 1 - cosine distance.
func (c *Client) Query(ctx context.Context, vec []float32, n int) ([]memory.Result, error) {
	if n <= 0 {
		return nil, nil
	}
	req := queryRequest{
		QueryEmbeddings: [][]float32{vec},
		NResults:        n,
		Include:         append([]string{"distances"}, includeAll...),
	}
	var resp queryResponse
	if err := c.collectionCall(ctx, "query", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	ids := resp.IDs[0]
	results := make([]memory.Result, 0, len(ids))
	for i, id := range ids {
		rec, err := decodeDoc(id, at(resp.Documents, i), at(resp.Metadatas, i), at(resp.Embeddings, i))
		if err != nil {
			return nil, err
		}
		score := 0.0
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			score = 1 - resp.Distances[0][i]
		}
		results = append(results, memory.Result{Record: rec, Score: score})
	}
	return results, nil
}

// Get implements tier.LocalClient.
func (c *Client) Get(ctx context.Context, ids []string) ([]memory.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return c.get(ctx, getRequest{IDs: ids, Include: includeAll})
}

// Page implements tier.LocalClient.
func (c *Client) Page(ctx context.Context, offset, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	return c.get(ctx, getRequest{Limit: limit, Offset: offset, Include: includeAll})
}

func (c *Client) get(ctx context.Context, req getRequest) ([]memory.Record, error) {
	var resp getResponse
	if err := c.collectionCall(ctx, "get", req, &resp); err != nil {
		return nil, err
	}
	recs := make([]memory.Record, 0, len(resp.IDs))
	for i, id := range resp.IDs {
		var doc *string
		if i < len(resp.Documents) {
			doc = resp.Documents[i]
		}
		var meta *docMeta
		if i < len(resp.Metadatas) {
			meta = resp.Metadatas[i]
		}
		var emb []float32
		if i < len(resp.Embeddings) {
			emb = resp.Embeddings[i]
		}
		rec, err := decodeDoc(id, doc, meta, emb)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Delete implements tier.LocalClient.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.collectionCall(ctx, "delete", deleteRequest{IDs: ids}, nil)
}

// Count implements tier.LocalClient.
func (c *Client) Count(ctx context.Context) (int, error) {
	id, err := c.collection()
	if err != nil {
		return 0, err
	}
	var n int
	if err := c.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(id)+"/count", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close implements tier.LocalClient.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// --- helpers ---

func (c *Client) collection() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID == "" {
		return "", fmt.Errorf("%s: %w: collection not resolved", driverName, memory.ErrBackendUnavailable)
	}
	return c.collectionID, nil
}

func (c *Client) collectionCall(ctx context.Context, op string, body, out any) error {
	id, err := c.collection()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(id)+"/"+op, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", driverName, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", driverName, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return tier.MapConnectionError(driverName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return tier.MapConnectionError(driverName, err)
	}
	if err := tier.MapHTTPError(driverName, resp.StatusCode, errorMessage(payload)); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: decode %s response: %w", driverName, path, err)
		}
	}
	return nil
}

func errorMessage(payload []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &e) == nil {
		switch {
		case e.Message != "":
			return e.Message
		case e.Error != "":
			return e.Error
		}
	}
	return strings.TrimSpace(string(payload))
}

func encodeMeta(r memory.Record) (docMeta, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	t, err := json.Marshal(tags)
	if err != nil {
		return docMeta{}, fmt.Errorf("%s: marshal tags: %w", driverName, err)
	}
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	m, err := json.Marshal(meta)
	if err != nil {
		return docMeta{}, fmt.Errorf("%s: marshal metadata: %w", driverName, err)
	}
	return docMeta{Tags: string(t), Metadata: string(m), CreatedAt: r.CreatedAt.UTC().UnixNano()}, nil
}

func decodeDoc(id string, doc *string, meta *docMeta, emb []float32) (memory.Record, error) {
	rec := memory.Record{ID: id, Embedding: emb}
	if doc != nil {
		rec.Content = *doc
	}
	if meta == nil {
		return rec, nil
	}
	if meta.Tags != "" && meta.Tags != "[]" {
		if err := json.Unmarshal([]byte(meta.Tags), &rec.Tags); err != nil {
			return memory.Record{}, fmt.Errorf("%s: decode tags of %s: %w", driverName, id, err)
		}
	}
	if meta.Metadata != "" && meta.Metadata != "{}" {
		if err := json.Unmarshal([]byte(meta.Metadata), &rec.Metadata); err != nil {
			return memory.Record{}, fmt.Errorf("%s: decode metadata of %s: %w", driverName, id, err)
		}
	}
	if meta.CreatedAt != 0 {
		rec.CreatedAt = time.Unix(0, meta.CreatedAt).UTC()
	}
	return rec, nil
}

// at returns the i-th element of the first row of a per-query result.
func at[T any](rows [][]T, i int) T {
	var zero T
	if len(rows) == 0 || i >= len(rows[0]) {
		return zero
	}
	return rows[0][i]
}
