// Package dashvector is a client for the DashVector HTTP API used by the
// remote memory tier.
package dashvector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

const (
	driverName      = "dashvector"
	maxResponseSize = 32 * 1024 * 1024

	// maxTopK is the largest topk the service accepts in one query.
	maxTopK = 1024

	previewRunes = 200

	// codeInexistentCollection is returned when the collection is missing.
	codeInexistentCollection = -2021
)

var _ tier.RemoteClient = (*Client)(nil)

// Client talks to one DashVector collection.
type Client struct {
	config Config
	http   *http.Client
}

// New creates a client. No request is made until Heartbeat.
func New(cfg Config) *Client {
	cfg.Defaults()
	return &Client{config: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// WithHTTPClient replaces the HTTP client. Intended for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Driver implements tier.RemoteClient.
func (c *Client) Driver() string { return driverName }

// Configured implements tier.RemoteClient.
func (c *Client) Configured() error {
	switch {
	case c.config.APIKey == "":
		return fmt.Errorf("%s: %w: api key is empty", driverName, memory.ErrBackendUnavailable)
	case c.config.Endpoint == "":
		return fmt.Errorf("%s: %w: endpoint is empty", driverName, memory.ErrBackendUnavailable)
	}
	return nil
}

// --- wire types ---

type envelope[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Output    T      `json:"output"`
}

type fields struct {
	Content        string `json:"content"`
	ContentPreview string `json:"content_preview"`
	Tags           string `json:"tags"`
	Metadata       string `json:"metadata"`
	CreatedAt      int64  `json:"created_at"`
}

type doc struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector,omitempty"`
	Fields fields    `json:"fields"`
	Score  float64   `json:"score,omitempty"`
}

type createRequest struct {
	Name         string            `json:"name"`
	Dimension    int               `json:"dimension"`
	Metric       string            `json:"metric"`
	FieldsSchema map[string]string `json:"fields_schema"`
}

type collectionInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    string `json:"status"`
}

type queryRequest struct {
	Vector        []float32 `json:"vector,omitempty"`
	TopK          int       `json:"topk"`
	IncludeVector bool      `json:"include_vector"`
}

type stats struct {
	TotalDocCount json.Number `json:"total_doc_count"`
}

// --- tier.RemoteClient ---

// Heartbeat implements tier.LocalClient by listing collections, which
// also proves the credential.
func (c *Client) Heartbeat(ctx context.Context) error {
	var out envelope[[]string]
	return c.do(ctx, http.MethodGet, "/v1/collections", nil, &out)
}

// EnsureCollection implements tier.LocalClient.
func (c *Client) EnsureCollection(ctx context.Context, dim int) (int, error) {
	if dim <= 0 {
		dim = DefaultDimension
	}
	var info envelope[collectionInfo]
	err := c.do(ctx, http.MethodGet, c.collectionPath(""), nil, &info)
	if err == nil && info.Output.Dimension > 0 {
		return info.Output.Dimension, nil
	}
	if err != nil && !isNotFound(err) {
		return 0, err
	}

	req := createRequest{
		Name:      c.config.Collection,
		Dimension: dim,
		Metric:    "cosine",
		FieldsSchema: map[string]string{
			"content":         "STRING",
			"content_preview": "STRING",
			"tags":            "STRING",
			"metadata":        "STRING",
			"created_at":      "LONG",
		},
	}
	var created envelope[json.RawMessage]
	if err := c.do(ctx, http.MethodPost, "/v1/collections", req, &created); err != nil {
		return 0, fmt.Errorf("create collection %s: %w", c.config.Collection, err)
	}
	return dim, nil
}

// Upsert implements tier.LocalClient.
func (c *Client) Upsert(ctx context.Context, recs []memory.Record) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]doc, len(recs))
	for i, r := range recs {
		d, err := encodeDoc(r)
		if err != nil {
			return err
		}
		docs[i] = d
	}
	var out envelope[json.RawMessage]
	return c.do(ctx, http.MethodPost, c.collectionPath("/docs/upsert"), map[string]any{"docs": docs}, &out)
}

// Query implements tier.LocalClient. Cosine results carry distances and
// are converted to 1 - d.
func (c *Client) Query(ctx context.Context, vec []float32, n int) ([]memory.Result, error) {
	if n <= 0 {
		return nil, nil
	}
	docs, err := c.query(ctx, queryRequest{Vector: vec, TopK: min(n, maxTopK), IncludeVector: true})
	if err != nil {
		return nil, err
	}
	results := make([]memory.Result, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeDoc(d)
		if err != nil {
			return nil, err
		}
		results = append(results, memory.Result{Record: rec, Score: 1 - d.Score})
	}
	return results, nil
}

func (c *Client) query(ctx context.Context, req queryRequest) ([]doc, error) {
	var out envelope[[]doc]
	if err := c.do(ctx, http.MethodPost, c.collectionPath("/query"), req, &out); err != nil {
		return nil, err
	}
	return out.Output, nil
}

// Get implements tier.LocalClient.
func (c *Client) Get(ctx context.Context, ids []string) ([]memory.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	var out envelope[map[string]doc]
	if err := c.do(ctx, http.MethodGet, c.collectionPath("/docs")+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	recs := make([]memory.Record, 0, len(out.Output))
	for _, id := range ids {
		d, ok := out.Output[id]
		if !ok || d.ID == "" {
			continue
		}
		rec, err := decodeDoc(d)
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
	var out envelope[json.RawMessage]
	return c.do(ctx, http.MethodDelete, c.collectionPath("/docs"), map[string]any{"ids": ids}, &out)
}

// Page implements tier.LocalClient. The service has no ordered scan, so
// the first offset+limit documents (at most maxTopK) are fetched with a
// vectorless query and ordered by creation time before slicing.
func (c *Client) Page(ctx context.Context, offset, limit int) ([]memory.Record, error) {
	if limit <= 0 || offset >= maxTopK {
		return nil, nil
	}
	docs, err := c.query(ctx, queryRequest{TopK: min(offset+limit, maxTopK), IncludeVector: true})
	if err != nil {
		return nil, err
	}
	recs := make([]memory.Record, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeDoc(d)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	slices.SortStableFunc(recs, func(a, b memory.Record) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if offset >= len(recs) {
		return nil, nil
	}
	return recs[offset:min(offset+limit, len(recs))], nil
}

// Count implements tier.LocalClient.
func (c *Client) Count(ctx context.Context) (int, error) {
	var out envelope[stats]
	if err := c.do(ctx, http.MethodGet, c.collectionPath("/stats"), nil, &out); err != nil {
		return 0, err
	}
	n, err := out.Output.TotalDocCount.Int64()
	if err != nil {
		return 0, fmt.Errorf("%s: parse total_doc_count: %w", driverName, err)
	}
	return int(n), nil
}

// Close implements tier.LocalClient.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// --- helpers ---

func (c *Client) collectionPath(suffix string) string {
	return "/v1/collections/" + url.PathEscape(c.config.Collection) + suffix
}

// apiError is a non-zero envelope code.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: code %d: %s", driverName, e.Code, e.Message)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var ae *apiError
	if errors.As(err, &ae) && ae.Code == codeInexistentCollection {
		return true
	}
	return errors.Is(err, memory.ErrNotFound)
}

// do sends one request. out must point to an envelope; its code is checked.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", driverName, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL()+path, rd)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", driverName, err)
	}
	req.Header.Set("dashvector-auth-token", c.config.APIKey)
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

	var head envelope[json.RawMessage]
	_ = json.Unmarshal(payload, &head)

	msg := head.Message
	if msg == "" {
		msg = strings.TrimSpace(string(payload))
	}
	if err := tier.MapHTTPError(driverName, resp.StatusCode, msg); err != nil {
		if head.Code != 0 {
			return fmt.Errorf("%w: %w", err, &apiError{Code: head.Code, Message: head.Message})
		}
		return err
	}
	if head.Code != 0 {
		return &apiError{Code: head.Code, Message: head.Message}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", driverName, err)
		}
	}
	return nil
}

func encodeDoc(r memory.Record) (doc, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	t, err := json.Marshal(tags)
	if err != nil {
		return doc{}, fmt.Errorf("%s: marshal tags: %w", driverName, err)
	}
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	m, err := json.Marshal(meta)
	if err != nil {
		return doc{}, fmt.Errorf("%s: marshal metadata: %w", driverName, err)
	}
	return doc{
		ID:     r.ID,
		Vector: r.Embedding,
		Fields: fields{
			Content:        r.Content,
			ContentPreview: preview(r.Content),
			Tags:           string(t),
			Metadata:       string(m),
			CreatedAt:      r.CreatedAt.UTC().UnixNano(),
		},
	}, nil
}

func decodeDoc(d doc) (memory.Record, error) {
	rec := memory.Record{
		ID:        d.ID,
		Content:   d.Fields.Content,
		Embedding: d.Vector,
	}
	if d.Fields.Tags != "" && d.Fields.Tags != "[]" {
		if err := json.Unmarshal([]byte(d.Fields.Tags), &rec.Tags); err != nil {
			return memory.Record{}, fmt.Errorf("%s: decode tags of %s: %w", driverName, d.ID, err)
		}
	}
	if d.Fields.Metadata != "" && d.Fields.Metadata != "{}" {
		if err := json.Unmarshal([]byte(d.Fields.Metadata), &rec.Metadata); err != nil {
			return memory.Record{}, fmt.Errorf("%s: decode metadata of %s: %w", driverName, d.ID, err)
		}
	}
	if d.Fields.CreatedAt != 0 {
		rec.CreatedAt = time.Unix(0, d.Fields.CreatedAt).UTC()
	}
	return rec, nil
}

// preview returns the first previewRunes runes of s.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == previewRunes {
			return s[:i]
		}
		n++
	}
	return s
}
