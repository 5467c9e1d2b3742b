// Package qdrant is a client for the Qdrant REST API, usable as the remote
// memory tier.
package qdrant

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

	"github.com/google/uuid"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

const (
	driverName      = "qdrant"
	maxResponseSize = 32 * 1024 * 1024

	// maxScroll bounds how many points Page walks through.
	maxScroll = 10000
	pageSize  = 256
)

// idNamespace derives point ids for record ids that are not UUIDs.
var idNamespace = uuid.MustParse("6f1c5d8e-3b0a-4c8e-9d4f-2a7b1e5c9f30")

var _ tier.RemoteClient = (*Client)(nil)

// Client talks to one Qdrant collection.
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
	case c.config.URL == "":
		return fmt.Errorf("%s: %w: url is empty", driverName, memory.ErrBackendUnavailable)
	case c.config.RequireAPIKey && c.config.APIKey == "":
		return fmt.Errorf("%s: %w: api key is empty", driverName, memory.ErrBackendUnavailable)
	}
	return nil
}

// --- wire types ---

// qdrantStatus accepts both `"ok"` and `{"error": "..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type envelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type payload struct {
	RecordID  string         `json:"record_id"`
	Content   string         `json:"content"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt int64          `json:"created_at"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
	Score   float64   `json:"score,omitempty"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type scrollResult struct {
	Points []point          `json:"points"`
	Next   *json.RawMessage `json:"next_page_offset"`
}

// --- tier.RemoteClient ---

// Heartbeat implements tier.LocalClient.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// EnsureCollection implements tier.LocalClient.
func (c *Client) EnsureCollection(ctx context.Context, dim int) (int, error) {
	var info envelope[collectionInfo]
	err := c.do(ctx, http.MethodGet, c.path(""), nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size > 0 {
			return size, nil
		}
		return dim, nil
	}
	if !errors.Is(err, memory.ErrNotFound) {
		return 0, err
	}

	req := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	if err := c.do(ctx, http.MethodPut, c.path(""), req, nil); err != nil {
		return 0, fmt.Errorf("create collection %s: %w", c.config.Collection, err)
	}
	return dim, nil
}

// Upsert implements tier.LocalClient.
func (c *Client) Upsert(ctx context.Context, recs []memory.Record) error {
	if len(recs) == 0 {
		return nil
	}
	points := make([]point, len(recs))
	for i, r := range recs {
		points[i] = point{
			ID:     pointID(r.ID),
			Vector: r.Embedding,
			Payload: payload{
				RecordID:  r.ID,
				Content:   r.Content,
				Tags:      r.Tags,
				Metadata:  r.Metadata,
				CreatedAt: r.CreatedAt.UTC().UnixNano(),
			},
		}
	}
	return c.do(ctx, http.MethodPut, c.path("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Query implements tier.LocalClient. Cosine scores are similarities.
func (c *Client) Query(ctx context.Context, vec []float32, n int) ([]memory.Result, error) {
	if n <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vec,
		"limit":        n,
		"with_payload": true,
		"with_vector":  true,
	}
	var out envelope[[]point]
	if err := c.do(ctx, http.MethodPost, c.path("/points/search"), req, &out); err != nil {
		return nil, err
	}
	results := make([]memory.Result, 0, len(out.Result))
	for _, p := range out.Result {
		results = append(results, memory.Result{Record: p.record(), Score: p.Score})
	}
	return results, nil
}

// Get implements tier.LocalClient.
func (c *Client) Get(ctx context.Context, ids []string) ([]memory.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pids := make([]string, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	req := map[string]any{"ids": pids, "with_payload": true, "with_vector": true}
	var out envelope[[]point]
	if err := c.do(ctx, http.MethodPost, c.path("/points"), req, &out); err != nil {
		return nil, err
	}
	recs := make([]memory.Record, 0, len(out.Result))
	for _, p := range out.Result {
		recs = append(recs, p.record())
	}
	return recs, nil
}

// Delete implements tier.LocalClient.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]string, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	return c.do(ctx, http.MethodPost, c.path("/points/delete?wait=true"), map[string]any{"points": pids}, nil)
}

// Page implements tier.LocalClient. Points are scrolled (at most maxScroll)
// and ordered by creation time before slicing.
func (c *Client) Page(ctx context.Context, offset, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		recs []memory.Record
		next *json.RawMessage
	)
	for len(recs) < maxScroll {
		req := map[string]any{
			"limit":        pageSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if next != nil {
			req["offset"] = next
		}
		var out envelope[scrollResult]
		if err := c.do(ctx, http.MethodPost, c.path("/points/scroll"), req, &out); err != nil {
			return nil, err
		}
		for _, p := range out.Result.Points {
			recs = append(recs, p.record())
		}
		if out.Result.Next == nil || string(*out.Result.Next) == "null" || len(out.Result.Points) == 0 {
			break
		}
		next = out.Result.Next
	}
	slices.SortStableFunc(recs, func(a, b memory.Record) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if offset >= len(recs) {
		return nil, nil
	}
	return recs[offset:min(offset+limit, len(recs))], nil
}

// Count implements tier.LocalClient.
func (c *Client) Count(ctx context.Context) (int, error) {
	var out envelope[struct {
		Count int `json:"count"`
	}]
	if err := c.do(ctx, http.MethodPost, c.path("/points/count"), map[string]any{"exact": true}, &out); err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

// Close implements tier.LocalClient.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// --- helpers ---

func (c *Client) path(suffix string) string {
	return "/collections/" + url.PathEscape(c.config.Collection) + suffix
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

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, rd)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", driverName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return tier.MapConnectionError(driverName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return tier.MapConnectionError(driverName, err)
	}

	var head envelope[json.RawMessage]
	_ = json.Unmarshal(raw, &head)
	msg := head.Status.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if err := tier.MapHTTPError(driverName, resp.StatusCode, msg); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if head.Status.State == "error" {
		return fmt.Errorf("%s %s: %s: %s", method, path, driverName, head.Status.Error)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", driverName, err)
		}
	}
	return nil
}

func (p point) record() memory.Record {
	id := p.Payload.RecordID
	if id == "" {
		id = p.ID
	}
	rec := memory.Record{
		ID:        id,
		Content:   p.Payload.Content,
		Tags:      p.Payload.Tags,
		Metadata:  p.Payload.Metadata,
		Embedding: p.Vector,
	}
	if len(rec.Tags) == 0 {
		rec.Tags = nil
	}
	if len(rec.Metadata) == 0 {
		rec.Metadata = nil
	}
	if p.Payload.CreatedAt != 0 {
		rec.CreatedAt = time.Unix(0, p.Payload.CreatedAt).UTC()
	}
	return rec
}

// pointID returns id when it is a UUID, otherwise a name-based UUID
// derived from it. Qdrant only accepts UUIDs and unsigned integers.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(idNamespace, []byte(id)).String()
}
