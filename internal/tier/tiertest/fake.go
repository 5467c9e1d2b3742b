// Package tiertest provides an in-memory vector-service client for tests.
package tiertest

import (
	"context"
	"slices"
	"sync"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

// Interface guards.
var (
	_ tier.LocalClient  = (*Client)(nil)
	_ tier.RemoteClient = (*Client)(nil)
)

// Client is a fake tier.RemoteClient holding records in memory. Set the
// error fields to inject failures; they may be changed between calls
// under Lock/Unlock.
type Client struct {
	sync.Mutex

	DriverName    string
	ConfiguredErr error
	HeartbeatErr  error
	EnsureErr     error
	UpsertErr     error
	QueryErr      error
	GetErr        error
	DeleteErr     error
	PageErr       error

	// Dimension is the collection dimension reported by EnsureCollection.
	// Zero adopts the requested dimension.
	Dimension int

	records map[string]memory.Record
	order   []string

	Upserts int
	Deletes int
	Closed  bool
}

// NewClient returns an empty fake client.
func NewClient() *Client {
	return &Client{DriverName: "fake", records: make(map[string]memory.Record)}
}

// Driver implements tier.RemoteClient.
func (c *Client) Driver() string { return c.DriverName }

// Configured implements tier.RemoteClient.
func (c *Client) Configured() error {
	c.Lock()
	defer c.Unlock()
	return c.ConfiguredErr
}

// Heartbeat implements tier.LocalClient.
func (c *Client) Heartbeat(context.Context) error {
	c.Lock()
	defer c.Unlock()
	return c.HeartbeatErr
}

// EnsureCollection implements tier.LocalClient.
func (c *Client) EnsureCollection(_ context.Context, dim int) (int, error) {
	c.Lock()
	defer c.Unlock()
	if c.EnsureErr != nil {
		return 0, c.EnsureErr
	}
	if c.Dimension == 0 {
		c.Dimension = dim
	}
	return c.Dimension, nil
}

// Upsert implements tier.LocalClient.
func (c *Client) Upsert(_ context.Context, recs []memory.Record) error {
	c.Lock()
	defer c.Unlock()
	if c.UpsertErr != nil {
		return c.UpsertErr
	}
	for _, r := range recs {
		if _, ok := c.records[r.ID]; !ok {
			c.order = append(c.order, r.ID)
		}
		c.records[r.ID] = r.Clone()
		c.Upserts++
	}
	return nil
}

// Query implements tier.LocalClient with a brute-force cosine scan.
func (c *Client) Query(_ context.Context, vec []float32, n int) ([]memory.Result, error) {
	c.Lock()
	defer c.Unlock()
	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	results := make([]memory.Result, 0, len(c.order))
	for _, id := range c.order {
		r := c.records[id]
		results = append(results, memory.Result{Record: r.Clone(), Score: memory.CosineSimilarity(vec, r.Embedding)})
	}
	return memory.RankResults(results, n), nil
}

// Get implements tier.LocalClient.
func (c *Client) Get(_ context.Context, ids []string) ([]memory.Record, error) {
	c.Lock()
	defer c.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	var out []memory.Record
	for _, id := range ids {
		if r, ok := c.records[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Delete implements tier.LocalClient.
func (c *Client) Delete(_ context.Context, ids []string) error {
	c.Lock()
	defer c.Unlock()
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	for _, id := range ids {
		if _, ok := c.records[id]; !ok {
			continue
		}
		delete(c.records, id)
		c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
		c.Deletes++
	}
	return nil
}

// Page implements tier.LocalClient.
func (c *Client) Page(_ context.Context, offset, limit int) ([]memory.Record, error) {
	c.Lock()
	defer c.Unlock()
	if c.PageErr != nil {
		return nil, c.PageErr
	}
	if offset >= len(c.order) {
		return nil, nil
	}
	end := min(offset+limit, len(c.order))
	out := make([]memory.Record, 0, end-offset)
	for _, id := range c.order[offset:end] {
		out = append(out, c.records[id].Clone())
	}
	return out, nil
}

// Count implements tier.LocalClient.
func (c *Client) Count(context.Context) (int, error) {
	c.Lock()
	defer c.Unlock()
	return len(c.records), nil
}

// Close implements tier.LocalClient.
func (c *Client) Close() error {
	c.Lock()
	defer c.Unlock()
	c.Closed = true
	return nil
}

// Has reports whether id is stored.
func (c *Client) Has(id string) bool {
	c.Lock()
	defer c.Unlock()
	_, ok := c.records[id]
	return ok
}

// Len returns the number of stored records.
func (c *Client) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.records)
}
