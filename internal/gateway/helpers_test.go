package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/memory/memorytest"
	"github.com/Hkesd/mcp-memory-service/internal/security"
)

// fakeSyncer is a scripted syncer.
type fakeSyncer struct {
	mu     sync.Mutex
	status hybrid.SyncStatus
	report hybrid.PassReport
	err    error
	calls  int
}

func (f *fakeSyncer) SyncNow(context.Context) (hybrid.PassReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.report, f.err
}

func (f *fakeSyncer) Status() hybrid.SyncStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// keywordBackend adds a canned keyword index to a test backend.
type keywordBackend struct {
	*memorytest.Backend
	hits []memory.Result
}

func (k *keywordBackend) SearchKeyword(_ context.Context, _ string, limit int, _ *memory.Filter) ([]memory.Result, error) {
	return memory.RankResults(k.hits, limit), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway returns a gateway bound to an in-memory backend without
// starting a listener.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g := &Gateway{
		logger:   discardLogger(),
		backend:  memorytest.NewBackend(memory.KindBaseline),
		redactor: security.NewRedactor(),
	}
	g.config.defaults()
	return g
}

// serve starts an httptest server for the gateway's router.
func serve(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return srv
}

// do sends a request with an optional JSON body.
func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// decode reads a JSON response body into v.
func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// decodeRecorder reads a recorded JSON body into v.
func decodeRecorder(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
