package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/memory/memorytest"
	"github.com/Hkesd/mcp-memory-service/internal/security/securitytest"
)

func TestMemories_Lifecycle(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	audit, events := securitytest.NewTestAuditLogger()
	g.audit = audit
	srv := serve(t, g)

	resp := do(t, http.MethodPost, srv.URL+"/api/memories", memory.Entry{
		Content:  "the deploy key rotates monthly",
		Tags:     []string{"ops"},
		Metadata: map[string]any{"source": "runbook"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("store status = %d", resp.StatusCode)
	}
	var stored storeResponse
	decode(t, resp, &stored)
	if stored.ID == "" {
		t.Fatal("empty id")
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/memories/"+stored.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var rec memory.Record
	decode(t, resp, &rec)
	if rec.Content != "the deploy key rotates monthly" || len(rec.Tags) != 1 || rec.Metadata["source"] != "runbook" {
		t.Errorf("record = %+v", rec)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/memories/"+stored.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/memories/"+stored.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}

	// Deleting again is not an error.
	resp = do(t, http.MethodDelete, srv.URL+"/api/memories/"+stored.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("second delete status = %d, want 204", resp.StatusCode)
	}

	got := events()
	if len(got) != 3 {
		t.Fatalf("audit events = %d, want 3", len(got))
	}
	if got[0].MemoryID != stored.ID || got[1].MemoryID != stored.ID {
		t.Errorf("audit events = %+v", got)
	}
}

func TestMemories_StoreRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv := serve(t, newTestGateway(t))

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"content":`},
		{"empty content", `{"content":"   "}`},
		{"unknown field", `{"content":"x","colour":"red"}`},
		{"nested metadata", `{"content":"x","metadata":{"a":{"b":1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/api/memories", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestMemories_StoreMapsBackendErrors(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	b := memorytest.NewBackend(memory.KindBaseline)
	b.StoreFunc = func(context.Context, memory.Entry) (string, error) {
		return "", memory.ErrCapacity
	}
	g.backend = b
	srv := serve(t, g)

	resp := do(t, http.MethodPost, srv.URL+"/api/memories", memory.Entry{Content: "full"})
	if resp.StatusCode != http.StatusInsufficientStorage {
		t.Errorf("status = %d, want 507", resp.StatusCode)
	}
	var body errorResponse
	decode(t, resp, &body)
	if !strings.Contains(body.Error, "capacity") {
		t.Errorf("error = %q", body.Error)
	}
}

func TestMemories_ListPaging(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	srv := serve(t, g)
	for _, c := range []string{"one", "two", "three"} {
		if _, err := g.backend.Store(t.Context(), memory.Entry{Content: c}); err != nil {
			t.Fatal(err)
		}
	}

	resp := do(t, http.MethodGet, srv.URL+"/api/memories?offset=1&limit=5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var list listResponse
	decode(t, resp, &list)
	if list.Count != 2 || list.Offset != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Memories[0].Content != "two" || list.Memories[1].Content != "three" {
		t.Errorf("order = %q, %q", list.Memories[0].Content, list.Memories[1].Content)
	}

	for _, q := range []string{"offset=-1", "limit=0", "limit=abc"} {
		resp := do(t, http.MethodGet, srv.URL+"/api/memories?"+q, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestMemories_NoBackend(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	g.backend = nil
	srv := serve(t, g)

	resp := do(t, http.MethodGet, srv.URL+"/api/memories", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
