package gateway

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
)

func TestEvents_StreamsPassReports(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)
	g.events = hybrid.NewFeed()
	g.sync = &fakeSyncer{status: hybrid.SyncStatus{Enabled: true, Health: hybrid.HealthHealthy}}
	srv := serve(t, g)

	ctx := t.Context()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// The status snapshot is written after the subscription exists.
	var first Event
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first.Type != "status" || first.Status == nil || !first.Status.Enabled {
		t.Fatalf("first event = %+v", first)
	}

	g.events.Publish(hybrid.PassReport{Mirrored: 5, Duration: time.Millisecond})

	var next Event
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read pass: %v", err)
	}
	if next.Type != "pass" || next.Pass == nil || next.Pass.Mirrored != 5 {
		t.Errorf("pass event = %+v", next)
	}
}

func TestEvents_NoFeed(t *testing.T) {
	t.Parallel()

	srv := serve(t, newTestGateway(t))
	resp := do(t, http.MethodGet, srv.URL+"/api/events", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
