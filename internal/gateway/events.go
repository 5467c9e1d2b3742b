package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
)

const (
	eventBuffer       = 16
	eventWriteTimeout = 5 * time.Second
)

// Event is one message on the /api/events stream.
type Event struct {
	Type   string             `json:"type"` // "status" or "pass"
	Status *hybrid.SyncStatus `json:"status,omitempty"`
	Pass   *hybrid.PassReport `json:"pass,omitempty"`
}

// handleEvents upgrades to a WebSocket and streams sync pass reports.
// A status snapshot is sent first when the backend syncs.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.events == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "event feed not available"})
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()

		// Clients only listen; CloseRead ends ctx when they disconnect.
		ctx := conn.CloseRead(r.Context())

		reports, cancel := g.events.Subscribe(eventBuffer)
		defer cancel()

		if g.sync != nil {
			st := g.sync.Status()
			if err := g.writeEvent(ctx, conn, Event{Type: "status", Status: &st}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case rep, ok := <-reports:
				if !ok {
					return
				}
				if err := g.writeEvent(ctx, conn, Event{Type: "pass", Pass: &rep}); err != nil {
					g.logger.Debug("event stream closed", "error", err)
					return
				}
			}
		}
	}
}

func (g *Gateway) writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
