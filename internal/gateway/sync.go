package gateway

import (
	"net/http"

	"github.com/Hkesd/mcp-memory-service/internal/security"
)

// handleSyncStatus reports the background sync state of a hybrid backend.
func (g *Gateway) handleSyncStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.sync == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "backend has no background sync"})
			return
		}
		writeJSON(w, http.StatusOK, g.sync.Status())
	}
}

// handleSync runs one sync pass and returns its report. A pass already in
// flight, or sync being disabled, replies 409.
func (g *Gateway) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.sync == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "backend has no background sync"})
			return
		}
		emitEvent(g.audit, security.EventSyncTrigger, r, "", "")
		report, err := g.sync.SyncNow(r.Context())
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
