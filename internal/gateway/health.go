package gateway

import (
	"net/http"
	"time"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

// DiagnosticJSON is a serializable tier substitution.
type DiagnosticJSON struct {
	Tier   memory.Kind `json:"tier"`
	Driver string      `json:"driver,omitempty"`
	Cause  string      `json:"cause"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status      string             `json:"status"` // "ok" or "degraded"
	Backend     memory.Kind        `json:"backend,omitempty"`
	Diagnostics []DiagnosticJSON   `json:"diagnostics"`
	Sync        *hybrid.SyncStatus `json:"sync,omitempty"`
}

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	HealthResponse
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func diagnosticsJSON(diags []tier.Diagnostic) []DiagnosticJSON {
	out := make([]DiagnosticJSON, 0, len(diags))
	for _, d := range diags {
		cause := ""
		if d.Cause != nil {
			cause = d.Cause.Error()
		}
		out = append(out, DiagnosticJSON{Tier: d.Tier, Driver: d.Driver, Cause: cause})
	}
	return out
}

// health builds the health view. A substituted tier alone does not make
// the service degraded; a missing backend or failing sync does.
func (g *Gateway) health() HealthResponse {
	resp := HealthResponse{
		Status:      "ok",
		Diagnostics: diagnosticsJSON(g.diags),
	}
	if g.backend == nil {
		resp.Status = "degraded"
	} else {
		resp.Backend = g.backend.Kind()
	}
	if g.sync != nil {
		st := g.sync.Status()
		resp.Sync = &st
		if st.Health == hybrid.HealthFailing {
			resp.Status = "degraded"
		}
	}
	return resp
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when healthy, 503 when degraded.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := g.health()
		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// handleStatus returns an http.HandlerFunc for GET /api/status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			HealthResponse: g.health(),
			UptimeSeconds:  int64(time.Since(g.startedAt).Seconds()),
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
