package gateway

import (
	"net/http"

	"github.com/Hkesd/mcp-memory-service/internal/core"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string   `json:"id"`
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
	Hooks     []string `json:"hooks"`
}

// handleListModules lists all compiled modules with the lifecycle hooks
// each implements. Instances come from New and are never provisioned.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
				Hooks:     core.Hooks(m.New()),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// configView is the redacted configuration returned by GET /api/config.
type configView struct {
	Version   string                    `json:"version"`
	DataDir   string                    `json:"data_dir"`
	Modules   map[string]map[string]any `json:"modules"`
	Telemetry map[string]any            `json:"telemetry"`
}

// handleGetConfig returns the loaded configuration with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "config not available"})
			return
		}

		view := configView{
			Version: g.cfg.Version,
			DataDir: g.cfg.DataDir,
			Modules: make(map[string]map[string]any, len(g.cfg.Modules)),
			Telemetry: map[string]any{
				"log_level":     g.cfg.Telemetry.LogLevel,
				"log_format":    g.cfg.Telemetry.LogFormat,
				"otlp_endpoint": g.cfg.Telemetry.OTLPEndpoint,
				"service_name":  g.cfg.Telemetry.ServiceName,
			},
		}
		for id, node := range g.cfg.Modules {
			var m map[string]any
			if err := node.Decode(&m); err != nil {
				g.writeError(w, r, err)
				return
			}
			if m == nil {
				m = map[string]any{}
			}
			g.redactor.RedactMap(m)
			view.Modules[id] = m
		}
		writeJSON(w, http.StatusOK, view)
	}
}
