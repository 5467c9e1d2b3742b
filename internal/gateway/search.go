package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Search modes.
const (
	modeSemantic = "semantic"
	modeText     = "text"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

var errNoKeywordIndex = errors.New("backend has no keyword index")

// searchRequest is the body of POST /api/search.
type searchRequest struct {
	Query    string         `json:"query"`
	Limit    int            `json:"limit"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Expr     string         `json:"expr,omitempty"`
	Mode     string         `json:"mode,omitempty"`
}

// searchResponse is returned by POST /api/search.
type searchResponse struct {
	Results []memory.Result `json:"results"`
	Mode    string          `json:"mode"`
}

func (s searchRequest) filter() *memory.Filter {
	f := &memory.Filter{Tags: s.Tags, Metadata: s.Metadata, Expr: s.Expr}
	if f.IsZero() {
		return nil
	}
	return f
}

// handleSearch runs a semantic search, or a keyword search with
// mode=text on backends that keep a full-text index.
func (g *Gateway) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireBackend(w) {
			return
		}
		var req searchRequest
		if err := g.decodeBody(w, r, &req); err != nil {
			g.writeError(w, r, err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
			return
		}
		if req.Limit <= 0 {
			req.Limit = defaultSearchLimit
		}
		req.Limit = min(req.Limit, maxSearchLimit)
		if req.Mode == "" {
			req.Mode = modeSemantic
		}

		var (
			results []memory.Result
			err     error
		)
		switch req.Mode {
		case modeSemantic:
			results, err = g.backend.Search(r.Context(), req.Query, req.Limit, req.filter())
		case modeText:
			ks, ok := memory.Underlying(g.backend).(memory.KeywordSearcher)
			if !ok {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: errNoKeywordIndex.Error()})
				return
			}
			results, err = ks.SearchKeyword(r.Context(), req.Query, req.Limit, req.filter())
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown search mode: " + req.Mode})
			return
		}
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, searchResponse{Results: results, Mode: req.Mode})
	}
}
