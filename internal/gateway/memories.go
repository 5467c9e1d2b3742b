package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/security"
)

// List paging bounds.
const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

// storeResponse is returned by POST /api/memories.
type storeResponse struct {
	ID string `json:"id"`
}

// listResponse is returned by GET /api/memories.
type listResponse struct {
	Memories []memory.Record `json:"memories"`
	Offset   int             `json:"offset"`
	Count    int             `json:"count"`
}

// handleStoreMemory stores one entry and replies 201 with its id.
func (g *Gateway) handleStoreMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireBackend(w) {
			return
		}
		var e memory.Entry
		if err := g.decodeBody(w, r, &e); err != nil {
			g.writeError(w, r, err)
			return
		}
		id, err := g.backend.Store(r.Context(), e)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		emitEvent(g.audit, security.EventMemoryStore, r, id, "")
		writeJSON(w, http.StatusCreated, storeResponse{ID: id})
	}
}

// handleListMemories pages through records in creation order.
func (g *Gateway) handleListMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireBackend(w) {
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil || offset < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid offset"})
			return
		}
		limit, err := queryInt(r, "limit", defaultListLimit)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = min(limit, maxListLimit)

		recs, err := g.backend.List(r.Context(), offset, limit)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Memories: recs, Offset: offset, Count: len(recs)})
	}
}

// handleGetMemory returns one record or 404.
func (g *Gateway) handleGetMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireBackend(w) {
			return
		}
		rec, err := g.backend.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleDeleteMemory deletes a record. Deleting an absent id replies 204
// like any other delete.
func (g *Gateway) handleDeleteMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireBackend(w) {
			return
		}
		id := chi.URLParam(r, "id")
		if err := g.backend.Delete(r.Context(), id); err != nil {
			g.writeError(w, r, err)
			return
		}
		emitEvent(g.audit, security.EventMemoryDelete, r, id, "")
		w.WriteHeader(http.StatusNoContent)
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
