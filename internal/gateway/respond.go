package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps backend errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrInvalidEntry), errors.Is(err, memory.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrEmbedding), errors.Is(err, memory.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, memory.ErrCapacity):
		return http.StatusInsufficientStorage
	case errors.Is(err, memory.ErrUnauthorized):
		return http.StatusBadGateway
	case errors.Is(err, hybrid.ErrSyncInFlight), errors.Is(err, hybrid.ErrSyncDisabled):
		return http.StatusConflict
	case errors.Is(err, memory.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case memory.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError replies with the status mapped from err. Server-side
// failures are logged; their message is not echoed to the client.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

// decodeBody reads a JSON request body into v, bounded by MaxBodyBytes.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	limit := g.config.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode request body: %w", memory.ErrInvalidEntry, err)
	}
	return nil
}

// requireBackend replies 503 and returns false when no backend is bound.
func (g *Gateway) requireBackend(w http.ResponseWriter) bool {
	if g.backend == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "memory backend not available"})
		return false
	}
	return true
}
