package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{memory.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("get: %w", memory.ErrNotFound), http.StatusNotFound},
		{memory.ErrInvalidEntry, http.StatusBadRequest},
		{memory.ErrInvalidFilter, http.StatusBadRequest},
		{memory.ErrEmbedding, http.StatusUnprocessableEntity},
		{memory.ErrDimensionMismatch, http.StatusUnprocessableEntity},
		{memory.ErrCapacity, http.StatusInsufficientStorage},
		{fmt.Errorf("qdrant: upsert: %w", memory.ErrUnauthorized), http.StatusBadGateway},
		{memory.Transient(errors.New("busy")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{memory.ErrClosed, http.StatusServiceUnavailable},
		{hybrid.ErrSyncInFlight, http.StatusConflict},
		{hybrid.ErrSyncDisabled, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
