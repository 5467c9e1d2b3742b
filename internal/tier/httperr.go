package tier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// MapHTTPError maps a non-2xx response from a vector service to the
// memory error kinds. It returns nil for 2xx codes. Credential
// rejections map to memory.ErrUnauthorized; Initialize turns them into
// memory.ErrBackendUnavailable so construction substitutes the baseline.
func MapHTTPError(driver string, statusCode int, msg string) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch {
	case statusCode == http.StatusInsufficientStorage, statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%s: %w: HTTP %d: %s", driver, memory.ErrCapacity, statusCode, msg)
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return memory.Transient(fmt.Errorf("%s: HTTP %d: %s", driver, statusCode, msg))
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w: HTTP %d: %s", driver, memory.ErrUnauthorized, statusCode, msg)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", driver, memory.ErrNotFound, msg)
	default:
		return fmt.Errorf("%s: HTTP %d: %s", driver, statusCode, msg)
	}
}

// MapConnectionError maps transport failures to memory.ErrTransient.
// Context errors pass through unchanged.
func MapConnectionError(driver string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return memory.Transient(fmt.Errorf("%s: %w", driver, err))
	}
	return fmt.Errorf("%s: %w", driver, err)
}
